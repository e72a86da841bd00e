package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetryPolicy controls GenerateJSON.
type RetryPolicy struct {
	Attempts int
	// Backoff is multiplied by the attempt number before each retry.
	Backoff time.Duration
	Logger  *slog.Logger
}

// DefaultRetry makes three attempts with linear one-second backoff.
var DefaultRetry = RetryPolicy{Attempts: 3, Backoff: time.Second}

// GenerateJSON generates, strips code fences and decodes into T, then runs
// validate. Any failure is retried according to policy.
func GenerateJSON[T any](ctx context.Context, m Model, req Request, policy RetryPolicy, validate func(T) error) (T, error) {
	var zero T
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := policy.Logger
	if logger == nil {
		logger = slog.Default()
	}
	req.JSON = true

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(policy.Backoff * time.Duration(i)):
			}
		}

		content, err := m.Generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			lastErr = err
			continue
		}

		var out T
		if err := json.Unmarshal([]byte(StripCodeFence(content)), &out); err != nil {
			lastErr = fmt.Errorf("json parse error: %w (content: %s)", err, truncate(content, 200))
			continue
		}
		if validate != nil {
			if err := validate(out); err != nil {
				lastErr = fmt.Errorf("validation failed: %w", err)
				continue
			}
		}
		return out, nil
	}
	return zero, fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// StripCodeFence removes a surrounding ```json fence, which models add even in
// JSON mode.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
