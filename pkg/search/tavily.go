package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-search/pkg/research"
)

const (
	tavilyEndpoint = "https://api.tavily.com/search"

	// tavilyMaxRetries bounds the 429 retries of one query.
	tavilyMaxRetries = 5
)

// ErrRateLimited is returned when the provider still answers 429 after the
// last retry.
var ErrRateLimited = errors.New("rate limited by search provider")

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey string
	// Endpoint defaults to the public API.
	Endpoint   string
	MaxResults int
	client     *http.Client
	backoff    time.Duration
	maxBackoff time.Duration
	maxRetries int
}

func NewTavilyWithClient(apiKey string, maxResults int, client *http.Client) *Tavily {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Tavily{
		APIKey:     apiKey,
		Endpoint:   tavilyEndpoint,
		MaxResults: maxResults,
		client:     client,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
		maxRetries: tavilyMaxRetries,
	}
}

func (t *Tavily) Search(ctx context.Context, query string) ([]research.SearchHit, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.APIKey,
		"search_depth": "basic",
		"max_results":  t.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := t.backoff
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tavily: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()
		if attempt >= t.maxRetries {
			return nil, fmt.Errorf("tavily: %w after %d retries", ErrRateLimited, t.maxRetries)
		}

		// Back off on 429, doubling up to maxBackoff.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < t.maxBackoff {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	hits := make([]research.SearchHit, 0, len(response.Results))
	for _, r := range response.Results {
		hits = append(hits, research.SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if len(hits) >= t.MaxResults {
			break
		}
	}
	return hits, nil
}
