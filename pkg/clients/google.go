package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/genai"
)

// ErrMissingAPIKey is returned when no Gemini API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY environment variable is required")

// GenAI creates a Gemini API client.
func GenAI(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return client, nil
}

// GoogleAi creates a langchaingo Google AI model with defaultModel used when a
// request names none.
func GoogleAi(ctx context.Context, apiKey, defaultModel string) (*googleai.GoogleAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(defaultModel))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI model: %w", err)
	}
	return llm, nil
}
