// Package llm is the thin text-generation layer the research agents talk to.
// Backends turn a Request into raw model text; GenerateJSON adds retries and
// decoding on top.
package llm

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when a model produces no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Request is a single-turn generation request.
type Request struct {
	Model  string
	System string
	Prompt string
	// Schema constrains JSON output. Backends without native schema support
	// embed it in the system prompt.
	Schema *genai.Schema
	JSON   bool
	// Temperature is left to the provider default when nil.
	Temperature *float32
}

// Model generates text for a request.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (string, error)

func (f ModelFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Float32 returns a pointer to v, for Request.Temperature.
func Float32(v float32) *float32 {
	return &v
}
