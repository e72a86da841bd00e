package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

type queries struct {
	Queries []string `json:"queries"`
}

func TestGenerateJSONRetriesUntilValid(t *testing.T) {
	responses := []string{"not json", `{"queries": []}`, "```json\n{\"queries\": [\"a\", \"b\"]}\n```"}
	calls := 0
	m := ModelFunc(func(_ context.Context, req Request) (string, error) {
		assert.True(t, req.JSON)
		resp := responses[calls]
		calls++
		return resp, nil
	})

	out, err := GenerateJSON(context.Background(), m, Request{Prompt: "p"}, RetryPolicy{Attempts: 3}, func(q queries) error {
		if len(q.Queries) == 0 {
			return errors.New("empty queries list")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Queries)
	assert.Equal(t, 3, calls)
}

func TestGenerateJSONGivesUp(t *testing.T) {
	m := ModelFunc(func(context.Context, Request) (string, error) {
		return "", errors.New("quota")
	})

	_, err := GenerateJSON[queries](context.Background(), m, Request{}, RetryPolicy{Attempts: 2}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "quota")
}

func TestGenerateJSONStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	m := ModelFunc(func(context.Context, Request) (string, error) {
		calls++
		cancel()
		return "", errors.New("interrupted")
	})

	_, err := GenerateJSON[queries](ctx, m, Request{}, RetryPolicy{Attempts: 3, Backoff: time.Hour}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  ```json{\"a\":1}```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripCodeFence(tt.in))
	}
}

func TestSchemaInstructions(t *testing.T) {
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"queries": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "List of search queries",
			},
		},
		Required: []string{"queries"},
	}

	out := SchemaInstructions(schema)

	assert.True(t, strings.HasPrefix(out, "Return the JSON object directly"))
	assert.Contains(t, out, `"type": "object"`)
	assert.Contains(t, out, `"type": "array"`)
	assert.Contains(t, out, `"description": "List of search queries"`)
	assert.Contains(t, out, `"required": [`)
}

type fakeLangChainModel struct {
	messages []llms.MessageContent
	options  llms.CallOptions
	content  string
}

func (f *fakeLangChainModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.options)
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeLangChainModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChainEmbedsSchema(t *testing.T) {
	fake := &fakeLangChainModel{content: ` {"ok": true} `}
	m := NewLangChain(fake)

	out, err := m.Generate(context.Background(), Request{
		Model:  "gemini-2.0-flash",
		System: "You write queries.",
		Prompt: "topic",
		Schema: &genai.Schema{Type: genai.TypeObject},
	})

	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	system := fake.messages[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "You write queries.")
	assert.Contains(t, system, "# Response Format:")
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
	assert.Equal(t, "gemini-2.0-flash", fake.options.Model)
	assert.True(t, fake.options.JSONMode)
}

func TestLangChainEmptyContent(t *testing.T) {
	m := NewLangChain(&fakeLangChainModel{content: "  "})

	_, err := m.Generate(context.Background(), Request{Prompt: "p"})

	assert.ErrorIs(t, err, ErrEmptyResponse)
}
