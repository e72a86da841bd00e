package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-search/pkg/research"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubEngine answers every question from one fixed source and records the
// options of the last generate call.
func stubEngine(t *testing.T, lastGenerate *research.GenerateRequest) *research.Engine {
	t.Helper()
	return research.NewEngine(research.Settings{
		QueryGeneratorModel: "query-model",
		ReflectionModel:     "reflection-model",
		AnswerModel:         "answer-model",
	}, research.Dependencies{
		Generator: research.GeneratorFunc(func(_ context.Context, req research.GenerateRequest) ([]string, error) {
			if lastGenerate != nil {
				*lastGenerate = req
			}
			return []string{req.Query}, nil
		}),
		Searcher: research.SearcherFunc(func(context.Context, string) ([]research.SearchHit, error) {
			return []research.SearchHit{{Title: "Paris", URL: "https://example.com/paris", Snippet: "Paris is the capital of France."}}, nil
		}),
		Reflector: research.ReflectorFunc(func(context.Context, research.JudgeRequest) (research.Judgment, error) {
			return research.Judgment{IsSufficient: true}, nil
		}),
		Synthesizer: research.SynthesizerFunc(func(context.Context, research.SynthesizeRequest) (string, error) {
			return "Paris [1].", nil
		}),
	}, research.WithLogger(quietLogger()))
}

func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()

	ss, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callText(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestMCPListsTools(t *testing.T) {
	cs := connect(t, NewMCPServer(stubEngine(t, nil), nil, quietLogger()))

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"deep_search", "quick_search", "get_search_status"}, names)
}

func TestMCPDeepSearch(t *testing.T) {
	var last research.GenerateRequest
	cs := connect(t, NewMCPServer(stubEngine(t, &last), nil, quietLogger()))

	text, isErr := callText(t, cs, "deep_search", map[string]any{
		"query":          "capital of France",
		"max_iterations": 9,
		"max_queries":    2,
	})

	assert.False(t, isErr)
	assert.Contains(t, text, "## Research Query: capital of France")
	assert.Contains(t, text, "## Answer:\nParis [1].")
	assert.Contains(t, text, "- [1] [Paris](https://example.com/paris)")
	assert.Equal(t, 2, last.Count)
}

func TestMCPQuickSearch(t *testing.T) {
	var last research.GenerateRequest
	cs := connect(t, NewMCPServer(stubEngine(t, &last), nil, quietLogger()))

	text, isErr := callText(t, cs, "quick_search", map[string]any{"query": "capital of France"})

	assert.False(t, isErr)
	assert.Contains(t, text, "- Research loops completed: 1")
	assert.Equal(t, 1, last.Count)
}

func TestMCPErrorsAreText(t *testing.T) {
	engine := research.NewUninitializedEngine(research.Settings{}, errors.New("GEMINI_API_KEY environment variable is required"),
		research.WithLogger(quietLogger()), research.WithCredentials(false))
	cs := connect(t, NewMCPServer(engine, nil, quietLogger()))

	text, isErr := callText(t, cs, "deep_search", map[string]any{"query": "q"})

	assert.True(t, isErr)
	assert.Equal(t, "Error: research engine not initialized: GEMINI_API_KEY environment variable is required", text)
}

func TestMCPStatusAndConfigResource(t *testing.T) {
	cs := connect(t, NewMCPServer(stubEngine(t, nil), nil, quietLogger()))

	text, isErr := callText(t, cs, "get_search_status", map[string]any{})
	require.False(t, isErr)

	var st research.EngineStatus
	require.NoError(t, json.Unmarshal([]byte(text), &st))
	assert.True(t, st.Initialized)
	require.NotNil(t, st.Configuration)
	assert.Equal(t, "query-model", st.Configuration.QueryGeneratorModel)

	res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: ConfigResourceURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	assert.JSONEq(t, text, res.Contents[0].Text)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, clamp(9, 5))
	assert.Equal(t, 3, clamp(3, 5))
	assert.Equal(t, 0, clamp(0, 5))
}
