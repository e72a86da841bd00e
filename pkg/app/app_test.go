package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/research"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() *config.Config {
	return &config.Config{
		QueryGeneratorModel:     "gemini-2.0-flash",
		ReflectionModel:         "gemini-2.5-flash",
		AnswerModel:             "gemini-2.5-flash",
		MaxResearchLoops:        3,
		InitialSearchQueryCount: 2,
		SearchProvider:          "arxiv",
	}
}

func TestRuntimeWithoutCredentials(t *testing.T) {
	rt := NewRuntime(context.Background(), baseConfig(), quietLogger())

	st := rt.Engine.Status()
	assert.False(t, st.Initialized)
	assert.False(t, st.CredentialsPresent)
	assert.Nil(t, st.Configuration)
	assert.Nil(t, rt.Client)

	res := rt.Engine.Research(context.Background(), "q", research.Options{})
	assert.Equal(t, research.StatusError, res.Status)
	assert.Contains(t, res.Error, "GEMINI_API_KEY")
}

func TestRuntimeWithUnknownBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.GoogleApiKey = "test-key"
	cfg.LLMBackend = "openai"

	rt := NewRuntime(context.Background(), cfg, quietLogger())

	st := rt.Engine.Status()
	assert.False(t, st.Initialized)
	assert.True(t, st.CredentialsPresent)
	assert.Contains(t, st.InitError, "unknown LLM backend")
}

func TestRuntimeWithUnknownProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.GoogleApiKey = "test-key"
	cfg.SearchProvider = "bing"

	rt := NewRuntime(context.Background(), cfg, quietLogger())

	assert.Contains(t, rt.Engine.Status().InitError, "unknown search provider")
}

func TestRuntimeInitialized(t *testing.T) {
	cfg := baseConfig()
	cfg.GoogleApiKey = "test-key"

	rt := NewRuntime(context.Background(), cfg, quietLogger())

	st := rt.Engine.Status()
	require.True(t, st.Initialized, st.InitError)
	require.NotNil(t, st.Configuration)
	assert.Equal(t, 3, st.Configuration.MaxResearchLoops)
	assert.Equal(t, 2, st.Configuration.InitialSearchQueryCount)
	assert.Equal(t, "gemini-2.0-flash", st.Configuration.QueryGeneratorModel)
	assert.NotNil(t, rt.Client)
}
