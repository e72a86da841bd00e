package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "DATABASE_URL", "MAX_RESEARCH_LOOPS",
		"INITIAL_SEARCH_QUERY_COUNT", "SEARCH_PROVIDER", "LLM_BACKEND", "SEARCH_RATE_LIMIT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.False(t, cfg.HasCredentials())
	assert.Equal(t, DefaultQueryGeneratorModel, cfg.QueryGeneratorModel)
	assert.Equal(t, DefaultReflectionModel, cfg.ReflectionModel)
	assert.Equal(t, DefaultAnswerModel, cfg.AnswerModel)
	assert.Equal(t, 2, cfg.MaxResearchLoops)
	assert.Equal(t, 3, cfg.InitialSearchQueryCount)
	assert.Equal(t, "google", cfg.SearchProvider)
	assert.Equal(t, "genai", cfg.LLMBackend)
	assert.Zero(t, cfg.SearchRateLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("MAX_RESEARCH_LOOPS", "5")
	t.Setenv("INITIAL_SEARCH_QUERY_COUNT", "not-a-number")
	t.Setenv("SEARCH_PROVIDER", "Tavily")
	t.Setenv("SEARCH_RATE_LIMIT", "2.5")

	cfg := Load()

	assert.True(t, cfg.HasCredentials())
	assert.Equal(t, "google-key", cfg.GoogleApiKey)
	assert.Equal(t, 5, cfg.MaxResearchLoops)
	assert.Equal(t, 3, cfg.InitialSearchQueryCount)
	assert.Equal(t, "tavily", cfg.SearchProvider)
	assert.Equal(t, 2.5, cfg.SearchRateLimit)
}

func TestGeminiKeyWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	assert.Equal(t, "gemini-key", Load().GoogleApiKey)
}

func TestArchiveEnabled(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		enabled bool
	}{
		{"no database", Config{GoogleApiKey: "k"}, false},
		{"no key", Config{DatabaseURL: "postgres://x"}, false},
		{"both", Config{GoogleApiKey: "k", DatabaseURL: "postgres://x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, enabled := tt.cfg.Archive()
			assert.Equal(t, tt.enabled, enabled)
		})
	}
}

func TestArchiveChunkingFallback(t *testing.T) {
	cfg := Config{ChunkSize: 0, ChunkOverlap: 5000}
	ac, _ := cfg.Archive()
	assert.Equal(t, 1000, ac.ChunkSize)
	assert.Equal(t, 200, ac.ChunkOverlap)
}
