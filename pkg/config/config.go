package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	DefaultQueryGeneratorModel = "gemini-2.0-flash"
	DefaultReflectionModel     = "gemini-2.5-flash"
	DefaultAnswerModel         = "gemini-2.5-flash"
)

// Config is the process configuration. It is loaded once at startup and only
// read afterwards.
type Config struct {
	GoogleApiKey string
	DatabaseURL  string
	Port         string

	QueryGeneratorModel     string
	ReflectionModel         string
	AnswerModel             string
	MaxResearchLoops        int
	InitialSearchQueryCount int

	// LLMBackend selects the client used for the opaque LLM calls: "genai" or "langchain".
	LLMBackend string

	SearchProvider    string
	TavilyApiKey      string
	SearchConcurrency int
	SearchRateLimit   float64
	SearchResults     int

	EmbeddingModel string
	CollectionName string
	ChunkSize      int
	ChunkOverlap   int
}

func Load() *Config {
	return &Config{
		GoogleApiKey: apiKey(),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		Port:         getEnv("PORT", "8081"),

		QueryGeneratorModel:     getEnv("QUERY_GENERATOR_MODEL", DefaultQueryGeneratorModel),
		ReflectionModel:         getEnv("REFLECTION_MODEL", DefaultReflectionModel),
		AnswerModel:             getEnv("ANSWER_MODEL", DefaultAnswerModel),
		MaxResearchLoops:        getEnvAsInt("MAX_RESEARCH_LOOPS", 2),
		InitialSearchQueryCount: getEnvAsInt("INITIAL_SEARCH_QUERY_COUNT", 3),

		LLMBackend: strings.ToLower(getEnv("LLM_BACKEND", "genai")),

		SearchProvider:    strings.ToLower(getEnv("SEARCH_PROVIDER", "google")),
		TavilyApiKey:      getEnv("TAVILY_API_KEY", ""),
		SearchConcurrency: getEnvAsInt("SEARCH_CONCURRENCY", 4),
		SearchRateLimit:   getEnvAsFloat("SEARCH_RATE_LIMIT", 0),
		SearchResults:     getEnvAsInt("MAX_SEARCH_RESULTS", 5),

		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv("COLLECTION_NAME", "research_archive"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
	}
}

// HasCredentials reports whether a Gemini API key is configured.
func (c *Config) HasCredentials() bool {
	return strings.TrimSpace(c.GoogleApiKey) != ""
}

// GEMINI_API_KEY wins over GOOGLE_API_KEY.
func apiKey() string {
	if key := getEnv("GEMINI_API_KEY", ""); key != "" {
		return key
	}
	return getEnv("GOOGLE_API_KEY", "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
