// Package app wires configuration into a ready research engine.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-search/pkg/agents"
	"github.com/mikeboe/deep-search/pkg/clients"
	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/llm"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/search"
)

const (
	BackendGenAI     = "genai"
	BackendLangChain = "langchain"
)

// Settings extracts the engine settings from cfg.
func Settings(cfg *config.Config) research.Settings {
	return research.Settings{
		QueryGeneratorModel:     cfg.QueryGeneratorModel,
		ReflectionModel:         cfg.ReflectionModel,
		AnswerModel:             cfg.AnswerModel,
		MaxResearchLoops:        cfg.MaxResearchLoops,
		InitialSearchQueryCount: cfg.InitialSearchQueryCount,
		SearchConcurrency:       cfg.SearchConcurrency,
	}
}

// Runtime holds the engine and the shared Gemini client, which the archive
// reuses. Client is nil when the engine could not be initialized.
type Runtime struct {
	Engine *research.Engine
	Client *genai.Client
}

// NewRuntime never fails: when credentials are missing or a client cannot be
// built it returns an uninitialized engine that reports the cause on every
// invocation.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	settings := Settings(cfg)
	opts := []research.EngineOption{
		research.WithLogger(logger),
		research.WithCredentials(cfg.HasCredentials()),
	}

	if !cfg.HasCredentials() {
		logger.Warn("Gemini API key not configured, research is disabled")
		return &Runtime{Engine: research.NewUninitializedEngine(settings, clients.ErrMissingAPIKey, opts...)}
	}

	client, deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize research engine", "error", err)
		return &Runtime{Engine: research.NewUninitializedEngine(settings, err, opts...)}
	}
	return &Runtime{Engine: research.NewEngine(settings, deps, opts...), Client: client}
}

func buildDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genai.Client, research.Dependencies, error) {
	client, err := clients.GenAI(ctx, cfg.GoogleApiKey)
	if err != nil {
		return nil, research.Dependencies{}, err
	}

	var model llm.Model
	switch cfg.LLMBackend {
	case "", BackendGenAI:
		model = llm.NewGenAI(client)
	case BackendLangChain:
		lc, err := clients.GoogleAi(ctx, cfg.GoogleApiKey, cfg.QueryGeneratorModel)
		if err != nil {
			return nil, research.Dependencies{}, err
		}
		model = llm.NewLangChain(lc)
	default:
		return nil, research.Dependencies{}, fmt.Errorf("unknown LLM backend: %s", cfg.LLMBackend)
	}

	searcher, err := search.New(search.Options{
		Provider:     cfg.SearchProvider,
		GenAI:        client,
		Model:        cfg.QueryGeneratorModel,
		TavilyApiKey: cfg.TavilyApiKey,
		MaxResults:   cfg.SearchResults,
		RateLimit:    cfg.SearchRateLimit,
		Logger:       logger,
	})
	if err != nil {
		return nil, research.Dependencies{}, err
	}

	retry := llm.DefaultRetry
	return client, research.Dependencies{
		Generator:   agents.NewQueryWriter(model, retry, logger),
		Searcher:    searcher,
		Reflector:   agents.NewReviewer(model, retry, logger),
		Synthesizer: agents.NewAnswerWriter(model),
	}, nil
}
