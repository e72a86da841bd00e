// Package search holds the web search providers behind research.Searcher.
package search

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-search/pkg/research"
)

const (
	ProviderGoogle = "google"
	ProviderTavily = "tavily"
	ProviderArxiv  = "arxiv"

	defaultMaxResults = 5
)

// Options configure New.
type Options struct {
	Provider string
	// GenAI and Model are used by the google provider.
	GenAI        *genai.Client
	Model        string
	TavilyApiKey string
	MaxResults   int
	// RateLimit is in searches per second; zero disables limiting.
	RateLimit  float64
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New builds the configured provider, wrapped in a rate limiter when one is
// requested.
func New(opts Options) (research.Searcher, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	var s research.Searcher
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderGoogle:
		if opts.GenAI == nil {
			return nil, fmt.Errorf("google search requires a Gemini client")
		}
		s = NewGoogle(opts.GenAI, opts.Model, opts.MaxResults)
	case ProviderTavily:
		if strings.TrimSpace(opts.TavilyApiKey) == "" {
			return nil, fmt.Errorf("TAVILY_API_KEY environment variable is required for the tavily provider")
		}
		s = NewTavilyWithClient(opts.TavilyApiKey, opts.MaxResults, opts.HTTPClient)
	case ProviderArxiv:
		s = NewArxiv(opts.MaxResults, opts.HTTPClient, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown search provider: %s", opts.Provider)
	}
	return NewRateLimited(s, opts.RateLimit), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
