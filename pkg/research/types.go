package research

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotInitialized is reported by every invocation of an engine whose
// collaborators could not be built (usually a missing API key).
var ErrNotInitialized = errors.New("research engine not initialized")

// Settings is the read-only research configuration shared by all invocations.
type Settings struct {
	QueryGeneratorModel     string `json:"query_generator_model"`
	ReflectionModel         string `json:"reflection_model"`
	AnswerModel             string `json:"answer_model"`
	MaxResearchLoops        int    `json:"max_research_loops"`
	InitialSearchQueryCount int    `json:"initial_search_query_count"`
	// SearchConcurrency bounds the number of searches in flight per round.
	SearchConcurrency int `json:"search_concurrency"`
}

// Options shadow Settings for a single invocation. Zero values fall back to
// the engine settings.
type Options struct {
	MaxIterations  int
	MaxQueries     int
	ReasoningModel string

	// Logger replaces the engine logger for this invocation only.
	Logger *slog.Logger
	// OnStateUpdate receives a snapshot of the state after every phase change.
	OnStateUpdate func(State)
}

// Role of a conversation message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SearchHit is one item returned by a Searcher.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Source is a deduplicated citation target. Label is the display title and
// Value the URL, as first seen.
type Source struct {
	Label   string `json:"label"`
	Value   string `json:"value"`
	Snippet string `json:"snippet,omitempty"`
}

// QueryResult is the outcome of one search call in a round.
type QueryResult struct {
	Query string      `json:"query"`
	Hits  []SearchHit `json:"hits"`
	Err   string      `json:"error,omitempty"`
}

// Judgment is the reflector's verdict on the evidence gathered so far.
type Judgment struct {
	IsSufficient    bool     `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

type GenerateRequest struct {
	Query string
	// FollowUps is empty on the first round.
	FollowUps   []string
	Count       int
	Round       int
	Model       string
	CurrentDate time.Time
}

type JudgeRequest struct {
	Query       string
	Sources     []Source
	Snippets    []string
	Round       int
	Model       string
	CurrentDate time.Time
}

type SynthesizeRequest struct {
	Query        string
	Conversation []Message
	Sources      []Source
	Snippets     []string
	Model        string
	CurrentDate  time.Time
}

// QueryGenerator turns the user question, or the reflector's follow-ups, into
// search queries.
type QueryGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
}

// Searcher executes one web search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// Reflector judges whether the evidence answers the question.
type Reflector interface {
	Judge(ctx context.Context, req JudgeRequest) (Judgment, error)
}

// Synthesizer writes the final answer with [n] citation markers.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesizeRequest) (string, error)
}

// GeneratorFunc adapts a function to QueryGenerator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) ([]string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	return f(ctx, req)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string) ([]SearchHit, error)

func (f SearcherFunc) Search(ctx context.Context, query string) ([]SearchHit, error) {
	return f(ctx, query)
}

// ReflectorFunc adapts a function to Reflector.
type ReflectorFunc func(ctx context.Context, req JudgeRequest) (Judgment, error)

func (f ReflectorFunc) Judge(ctx context.Context, req JudgeRequest) (Judgment, error) {
	return f(ctx, req)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, req SynthesizeRequest) (string, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, req SynthesizeRequest) (string, error) {
	return f(ctx, req)
}

// Status of a finished invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusAborted Status = "aborted"
)

// TerminationReason records why the loop stopped.
type TerminationReason string

const (
	TerminationNone       TerminationReason = ""
	TerminationSufficient TerminationReason = "sufficient"
	TerminationCeiling    TerminationReason = "ceiling"
	TerminationExhausted  TerminationReason = "exhausted"
)

// SourceRef is a source as reported to callers.
type SourceRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result is returned by every invocation, successful or not.
type Result struct {
	Query         string            `json:"query"`
	Answer        string            `json:"answer"`
	Summary       string            `json:"summary,omitempty"`
	Sources       []SourceRef       `json:"sources"`
	ResearchLoops int               `json:"research_loops"`
	QueriesIssued int               `json:"queries_issued"`
	Queries       []string          `json:"queries,omitempty"`
	Termination   TerminationReason `json:"termination,omitempty"`
	Status        Status            `json:"status"`
	Error         string            `json:"error,omitempty"`
}

// OK reports whether the invocation produced an answer.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// StatusConfiguration lists the configured models and loop ceiling.
type StatusConfiguration struct {
	QueryGeneratorModel     string `json:"query_generator_model"`
	ReflectionModel         string `json:"reflection_model"`
	AnswerModel             string `json:"answer_model"`
	MaxResearchLoops        int    `json:"max_research_loops"`
	InitialSearchQueryCount int    `json:"initial_search_query_count"`
}

// EngineStatus is the read-only status view of an engine.
type EngineStatus struct {
	Initialized        bool                 `json:"agent_initialized"`
	CredentialsPresent bool                 `json:"gemini_api_available"`
	InitError          string               `json:"init_error,omitempty"`
	Configuration      *StatusConfiguration `json:"configuration"`
}
