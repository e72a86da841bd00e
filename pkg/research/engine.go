package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultMaxResearchLoops  = 2
	defaultInitialQueryCount = 3
	defaultSearchConcurrency = 4

	// maxFollowUps bounds the reflector's follow-up queries per round.
	maxFollowUps = 5
)

var (
	ErrEmptyQuery  = errors.New("query must not be empty")
	ErrEmptyAnswer = errors.New("synthesizer returned an empty answer")
)

// Dependencies are the opaque services the loop coordinates.
type Dependencies struct {
	Generator   QueryGenerator
	Searcher    Searcher
	Reflector   Reflector
	Synthesizer Synthesizer
}

// Engine runs research invocations. It holds only read-only configuration and
// collaborators, so one Engine serves concurrent invocations; each invocation
// owns its own State.
type Engine struct {
	settings    Settings
	deps        Dependencies
	logger      *slog.Logger
	initErr     error
	credentials bool
	now         func() time.Time
}

type EngineOption func(*Engine)

// WithLogger sets the default logger used by invocations.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the clock used for the current date in prompts.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCredentials records whether the provider credentials are present, for
// Status reporting.
func WithCredentials(present bool) EngineOption {
	return func(e *Engine) { e.credentials = present }
}

// NewEngine builds an engine. A missing dependency leaves the engine
// uninitialized: Status still works and every invocation reports an error.
func NewEngine(settings Settings, deps Dependencies, opts ...EngineOption) *Engine {
	e := &Engine{
		settings:    normalizeSettings(settings),
		deps:        deps,
		logger:      slog.Default(),
		credentials: true,
		now:         time.Now,
	}
	var missing []string
	if deps.Generator == nil {
		missing = append(missing, "query generator")
	}
	if deps.Searcher == nil {
		missing = append(missing, "searcher")
	}
	if deps.Reflector == nil {
		missing = append(missing, "reflector")
	}
	if deps.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	if len(missing) > 0 {
		e.initErr = fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewUninitializedEngine returns an engine that reports cause on every
// invocation without touching the network.
func NewUninitializedEngine(settings Settings, cause error, opts ...EngineOption) *Engine {
	if cause == nil {
		cause = errors.New("unknown initialization failure")
	}
	e := &Engine{
		settings: normalizeSettings(settings),
		logger:   slog.Default(),
		initErr:  cause,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func normalizeSettings(s Settings) Settings {
	if s.MaxResearchLoops < 1 {
		s.MaxResearchLoops = defaultMaxResearchLoops
	}
	if s.InitialSearchQueryCount < 1 {
		s.InitialSearchQueryCount = defaultInitialQueryCount
	}
	if s.SearchConcurrency < 1 {
		s.SearchConcurrency = defaultSearchConcurrency
	}
	return s
}

// Settings returns the engine configuration.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Status reports whether the engine can run and how it is configured.
func (e *Engine) Status() EngineStatus {
	st := EngineStatus{
		Initialized:        e.initErr == nil,
		CredentialsPresent: e.credentials,
	}
	if e.initErr != nil {
		st.InitError = e.initErr.Error()
		return st
	}
	st.Configuration = &StatusConfiguration{
		QueryGeneratorModel:     e.settings.QueryGeneratorModel,
		ReflectionModel:         e.settings.ReflectionModel,
		AnswerModel:             e.settings.AnswerModel,
		MaxResearchLoops:        e.settings.MaxResearchLoops,
		InitialSearchQueryCount: e.settings.InitialSearchQueryCount,
	}
	return st
}

// Quick runs a single round with a single query.
func (e *Engine) Quick(ctx context.Context, query string, opts Options) Result {
	opts.MaxIterations = 1
	opts.MaxQueries = 1
	return e.Research(ctx, query, opts)
}

// Research runs the generate, search, reflect loop until the evidence is
// judged sufficient, the round ceiling is reached or no new queries can be
// produced, then synthesizes a cited answer. It never panics on collaborator
// failures: every outcome is reported through the returned Result.
func (e *Engine) Research(ctx context.Context, query string, opts Options) Result {
	started := time.Now()
	res := e.research(ctx, strings.TrimSpace(query), opts)
	invocationsTotal.WithLabelValues(string(res.Status)).Inc()
	invocationDuration.Observe(time.Since(started).Seconds())
	return res
}

func (e *Engine) research(ctx context.Context, query string, opts Options) Result {
	logger := e.logger
	if opts.Logger != nil {
		logger = opts.Logger
	}

	if e.initErr != nil {
		logger.Error("Research engine not initialized", "error", e.initErr)
		return errorResult(query, fmt.Errorf("%w: %v", ErrNotInitialized, e.initErr))
	}
	if query == "" {
		return errorResult(query, ErrEmptyQuery)
	}
	if err := ctx.Err(); err != nil {
		return abortedResult(query, err)
	}

	r := e.newRun(query, opts, logger)
	logger.Info("Starting research loop",
		"query", query,
		"max_loops", r.state.MaxLoops,
		"initial_queries", r.state.InitialQueryCount)

	if err := r.loop(ctx); err != nil {
		// Only the caller's context decides an abort; a provider's own
		// deadline is a collaborator failure.
		if ctx.Err() != nil {
			logger.Warn("Research aborted", "query", query, "phase", r.state.Phase.String(), "error", err)
			return abortedResult(query, err)
		}
		logger.Error("Research failed", "query", query, "error", err)
		return errorResult(query, fmt.Errorf("research failed: %w", err))
	}

	res := r.result()
	terminationsTotal.WithLabelValues(string(res.Termination)).Inc()
	roundsPerInvocation.Observe(float64(res.ResearchLoops))
	logger.Info("Research complete",
		"loops", res.ResearchLoops,
		"queries", res.QueriesIssued,
		"sources", len(res.Sources),
		"termination", string(res.Termination))
	return res
}

func errorResult(query string, err error) Result {
	return Result{
		Query:   query,
		Sources: []SourceRef{},
		Status:  StatusError,
		Error:   err.Error(),
	}
}

func abortedResult(query string, err error) Result {
	return Result{
		Query:   query,
		Sources: []SourceRef{},
		Status:  StatusAborted,
		Error:   fmt.Sprintf("research aborted: %v", err),
	}
}

// run is the per-invocation driver of the state machine.
type run struct {
	engine          *Engine
	state           *State
	logger          *slog.Logger
	onUpdate        func(State)
	queryModel      string
	reflectionModel string
	answerModel     string
	date            time.Time
	termination     TerminationReason
	answer          string
}

func (e *Engine) newRun(query string, opts Options, logger *slog.Logger) *run {
	maxLoops := e.settings.MaxResearchLoops
	if opts.MaxIterations > 0 {
		maxLoops = opts.MaxIterations
	}
	queryCount := e.settings.InitialSearchQueryCount
	if opts.MaxQueries > 0 {
		queryCount = opts.MaxQueries
	}
	r := &run{
		engine:          e,
		state:           newState(query, maxLoops, queryCount),
		logger:          logger,
		onUpdate:        opts.OnStateUpdate,
		queryModel:      e.settings.QueryGeneratorModel,
		reflectionModel: e.settings.ReflectionModel,
		answerModel:     e.settings.AnswerModel,
		date:            e.now(),
	}
	if m := strings.TrimSpace(opts.ReasoningModel); m != "" {
		r.reflectionModel = m
		r.answerModel = m
	}
	return r
}

func (r *run) transition(next Phase) {
	r.logger.Debug("Research phase", "from", r.state.Phase.String(), "to", next.String(), "loop", r.state.LoopCount)
	r.state.Phase = next
	if r.onUpdate != nil {
		r.onUpdate(r.state.Snapshot())
	}
}

func (r *run) loop(ctx context.Context) error {
	if r.onUpdate != nil {
		r.onUpdate(r.state.Snapshot())
	}
	for r.state.Phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch r.state.Phase {
		case PhaseGenerating:
			queries, err := r.generate(ctx)
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				r.termination = TerminationExhausted
				r.transition(PhaseFinalizing)
				continue
			}
			r.state.PendingQueries = queries
			r.state.AllQueriesIssued = append(r.state.AllQueriesIssued, queries...)
			r.transition(PhaseSearching)

		case PhaseSearching:
			results, err := r.engine.searchRound(ctx, r.logger, r.state.PendingQueries)
			if err != nil {
				return err
			}
			r.state.MergeRound(results)
			r.transition(PhaseReflecting)

		case PhaseReflecting:
			judgment, err := r.reflect(ctx)
			if err != nil {
				return err
			}
			r.state.KnowledgeGap = judgment.KnowledgeGap
			r.state.FollowUps = judgment.FollowUpQueries

			// The ceiling is evaluated before the verdict so it holds no
			// matter what the reflector says.
			ceiling := r.state.LoopCount+1 >= r.state.MaxLoops
			r.state.LoopCount++
			switch {
			case ceiling || judgment.IsSufficient:
				r.termination = TerminationCeiling
				if judgment.IsSufficient {
					r.termination = TerminationSufficient
				}
				r.transition(PhaseFinalizing)
			default:
				r.transition(PhaseLooping)
			}

		case PhaseLooping:
			r.logger.Info("Evidence insufficient, looping",
				"loop", r.state.LoopCount,
				"gap", r.state.KnowledgeGap,
				"follow_ups", len(r.state.FollowUps))
			r.transition(PhaseGenerating)

		case PhaseFinalizing:
			answer, err := r.finalize(ctx)
			if err != nil {
				return err
			}
			r.answer = answer
			r.state.Conversation = append(r.state.Conversation, Message{Role: RoleAI, Content: answer})
			r.transition(PhaseDone)

		default:
			return fmt.Errorf("unexpected phase %d", r.state.Phase)
		}
	}
	return nil
}

// generate returns the round's queries. Failures are absorbed and reported
// as zero queries; only cancellation is returned as an error.
func (r *run) generate(ctx context.Context) ([]string, error) {
	req := GenerateRequest{
		Query:       r.state.Query(),
		Round:       r.state.LoopCount + 1,
		Model:       r.queryModel,
		CurrentDate: r.date,
	}
	if r.state.LoopCount == 0 {
		req.Count = r.state.InitialQueryCount
	} else {
		req.FollowUps = dedupeQueries(r.state.FollowUps, maxFollowUps)
		if len(req.FollowUps) == 0 {
			r.logger.Info("No follow-up queries to research", "round", req.Round)
			return nil, nil
		}
		req.Count = len(req.FollowUps)
	}

	queries, err := r.engine.deps.Generator.Generate(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		llmFailuresTotal.WithLabelValues("generate").Inc()
		r.logger.Warn("Query generation failed, finalizing with gathered evidence", "round", req.Round, "error", err)
		return nil, nil
	}

	queries = dedupeQueries(queries, req.Count)
	if len(queries) == 0 {
		r.logger.Warn("Query generation returned no usable queries", "round", req.Round)
		return nil, nil
	}
	r.logger.Info("Generated queries", "round", req.Round, "queries", queries)
	return queries, nil
}

// reflect asks for a sufficiency verdict. A failed judgment counts as
// insufficient with no follow-ups.
func (r *run) reflect(ctx context.Context) (Judgment, error) {
	judgment, err := r.engine.deps.Reflector.Judge(ctx, JudgeRequest{
		Query:       r.state.Query(),
		Sources:     append([]Source(nil), r.state.Sources...),
		Snippets:    append([]string(nil), r.state.Snippets...),
		Round:       r.state.LoopCount + 1,
		Model:       r.reflectionModel,
		CurrentDate: r.date,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Judgment{}, ctxErr
		}
		llmFailuresTotal.WithLabelValues("reflect").Inc()
		r.logger.Warn("Reflection failed, treating evidence as insufficient", "round", r.state.LoopCount+1, "error", err)
		return Judgment{}, nil
	}
	if judgment.IsSufficient {
		judgment.FollowUpQueries = nil
	} else {
		judgment.FollowUpQueries = dedupeQueries(judgment.FollowUpQueries, maxFollowUps)
	}
	r.logger.Info("Reflection",
		"round", r.state.LoopCount+1,
		"sufficient", judgment.IsSufficient,
		"follow_ups", judgment.FollowUpQueries)
	return judgment, nil
}

func (r *run) finalize(ctx context.Context) (string, error) {
	answer, err := r.engine.deps.Synthesizer.Synthesize(ctx, SynthesizeRequest{
		Query:        r.state.Query(),
		Conversation: append([]Message(nil), r.state.Conversation...),
		Sources:      append([]Source(nil), r.state.Sources...),
		Snippets:     append([]string(nil), r.state.Snippets...),
		Model:        r.answerModel,
		CurrentDate:  r.date,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		llmFailuresTotal.WithLabelValues("synthesize").Inc()
		return "", fmt.Errorf("synthesis: %w", err)
	}
	referenced := Citations(answer)
	answer, cited := SanitizeCitations(answer, len(r.state.Sources))
	// An answer made only of invalid markers is empty once they are dropped.
	answer = strings.TrimSpace(answer)
	if answer == "" {
		llmFailuresTotal.WithLabelValues("synthesize").Inc()
		return "", fmt.Errorf("synthesis: %w", ErrEmptyAnswer)
	}
	if dropped := len(referenced) - len(cited); dropped > 0 {
		r.logger.Warn("Dropped out-of-range citations", "dropped", dropped, "sources", len(r.state.Sources))
	}
	r.logger.Info("Final answer synthesized", "length", len(answer), "cited_sources", len(cited))
	return answer, nil
}

func (r *run) result() Result {
	sources := make([]SourceRef, 0, len(r.state.Sources))
	for _, src := range r.state.Sources {
		sources = append(sources, SourceRef{Title: src.Label, URL: src.Value})
	}
	queries := r.state.DistinctQueries()
	res := Result{
		Query:         r.state.Query(),
		Answer:        r.answer,
		Sources:       sources,
		ResearchLoops: r.state.LoopCount,
		QueriesIssued: len(queries),
		Queries:       queries,
		Termination:   r.termination,
		Status:        StatusSuccess,
	}
	res.Summary = FormatSummary(res)
	return res
}
