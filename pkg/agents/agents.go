// Package agents implements the model-backed collaborators of the research
// loop: query writing, evidence review and answer writing.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-search/pkg/llm"
	"github.com/mikeboe/deep-search/pkg/research"
)

var (
	searchQueriesSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"query": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "A list of search queries to be used for web research.",
			},
			"rationale": {
				Type:        genai.TypeString,
				Description: "A brief explanation of why these queries are relevant to the research topic.",
			},
		},
		Required: []string{"query", "rationale"},
	}

	reflectionSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"is_sufficient": {
				Type:        genai.TypeBoolean,
				Description: "Whether the provided summaries are sufficient to answer the user's question.",
			},
			"knowledge_gap": {
				Type:        genai.TypeString,
				Description: "A description of what information is missing or needs clarification.",
			},
			"follow_up_queries": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "A list of follow-up queries to address the knowledge gap.",
			},
		},
		Required: []string{"is_sufficient", "knowledge_gap", "follow_up_queries"},
	}
)

type searchQueryList struct {
	Query     []string `json:"query"`
	Rationale string   `json:"rationale"`
}

// QueryWriter generates search queries with a model.
type QueryWriter struct {
	model  llm.Model
	retry  llm.RetryPolicy
	logger *slog.Logger
}

func NewQueryWriter(model llm.Model, retry llm.RetryPolicy, logger *slog.Logger) *QueryWriter {
	return &QueryWriter{model: model, retry: withLogger(retry, logger), logger: orDefault(logger)}
}

func (w *QueryWriter) Generate(ctx context.Context, req research.GenerateRequest) ([]string, error) {
	system := queryWriterSystemPrompt
	if len(req.FollowUps) > 0 {
		system = followUpSystemPrompt
	}
	out, err := llm.GenerateJSON(ctx, w.model, llm.Request{
		Model:       req.Model,
		System:      withDate(system, req.CurrentDate),
		Prompt:      queryWriterInput(req),
		Schema:      searchQueriesSchema,
		Temperature: llm.Float32(1.0),
	}, w.retry, func(v searchQueryList) error {
		if len(v.Query) == 0 {
			return errors.New("empty queries list")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}
	w.logger.Debug("Query rationale", "round", req.Round, "rationale", out.Rationale)
	return out.Query, nil
}

// Reviewer judges whether the gathered evidence answers the question.
type Reviewer struct {
	model llm.Model
	retry llm.RetryPolicy
}

func NewReviewer(model llm.Model, retry llm.RetryPolicy, logger *slog.Logger) *Reviewer {
	return &Reviewer{model: model, retry: withLogger(retry, logger)}
}

func (r *Reviewer) Judge(ctx context.Context, req research.JudgeRequest) (research.Judgment, error) {
	out, err := llm.GenerateJSON[research.Judgment](ctx, r.model, llm.Request{
		Model:  req.Model,
		System: withDate(reviewerSystemPrompt, req.CurrentDate),
		Prompt: reviewerInput(req),
		Schema: reflectionSchema,
	}, r.retry, nil)
	if err != nil {
		return research.Judgment{}, fmt.Errorf("reflect: %w", err)
	}
	return out, nil
}

// AnswerWriter writes the cited final answer.
type AnswerWriter struct {
	model llm.Model
}

func NewAnswerWriter(model llm.Model) *AnswerWriter {
	return &AnswerWriter{model: model}
}

func (a *AnswerWriter) Synthesize(ctx context.Context, req research.SynthesizeRequest) (string, error) {
	answer, err := a.model.Generate(ctx, llm.Request{
		Model:       req.Model,
		System:      withDate(answerWriterSystemPrompt, req.CurrentDate),
		Prompt:      answerWriterInput(req),
		Temperature: llm.Float32(0),
	})
	if err != nil {
		return "", fmt.Errorf("write answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func withLogger(p llm.RetryPolicy, logger *slog.Logger) llm.RetryPolicy {
	if p.Logger == nil {
		p.Logger = logger
	}
	return p
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
