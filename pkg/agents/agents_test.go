package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-search/pkg/llm"
	"github.com/mikeboe/deep-search/pkg/research"
)

// scriptedModel replies in order and records every request.
type scriptedModel struct {
	replies  []string
	errs     []error
	requests []llm.Request
}

func (m *scriptedModel) Generate(_ context.Context, req llm.Request) (string, error) {
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i >= len(m.replies) {
		return "", errors.New("no scripted reply")
	}
	return m.replies[i], nil
}

var noRetry = llm.RetryPolicy{Attempts: 1}

var fixedDate = time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)

func TestQueryWriterFirstRound(t *testing.T) {
	m := &scriptedModel{replies: []string{`{"query": ["go generics", "go 1.18 release"], "rationale": "cover both"}`}}
	w := NewQueryWriter(m, noRetry, nil)

	queries, err := w.Generate(context.Background(), research.GenerateRequest{
		Query:       "When did Go get generics?",
		Count:       2,
		Round:       1,
		Model:       "query-model",
		CurrentDate: fixedDate,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"go generics", "go 1.18 release"}, queries)
	req := m.requests[0]
	assert.Equal(t, "query-model", req.Model)
	assert.Same(t, searchQueriesSchema, req.Schema)
	assert.Contains(t, req.System, "March 4, 2025")
	assert.Contains(t, req.Prompt, "When did Go get generics?")
	assert.Contains(t, req.Prompt, "at most 2 queries")
}

func TestQueryWriterFollowUps(t *testing.T) {
	m := &scriptedModel{replies: []string{`{"query": ["a"], "rationale": ""}`}}
	w := NewQueryWriter(m, noRetry, nil)

	_, err := w.Generate(context.Background(), research.GenerateRequest{
		Query:     "q",
		FollowUps: []string{"what about x", "and y"},
		Count:     2,
		Round:     2,
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.requests[0].System, "You are a research planner.\nEarlier searches left gaps."))
	assert.Contains(t, m.requests[0].Prompt, "- what about x\n- and y\n")
}

func TestQueryWriterRejectsEmptyList(t *testing.T) {
	m := &scriptedModel{replies: []string{`{"query": [], "rationale": "none"}`}}
	w := NewQueryWriter(m, noRetry, nil)

	_, err := w.Generate(context.Background(), research.GenerateRequest{Query: "q", Count: 3})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty queries list")
}

func TestReviewerParsesJudgment(t *testing.T) {
	m := &scriptedModel{replies: []string{"```json\n" + `{"is_sufficient": false, "knowledge_gap": "no dates", "follow_up_queries": ["go 1.18 release date"]}` + "\n```"}}
	r := NewReviewer(m, noRetry, nil)

	j, err := r.Judge(context.Background(), research.JudgeRequest{
		Query:    "When did Go get generics?",
		Sources:  []research.Source{{Label: "Go blog", Value: "https://go.dev/blog", Snippet: "Generics arrive"}},
		Snippets: []string{"Query: go generics\nGenerics arrive [1]"},
		Round:    1,
		Model:    "reflection-model",
	})

	require.NoError(t, err)
	assert.False(t, j.IsSufficient)
	assert.Equal(t, "no dates", j.KnowledgeGap)
	assert.Equal(t, []string{"go 1.18 release date"}, j.FollowUpQueries)
	assert.Equal(t, "reflection-model", m.requests[0].Model)
	assert.Contains(t, m.requests[0].Prompt, "[1] Go blog | https://go.dev/blog")
	assert.Contains(t, m.requests[0].Prompt, "Findings by query:")
}

func TestReviewerRetriesThenFails(t *testing.T) {
	m := &scriptedModel{replies: []string{"nope", "still nope"}}
	r := NewReviewer(m, llm.RetryPolicy{Attempts: 2}, nil)

	_, err := r.Judge(context.Background(), research.JudgeRequest{Query: "q"})

	require.Error(t, err)
	assert.Len(t, m.requests, 2)
}

func TestAnswerWriterNumbersSources(t *testing.T) {
	m := &scriptedModel{replies: []string{"  Go 1.18 added generics [1].  "}}
	a := NewAnswerWriter(m)

	answer, err := a.Synthesize(context.Background(), research.SynthesizeRequest{
		Query:        "When did Go get generics?",
		Conversation: []research.Message{{Role: research.RoleHuman, Content: "When did Go get generics?"}},
		Sources: []research.Source{
			{Label: "Go blog", Value: "https://go.dev/blog/intro-generics"},
			{Label: "Release notes", Value: "https://go.dev/doc/go1.18"},
		},
		Model:       "answer-model",
		CurrentDate: fixedDate,
	})

	require.NoError(t, err)
	assert.Equal(t, "Go 1.18 added generics [1].", answer)
	req := m.requests[0]
	assert.Nil(t, req.Schema)
	assert.False(t, req.JSON)
	assert.Contains(t, req.Prompt, "[1] Go blog | https://go.dev/blog/intro-generics")
	assert.Contains(t, req.Prompt, "[2] Release notes | https://go.dev/doc/go1.18")
	assert.NotContains(t, req.Prompt, "Conversation:")
}

func TestAnswerWriterWithoutEvidence(t *testing.T) {
	m := &scriptedModel{replies: []string{"Not enough evidence."}}

	_, err := NewAnswerWriter(m).Synthesize(context.Background(), research.SynthesizeRequest{Query: "q"})

	require.NoError(t, err)
	assert.Contains(t, m.requests[0].Prompt, "(no sources were found)")
}

func TestAnswerWriterPropagatesError(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("quota")}}

	_, err := NewAnswerWriter(m).Synthesize(context.Background(), research.SynthesizeRequest{Query: "q"})

	assert.ErrorContains(t, err, "write answer: quota")
}

func TestAgentsDriveEngine(t *testing.T) {
	m := llm.ModelFunc(func(_ context.Context, req llm.Request) (string, error) {
		switch {
		case req.Schema == searchQueriesSchema:
			return `{"query": ["capital of France"], "rationale": "direct"}`, nil
		case req.Schema == reflectionSchema:
			return `{"is_sufficient": true, "knowledge_gap": "", "follow_up_queries": []}`, nil
		default:
			return "Paris is the capital of France [1].", nil
		}
	})
	searcher := research.SearcherFunc(func(context.Context, string) ([]research.SearchHit, error) {
		return []research.SearchHit{{Title: "Paris", URL: "https://en.wikipedia.org/wiki/Paris", Snippet: "Capital of France"}}, nil
	})
	engine := research.NewEngine(research.Settings{}, research.Dependencies{
		Generator:   NewQueryWriter(m, noRetry, nil),
		Searcher:    searcher,
		Reflector:   NewReviewer(m, noRetry, nil),
		Synthesizer: NewAnswerWriter(m),
	})

	res := engine.Research(context.Background(), "What is the capital of France?", research.Options{})

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "Paris is the capital of France [1].", res.Answer)
	assert.Len(t, res.Sources, 1)
	assert.Equal(t, 1, res.ResearchLoops)
}
