package agents

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikeboe/deep-search/pkg/research"
)

const dateLayout = "January 2, 2006"

const queryWriterSystemPrompt = `You are a research planner.
Generate specific, diverse web search queries that together cover the user's question.
Prefer queries that surface recent, authoritative sources. Do not generate near-duplicate queries.
The current date is %s.`

const followUpSystemPrompt = `You are a research planner.
Earlier searches left gaps. Rewrite the follow-up questions below as effective web search queries,
one query per follow-up, keeping each one self-contained.
The current date is %s.`

const reviewerSystemPrompt = `You are a research manager.
Review the gathered evidence and decide whether it is sufficient to answer the user's question comprehensively.
If it is not, describe the knowledge gap and write follow-up queries that would close it.
Follow-up queries must be self-contained and must not repeat what is already covered.
The current date is %s.`

const answerWriterSystemPrompt = `You write the final answer to a research question using only the numbered sources provided.
Cite every factual claim with the number of its source in square brackets, for example [1] or [2, 3].
Never cite a number that is not in the source list. If the evidence is insufficient, say so clearly.
Format the answer as Markdown. The current date is %s.`

func withDate(prompt string, date time.Time) string {
	if date.IsZero() {
		date = time.Now()
	}
	return fmt.Sprintf(prompt, date.Format(dateLayout))
}

func queryWriterInput(req research.GenerateRequest) string {
	if len(req.FollowUps) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "Question: %s\n\nFollow-ups:\n", req.Query)
		for _, q := range req.FollowUps {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		fmt.Fprintf(&b, "\nReturn at most %d queries.", req.Count)
		return b.String()
	}
	return fmt.Sprintf("Question: %s\nCurrent Round: %d\n\nReturn at most %d queries.", req.Query, req.Round, req.Count)
}

// evidenceBlock renders the numbered source list followed by the per-query
// snippets gathered so far.
func evidenceBlock(sources []research.Source, snippets []string) string {
	var b strings.Builder
	b.WriteString("Sources:\n")
	if len(sources) == 0 {
		b.WriteString("(no sources were found)\n")
	}
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s | %s\n", i+1, strings.TrimSpace(src.Label), strings.TrimSpace(src.Value))
		if snippet := strings.TrimSpace(src.Snippet); snippet != "" {
			fmt.Fprintf(&b, "    %s\n", strings.ReplaceAll(snippet, "\n", "\n    "))
		}
	}
	if len(snippets) > 0 {
		b.WriteString("\nFindings by query:\n")
		b.WriteString(strings.Join(snippets, "\n\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func reviewerInput(req research.JudgeRequest) string {
	return fmt.Sprintf("Question: %s\nCurrent Round: %d\n\n%s", req.Query, req.Round, evidenceBlock(req.Sources, req.Snippets))
}

func answerWriterInput(req research.SynthesizeRequest) string {
	var b strings.Builder
	if history := conversationHistory(req.Conversation); history != "" {
		b.WriteString("Conversation:\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n\n", req.Query)
	b.WriteString(evidenceBlock(req.Sources, req.Snippets))
	return b.String()
}

// conversationHistory renders prior turns; a lone question renders as nothing.
func conversationHistory(msgs []research.Message) string {
	if len(msgs) <= 1 {
		return ""
	}
	var b strings.Builder
	for _, m := range msgs {
		role := "User"
		if m.Role == research.RoleAI {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return b.String()
}
