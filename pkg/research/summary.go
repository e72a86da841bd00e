package research

import (
	"fmt"
	"strings"
)

const summarySourceLimit = 10

// FormatSummary renders the markdown report returned to tool callers.
func FormatSummary(r Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Research Query: %s\n\n", r.Query)
	fmt.Fprintf(&sb, "## Answer:\n%s\n\n", r.Answer)
	fmt.Fprintf(&sb, "## Sources (%d):\n", len(r.Sources))
	for i, src := range r.Sources {
		if i == summarySourceLimit {
			fmt.Fprintf(&sb, "- ... and %d more\n", len(r.Sources)-summarySourceLimit)
			break
		}
		title := src.Title
		if title == "" {
			title = "Unknown"
		}
		fmt.Fprintf(&sb, "- [%d] [%s](%s)\n", i+1, title, src.URL)
	}
	sb.WriteString("\n## Research Summary:\n")
	fmt.Fprintf(&sb, "- Research loops completed: %d\n", r.ResearchLoops)
	fmt.Fprintf(&sb, "- Search queries used: %d\n", r.QueriesIssued)
	fmt.Fprintf(&sb, "- Sources gathered: %d\n", len(r.Sources))
	if r.Termination != TerminationNone {
		fmt.Fprintf(&sb, "- Stopped because: %s\n", r.Termination)
	}
	return sb.String()
}
