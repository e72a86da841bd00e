package research

import (
	"net/url"
	"strconv"
	"strings"
)

// Phase is a state of the research loop.
type Phase int

const (
	PhaseGenerating Phase = iota
	PhaseSearching
	PhaseReflecting
	PhaseLooping
	PhaseFinalizing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseGenerating:
		return "generating"
	case PhaseSearching:
		return "searching"
	case PhaseReflecting:
		return "reflecting"
	case PhaseLooping:
		return "looping"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots carry the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the record threaded through one invocation. It is owned by that
// invocation and never shared, so it carries no lock.
type State struct {
	Phase             Phase         `json:"phase"`
	Conversation      []Message     `json:"conversation"`
	PendingQueries    []string      `json:"pending_queries"`
	AllQueriesIssued  []string      `json:"all_queries_issued"`
	RawResults        []QueryResult `json:"raw_results"`
	Sources           []Source      `json:"sources_gathered"`
	FollowUps         []string      `json:"follow_up_queries,omitempty"`
	KnowledgeGap      string        `json:"knowledge_gap,omitempty"`
	LoopCount         int           `json:"research_loop_count"`
	MaxLoops          int           `json:"max_research_loops"`
	InitialQueryCount int           `json:"initial_search_query_count"`

	// Snippets accumulates per-query evidence text across rounds.
	Snippets []string `json:"web_research_result"`

	sourceIndex map[string]int
}

func newState(query string, maxLoops, initialQueryCount int) *State {
	return &State{
		Phase:             PhaseGenerating,
		Conversation:      []Message{{Role: RoleHuman, Content: query}},
		PendingQueries:    []string{},
		AllQueriesIssued:  []string{},
		RawResults:        []QueryResult{},
		Sources:           []Source{},
		Snippets:          []string{},
		MaxLoops:          maxLoops,
		InitialQueryCount: initialQueryCount,
		sourceIndex:       make(map[string]int),
	}
}

// Query returns the user's question.
func (s *State) Query() string {
	for _, m := range s.Conversation {
		if m.Role == RoleHuman {
			return m.Content
		}
	}
	return ""
}

// AddSource inserts a hit if its normalized URL is new and returns the
// 1-based citation index of the source the hit maps to. Hits without a URL
// return 0 and are not inserted.
func (s *State) AddSource(hit SearchHit) int {
	key := NormalizeURL(hit.URL)
	if key == "" {
		return 0
	}
	if s.sourceIndex == nil {
		s.reindex()
	}
	snippet := strings.TrimSpace(hit.Snippet)
	if i, ok := s.sourceIndex[key]; ok {
		src := &s.Sources[i]
		if snippet != "" && !strings.Contains(src.Snippet, snippet) {
			if src.Snippet == "" {
				src.Snippet = snippet
			} else {
				src.Snippet += "\n" + snippet
			}
		}
		return i + 1
	}
	label := strings.TrimSpace(hit.Title)
	if label == "" {
		label = strings.TrimSpace(hit.URL)
	}
	s.Sources = append(s.Sources, Source{
		Label:   label,
		Value:   strings.TrimSpace(hit.URL),
		Snippet: snippet,
	})
	s.sourceIndex[key] = len(s.Sources) - 1
	return len(s.Sources)
}

// MergeRound records the results of a round. Results must already be in query
// submission order; hits are merged in that order and then in provider order.
func (s *State) MergeRound(results []QueryResult) {
	s.RawResults = results
	for _, r := range results {
		var evidence []string
		for _, hit := range r.Hits {
			idx := s.AddSource(hit)
			if idx == 0 {
				continue
			}
			if text := strings.TrimSpace(hit.Snippet); text != "" {
				evidence = append(evidence, text+" ["+strconv.Itoa(idx)+"]")
			}
		}
		if len(evidence) > 0 {
			s.Snippets = append(s.Snippets, "Query: "+r.Query+"\n"+strings.Join(evidence, "\n"))
		}
	}
}

// DistinctQueries returns AllQueriesIssued without repeats, in first-seen
// order, comparing case-insensitively.
func (s *State) DistinctQueries() []string {
	return dedupeQueries(s.AllQueriesIssued, 0)
}

// Snapshot returns a deep copy safe to hand to observers.
func (s *State) Snapshot() State {
	c := *s
	c.Conversation = append([]Message(nil), s.Conversation...)
	c.PendingQueries = append([]string(nil), s.PendingQueries...)
	c.AllQueriesIssued = append([]string(nil), s.AllQueriesIssued...)
	c.RawResults = append([]QueryResult(nil), s.RawResults...)
	c.Sources = append([]Source(nil), s.Sources...)
	c.FollowUps = append([]string(nil), s.FollowUps...)
	c.Snippets = append([]string(nil), s.Snippets...)
	c.sourceIndex = nil
	return c
}

func (s *State) reindex() {
	s.sourceIndex = make(map[string]int, len(s.Sources))
	for i, src := range s.Sources {
		s.sourceIndex[NormalizeURL(src.Value)] = i
	}
}

// NormalizeURL returns the dedup key for a URL: scheme and host lower-cased,
// default ports, fragment and trailing slash removed. Strings that do not
// parse as absolute URLs are only trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}

// dedupeQueries trims, drops empties and case-insensitive repeats, and caps
// the list at limit when limit > 0.
func dedupeQueries(queries []string, limit int) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
