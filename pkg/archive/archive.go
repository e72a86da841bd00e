// Package archive keeps the evidence of finished research jobs in pgvector so
// later questions can look it up without searching the web again.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/vectorstore"
)

const (
	defaultTopK = 5
	maxTopK     = 50

	KindEvidence = "evidence"
	KindAnswer   = "answer"
)

// ErrDisabled is returned by a nil *Archive.
var ErrDisabled = errors.New("research archive is not configured")

type Store interface {
	ReplaceSource(ctx context.Context, source string, docs []vectorstore.Document) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]any) ([]vectorstore.Match, error)
	GetContentBySource(ctx context.Context, source string) ([]vectorstore.Document, error)
	GetContentByMetadata(ctx context.Context, filter map[string]any) ([]vectorstore.Document, error)
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type Splitter interface {
	SplitText(text string) ([]string, error)
}

// Archive indexes and queries research evidence. A nil *Archive is valid and
// reports ErrDisabled.
type Archive struct {
	store    Store
	embedder Embedder
	splitter Splitter
	logger   *slog.Logger
}

func New(store Store, embedder Embedder, splitter Splitter, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{store: store, embedder: embedder, splitter: splitter, logger: logger}
}

// Entry is what gets archived for one job.
type Entry struct {
	JobID   string
	Query   string
	Answer  string
	Sources []research.Source
}

// Index stores every source's evidence and the answer, one store source per
// URL. It returns the number of chunks written.
func (a *Archive) Index(ctx context.Context, e Entry) (int, error) {
	if a == nil {
		return 0, ErrDisabled
	}

	written := 0
	for _, src := range e.Sources {
		text := strings.TrimSpace(src.Snippet)
		if text == "" || src.Value == "" {
			continue
		}
		n, err := a.indexText(ctx, src.Value, text, map[string]any{
			"source": src.Value,
			"title":  src.Label,
			"job_id": e.JobID,
			"query":  e.Query,
			"kind":   KindEvidence,
		})
		if err != nil {
			return written, fmt.Errorf("index %s: %w", src.Value, err)
		}
		written += n
	}

	if answer := strings.TrimSpace(e.Answer); answer != "" && e.JobID != "" {
		source := "job:" + e.JobID
		n, err := a.indexText(ctx, source, answer, map[string]any{
			"source": source,
			"title":  e.Query,
			"job_id": e.JobID,
			"query":  e.Query,
			"kind":   KindAnswer,
		})
		if err != nil {
			return written, fmt.Errorf("index answer: %w", err)
		}
		written += n
	}

	a.logger.Info("Archived research evidence", "job_id", e.JobID, "chunks", written)
	return written, nil
}

func (a *Archive) indexText(ctx context.Context, source, text string, metadata map[string]any) (int, error) {
	chunks, err := a.splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("split: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	vectors, err := a.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return 0, err
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]any, len(metadata)+1)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["chunk"] = i
		docs[i] = vectorstore.Document{Content: chunk, Metadata: meta, Embedding: vectors[i]}
	}
	if err := a.store.ReplaceSource(ctx, source, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Search returns the archived chunks closest to query, optionally restricted
// to one source URL.
func (a *Archive) Search(ctx context.Context, query string, topK int, source string) ([]vectorstore.Match, error) {
	if a == nil {
		return nil, ErrDisabled
	}
	if strings.TrimSpace(query) == "" {
		return nil, research.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	topK = min(topK, maxTopK)

	a.logger.Info("Search archive", "query", query, "topK", topK, "source", source)
	embedding, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	var filter map[string]any
	if source != "" {
		filter = map[string]any{"source": source}
	}
	matches, err := a.store.SimilaritySearch(ctx, embedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return matches, nil
}

// BySource returns the archived chunks of one source URL.
func (a *Archive) BySource(ctx context.Context, source string) ([]vectorstore.Document, error) {
	if a == nil {
		return nil, ErrDisabled
	}
	docs, err := a.store.GetContentBySource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	return docs, nil
}

// ByMetadata returns chunks matching a metadata filter ($and, $or, $not).
func (a *Archive) ByMetadata(ctx context.Context, filter map[string]any) ([]vectorstore.Document, error) {
	if a == nil {
		return nil, ErrDisabled
	}
	docs, err := a.store.GetContentByMetadata(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	return docs, nil
}

// FormatMatches renders matches as the plain text returned to tool callers.
func FormatMatches(matches []vectorstore.Match) string {
	if len(matches) == 0 {
		return "No archived evidence matched."
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, formatDocument(m.Document, fmt.Sprintf("\n[score]: %.3f", m.Score)))
	}
	return strings.Join(parts, "\n\n")
}

// FormatDocuments renders documents as plain text.
func FormatDocuments(docs []vectorstore.Document) string {
	if len(docs) == 0 {
		return "No archived evidence matched."
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, formatDocument(d, ""))
	}
	return strings.Join(parts, "\n\n")
}

func formatDocument(doc vectorstore.Document, suffix string) string {
	source := "unknown"
	if s, ok := doc.Metadata["source"].(string); ok {
		source = s
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Source]: %s\n[Content]: %s", source, doc.Content)

	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		if k != "source" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n[%s]: %v", k, doc.Metadata[k])
	}
	sb.WriteString(suffix)
	return sb.String()
}
