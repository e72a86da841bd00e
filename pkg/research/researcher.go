package research

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// searchRound runs the round's queries concurrently and returns one result per
// query in submission order. A failed search becomes an empty result; only
// cancellation of ctx fails the round.
func (e *Engine) searchRound(ctx context.Context, logger *slog.Logger, queries []string) ([]QueryResult, error) {
	logger.Info("Starting web research", "queries", len(queries))

	results := make([]QueryResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.settings.SearchConcurrency)

	for i, query := range queries {
		g.Go(func() error {
			hits, err := e.deps.Searcher.Search(gctx, query)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				searchCallsTotal.WithLabelValues("error").Inc()
				logger.Warn("Search failed, continuing without its results", "query", query, "error", err)
				results[i] = QueryResult{Query: query, Hits: []SearchHit{}, Err: err.Error()}
				return nil
			}
			if hits == nil {
				hits = []SearchHit{}
			}
			searchCallsTotal.WithLabelValues("ok").Inc()
			logger.Info("Search successful", "query", query, "count", len(hits))
			results[i] = QueryResult{Query: query, Hits: hits}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
