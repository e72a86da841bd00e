package search

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-search/pkg/research"
)

// RateLimited spaces calls to the wrapped searcher.
type RateLimited struct {
	next    research.Searcher
	limiter *rate.Limiter
}

// NewRateLimited returns next unchanged when perSecond is not positive.
func NewRateLimited(next research.Searcher, perSecond float64) research.Searcher {
	if perSecond <= 0 {
		return next
	}
	burst := int(math.Max(1, math.Ceil(perSecond)))
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Search(ctx context.Context, query string) ([]research.SearchHit, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Search(ctx, query)
}
