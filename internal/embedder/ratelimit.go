package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps an embedder with a token-bucket limiter so batch
// ingestion stays under provider quotas.
type RateLimited struct {
	inner   Embedder
	limiter *rate.Limiter
}

var _ Embedder = (*RateLimited)(nil)

// NewRateLimited caps the wrapped embedder at requestsPerMinute. Zero or
// negative values disable the limit.
func NewRateLimited(inner Embedder, requestsPerMinute int) *RateLimited {
	limit := rate.Inf
	burst := 1
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
		burst = requestsPerMinute
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Embed blocks until the limiter admits the request, then delegates.
func (rl *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := rl.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embed rate limit: %w", err)
	}
	return rl.inner.Embed(ctx, text)
}
