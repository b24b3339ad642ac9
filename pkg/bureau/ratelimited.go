package bureau

import (
	"context"
	"fmt"

	"card_underwriting/internal/domain"

	"golang.org/x/time/rate"
)

// RateLimited keeps calls to the wrapped gateway within a token bucket so the
// provider quota is never exceeded. Waiting for a token honours ctx.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

func NewRateLimited(next Gateway, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) FetchReport(ctx context.Context, taxID string) (*domain.CreditBureauReport, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrUnavailable, err)
	}
	return r.next.FetchReport(ctx, taxID)
}
