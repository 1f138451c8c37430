package llm

import (
	"context"
	"encoding/json"

	"golang.org/x/time/rate"
)

// RateLimited is Generator middleware that shares one token bucket across
// every caller of the wrapped backend.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limit of requestsPerMinute. Non-positive
// values disable limiting.
func NewRateLimited(next Generator, requestsPerMinute int) *RateLimited {
	limit := rate.Inf
	burst := 1
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
		burst = max(requestsPerMinute/10, 1)
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Generate waits for a token, then calls the wrapped backend.
func (r *RateLimited) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewTimeoutError("ratelimit", err)
	}
	return r.next.Generate(ctx, prompt, contract)
}
