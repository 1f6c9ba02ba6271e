package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRequestsPerMinute is the default generation rate limit.
const DefaultRequestsPerMinute = 500

// WithRateLimit bounds c to rpm requests per minute, sleeping before a
// request when the budget is spent. A non-positive rpm disables limiting.
func WithRateLimit(c Client, rpm int) Client {
	if rpm <= 0 {
		return c
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	return ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.Complete(ctx, req)
	})
}
