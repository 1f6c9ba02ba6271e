package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxRetries is the default number of retries after a failed request.
const DefaultMaxRetries = 3

// RetryConfig tunes WithRetry.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialInterval is the first backoff delay. Zero uses the backoff
	// package default.
	InitialInterval time.Duration
	// BackOff overrides the schedule entirely, mainly for tests.
	BackOff backoff.BackOff
}

// WithRetry retries failed requests with exponential backoff. Context
// errors are not retried. When every attempt fails the error wraps both
// ErrRetriesExhausted and the last failure.
func WithRetry(c Client, cfg RetryConfig) Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		b := cfg.BackOff
		if b == nil {
			eb := backoff.NewExponentialBackOff()
			if cfg.InitialInterval > 0 {
				eb.InitialInterval = cfg.InitialInterval
			}
			b = eb
		}

		attempt := 0
		op := func() (*Response, error) {
			attempt++
			resp, err := c.Complete(ctx, req)
			if err == nil {
				return resp, nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, backoff.Permanent(err)
			}
			log.Printf("[llm] request failed (attempt %d/%d): %v", attempt, cfg.MaxRetries+1, err)
			return nil, err
		}

		resp, err := backoff.Retry(ctx, op,
			backoff.WithBackOff(b),
			backoff.WithMaxTries(uint(cfg.MaxRetries+1)),
		)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
	})
}
