package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRequestTimeout is returned when a single request exceeds its timeout
// while the caller's context is still live. It is retried by WithRetry.
var ErrRequestTimeout = errors.New("request timed out")

// WithTimeout bounds each request made through c. A timeout of zero or
// less returns c unchanged.
func WithTimeout(c Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return c
	}
	return ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := c.Complete(reqCtx, req)
		if err != nil && ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, timeout)
		}
		return resp, err
	})
}
