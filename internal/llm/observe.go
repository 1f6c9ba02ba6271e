package llm

import (
	"context"
	"time"
)

// Observer is notified about every completed request.
type Observer interface {
	ObserveRequest(provider string, elapsed time.Duration, usage Usage, err error)
}

// WithObserver reports each request made through c to obs under the given
// provider label.
func WithObserver(c Client, provider string, obs Observer) Client {
	if obs == nil {
		return c
	}
	return ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		start := time.Now()
		resp, err := c.Complete(ctx, req)
		var usage Usage
		if resp != nil {
			usage = resp.Usage
		}
		obs.ObserveRequest(provider, time.Since(start), usage, err)
		return resp, err
	})
}
