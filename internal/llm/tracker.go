package llm

import (
	"context"
	"sync"
)

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// WithTracker records the usage of every successful response in t.
func WithTracker(c Client, t *TokenTracker) Client {
	return ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		resp, err := c.Complete(ctx, req)
		if err == nil && resp != nil {
			t.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}
		return resp, err
	})
}
