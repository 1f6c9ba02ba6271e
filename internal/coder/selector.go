package coder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

var (
	// ErrNoSubcoderAvailable is returned when a dev step has no candidate
	// coders to delegate to.
	ErrNoSubcoderAvailable = errors.New("no subcoder available")
	// ErrUnknownSubcoder is returned when a selection names a coder that is
	// not a candidate or not registered.
	ErrUnknownSubcoder = errors.New("unknown subcoder")
)

// Selector picks which coder handles a dev step.
type Selector interface {
	Choose(ctx context.Context, step models.Specification, candidates []string) (string, error)
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(ctx context.Context, step models.Specification, candidates []string) (string, error)

// Choose implements Selector.
func (f SelectorFunc) Choose(ctx context.Context, step models.Specification, candidates []string) (string, error) {
	return f(ctx, step, candidates)
}

// Choose asks sel for a coder for step. An empty candidate list fails with
// ErrNoSubcoderAvailable without consulting sel, and a choice outside the
// candidates fails with ErrUnknownSubcoder.
func Choose(ctx context.Context, sel Selector, step models.Specification, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoSubcoderAvailable
	}
	if sel == nil {
		sel = FirstSelector{}
	}
	name, err := sel.Choose(ctx, step, candidates)
	if err != nil {
		return "", fmt.Errorf("choose subcoder: %w", err)
	}
	if !slices.Contains(candidates, name) {
		return "", fmt.Errorf("%q not in %v: %w", name, candidates, ErrUnknownSubcoder)
	}
	return name, nil
}

// FirstSelector always picks the first candidate.
type FirstSelector struct{}

// Choose implements Selector.
func (FirstSelector) Choose(_ context.Context, _ models.Specification, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoSubcoderAvailable
	}
	return candidates[0], nil
}

// KeywordSelector picks the first candidate whose keywords appear in the
// step text, falling back to the first candidate.
type KeywordSelector struct {
	// Keywords maps a coder name to case-insensitive trigger words.
	Keywords map[string][]string
}

// Choose implements Selector.
func (k KeywordSelector) Choose(_ context.Context, step models.Specification, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoSubcoderAvailable
	}
	text := strings.ToLower(step.String())
	for _, name := range candidates {
		for _, kw := range k.Keywords[name] {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return name, nil
			}
		}
	}
	return candidates[0], nil
}
