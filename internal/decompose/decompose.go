// Package decompose decides whether a design is atomic or must be split
// into an ordered plan of dev steps, and parses and validates such plans.
package decompose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

// ErrInvalidDevPlan is returned for an empty or malformed dev plan.
var ErrInvalidDevPlan = errors.New("invalid dev plan")

// Policy decides how a design is built.
type Policy interface {
	// ShouldGenerateDevPlan reports whether the design is too complex to
	// code directly.
	ShouldGenerateDevPlan(ctx context.Context, design models.CodeDesign) (bool, error)
	// GenerateDevPlan splits the design into ordered dev steps.
	GenerateDevPlan(ctx context.Context, design models.CodeDesign) (models.DevPlan, error)
}

// planStep is one entry of a plan given as objects rather than strings.
type planStep struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on"`
}

// ParsePlan extracts a dev plan from model output. The plan may be a JSON
// array of strings, a JSON array of step objects, or an object with a
// "steps" field holding either form. Text around the JSON is ignored.
// Blank steps are dropped; an empty result is ErrInvalidDevPlan.
func ParsePlan(response string) (models.DevPlan, error) {
	raw, err := extractSteps(response)
	if err != nil {
		return nil, err
	}

	var texts []string
	if err := json.Unmarshal(raw, &texts); err == nil {
		return planFromStrings(texts)
	}

	var steps []planStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("%w: unmarshal steps: %v", ErrInvalidDevPlan, err)
	}
	if err := validateOrder(steps); err != nil {
		return nil, err
	}
	texts = make([]string, 0, len(steps))
	for _, s := range steps {
		text := strings.TrimSpace(s.Title)
		if d := strings.TrimSpace(s.Description); d != "" {
			if text != "" {
				text += ": "
			}
			text += d
		}
		texts = append(texts, text)
	}
	return planFromStrings(texts)
}

// ValidatePlan checks that plan is non-empty, has no blank steps, and has
// at most maxSteps steps. A maxSteps of zero disables the cap.
func ValidatePlan(plan models.DevPlan, maxSteps int) error {
	if len(plan) == 0 {
		return fmt.Errorf("%w: plan is empty", ErrInvalidDevPlan)
	}
	for i, step := range plan {
		if step.Empty() {
			return fmt.Errorf("%w: step %d is blank", ErrInvalidDevPlan, i+1)
		}
	}
	if maxSteps > 0 && len(plan) > maxSteps {
		return fmt.Errorf("%w: %d steps exceeds limit of %d", ErrInvalidDevPlan, len(plan), maxSteps)
	}
	return nil
}

// Bounded wraps a policy with recursion and plan-size limits. At or beyond
// MaxDepth every design is treated as atomic so recursion terminates.
type Bounded struct {
	Policy   Policy
	MaxDepth int
	MaxSteps int
}

// ShouldGenerateDevPlan implements Policy.
func (b Bounded) ShouldGenerateDevPlan(ctx context.Context, design models.CodeDesign) (bool, error) {
	if b.MaxDepth > 0 && coder.Depth(ctx) >= b.MaxDepth {
		return false, nil
	}
	return b.Policy.ShouldGenerateDevPlan(ctx, design)
}

// GenerateDevPlan implements Policy.
func (b Bounded) GenerateDevPlan(ctx context.Context, design models.CodeDesign) (models.DevPlan, error) {
	plan, err := b.Policy.GenerateDevPlan(ctx, design)
	if err != nil {
		return nil, err
	}
	if err := ValidatePlan(plan, b.MaxSteps); err != nil {
		return nil, err
	}
	return plan, nil
}

// Fixed is a deterministic policy. An empty Plan means every design is
// atomic.
type Fixed struct {
	Plan models.DevPlan
}

// ShouldGenerateDevPlan implements Policy.
func (f Fixed) ShouldGenerateDevPlan(context.Context, models.CodeDesign) (bool, error) {
	return len(f.Plan) > 0, nil
}

// GenerateDevPlan implements Policy.
func (f Fixed) GenerateDevPlan(context.Context, models.CodeDesign) (models.DevPlan, error) {
	if len(f.Plan) == 0 {
		return nil, fmt.Errorf("%w: plan is empty", ErrInvalidDevPlan)
	}
	return append(models.DevPlan(nil), f.Plan...), nil
}

// Atomic never decomposes.
var Atomic Policy = Fixed{}

func extractSteps(response string) (json.RawMessage, error) {
	start := strings.IndexAny(response, "[{")
	if start == -1 {
		return nil, fmt.Errorf("%w: no JSON found in response (got %d chars): %q", ErrInvalidDevPlan, len(response), preview(response))
	}

	if response[start] == '{' {
		end := strings.LastIndex(response, "}")
		if end <= start {
			return nil, fmt.Errorf("%w: unterminated JSON object: %q", ErrInvalidDevPlan, preview(response))
		}
		var wrapper struct {
			Steps json.RawMessage `json:"steps"`
		}
		if err := json.Unmarshal([]byte(response[start:end+1]), &wrapper); err != nil {
			return nil, fmt.Errorf("%w: unmarshal JSON: %v", ErrInvalidDevPlan, err)
		}
		if len(wrapper.Steps) == 0 {
			return nil, fmt.Errorf("%w: object has no steps field", ErrInvalidDevPlan)
		}
		return wrapper.Steps, nil
	}

	end := strings.LastIndex(response, "]")
	if end <= start {
		return nil, fmt.Errorf("%w: no valid JSON array found in response: %q", ErrInvalidDevPlan, preview(response))
	}
	return json.RawMessage(response[start : end+1]), nil
}

func planFromStrings(texts []string) (models.DevPlan, error) {
	plan := make(models.DevPlan, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			plan = append(plan, models.Specification(t))
		}
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: empty step list returned", ErrInvalidDevPlan)
	}
	return plan, nil
}

// validateOrder checks that steps only depend on steps declared before
// them, since steps run sequentially in plan order.
func validateOrder(steps []planStep) error {
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("%w: step %q depends on %q which does not come before it", ErrInvalidDevPlan, s.Title, dep)
			}
		}
		seen[s.Title] = true
	}
	return nil
}

func preview(s string) string {
	const limit = 500
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... (truncated)"
}
