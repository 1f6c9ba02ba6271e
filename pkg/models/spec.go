package models

import "strings"

// Specification is a natural-language description of a code artifact or of
// one step of a decomposition.
type Specification string

// String returns the specification text.
func (s Specification) String() string {
	return string(s)
}

// Empty reports whether the specification has no non-whitespace content.
func (s Specification) Empty() bool {
	return strings.TrimSpace(string(s)) == ""
}

// CodeDesign is the architecture text derived once per build from a
// Specification. It is never mutated after it is produced.
type CodeDesign string

// String returns the design text.
func (d CodeDesign) String() string {
	return string(d)
}

// DevPlan is the ordered list of sub-specifications produced when a design
// is too complex to code directly. A valid plan is non-empty.
type DevPlan []Specification

// Len returns the number of dev steps.
func (p DevPlan) Len() int {
	return len(p)
}

// Strings returns the dev steps as plain strings.
func (p DevPlan) Strings() []string {
	out := make([]string, len(p))
	for i, step := range p {
		out[i] = string(step)
	}
	return out
}
