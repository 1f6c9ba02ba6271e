package orchestrator

import "unicode/utf8"

// FeedbackHook maps raw test diagnostics to the feedback handed to refine.
type FeedbackHook func(diagnostics any) string

// DefaultFeedback passes textual diagnostics through unchanged and returns
// the empty string for anything else.
func DefaultFeedback(diagnostics any) string {
	switch d := diagnostics.(type) {
	case string:
		return d
	case []byte:
		return string(d)
	default:
		return ""
	}
}

const truncatedMarker = "... (truncated)\n"

// TruncateFeedback returns a hook that keeps the last limit bytes of the
// textual diagnostics, where test runners print their summaries.
func TruncateFeedback(limit int) FeedbackHook {
	return func(diagnostics any) string {
		text := DefaultFeedback(diagnostics)
		if limit <= 0 || len(text) <= limit {
			return text
		}
		start := len(text) - limit
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
		return truncatedMarker + text[start:]
	}
}
