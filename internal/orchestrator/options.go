package orchestrator

import (
	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/decompose"
	"github.com/ShayCichocki/autocoder/internal/orchestrator/policy"
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Name is the identifier the orchestrator is registered under.
	Name string
	// Backend is the generation collaborator.
	Backend coder.Backend
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	policyConfig *policy.Config
	decomposer   decompose.Policy
	selector     coder.Selector
	registry     *coder.Registry
	subcoders    []string
	subcodersSet bool
	feedback     FeedbackHook
	emitter      *EventEmitter
	logger       *DebugLogger
	recorders    []Recorder
}

// WithPolicy sets the policy configuration.
func WithPolicy(p *policy.Config) Option {
	return func(o *orchestratorOptions) { o.policyConfig = p }
}

// WithDecompositionPolicy sets the policy that decides whether a design is
// split into a dev plan. Defaults to the backend if it implements
// decompose.Policy, otherwise decompose.Atomic.
func WithDecompositionPolicy(p decompose.Policy) Option {
	return func(o *orchestratorOptions) { o.decomposer = p }
}

// WithSelector sets the subcoder selection strategy. Defaults to the
// backend if it implements coder.Selector, otherwise coder.FirstSelector.
func WithSelector(s coder.Selector) Option {
	return func(o *orchestratorOptions) { o.selector = s }
}

// WithRegistry sets the registry subcoders are constructed from.
func WithRegistry(r *coder.Registry) Option {
	return func(o *orchestratorOptions) { o.registry = r }
}

// WithSubcoders restricts delegation to the named coders. Without this
// option every registered coder is a candidate. An empty list allows none.
func WithSubcoders(names ...string) Option {
	return func(o *orchestratorOptions) {
		o.subcoders = append([]string{}, names...)
		o.subcodersSet = true
	}
}

// WithFeedbackHook sets the hook mapping diagnostics to refine feedback.
func WithFeedbackHook(h FeedbackHook) Option {
	return func(o *orchestratorOptions) { o.feedback = h }
}

// WithEventEmitter sets the emitter events are sent to.
func WithEventEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithRecorder adds a recorder. May be given more than once.
func WithRecorder(r Recorder) Option {
	return func(o *orchestratorOptions) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}
