package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/decompose"
	"github.com/ShayCichocki/autocoder/internal/orchestrator/policy"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

// Orchestrator is a Coder that designs, codes or delegates, tests and
// refines a specification until its tests pass.
type Orchestrator struct {
	name      string
	backend   coder.Backend
	policy    decompose.Policy
	selector  coder.Selector
	registry  *coder.Registry
	subcoders []string
	allowAll  bool
	config    *policy.Config
	feedback  FeedbackHook
	emitter   *EventEmitter
	logger    *DebugLogger
	recorder  Recorder
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Name == "" {
		return nil, errors.New("orchestrator name is required")
	}
	if req.Backend == nil {
		return nil, errors.New("orchestrator backend is required")
	}

	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.policyConfig
	if cfg == nil {
		cfg = policy.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	decomposer := o.decomposer
	if decomposer == nil {
		if p, ok := req.Backend.(decompose.Policy); ok {
			decomposer = p
		} else {
			decomposer = decompose.Atomic
		}
	}
	selector := o.selector
	if selector == nil {
		if s, ok := req.Backend.(coder.Selector); ok {
			selector = s
		} else {
			selector = coder.FirstSelector{}
		}
	}
	feedback := o.feedback
	if feedback == nil {
		feedback = TruncateFeedback(cfg.Loop.FeedbackLimit)
	}
	logger := o.logger
	if logger == nil {
		logger = NopLogger()
	}

	var recorder Recorder
	switch len(o.recorders) {
	case 0:
	case 1:
		recorder = o.recorders[0]
	default:
		recorder = MultiRecorder(o.recorders)
	}

	return &Orchestrator{
		name:    req.Name,
		backend: req.Backend,
		policy: decompose.Bounded{
			Policy:   decomposer,
			MaxDepth: cfg.Decomposition.MaxDepth,
			MaxSteps: cfg.Decomposition.MaxSteps,
		},
		selector:  selector,
		registry:  o.registry,
		subcoders: o.subcoders,
		allowAll:  !o.subcodersSet,
		config:    cfg,
		feedback:  feedback,
		emitter:   o.emitter,
		logger:    logger,
		recorder:  recorder,
	}, nil
}

// Name implements coder.Coder.
func (o *Orchestrator) Name() string {
	return o.name
}

// Policy returns the orchestrator's policy configuration.
func (o *Orchestrator) Policy() *policy.Config {
	return o.config
}

// Build implements coder.Coder. On failure the returned error is a
// *BuildError carrying the files touched so far.
func (o *Orchestrator) Build(ctx context.Context, spec models.Specification, projectHome string) (*coder.Result, error) {
	if projectHome == "" {
		return nil, &BuildError{Stage: StageDesign, Files: models.NewFileSet(), Err: errors.New("project home is required")}
	}

	b := &build{
		o:            o,
		id:           uuid.NewString(),
		parentID:     parentBuildID(ctx),
		depth:        coder.Depth(ctx),
		spec:         spec,
		home:         projectHome,
		started:      time.Now(),
		projectFiles: models.NewFileSet(),
		testFiles:    models.NewFileSet(),
	}

	o.logger.Log("[%s] build %s started (depth %d, parent %q): %s", o.name, b.id, b.depth, b.parentID, preview(spec.String()))
	o.record(ctx, func(r Recorder, ctx context.Context) error {
		return r.RecordBuildStarted(ctx, b.record(models.BuildStatusRunning, nil))
	})
	b.emit(Event{Type: EventBuildStarted, Message: preview(spec.String())})

	result, err := b.run(withBuildID(ctx, b.id))
	b.finish(ctx, result, err)
	return result, err
}

// candidates returns the coders a dev step may be delegated to.
func (o *Orchestrator) candidates() []string {
	if o.registry == nil {
		return nil
	}
	if o.allowAll {
		return o.registry.Names()
	}
	var out []string
	for _, name := range o.subcoders {
		if o.registry.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

func (o *Orchestrator) record(ctx context.Context, fn func(Recorder, context.Context) error) {
	if o.recorder == nil {
		return
	}
	if err := fn(o.recorder, context.WithoutCancel(ctx)); err != nil {
		log.Printf("[orchestrator] WARNING: recorder failed: %v", err)
		o.logger.Log("[%s] recorder failed: %v", o.name, err)
	}
}

type buildIDKey struct{}

func withBuildID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, buildIDKey{}, id)
}

func parentBuildID(ctx context.Context) string {
	id, _ := ctx.Value(buildIDKey{}).(string)
	return id
}

func preview(s string) string {
	const limit = 120
	if len(s) > limit {
		return s[:runeCut(s, limit)] + "..."
	}
	return s
}

// runeCut moves the byte offset i back to the start of the rune it falls in.
func runeCut(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
