// Package generate implements the generation collaborator of a coder on top
// of a language model client. A Backend designs, scaffolds, codes, refines
// and writes tests, decides whether a design needs a dev plan, produces that
// plan and picks subcoders for its steps.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/decompose"
	"github.com/ShayCichocki/autocoder/internal/llm"
	"github.com/ShayCichocki/autocoder/internal/suite"
	"github.com/ShayCichocki/autocoder/internal/workspace"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

const (
	// DefaultMaxResponses bounds the turns of one write loop.
	DefaultMaxResponses = 5
	// DefaultMaxTokens bounds a single model response.
	DefaultMaxTokens = 8192
	// DefaultMaxFileBytes bounds the content of one file in a prompt.
	DefaultMaxFileBytes = 32 * 1024
	// maxListedFiles bounds the project listing given to Code.
	maxListedFiles = 200
)

const (
	toolComplexity = "set_code_complexity"
	toolChoose     = "choose_subcoder"
)

// Scaffolder prepares a project home. See scaffold.Scaffolder.
type Scaffolder interface {
	Scaffold(ctx context.Context, design models.CodeDesign, projectHome string) (models.FileSet, error)
}

// Config configures a Backend.
type Config struct {
	Profile Profile
	// Scaffolder prepares project homes. Nil skips scaffolding.
	Scaffolder   Scaffolder
	MaxResponses int
	MaxTokens    int
	Temperature  float64
	MaxFileBytes int
}

// Backend is an LLM backed coder.Backend that also acts as the coder's
// decomposition policy and subcoder selector.
type Backend struct {
	client llm.Client
	cfg    Config
}

// New creates a backend over client.
func New(client llm.Client, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if cfg.Profile.NewRunner == nil {
		return nil, errors.New("profile runner is required")
	}
	if cfg.Profile.Kind == "" || cfg.Profile.Kind == suite.KindNone {
		return nil, errors.New("profile test kind is required")
	}
	if cfg.MaxResponses <= 0 {
		cfg.MaxResponses = DefaultMaxResponses
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return &Backend{client: client, cfg: cfg}, nil
}

// DesignSolution implements coder.Backend.
func (b *Backend) DesignSolution(ctx context.Context, spec models.Specification) (models.CodeDesign, error) {
	resp, err := b.client.Complete(ctx, llm.Request{
		System:      fmt.Sprintf(designSystemPrompt, b.cfg.Profile.Language),
		Messages:    []llm.Message{llm.UserMessage(spec.String())},
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("design solution: %w", err)
	}
	design := strings.TrimSpace(resp.Text)
	if design == "" {
		return "", errors.New("design solution: model returned an empty design")
	}
	return models.CodeDesign(design), nil
}

// Scaffold implements coder.Backend.
func (b *Backend) Scaffold(ctx context.Context, design models.CodeDesign, projectHome string) (models.FileSet, error) {
	if b.cfg.Scaffolder == nil {
		return models.NewFileSet(), nil
	}
	return b.cfg.Scaffolder.Scaffold(ctx, design, projectHome)
}

// ShouldGenerateDevPlan implements decompose.Policy by asking the model to
// rate the design's complexity.
func (b *Backend) ShouldGenerateDevPlan(ctx context.Context, design models.CodeDesign) (bool, error) {
	var args struct {
		CodeIsComplex *bool `json:"code_is_complex"`
	}
	err := b.callTool(ctx, complexitySystemPrompt, design.String(), llm.Tool{
		Name:        toolComplexity,
		Description: "If true, the code is too complex. If false, the code is simple enough.",
		Properties: map[string]interface{}{
			"code_is_complex": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the code is too complex to be coded within thirty minutes in 1-3 files.",
			},
		},
		Required: []string{"code_is_complex"},
	}, &args)
	if err != nil {
		return false, fmt.Errorf("rate design complexity: %w", err)
	}
	if args.CodeIsComplex == nil {
		return false, fmt.Errorf("rate design complexity: %s call without code_is_complex", toolComplexity)
	}
	return *args.CodeIsComplex, nil
}

// GenerateDevPlan implements decompose.Policy.
func (b *Backend) GenerateDevPlan(ctx context.Context, design models.CodeDesign) (models.DevPlan, error) {
	resp, err := b.client.Complete(ctx, llm.Request{
		System:      planSystemPrompt,
		Messages:    []llm.Message{llm.UserMessage(design.String())},
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate dev plan: %w", err)
	}
	return decompose.ParsePlan(resp.Text)
}

// Choose implements coder.Selector by letting the model pick one of the
// candidate names.
func (b *Backend) Choose(ctx context.Context, step models.Specification, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", coder.ErrNoSubcoderAvailable
	}
	var args struct {
		Subcoder string `json:"subcoder"`
	}
	err := b.callTool(ctx, selectSystemPrompt, step.String(), llm.Tool{
		Name:        toolChoose,
		Description: "Choose a subcoder to complete the given task.",
		Properties: map[string]interface{}{
			"subcoder": map[string]interface{}{
				"type": "string",
				"enum": candidates,
			},
		},
		Required: []string{"subcoder"},
	}, &args)
	if err != nil {
		return "", fmt.Errorf("choose subcoder: %w", err)
	}
	return args.Subcoder, nil
}

// Code implements coder.Backend. Files that exist before the call are not
// overwritten.
func (b *Backend) Code(ctx context.Context, design models.CodeDesign, projectHome string) (models.FileSet, error) {
	existing, err := workspace.ListFiles(projectHome, maxListedFiles)
	if err != nil {
		log.Printf("[generate] list %s: %v", projectHome, err)
	}
	prompt := promptInput{Design: design.String(), ProjectFiles: existing}.render()
	s := newWriteSession(projectHome, false, nil)
	return b.writeLoop(ctx, "code", fmt.Sprintf(codeSystemPrompt, b.cfg.Profile.Language), prompt, s)
}

// Refine implements coder.Backend.
func (b *Backend) Refine(ctx context.Context, req coder.RefineRequest) (models.FileSet, error) {
	prompt := promptInput{
		Spec:     req.Spec.String(),
		Files:    workspace.ReadFiles(req.ProjectHome, req.Files, b.cfg.MaxFileBytes),
		Feedback: req.Feedback,
	}.render()
	s := newWriteSession(req.ProjectHome, true, nil)
	return b.writeLoop(ctx, "refine", fmt.Sprintf(refineSystemPrompt, b.cfg.Profile.Language), prompt, s)
}

// GenerateUnitTests implements coder.Backend.
func (b *Backend) GenerateUnitTests(ctx context.Context, req coder.TestRequest) (suite.TestSuite, error) {
	return b.generateTests(ctx, "unit tests", unitTestSystemPrompt, req)
}

// GenerateIntegrationTests implements coder.Backend.
func (b *Backend) GenerateIntegrationTests(ctx context.Context, req coder.TestRequest) (suite.TestSuite, error) {
	return b.generateTests(ctx, "integration tests", integrationTestSystemPrompt, req)
}

func (b *Backend) generateTests(ctx context.Context, label, system string, req coder.TestRequest) (suite.TestSuite, error) {
	p := b.cfg.Profile
	prompt := promptInput{
		Spec:        req.Spec.String(),
		Files:       workspace.ReadFiles(req.ProjectHome, req.Files, b.cfg.MaxFileBytes),
		TestFiles:   workspace.ReadFiles(req.ProjectHome, req.ExistingTestFiles, b.cfg.MaxFileBytes),
		TestResults: req.TestResults,
	}.render()

	s := newWriteSession(req.ProjectHome, true, p.checkTestPath)
	files, err := b.writeLoop(ctx, label, fmt.Sprintf(system, p.Language, p.Conventions), prompt, s)
	if files.Len() == 0 {
		return suite.NoTests{}, err
	}
	// On error the suite still names the files written so far.
	return suite.New(p.Kind, p.NewRunner(req.ProjectHome), files.Sorted()...), err
}

// callTool forces a single call of tool and decodes its input into args.
func (b *Backend) callTool(ctx context.Context, system, prompt string, tool llm.Tool, args interface{}) error {
	resp, err := b.client.Complete(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{llm.UserMessage(prompt)},
		Tools:       []llm.Tool{tool},
		ToolChoice:  tool.Name,
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
	})
	if err != nil {
		return err
	}
	for _, call := range resp.ToolCalls {
		if call.Name != tool.Name {
			continue
		}
		if err := json.Unmarshal(call.Input, args); err != nil {
			return fmt.Errorf("decode %s input: %w", tool.Name, err)
		}
		return nil
	}
	// Some models answer in text despite the forced tool.
	if err := llm.ExtractJSON(resp.Text, args); err == nil {
		return nil
	}
	return fmt.Errorf("model did not call %s", tool.Name)
}

// Verify Backend satisfies the interfaces the orchestrator looks for.
var (
	_ coder.Backend    = (*Backend)(nil)
	_ coder.Selector   = (*Backend)(nil)
	_ decompose.Policy = (*Backend)(nil)
)
