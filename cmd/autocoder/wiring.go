package main

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/config"
	"github.com/ShayCichocki/autocoder/internal/exec"
	"github.com/ShayCichocki/autocoder/internal/generate"
	"github.com/ShayCichocki/autocoder/internal/llm"
	"github.com/ShayCichocki/autocoder/internal/orchestrator"
	"github.com/ShayCichocki/autocoder/internal/scaffold"
)

// buildDeps are shared by every coder of one build tree.
type buildDeps struct {
	client    llm.Client
	commands  exec.CommandRunner
	emitter   *orchestrator.EventEmitter
	logger    *orchestrator.DebugLogger
	recorders []orchestrator.Recorder
}

// newProfile returns the generation profile and scaffold language of a
// coder name.
func newProfile(name string, cfg *config.Config, commands exec.CommandRunner) (generate.Profile, scaffold.Language, error) {
	switch name {
	case "python":
		p := generate.PythonProfile(commands, cfg.Build.TestsDir, cfg.Tests.Timeout)
		return p.WithCommand(strings.Fields(cfg.Tests.Python)...), scaffold.LanguagePython, nil
	case "go":
		p := generate.GoProfile(commands, cfg.Tests.Timeout)
		return p.WithCommand(strings.Fields(cfg.Tests.Go)...), scaffold.LanguageGo, nil
	default:
		return generate.Profile{}, "", fmt.Errorf("%w: %q (supported: python, go)", coder.ErrUnknownSubcoder, name)
	}
}

// newRegistry registers an orchestrator for each configured coder. Every
// orchestrator may delegate to any registered coder, itself included.
func newRegistry(cfg *config.Config, deps buildDeps) (*coder.Registry, error) {
	registry := coder.NewRegistry()

	names := cfg.Build.Coders
	if len(names) == 0 {
		names = []string{cfg.Build.DefaultCoder}
	}
	for _, name := range names {
		profile, lang, err := newProfile(name, cfg, deps.commands)
		if err != nil {
			return nil, err
		}
		scaffolder, err := scaffold.New(lang, cfg.Build.TestsDir)
		if err != nil {
			return nil, err
		}

		name := name
		factory := func() (coder.Coder, error) {
			backend, err := generate.New(deps.client, generate.Config{
				Profile:      profile,
				Scaffolder:   scaffolder,
				MaxResponses: cfg.Generation.MaxResponses,
				MaxTokens:    cfg.Generation.MaxTokens,
				Temperature:  cfg.Generation.Temperature,
			})
			if err != nil {
				return nil, err
			}
			opts := []orchestrator.Option{
				orchestrator.WithPolicy(cfg.Policy()),
				orchestrator.WithRegistry(registry),
				orchestrator.WithEventEmitter(deps.emitter),
				orchestrator.WithLogger(deps.logger),
			}
			for _, r := range deps.recorders {
				opts = append(opts, orchestrator.WithRecorder(r))
			}
			return orchestrator.New(orchestrator.RequiredConfig{Name: name, Backend: backend}, opts...)
		}
		if err := registry.Register(name, factory); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
