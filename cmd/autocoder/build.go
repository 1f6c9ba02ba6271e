package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/config"
	"github.com/ShayCichocki/autocoder/internal/control"
	"github.com/ShayCichocki/autocoder/internal/decompose"
	"github.com/ShayCichocki/autocoder/internal/exec"
	"github.com/ShayCichocki/autocoder/internal/llm"
	"github.com/ShayCichocki/autocoder/internal/metrics"
	"github.com/ShayCichocki/autocoder/internal/orchestrator"
	"github.com/ShayCichocki/autocoder/internal/state"
	"github.com/ShayCichocki/autocoder/internal/tui"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

var (
	buildHome          string
	buildCoder         string
	buildMaxIterations int
	buildTUI           bool
	buildMetricsAddr   string
)

var buildCmd = &cobra.Command{
	Use:   "build <spec|@file>",
	Short: "Build code and tests from a specification",
	Long: `Build code and tests for a specification inside a project home.

The specification is given inline or, prefixed with @, read from a file:

  autocoder build "a CLI calculator supporting + - * /"
  autocoder build @spec.md --home ./calc --coder python

Stop a running build gracefully with 'autocoder stop' from another
terminal, by pressing s in the TUI, or with Ctrl+C. Files written before
the stop stay on disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildHome, "home", ".", "Project home directory the build writes into")
	buildCmd.Flags().StringVar(&buildCoder, "coder", "", "Top-level coder (default: build.default_coder)")
	buildCmd.Flags().IntVar(&buildMaxIterations, "max-iterations", 0, "Refine iterations before giving up (default: build.max_iterations)")
	buildCmd.Flags().BoolVar(&buildTUI, "tui", false, "Show the interactive build view")
	buildCmd.Flags().StringVar(&buildMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default: metrics.addr)")
}

// readSpec returns the specification text of arg, reading it from a file
// when arg starts with @.
func readSpec(arg string) (models.Specification, error) {
	text := arg
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read spec file: %w", err)
		}
		text = string(data)
	}
	spec := models.Specification(strings.TrimSpace(text))
	if spec.Empty() {
		return "", errors.New("specification is empty")
	}
	return spec, nil
}

// applyBuildFlags overrides cfg with the flags the user set.
func applyBuildFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("coder") {
		cfg.Build.DefaultCoder = buildCoder
		found := false
		for _, name := range cfg.Build.Coders {
			if name == buildCoder {
				found = true
			}
		}
		if !found {
			cfg.Build.Coders = append(cfg.Build.Coders, buildCoder)
		}
	}
	if flags.Changed("max-iterations") {
		cfg.Build.MaxIterations = buildMaxIterations
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = buildMetricsAddr
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyBuildFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	spec, err := readSpec(args[0])
	if err != nil {
		return err
	}

	home, err := filepath.Abs(buildHome)
	if err != nil {
		return fmt.Errorf("resolve project home: %w", err)
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("create project home: %w", err)
	}

	lock, err := control.AcquireLock(home)
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	db, err := state.OpenProject(home)
	if err != nil {
		return fmt.Errorf("open build ledger: %w", err)
	}
	defer db.Close()
	if n, err := db.MarkInterrupted(ctx); err != nil {
		log.Printf("[build] WARNING: could not mark interrupted builds: %v", err)
	} else if n > 0 {
		printStatus(out, "!", fmt.Sprintf("Marked %d interrupted build(s) from an earlier run as cancelled", n), color.FgYellow)
	}

	ctx, watcher, err := control.Watch(ctx, home, control.DefaultPollInterval)
	if err != nil {
		return err
	}
	defer watcher.Close()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		addr, err := m.Serve(ctx, cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		printStatus(out, "•", "Metrics at http://"+addr+"/metrics", color.FgCyan)
	}

	tracker := llm.NewTokenTracker()
	llmCfg, err := cfg.LLM()
	if err != nil {
		return err
	}
	llmCfg.Tracker = tracker
	llmCfg.Observer = m
	llmCfg.RequestTimeout = cfg.Generation.Timeout
	client, err := llm.New(llmCfg)
	if err != nil {
		return fmt.Errorf("create %s client: %w", cfg.Generation.Provider, err)
	}

	logger := orchestrator.NopLogger()
	if cfg.Logging.Debug {
		logPath := cfg.Logging.File
		if logPath == "" {
			logPath = orchestrator.LogPath(home)
		}
		if logger, err = orchestrator.NewDebugLogger(logPath); err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
	}
	defer logger.Close()

	emitter := orchestrator.NewEventEmitter(cfg.Policy().Events.BufferSize)
	registry, err := newRegistry(cfg, buildDeps{
		client:    client,
		commands:  exec.NewRunner(),
		emitter:   emitter,
		logger:    logger,
		recorders: []orchestrator.Recorder{state.NewRecorder(db), m},
	})
	if err != nil {
		return err
	}
	top, err := registry.New(cfg.Build.DefaultCoder)
	if err != nil {
		return err
	}

	printStatus(out, "▶", fmt.Sprintf("Building with %s coder in %s", top.Name(), home), color.FgCyan)
	start := time.Now()

	var result *coder.Result
	if buildTUI {
		result, err = buildWithTUI(ctx, top, spec, home, emitter)
	} else {
		result, err = buildHeadless(ctx, top, spec, home, emitter, out)
	}

	in, outTokens := tracker.Total()
	usage := fmt.Sprintf("%d requests, %s input / %s output tokens", tracker.Calls(), formatNumber(in), formatNumber(outTokens))
	if err != nil {
		reportFailure(ctx, out, err)
		printStatus(out, "•", usage, color.FgWhite)
		return fmt.Errorf("build %s", failureKind(ctx, err))
	}

	reportSuccess(out, result, time.Since(start))
	printStatus(out, "•", usage, color.FgWhite)
	return nil
}

// buildHeadless runs the build and prints its events as they arrive.
func buildHeadless(ctx context.Context, top coder.Coder, spec models.Specification, home string, emitter *orchestrator.EventEmitter, out io.Writer) (*coder.Result, error) {
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range emitter.Events() {
			printEvent(out, ev)
		}
	}()

	result, err := top.Build(ctx, spec, home)
	emitter.Close()
	<-printed
	return result, err
}

func printEvent(out io.Writer, ev orchestrator.Event) {
	line := tui.Describe(ev)
	if line == "" {
		return
	}
	indent := strings.Repeat("  ", ev.Depth)
	switch {
	case ev.Type == orchestrator.EventBuildFailed:
		printStatus(out, indent+"✗", line, color.FgRed)
	case ev.Type == orchestrator.EventBuildCompleted:
		printStatus(out, indent+"✓", line, color.FgGreen)
	case ev.Type == orchestrator.EventTestsRun && !ev.Success:
		printStatus(out, indent+"•", line, color.FgYellow)
	case ev.Type == orchestrator.EventTestsRun:
		printStatus(out, indent+"•", line, color.FgGreen)
	default:
		printStatus(out, indent+"•", line, color.FgWhite)
	}
}

// buildWithTUI runs the build behind the interactive build view. The view
// stays open after the build ends until the user quits.
func buildWithTUI(ctx context.Context, top coder.Coder, spec models.Specification, home string, emitter *orchestrator.EventEmitter) (*coder.Result, error) {
	// Suppress log output while TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	program, _ := tui.NewBuildProgram(func() {
		if err := control.RequestStop(home); err != nil {
			log.Printf("[build] stop request failed: %v", err)
		}
	})

	type outcome struct {
		result *coder.Result
		err    error
	}
	done := make(chan outcome, 1)
	// Keep forwarding after a stop so the final events reach the view.
	go tui.ForwardEvents(context.WithoutCancel(ctx), emitter.Events(), program)
	go func() {
		result, err := top.Build(ctx, spec, home)
		emitter.Close()
		program.Send(tui.BuildDoneMsg{Result: result, Err: err})
		done <- outcome{result, err}
	}()

	if _, err := program.Run(); err != nil {
		_ = control.RequestStop(home)
		o := <-done
		if o.err == nil {
			return o.result, nil
		}
		return nil, errors.Join(o.err, fmt.Errorf("build view: %w", err))
	}
	o := <-done
	return o.result, o.err
}

// failureKind names the reason a build failed for the exit message.
func failureKind(ctx context.Context, err error) string {
	var be *orchestrator.BuildError
	switch {
	case errors.Is(context.Cause(ctx), control.ErrStopRequested):
		return "stopped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted"
	case errors.Is(err, orchestrator.ErrConvergenceFailed):
		return "did not converge"
	case errors.Is(err, coder.ErrNoSubcoderAvailable):
		return "had no subcoder available"
	case errors.Is(err, coder.ErrUnknownSubcoder):
		return "selected an unknown subcoder"
	case errors.Is(err, decompose.ErrInvalidDevPlan):
		return "produced an invalid dev plan"
	case errors.Is(err, llm.ErrRetriesExhausted):
		return "could not generate text"
	case errors.As(err, &be):
		return "failed at " + string(be.Stage)
	default:
		return "failed"
	}
}

func reportFailure(ctx context.Context, out io.Writer, err error) {
	printStatus(out, "✗", fmt.Sprintf("Build %s: %v", failureKind(ctx, err), err), color.FgRed)
	files := orchestrator.PartialFiles(err)
	if files.Len() == 0 {
		return
	}
	fmt.Fprintf(out, "  %d file(s) written before the failure were left in place:\n", files.Len())
	for _, f := range files.Sorted() {
		fmt.Fprintf(out, "    %s\n", f)
	}
}

func reportSuccess(out io.Writer, result *coder.Result, elapsed time.Duration) {
	printStatus(out, "✓", fmt.Sprintf("Build succeeded in %s", formatDuration(elapsed)), color.FgGreen)
	if result == nil {
		return
	}
	fmt.Fprintf(out, "  %d file(s):\n", result.Files.Len())
	for _, f := range result.Files.Sorted() {
		fmt.Fprintf(out, "    %s\n", f)
	}
	if result.Tests != nil {
		fmt.Fprintf(out, "  tests: %s, %d file(s)\n", result.Tests.Kind(), result.Tests.TestFiles().Len())
	}
}
