// Package metrics exposes prometheus metrics for builds, test runs and
// model requests.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/autocoder/internal/llm"
	"github.com/ShayCichocki/autocoder/internal/orchestrator"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

const namespace = "autocoder"

// Metrics holds the collectors of one registry. It records builds as an
// orchestrator.Recorder and model requests as an llm.Observer.
type Metrics struct {
	registry *prometheus.Registry

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	builds        *prometheus.CounterVec
	activeBuilds  prometheus.Gauge
	buildDuration *prometheus.HistogramVec
	refines       prometheus.Histogram
	testRuns      *prometheus.CounterVec
	linesChanged  *prometheus.CounterVec
}

// New creates metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Model requests by provider and outcome",
		}, []string{"provider", "status"}),
		llmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Model request latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"provider"}),
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens consumed by provider and direction",
		}, []string{"provider", "direction"}),

		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "finished_total",
			Help:      "Finished builds by coder and status",
		}, []string{"coder", "status"}),
		activeBuilds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "active",
			Help:      "Builds and sub-builds currently running",
		}),
		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Build duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}, []string{"coder"}),
		refines: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "refine_iterations",
			Help:      "Refine iterations per finished build",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		testRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tests",
			Name:      "runs_total",
			Help:      "Test suite runs by result",
		}, []string{"result"}),
		linesChanged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refine",
			Name:      "lines_total",
			Help:      "Lines changed by refine iterations",
		}, []string{"change"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest implements llm.Observer.
func (m *Metrics) ObserveRequest(provider string, elapsed time.Duration, usage llm.Usage, err error) {
	status := "success"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	m.llmRequests.WithLabelValues(provider, status).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.llmTokens.WithLabelValues(provider, "input").Add(float64(usage.InputTokens))
	m.llmTokens.WithLabelValues(provider, "output").Add(float64(usage.OutputTokens))
}

// RecordBuildStarted implements orchestrator.Recorder.
func (m *Metrics) RecordBuildStarted(_ context.Context, _ *models.BuildRecord) error {
	m.activeBuilds.Inc()
	return nil
}

// RecordIteration implements orchestrator.Recorder.
func (m *Metrics) RecordIteration(_ context.Context, it *models.IterationRecord) error {
	result := "fail"
	if it.Success {
		result = "pass"
	}
	m.testRuns.WithLabelValues(result).Inc()
	m.linesChanged.WithLabelValues("added").Add(float64(it.LinesAdded))
	m.linesChanged.WithLabelValues("removed").Add(float64(it.LinesRemoved))
	return nil
}

// RecordBuildFinished implements orchestrator.Recorder.
func (m *Metrics) RecordBuildFinished(_ context.Context, b *models.BuildRecord) error {
	m.activeBuilds.Dec()
	m.builds.WithLabelValues(b.Coder, string(b.Status)).Inc()
	m.refines.Observe(float64(b.Iterations))
	if b.FinishedAt != nil {
		m.buildDuration.WithLabelValues(b.Coder).Observe(b.FinishedAt.Sub(b.StartedAt).Seconds())
	}
	return nil
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done. The returned address is
// the one actually bound, useful when addr asks for port 0. Serving errors
// after startup are logged.
func (m *Metrics) Serve(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[metrics] serving on http://%s/metrics", ln.Addr())
	return ln.Addr().String(), nil
}

// Verify Metrics implements the hooks it is wired into.
var (
	_ llm.Observer          = (*Metrics)(nil)
	_ orchestrator.Recorder = (*Metrics)(nil)
)
