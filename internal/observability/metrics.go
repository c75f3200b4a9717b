package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

const metricsNamespace = "curriculum"

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	llmRequests    *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	llmTokens      *prometheus.CounterVec
	costUSD        *prometheus.CounterVec
	budgetSpent    prometheus.Gauge
	attempts       *prometheus.CounterVec
	artifacts      *prometheus.CounterVec
	researchSteps  *prometheus.HistogramVec
	verdicts       *prometheus.CounterVec
	unitsProcessed *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init builds the process-wide collectors once.
func Init() *Metrics {
	initOnce.Do(func() {
		instance = NewMetrics(prometheus.NewRegistry())
	})
	return instance
}

// NewMetrics registers a fresh collector set on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "llm_requests_total",
			Help:      "Generation requests by model, operation kind and status.",
		}, []string{"model", "operation", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Generation request latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"model", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		costUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cost_usd_total",
			Help:      "Estimated spend in USD by model.",
		}, []string{"model"}),
		budgetSpent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "budget_spent_usd",
			Help:      "Cumulative spend recorded by the budget ledger.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "generation_attempts_total",
			Help:      "Generation attempts by artifact and outcome.",
		}, []string{"artifact", "outcome"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifacts_total",
			Help:      "Final artifacts by name and acceptance status.",
		}, []string{"artifact", "status"}),
		researchSteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "research_step_duration_seconds",
			Help:      "Research step duration by step and method.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 15, 60},
		}, []string{"step", "method"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "quality_verdicts_total",
			Help:      "Quality gate verdicts.",
		}, []string{"verdict"}),
		unitsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "units_processed_total",
			Help:      "Units processed by terminal status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.llmRequests, m.llmLatency, m.llmTokens, m.costUSD, m.budgetSpent,
		m.attempts, m.artifacts, m.researchSteps, m.verdicts, m.unitsProcessed,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// StartServer exposes /metrics on addr until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

func (m *Metrics) ObserveLLMRequest(model, operation, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model, operation, status = orUnknown(model), orUnknown(operation), orUnknown(status)
	m.llmRequests.WithLabelValues(model, operation, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, status).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) AddCost(model string, usd float64, totalSpent float64) {
	if m == nil {
		return
	}
	if usd > 0 {
		m.costUSD.WithLabelValues(orUnknown(model)).Add(usd)
	}
	m.budgetSpent.Set(totalSpent)
}

// IncAttempt counts one validation loop attempt; outcome is accepted, rejected, malformed or transient.
func (m *Metrics) IncAttempt(artifact, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(orUnknown(artifact), orUnknown(outcome)).Inc()
}

func (m *Metrics) IncArtifact(artifact, status string) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(orUnknown(artifact), orUnknown(status)).Inc()
}

func (m *Metrics) ObserveResearchStep(step, method string, dur time.Duration) {
	if m == nil {
		return
	}
	m.researchSteps.WithLabelValues(orUnknown(step), orUnknown(method)).Observe(dur.Seconds())
}

func (m *Metrics) IncVerdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(orUnknown(verdict)).Inc()
}

func (m *Metrics) IncUnit(status string) {
	if m == nil {
		return
	}
	m.unitsProcessed.WithLabelValues(orUnknown(status)).Inc()
}
