package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestObserveLLMRequestCountsTokens(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveLLMRequest("gpt-4o", "spec", "ok", 2*time.Second, 1200, 300)
	m.ObserveLLMRequest("gpt-4o", "spec", "ok", time.Second, 100, 50)

	if got := testutil.ToFloat64(m.llmRequests.WithLabelValues("gpt-4o", "spec", "ok")); got != 2 {
		t.Fatalf("requests: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("gpt-4o", "input")); got != 1300 {
		t.Fatalf("input tokens: want=1300 got=%v", got)
	}
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("gpt-4o", "output")); got != 350 {
		t.Fatalf("output tokens: want=350 got=%v", got)
	}
}

func TestEmptyLabelsBecomeUnknown(t *testing.T) {
	m := newTestMetrics(t)
	m.IncAttempt("", " ")
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("attempts: want=1 got=%v", got)
	}
}

func TestAddCostTracksBudgetGauge(t *testing.T) {
	m := newTestMetrics(t)
	m.AddCost("gpt-4o-mini", 0.25, 0.25)
	m.AddCost("gpt-4o-mini", 0.5, 0.75)
	if got := testutil.ToFloat64(m.costUSD.WithLabelValues("gpt-4o-mini")); got != 0.75 {
		t.Fatalf("cost: want=0.75 got=%v", got)
	}
	if got := testutil.ToFloat64(m.budgetSpent); got != 0.75 {
		t.Fatalf("budget gauge: want=0.75 got=%v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLLMRequest("m", "op", "ok", time.Second, 1, 1)
	m.AddCost("m", 1, 1)
	m.IncAttempt("a", "accepted")
	m.IncArtifact("a", "accepted")
	m.ObserveResearchStep("00_week_entry", "outline", time.Millisecond)
	m.IncVerdict("ok")
	m.IncUnit("succeeded")
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have nil registry")
	}
}

func TestRegistryGathersAllFamilies(t *testing.T) {
	m := newTestMetrics(t)
	m.IncVerdict("warn")
	m.IncUnit("blocked")
	if n, err := testutil.GatherAndCount(m.Registry(), "curriculum_quality_verdicts_total", "curriculum_units_processed_total"); err != nil || n != 2 {
		t.Fatalf("gather: n=%d err=%v", n, err)
	}
}
