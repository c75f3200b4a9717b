package budget

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newLedger(t *testing.T, opts Options) *Ledger {
	t.Helper()
	l, err := NewLedger(logger.Nop(), opts)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func TestEstimateCostUsesPricingTable(t *testing.T) {
	p := NewPricing(nil)
	cases := []struct {
		model string
		want  float64
	}{
		{"gpt-4o", 2.50 + 10.00},
		{"gpt-4o-mini", 0.15 + 0.60},
		{"gpt-4o-mini-2024-07-18", 0.15 + 0.60},
		{"gpt-4o-2024-08-06", 2.50 + 10.00},
		{"o1-mini", 3 + 12},
		{"some-new-model", 5 + 15},
		{"dry_run", 0},
	}
	for _, tc := range cases {
		got := p.EstimateCost(CallSpec{Model: tc.model, TokensIn: 1_000_000, TokensOut: 1_000_000})
		if !almostEqual(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.model, got, tc.want)
		}
	}
}

func TestPricingOverride(t *testing.T) {
	p := NewPricing(map[string][2]float64{"GPT-4o": {1, 2}})
	got := p.EstimateCost(CallSpec{Model: "gpt-4o", TokensIn: 500_000, TokensOut: 500_000})
	if !almostEqual(got, 1.5) {
		t.Fatalf("override ignored: %v", got)
	}
}

func TestReserveRefusesCallThatWouldCrossCap(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, Options{Cap: 1.00})

	var committed float64
	for i := 0; i < 3; i++ {
		res, err := l.Reserve(ctx, "call", 0.30)
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		if err := l.Commit(ctx, res, curriculum.UsageRecord{Operation: "call", Model: "gpt-4o", Cost: 0.30}); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		committed += 0.30
	}

	if !l.WouldExceedCap(0.30) {
		t.Fatalf("expected WouldExceedCap at %.2f spent", committed)
	}
	_, err := l.Reserve(ctx, "fourth", 0.30)
	var be *apperr.BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("expected BudgetExceededError, got %v", err)
	}
	if be.Operation != "fourth" || !almostEqual(be.Cap, 1.00) {
		t.Fatalf("unexpected error fields: %+v", be)
	}
	if !apperr.IsFatal(err) {
		t.Fatalf("budget errors must be fatal")
	}

	// latched: even a call that would fit is refused
	if _, err := l.Reserve(ctx, "tiny", 0.01); !errors.Is(err, apperr.ErrBudgetExceeded) {
		t.Fatalf("expected latched refusal, got %v", err)
	}

	s := l.Summary()
	if s.Calls != 3 || !almostEqual(s.TotalCost, committed) {
		t.Fatalf("summary: %+v", s)
	}
	if s.TotalCost > l.Cap() {
		t.Fatalf("recorded spend %v exceeds cap %v", s.TotalCost, l.Cap())
	}
}

func TestZeroCapDisablesEnforcement(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, Options{})
	for i := 0; i < 5; i++ {
		res, err := l.Reserve(ctx, "call", 100)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		l.Release(ctx, res)
	}
	if l.WouldExceedCap(1e9) {
		t.Fatalf("cap 0 must never exceed")
	}
}

func TestReleaseReturnsReservation(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, Options{Cap: 1})
	res, err := l.Reserve(ctx, "a", 0.9)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !l.WouldExceedCap(0.2) {
		t.Fatalf("reservation not held")
	}
	l.Release(ctx, res)
	if l.Spent() != 0 {
		t.Fatalf("spent after release: %v", l.Spent())
	}
	if _, err := l.Reserve(ctx, "b", 0.9); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestConcurrentReservationsNeverOvershoot(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, Options{Cap: 1.0})

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Reserve(ctx, "c", 0.1)
			if err != nil {
				return
			}
			_ = l.Commit(ctx, res, curriculum.UsageRecord{Operation: "c", Cost: 0.1})
			mu.Lock()
			granted++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if granted > 10 {
		t.Fatalf("granted %d reservations of 0.1 under a 1.0 cap", granted)
	}
	if l.Summary().TotalCost > 1.0+1e-9 {
		t.Fatalf("overspent: %v", l.Summary().TotalCost)
	}
}

type recordingSink struct {
	mu   sync.Mutex
	recs []curriculum.UsageRecord
}

func (s *recordingSink) Append(ctx context.Context, rec curriculum.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func TestWarningFiresOnceAtRatio(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	warnings := 0
	l := newLedger(t, Options{
		Cap:       1.0,
		WarnRatio: 0.8,
		Sink:      sink,
		OnWarning: func(ctx context.Context, spent, capUSD float64) { warnings++ },
	})
	for _, cost := range []float64{0.5, 0.31, 0.05} {
		if err := l.Record(ctx, curriculum.UsageRecord{Operation: "op", Cost: cost}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if warnings != 1 {
		t.Fatalf("expected exactly one warning, got %d", warnings)
	}
	if len(sink.recs) != 3 || sink.recs[0].ID == "" {
		t.Fatalf("sink did not receive records with ids: %+v", sink.recs)
	}
}

func TestSummarizeBreakdowns(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	recs := []curriculum.UsageRecord{
		{Operation: "spec", Provider: "openai", Model: "gpt-4o", TokensIn: 100, TokensOut: 50, Cost: 0.123456, At: at},
		{Operation: "spec", Provider: "openai", Model: "o1-mini", TokensIn: 10, TokensOut: 5, Cost: 0.01, At: at.Add(time.Minute)},
		{Operation: "summary", Provider: "dry_run", Model: "dry_run", At: at.Add(-time.Minute)},
	}
	s := Summarize(recs, 5)
	if s.Calls != 3 || s.TotalTokensIn != 110 || s.TotalTokensOut != 55 {
		t.Fatalf("totals: %+v", s)
	}
	if s.ByOperation["spec"].Requests != 2 || s.ByModel["gpt-4o"].TokensIn != 100 || s.ByProvider["dry_run"].Requests != 1 {
		t.Fatalf("breakdowns: %+v", s)
	}
	if s.Sessions[0].CostUSD != 0.1235 || s.Sessions[0].Tokens != 150 {
		t.Fatalf("session rounding: %+v", s.Sessions[0])
	}
	if !s.LastUpdated.Equal(at.Add(time.Minute)) {
		t.Fatalf("last updated: %v", s.LastUpdated)
	}
}

func TestSummarizeCapsSessions(t *testing.T) {
	recs := make([]curriculum.UsageRecord, MaxSessions+5)
	for i := range recs {
		recs[i] = curriculum.UsageRecord{Operation: "op", TokensIn: i}
	}
	s := Summarize(recs, 0)
	if len(s.Sessions) != MaxSessions || s.Calls != MaxSessions+5 {
		t.Fatalf("sessions=%d calls=%d", len(s.Sessions), s.Calls)
	}
	if s.Sessions[0].Tokens != 5 {
		t.Fatalf("expected oldest sessions dropped, first=%d", s.Sessions[0].Tokens)
	}
}

func TestCommitOverCapLatches(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, Options{Cap: 1.00})
	held, err := l.Reserve(ctx, "quiz", 0.40)
	if err != nil {
		t.Fatalf("reserve held: %v", err)
	}
	res, err := l.Reserve(ctx, "spec", 0.40)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// the provider billed more than was reserved
	if err := l.Commit(ctx, res, curriculum.UsageRecord{Operation: "spec", Model: "gpt-4o", Cost: 0.70}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !almostEqual(l.Spent(), 1.10) {
		t.Fatalf("spent: %v", l.Spent())
	}
	l.Release(ctx, held)
	if !almostEqual(l.Spent(), 0.70) {
		t.Fatalf("spent after release: %v", l.Spent())
	}
	if _, err := l.Reserve(ctx, "tiny", 0.10); !errors.Is(err, apperr.ErrBudgetExceeded) {
		t.Fatalf("reserve after overshoot: %v", err)
	}
}

func TestCommitUnderCapStaysOpen(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, Options{Cap: 1.00})
	res, err := l.Reserve(ctx, "spec", 0.50)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Commit(ctx, res, curriculum.UsageRecord{Operation: "spec", Model: "gpt-4o", Cost: 0.70}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := l.Reserve(ctx, "next", 0.25); err != nil {
		t.Fatalf("reserve under cap refused: %v", err)
	}
}
