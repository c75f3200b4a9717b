package budget

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/observability"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

type Options struct {
	// Cap is the run ceiling in USD. 0 disables enforcement.
	Cap       float64
	WarnRatio float64
	Pricing   Pricing
	// Counter defaults to an in-process counter.
	Counter Counter
	Sink    Sink
	Metrics *observability.Metrics
	// OnWarning fires once, the first time spend crosses WarnRatio of Cap.
	OnWarning func(ctx context.Context, spent, capUSD float64)
}

// Reservation holds an estimated cost against the cap until it is committed or released.
type Reservation struct {
	ID        string
	Operation string
	Amount    float64
}

// Ledger enforces the run budget and keeps the usage history. Safe for concurrent use.
type Ledger struct {
	log       *logger.Logger
	cap       float64
	warnRatio float64
	pricing   Pricing
	counter   Counter
	sink      Sink
	metrics   *observability.Metrics
	onWarning func(ctx context.Context, spent, capUSD float64)

	mu      sync.Mutex
	records []curriculum.UsageRecord
	spent   float64
	warned  bool
}

func NewLedger(log *logger.Logger, opts Options) (*Ledger, error) {
	if opts.Cap < 0 {
		return nil, fmt.Errorf("budget cap must be >= 0: %w", apperr.ErrInvalidArgument)
	}
	if opts.WarnRatio <= 0 || opts.WarnRatio > 1 {
		opts.WarnRatio = 0.80
	}
	if opts.Counter == nil {
		opts.Counter = NewMemoryCounter()
	}
	if opts.Pricing.prices == nil {
		opts.Pricing = NewPricing(nil)
	}
	return &Ledger{
		log:       log.With("service", "BudgetLedger"),
		cap:       opts.Cap,
		warnRatio: opts.WarnRatio,
		pricing:   opts.Pricing,
		counter:   opts.Counter,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
		onWarning: opts.OnWarning,
	}, nil
}

func (l *Ledger) Cap() float64 { return l.cap }

func (l *Ledger) EstimateCost(call CallSpec) float64 {
	return l.pricing.EstimateCost(call)
}

// WouldExceedCap reports whether spending cost now would cross the cap,
// judged against the last total this ledger observed.
func (l *Ledger) WouldExceedCap(cost float64) bool {
	if l.cap <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent+cost > l.cap
}

// Spent is the committed spend plus open reservations.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// Reserve atomically checks that cost fits under the cap and holds it.
// A refusal is a *errors.BudgetExceededError and latches the ledger.
func (l *Ledger) Reserve(ctx context.Context, op string, cost float64) (Reservation, error) {
	if cost < 0 {
		cost = 0
	}
	ok, spent, err := l.counter.Reserve(ctx, cost, l.cap)
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve budget for %s: %w", op, err)
	}
	if !ok {
		l.setSpent(spent)
		l.log.Error("Budget cap reached; refusing call",
			"operation", op,
			"requested_usd", cost,
			"spent_usd", spent,
			"cap_usd", l.cap,
		)
		return Reservation{}, &apperr.BudgetExceededError{
			Operation: op,
			Cap:       l.cap,
			Spent:     spent,
			Requested: cost,
		}
	}
	l.setSpent(spent)
	return Reservation{ID: uuid.NewString(), Operation: op, Amount: cost}, nil
}

// Commit swaps the reservation for the actual cost of rec and appends rec.
func (l *Ledger) Commit(ctx context.Context, res Reservation, rec curriculum.UsageRecord) error {
	spent, err := l.counter.Adjust(ctx, rec.Cost-res.Amount)
	if err != nil {
		return fmt.Errorf("commit usage for %s: %w", rec.Operation, err)
	}
	l.append(ctx, rec, spent)
	l.latchIfOver(ctx, rec.Operation, spent)
	return nil
}

// latchIfOver closes the ledger when an actual cost pushed spend past the cap.
// A zero reservation over the cap sets the counter's latch.
func (l *Ledger) latchIfOver(ctx context.Context, op string, spent float64) {
	if l.cap <= 0 || spent <= l.cap {
		return
	}
	if _, _, err := l.counter.Reserve(ctx, 0, l.cap); err != nil {
		l.log.Warn("Failed to latch budget", "operation", op, "error", err)
		return
	}
	l.log.Error("Actual cost pushed spend over the cap; refusing further calls",
		"operation", op,
		"spent_usd", spent,
		"cap_usd", l.cap,
	)
}

// Release returns an unused reservation.
func (l *Ledger) Release(ctx context.Context, res Reservation) {
	if res.Amount == 0 {
		return
	}
	spent, err := l.counter.Adjust(ctx, -res.Amount)
	if err != nil {
		l.log.Warn("Failed to release budget reservation", "operation", res.Operation, "error", err)
		return
	}
	l.setSpent(spent)
}

// Record appends usage that was never reserved. It never refuses.
func (l *Ledger) Record(ctx context.Context, rec curriculum.UsageRecord) error {
	spent, err := l.counter.Adjust(ctx, rec.Cost)
	if err != nil {
		return fmt.Errorf("record usage for %s: %w", rec.Operation, err)
	}
	l.append(ctx, rec, spent)
	return nil
}

// Records returns a copy of the usage history in append order.
func (l *Ledger) Records() []curriculum.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]curriculum.UsageRecord(nil), l.records...)
}

func (l *Ledger) Summary() Summary {
	return Summarize(l.Records(), l.cap)
}

func (l *Ledger) setSpent(spent float64) {
	l.mu.Lock()
	l.spent = spent
	l.mu.Unlock()
	l.metrics.AddCost("", 0, spent)
}

func (l *Ledger) append(ctx context.Context, rec curriculum.UsageRecord, spent float64) {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.spent = spent
	crossed := false
	if l.cap > 0 && !l.warned && spent >= l.warnRatio*l.cap {
		l.warned = true
		crossed = true
	}
	l.mu.Unlock()

	l.metrics.AddCost(rec.Model, rec.Cost, spent)

	if l.sink != nil {
		if err := l.sink.Append(ctx, rec); err != nil {
			l.log.Warn("Failed to persist usage record", "operation", rec.Operation, "error", err)
		}
	}
	if crossed {
		l.log.Warn("Budget warning threshold crossed",
			"spent_usd", spent,
			"cap_usd", l.cap,
			"ratio", l.warnRatio,
		)
		if l.onWarning != nil {
			l.onWarning(ctx, spent, l.cap)
		}
	}
}
