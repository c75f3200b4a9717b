package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/curriculum-engine/internal/observability"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/pkg/httpx"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

type Backoff string

const (
	BackoffNone        Backoff = "none"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// Decision is what happens once every attempt has been rejected.
type Decision string

const (
	DecidePlaceholder Decision = "placeholder"
	DecideFatal       Decision = "fatal"
)

type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// AttemptTimeout bounds one generator call; 0 leaves it to the caller's ctx.
	AttemptTimeout time.Duration
	Decision       Decision
	AuditRejected  bool
}

// Delay is the wait after the given failed attempt (1-based), before jitter.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}
	var d time.Duration
	switch p.Backoff {
	case BackoffNone:
		return 0
	case BackoffExponential:
		d = p.BaseDelay
		for i := 1; i < attempt && (p.MaxDelay <= 0 || d < p.MaxDelay); i++ {
			d *= 2
		}
	default:
		d = p.BaseDelay * time.Duration(attempt)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Task is one artifact to produce. Generate returns the parsed value plus the
// raw model text, which is kept for audit when the attempt is rejected.
// feedback carries the previous rejection reason into the next attempt.
type Task[T any] struct {
	Name     string
	Unit     int
	SubUnit  int
	Generate func(ctx context.Context, attempt int, feedback string) (value T, raw string, err error)
	// Accept is the domain predicate; nil accepts anything that parsed.
	Accept func(value T) error
	// Fallback supplies degraded content on exhaustion; ok=false means none exists.
	Fallback func() (value T, ok bool)
}

// ExhaustedRetries describes a task whose every attempt was rejected.
type ExhaustedRetries struct {
	Task       string   `json:"task"`
	Unit       int      `json:"week"`
	SubUnit    int      `json:"day,omitempty"`
	Attempts   int      `json:"attempts"`
	LastReason string   `json:"last_reason"`
	Decision   Decision `json:"decision"`
}

type ExhaustedRetriesError struct {
	Result ExhaustedRetries
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("%s (week %d day %d): exhausted %d attempts: %s",
		e.Result.Task, e.Result.Unit, e.Result.SubUnit, e.Result.Attempts, e.Result.LastReason)
}

func (e *ExhaustedRetriesError) Is(target error) bool { return target == apperr.ErrExhaustedRetries }

type Outcome[T any] struct {
	Value        T
	Attempts     int
	Accepted     bool
	UsedFallback bool
	// Exhausted is set whenever no attempt was accepted.
	Exhausted *ExhaustedRetries
}

// Auditor keeps the raw text of rejected attempts.
type Auditor interface {
	Rejected(ctx context.Context, unit, subUnit int, name string, attempt int, raw, reason string) error
}

type Runner struct {
	log     *logger.Logger
	auditor Auditor
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(d time.Duration) time.Duration
}

func NewRunner(log *logger.Logger, auditor Auditor, metrics *observability.Metrics) *Runner {
	return &Runner{
		log:     log.With("service", "RetryRunner"),
		auditor: auditor,
		metrics: metrics,
		sleep:   httpx.Sleep,
		jitter:  httpx.JitterSleep,
	}
}

// Run drives task until an attempt is accepted or the policy's attempts are
// spent. Budget and configuration errors abort immediately.
func Run[T any](ctx context.Context, r *Runner, task Task[T], p Policy) (Outcome[T], error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Decision == "" {
		p.Decision = DecidePlaceholder
	}
	var (
		out      Outcome[T]
		feedback string
		reason   string
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Attempts = attempt

		value, raw, err := runAttempt(ctx, task, p, attempt, feedback)
		if err == nil && task.Accept != nil {
			if aerr := task.Accept(value); aerr != nil {
				err = asRejection(task.Name, aerr)
			}
		}
		if err == nil {
			r.metrics.IncAttempt(task.Name, "accepted")
			if attempt > 1 {
				r.log.Info("Accepted after retry", "week", task.Unit, "day", task.SubUnit, "field", task.Name, "attempt", attempt)
			}
			out.Value = value
			out.Accepted = true
			return out, nil
		}
		if apperr.IsFatal(err) {
			r.metrics.IncAttempt(task.Name, "fatal")
			return out, err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		reason = err.Error()
		r.metrics.IncAttempt(task.Name, attemptOutcome(err))
		r.log.Warn("Generation attempt rejected",
			"week", task.Unit,
			"day", task.SubUnit,
			"field", task.Name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"reason", reason,
		)
		if p.AuditRejected && r.auditor != nil && raw != "" {
			if aerr := r.auditor.Rejected(ctx, task.Unit, task.SubUnit, task.Name, attempt, raw, reason); aerr != nil {
				r.log.Warn("Failed to keep rejected attempt", "field", task.Name, "attempt", attempt, "error", aerr)
			}
		}
		feedback = reason

		if attempt < p.MaxAttempts {
			if err := r.sleep(ctx, r.jitter(p.Delay(attempt))); err != nil {
				return out, err
			}
		}
	}

	ex := &ExhaustedRetries{
		Task:       task.Name,
		Unit:       task.Unit,
		SubUnit:    task.SubUnit,
		Attempts:   out.Attempts,
		LastReason: reason,
		Decision:   p.Decision,
	}
	out.Exhausted = ex
	if p.Decision == DecidePlaceholder && task.Fallback != nil {
		if v, ok := task.Fallback(); ok {
			r.log.Warn("Attempts exhausted; using fallback",
				"week", task.Unit, "day", task.SubUnit, "field", task.Name, "attempts", ex.Attempts)
			out.Value = v
			out.UsedFallback = true
			return out, nil
		}
	}
	ex.Decision = DecideFatal
	r.log.Error("Attempts exhausted", "week", task.Unit, "day", task.SubUnit, "field", task.Name, "attempts", ex.Attempts, "reason", reason)
	return out, &ExhaustedRetriesError{Result: *ex}
}

func runAttempt[T any](ctx context.Context, task Task[T], p Policy, attempt int, feedback string) (T, string, error) {
	actx := ctx
	if p.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
	}
	value, raw, err := task.Generate(actx, attempt, feedback)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = &apperr.TransientServiceError{Op: task.Name, Err: fmt.Errorf("attempt timed out after %s: %w", p.AttemptTimeout, err)}
	}
	return value, raw, err
}

func asRejection(name string, err error) error {
	if errors.Is(err, apperr.ErrAcceptanceRejected) {
		return err
	}
	return &apperr.AcceptanceRejected{Artifact: name, Reason: err.Error()}
}

func attemptOutcome(err error) string {
	switch {
	case errors.Is(err, apperr.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, apperr.ErrTransientService):
		return "transient"
	case errors.Is(err, apperr.ErrAcceptanceRejected):
		return "rejected"
	default:
		return "error"
	}
}
