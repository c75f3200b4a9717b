package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrTransientService     = errors.New("transient service error")
	ErrServiceConfiguration = errors.New("service configuration error")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrAcceptanceRejected   = errors.New("acceptance rejected")
	ErrMissingPrerequisite  = errors.New("missing prerequisite")
	ErrSpecGenerationFailed = errors.New("spec generation failed")
	ErrBudgetExceeded       = errors.New("budget exceeded")
	ErrExhaustedRetries     = errors.New("exhausted retries")
)

// TransientServiceError is a retryable failure talking to the generation service.
type TransientServiceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientServiceError) Error() string {
	if e == nil {
		return ErrTransientService.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient service error (op=%s status=%d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient service error (op=%s): %v", e.Op, e.Err)
}

func (e *TransientServiceError) Unwrap() error { return e.Err }

func (e *TransientServiceError) Is(target error) bool { return target == ErrTransientService }

// ServiceConfigurationError is fatal: credentials missing, model unknown, request rejected as invalid.
type ServiceConfigurationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ServiceConfigurationError) Error() string {
	if e == nil {
		return ErrServiceConfiguration.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("service configuration error (op=%s): %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("service configuration error (op=%s): %s", e.Op, e.Reason)
}

func (e *ServiceConfigurationError) Unwrap() error { return e.Err }

func (e *ServiceConfigurationError) Is(target error) bool { return target == ErrServiceConfiguration }

// MalformedResponse means the raw model output could not be parsed into the requested shape.
type MalformedResponse struct {
	Artifact string
	Err      error
}

func (e *MalformedResponse) Error() string {
	return fmt.Sprintf("malformed response for %s: %v", e.Artifact, e.Err)
}

func (e *MalformedResponse) Unwrap() error { return e.Err }

func (e *MalformedResponse) Is(target error) bool { return target == ErrMalformedResponse }

// AcceptanceRejected means the content parsed but a domain predicate refused it.
type AcceptanceRejected struct {
	Artifact string
	Reason   string
}

func (e *AcceptanceRejected) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Artifact, e.Reason)
}

func (e *AcceptanceRejected) Is(target error) bool { return target == ErrAcceptanceRejected }

// Reject builds an AcceptanceRejected with a formatted reason.
func Reject(artifact, format string, args ...any) error {
	return &AcceptanceRejected{Artifact: artifact, Reason: fmt.Sprintf(format, args...)}
}

type MissingPrerequisiteError struct {
	Unit    int
	Missing []int
}

func (e *MissingPrerequisiteError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%d", m))
	}
	return fmt.Sprintf(
		"cannot generate unit %d: prerequisite units [%s] are missing or failed the quality gate; generate unit %d first",
		e.Unit, strings.Join(parts, ", "), e.Smallest(),
	)
}

// Smallest returns the lowest missing ordinal, or 0 when nothing is missing.
func (e *MissingPrerequisiteError) Smallest() int {
	if e == nil || len(e.Missing) == 0 {
		return 0
	}
	m := append([]int(nil), e.Missing...)
	sort.Ints(m)
	return m[0]
}

func (e *MissingPrerequisiteError) Is(target error) bool { return target == ErrMissingPrerequisite }

type SpecGenerationFailedError struct {
	Unit     int
	Artifact string
	Attempts int
	Reason   string
}

func (e *SpecGenerationFailedError) Error() string {
	return fmt.Sprintf("unit %d: %s generation failed after %d attempts: %s", e.Unit, e.Artifact, e.Attempts, e.Reason)
}

func (e *SpecGenerationFailedError) Is(target error) bool { return target == ErrSpecGenerationFailed }

type BudgetExceededError struct {
	Operation string
	Cap       float64
	Spent     float64
	Requested float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf(
		"budget exceeded: %s would cost $%.4f with $%.4f of $%.2f already spent",
		e.Operation, e.Requested, e.Spent, e.Cap,
	)
}

func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// IsFatal reports errors that must never be retried inside an attempt loop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBudgetExceeded) || errors.Is(err, ErrServiceConfiguration)
}
