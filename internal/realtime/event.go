package realtime

import "time"

type ProgressEventType string

const (
	EventUnitStarted      ProgressEventType = "unit_started"
	EventStepCompleted    ProgressEventType = "step_completed"
	EventArtifactAccepted ProgressEventType = "artifact_accepted"
	EventArtifactFallback ProgressEventType = "artifact_fallback"
	EventBudgetWarning    ProgressEventType = "budget_warning"
	EventUnitBlocked      ProgressEventType = "unit_blocked"
	EventUnitFailed       ProgressEventType = "unit_failed"
	EventUnitCompleted    ProgressEventType = "unit_completed"
)

// ProgressEvent is published while a run advances through units, steps and artifacts.
type ProgressEvent struct {
	RunID    string            `json:"run_id"`
	Event    ProgressEventType `json:"event"`
	Unit     int               `json:"week"`
	SubUnit  int               `json:"day,omitempty"`
	Step     string            `json:"step,omitempty"`
	Artifact string            `json:"artifact,omitempty"`
	Attempt  int               `json:"attempt,omitempty"`
	Message  string            `json:"message,omitempty"`
	Data     map[string]any    `json:"data,omitempty"`
	At       time.Time         `json:"at"`
}
