package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GenerationRun is one unit's pass through the pipeline within a run.
// It is an audit record; the artifact tree stays the source of truth.
type GenerationRun struct {
	ID    uuid.UUID `gorm:"primaryKey" json:"id"`
	RunID string    `gorm:"column:run_id;type:text;not null;index" json:"run_id"`
	Unit  int       `gorm:"column:unit;not null;index" json:"week"`

	Status         string `gorm:"column:status;type:text;not null;index" json:"status"`
	Verdict        string `gorm:"column:verdict;type:text" json:"verdict,omitempty"`
	FailedStep     string `gorm:"column:failed_step;type:text" json:"failed_step,omitempty"`
	FailedArtifact string `gorm:"column:failed_artifact;type:text" json:"failed_artifact,omitempty"`
	Error          string `gorm:"column:error;type:text" json:"error,omitempty"`

	Calls     int     `gorm:"column:calls;not null" json:"calls"`
	TokensIn  int     `gorm:"column:tokens_in;not null" json:"tokens_in"`
	TokensOut int     `gorm:"column:tokens_out;not null" json:"tokens_out"`
	CostUSD   float64 `gorm:"column:cost_usd;not null" json:"cost_usd"`

	Fallbacks datatypes.JSON `gorm:"column:fallbacks" json:"fallbacks,omitempty"`

	StartedAt  time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (GenerationRun) TableName() string { return "curriculum_generation_run" }

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusBlocked   = "blocked"
)
