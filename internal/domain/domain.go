package domain

import (
	"github.com/yungbote/curriculum-engine/internal/domain/runs"
)

type GenerationRun = runs.GenerationRun
type UsageRecordRow = runs.UsageRecordRow
type ValidationReportRow = runs.ValidationReportRow

const (
	RunStatusRunning   = runs.RunStatusRunning
	RunStatusSucceeded = runs.RunStatusSucceeded
	RunStatusFailed    = runs.RunStatusFailed
	RunStatusBlocked   = runs.RunStatusBlocked
)

// Models lists every persisted row type for migrations.
func Models() []any {
	return []any{
		&GenerationRun{},
		&UsageRecordRow{},
		&ValidationReportRow{},
	}
}
