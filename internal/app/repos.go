package app

import (
	"gorm.io/gorm"

	repos "github.com/yungbote/curriculum-engine/internal/data/repos/runs"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

// Repos is empty when no run-record database is configured.
type Repos struct {
	GenerationRuns    repos.GenerationRunRepo
	UsageRecords      repos.UsageRecordRepo
	ValidationReports repos.ValidationReportRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	if db == nil {
		return Repos{}
	}
	log.Info("Wiring repos...")
	return Repos{
		GenerationRuns:    repos.NewGenerationRunRepo(db, log),
		UsageRecords:      repos.NewUsageRecordRepo(db, log),
		ValidationReports: repos.NewValidationReportRepo(db, log),
	}
}
