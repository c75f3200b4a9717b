package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ValidationReportRow keeps every gate evaluation so verdict history is queryable.
type ValidationReportRow struct {
	ID       uuid.UUID      `gorm:"primaryKey" json:"id"`
	RunID    string         `gorm:"column:run_id;type:text;index" json:"run_id"`
	Unit     int            `gorm:"column:unit;not null;index" json:"week"`
	Verdict  string         `gorm:"column:verdict;type:text;not null;index" json:"verdict"`
	Errors   int            `gorm:"column:errors;not null" json:"errors"`
	Warnings int            `gorm:"column:warnings;not null" json:"warnings"`
	Report   datatypes.JSON `gorm:"column:report" json:"report"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ValidationReportRow) TableName() string { return "curriculum_validation_report" }
