package runs

import (
	"time"

	"github.com/google/uuid"
)

type UsageRecordRow struct {
	ID        uuid.UUID `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"column:run_id;type:text;not null;index" json:"run_id"`
	Operation string    `gorm:"column:operation;type:text;not null;index" json:"operation"`
	Provider  string    `gorm:"column:provider;type:text;not null" json:"provider"`
	Model     string    `gorm:"column:model;type:text;not null;index" json:"model"`
	TokensIn  int       `gorm:"column:tokens_in;not null" json:"tokens_in"`
	TokensOut int       `gorm:"column:tokens_out;not null" json:"tokens_out"`
	CostUSD   float64   `gorm:"column:cost_usd;not null" json:"cost_usd"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (UsageRecordRow) TableName() string { return "curriculum_usage_record" }
