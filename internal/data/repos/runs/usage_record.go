package runs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/curriculum-engine/internal/domain"
	"github.com/yungbote/curriculum-engine/internal/pkg/dbctx"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

// UsageRecordRepo is append-only.
type UsageRecordRepo interface {
	Append(dbc dbctx.Context, rows []*types.UsageRecordRow) error
	ListByRun(dbc dbctx.Context, runID string) ([]*types.UsageRecordRow, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*types.UsageRecordRow, error)
}

type usageRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUsageRecordRepo(db *gorm.DB, baseLog *logger.Logger) UsageRecordRepo {
	return &usageRecordRepo{db: db, log: baseLog.With("repo", "UsageRecordRepo")}
}

func (r *usageRecordRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *usageRecordRepo) Append(dbc dbctx.Context, rows []*types.UsageRecordRow) error {
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if row != nil && row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *usageRecordRepo) ListByRun(dbc dbctx.Context, runID string) ([]*types.UsageRecordRow, error) {
	var out []*types.UsageRecordRow
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *usageRecordRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.UsageRecordRow, error) {
	if limit <= 0 {
		limit = 1000
	}
	var out []*types.UsageRecordRow
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
