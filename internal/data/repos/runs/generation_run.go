package runs

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/curriculum-engine/internal/domain"
	"github.com/yungbote/curriculum-engine/internal/pkg/dbctx"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

type GenerationRunRepo interface {
	Create(dbc dbctx.Context, rows []*types.GenerationRun) ([]*types.GenerationRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	GetLatestByUnit(dbc dbctx.Context, unit int) (*types.GenerationRun, error)
	ListByRun(dbc dbctx.Context, runID string) ([]*types.GenerationRun, error)
}

type generationRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRunRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRunRepo {
	return &generationRunRepo{db: db, log: baseLog.With("repo", "GenerationRunRepo")}
}

func (r *generationRunRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *generationRunRepo) Create(dbc dbctx.Context, rows []*types.GenerationRun) ([]*types.GenerationRun, error) {
	if len(rows) == 0 {
		return []*types.GenerationRun{}, nil
	}
	for _, row := range rows {
		if row != nil && row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *generationRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.GenerationRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *generationRunRepo) GetLatestByUnit(dbc dbctx.Context, unit int) (*types.GenerationRun, error) {
	var row types.GenerationRun
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("unit = ?", unit).
		Order("started_at DESC").
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *generationRunRepo) ListByRun(dbc dbctx.Context, runID string) ([]*types.GenerationRun, error) {
	var out []*types.GenerationRun
	if runID == "" {
		return out, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("run_id = ?", runID).
		Order("unit ASC, started_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
