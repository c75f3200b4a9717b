package runs

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/curriculum-engine/internal/domain"
	"github.com/yungbote/curriculum-engine/internal/pkg/dbctx"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

type ValidationReportRepo interface {
	Create(dbc dbctx.Context, row *types.ValidationReportRow) error
	GetLatestByUnit(dbc dbctx.Context, unit int) (*types.ValidationReportRow, error)
}

type validationReportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewValidationReportRepo(db *gorm.DB, baseLog *logger.Logger) ValidationReportRepo {
	return &validationReportRepo{db: db, log: baseLog.With("repo", "ValidationReportRepo")}
}

func (r *validationReportRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *validationReportRepo) Create(dbc dbctx.Context, row *types.ValidationReportRow) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *validationReportRepo) GetLatestByUnit(dbc dbctx.Context, unit int) (*types.ValidationReportRow, error) {
	var row types.ValidationReportRow
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("unit = ?", unit).
		Order("created_at DESC").
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
