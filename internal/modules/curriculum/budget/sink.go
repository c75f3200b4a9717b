package budget

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/curriculum-engine/internal/domain"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	repos "github.com/yungbote/curriculum-engine/internal/data/repos/runs"
	"github.com/yungbote/curriculum-engine/internal/pkg/dbctx"
)

// Sink receives every usage record the ledger appends.
type Sink interface {
	Append(ctx context.Context, rec curriculum.UsageRecord) error
}

type repoSink struct {
	repo repos.UsageRecordRepo
}

// NewRepoSink persists usage through the gorm usage repo.
func NewRepoSink(repo repos.UsageRecordRepo) Sink {
	return &repoSink{repo: repo}
}

func (s *repoSink) Append(ctx context.Context, rec curriculum.UsageRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}
	row := &types.UsageRecordRow{
		ID:        id,
		RunID:     rec.RunID,
		Operation: rec.Operation,
		Provider:  rec.Provider,
		Model:     rec.Model,
		TokensIn:  rec.TokensIn,
		TokensOut: rec.TokensOut,
		CostUSD:   rec.Cost,
		CreatedAt: rec.At,
	}
	return s.repo.Append(dbctx.Context{Ctx: ctx}, []*types.UsageRecordRow{row})
}

// RecordsFromRows converts stored rows back into usage records, preserving order.
func RecordsFromRows(rows []*types.UsageRecordRow) []curriculum.UsageRecord {
	out := make([]curriculum.UsageRecord, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		out = append(out, curriculum.UsageRecord{
			ID:        r.ID.String(),
			RunID:     r.RunID,
			Operation: r.Operation,
			Provider:  r.Provider,
			Model:     r.Model,
			TokensIn:  r.TokensIn,
			TokensOut: r.TokensOut,
			Cost:      r.CostUSD,
			At:        r.CreatedAt,
		})
	}
	return out
}
