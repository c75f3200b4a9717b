package retry

import (
	"context"
	"time"

	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
)

type rejectedAttempt struct {
	Artifact   string    `json:"artifact"`
	Attempt    int       `json:"attempt"`
	Reason     string    `json:"reason"`
	Raw        string    `json:"raw"`
	RejectedAt time.Time `json:"rejected_at"`
}

type storeAuditor struct {
	store artifacts.Store
	now   func() time.Time
}

// NewStoreAuditor keeps rejected attempts under the unit's _rejected/ prefix.
func NewStoreAuditor(store artifacts.Store) Auditor {
	return &storeAuditor{store: store, now: time.Now}
}

func (a *storeAuditor) Rejected(ctx context.Context, unit, subUnit int, name string, attempt int, raw, reason string) error {
	key := artifacts.RejectedKey(curriculum.SubUnitKey(unit, subUnit, name), attempt)
	return artifacts.PutJSON(ctx, a.store, key, rejectedAttempt{
		Artifact:   name,
		Attempt:    attempt,
		Reason:     reason,
		Raw:        raw,
		RejectedAt: a.now().UTC(),
	})
}
