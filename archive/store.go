package archive

import (
	"context"

	"gorm.io/gorm"

	"github.com/pthm-cable/botlife/telemetry"
)

// Store reads archived runs.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return Store{db: db}
}

func (s Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return ListRuns(ctx, s.db, limit)
}

func (s Store) GetRun(ctx context.Context, id uint64) (Run, error) {
	return GetRun(ctx, s.db, id)
}

func (s Store) Ticks(ctx context.Context, runID, from, to uint64) ([]telemetry.TickSummary, error) {
	if _, err := GetRun(ctx, s.db, runID); err != nil {
		return nil, err
	}
	return Ticks(ctx, s.db, runID, from, to)
}
