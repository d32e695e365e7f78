package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/telemetry"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

const defaultBatchSize = 500

// Recorder archives one run. Ticks are buffered and written in batches.
// It is not safe for concurrent use.
type Recorder struct {
	db        *gorm.DB
	run       Run
	batch     []TickRecord
	batchSize int
}

// Start creates the run row and returns a recorder for it.
func Start(ctx context.Context, db *gorm.DB, seed int64, cfg *config.Config) (*Recorder, error) {
	yml, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	r := &Recorder{
		db:        db,
		run:       Run{Seed: seed, Config: string(yml), StartedAt: time.Now().UTC()},
		batchSize: defaultBatchSize,
	}
	if err := db.WithContext(ctx).Create(&r.run).Error; err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return r, nil
}

// RunID returns the archived run id.
func (r *Recorder) RunID() uint64 { return r.run.ID }

// RecordTick buffers a tick summary and flushes a full batch.
func (r *Recorder) RecordTick(ctx context.Context, s telemetry.TickSummary) error {
	r.batch = append(r.batch, tickRow(r.run.ID, s))
	r.run.FinalTick = s.Tick
	r.run.Epochs = s.Epoch
	r.run.Births += uint64(s.Born)
	r.run.Deaths += uint64(s.Died)
	if len(r.batch) >= r.batchSize {
		return r.Flush(ctx)
	}
	return nil
}

// RecordWindow writes a telemetry window.
func (r *Recorder) RecordWindow(ctx context.Context, s telemetry.WindowStats) error {
	row := windowRow(r.run.ID, s)
	if err := dbFromCtx(ctx, r.db).Create(&row).Error; err != nil {
		return fmt.Errorf("insert window %d: %w", s.WindowEndTick, err)
	}
	return nil
}

// Flush writes buffered ticks.
func (r *Recorder) Flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := dbFromCtx(ctx, r.db).CreateInBatches(&r.batch, r.batchSize).Error; err != nil {
		return fmt.Errorf("insert ticks: %w", err)
	}
	r.batch = r.batch[:0]
	return nil
}

// Finish flushes remaining ticks and closes the run row in one
// transaction. halted is the engine's halt error, if any.
func (r *Recorder) Finish(ctx context.Context, halted error, hall *telemetry.HallOfFame) error {
	now := time.Now().UTC()
	r.run.FinishedAt = &now
	if halted != nil {
		r.run.Halted = halted.Error()
	}
	if hall != nil {
		b, err := json.Marshal(hall)
		if err != nil {
			return fmt.Errorf("marshal hall of fame: %w", err)
		}
		r.run.HallOfFame = b
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := withTx(ctx, tx)
		if err := r.Flush(txCtx); err != nil {
			return err
		}
		if err := dbFromCtx(txCtx, r.db).Save(&r.run).Error; err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		return nil
	})
}

// GetRun loads a run by id.
func GetRun(ctx context.Context, db *gorm.DB, id uint64) (Run, error) {
	var run Run
	err := db.WithContext(ctx).First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]Run, error) {
	var runs []Run
	q := db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Ticks returns the archived summaries of a run in [from, to], ascending.
// to == 0 means no upper bound.
func Ticks(ctx context.Context, db *gorm.DB, runID, from, to uint64) ([]telemetry.TickSummary, error) {
	var rows []TickRecord
	q := db.WithContext(ctx).Where("run_id = ? AND tick >= ?", runID, from)
	if to > 0 {
		q = q.Where("tick <= ?", to)
	}
	if err := q.Order("tick").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]telemetry.TickSummary, len(rows))
	for i, row := range rows {
		out[i] = row.Summary()
	}
	return out, nil
}

// Windows returns the archived telemetry windows of a run, ascending.
func Windows(ctx context.Context, db *gorm.DB, runID uint64) ([]WindowRecord, error) {
	var rows []WindowRecord
	if err := db.WithContext(ctx).Where("run_id = ?", runID).Order("window_end").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
