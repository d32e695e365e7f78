package archive

import (
	"encoding/json"
	"time"

	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/telemetry"
)

// Run is one archived simulation run.
type Run struct {
	ID         uint64 `gorm:"primaryKey"`
	Seed       int64
	Config     string // Effective YAML
	StartedAt  time.Time
	FinishedAt *time.Time
	FinalTick  uint64
	Epochs     uint64
	Births     uint64
	Deaths     uint64
	Halted     string
	HallOfFame json.RawMessage `gorm:"type:jsonb"`
}

func (Run) TableName() string { return "runs" }

// TickRecord is one tick summary of a run.
type TickRecord struct {
	RunID      uint64 `gorm:"primaryKey"`
	Tick       uint64 `gorm:"primaryKey"`
	Epoch      uint64
	EpochRan   bool
	Alive      int
	Died       int
	Born       int
	Removed    int
	Culled     int
	MeanEnergy float64
	Signals    int
	Emitted    int
	Resources  int
	Eats       int
	Attacks    int
	NoOps      int
}

func (TickRecord) TableName() string { return "tick_records" }

// WindowRecord is one telemetry window of a run.
type WindowRecord struct {
	RunID          uint64 `gorm:"primaryKey"`
	WindowEnd      uint64 `gorm:"primaryKey"`
	Alive          int
	Resources      int
	Lineages       int
	Births         int
	Deaths         int
	Culled         int
	Eats           int
	Attacks        int
	Emitted        int
	NoOps          int
	EnergyMean     float64
	EnergyStd      float64
	EnergyP50      float64 `gorm:"column:energy_p50"`
	MaxGeneration  int
	MeanGeneration float64
	StrategyMix    []byte `gorm:"type:jsonb"`
}

func (WindowRecord) TableName() string { return "window_records" }

func tickRow(runID uint64, s telemetry.TickSummary) TickRecord {
	return TickRecord{
		RunID:      runID,
		Tick:       s.Tick,
		Epoch:      s.Epoch,
		EpochRan:   s.EpochRan,
		Alive:      s.Alive,
		Died:       s.Died,
		Born:       s.Born,
		Removed:    s.Removed,
		Culled:     s.Culled,
		MeanEnergy: s.MeanEnergy,
		Signals:    s.Signals,
		Emitted:    s.Emitted,
		Resources:  s.Resources,
		Eats:       s.Eats,
		Attacks:    s.Attacks,
		NoOps:      s.NoOps,
	}
}

// Summary converts the row back into a tick summary.
func (r TickRecord) Summary() telemetry.TickSummary {
	return telemetry.TickSummary{
		Tick:       r.Tick,
		Epoch:      r.Epoch,
		EpochRan:   r.EpochRan,
		Alive:      r.Alive,
		Died:       r.Died,
		Born:       r.Born,
		Removed:    r.Removed,
		Culled:     r.Culled,
		MeanEnergy: r.MeanEnergy,
		Signals:    r.Signals,
		Emitted:    r.Emitted,
		Resources:  r.Resources,
		Eats:       r.Eats,
		Attacks:    r.Attacks,
		NoOps:      r.NoOps,
	}
}

func windowRow(runID uint64, s telemetry.WindowStats) WindowRecord {
	mix := make(map[string]int, len(config.StrategyNames)+1)
	for _, name := range append([]string{config.ModeChain}, config.StrategyNames...) {
		if n := s.StrategyCount(name); n > 0 {
			mix[name] = n
		}
	}
	b, _ := json.Marshal(mix)
	return WindowRecord{
		RunID:          runID,
		WindowEnd:      s.WindowEndTick,
		Alive:          s.Alive,
		Resources:      s.Resources,
		Lineages:       s.Lineages,
		Births:         s.Births,
		Deaths:         s.Deaths,
		Culled:         s.Culled,
		Eats:           s.Eats,
		Attacks:        s.Attacks,
		Emitted:        s.Emitted,
		NoOps:          s.NoOps,
		EnergyMean:     s.EnergyMean,
		EnergyStd:      s.EnergyStd,
		EnergyP50:      s.EnergyP50,
		MaxGeneration:  s.MaxGeneration,
		MeanGeneration: s.MeanGeneration,
		StrategyMix:    b,
	}
}

// Mix decodes the strategy mix.
func (r WindowRecord) Mix() map[string]int {
	mix := map[string]int{}
	if len(r.StrategyMix) > 0 {
		_ = json.Unmarshal(r.StrategyMix, &mix)
	}
	return mix
}
