// Package telemetry provides tick summaries, windowed population statistics,
// phase timing, lifetime tracking and CSV output.
package telemetry

import "log/slog"

// TickSummary describes one completed tick.
type TickSummary struct {
	Tick       uint64  `csv:"tick" json:"tick"`
	Epoch      uint64  `csv:"epoch" json:"epoch"`
	EpochRan   bool    `csv:"epoch_ran" json:"epoch_ran"`
	Alive      int     `csv:"alive" json:"alive"`
	Died       int     `csv:"died" json:"died"`       // Marked dead this tick
	Born       int     `csv:"born" json:"born"`       // Created by the epoch or reseeding
	Removed    int     `csv:"removed" json:"removed"` // Dead bots removed by the epoch
	Culled     int     `csv:"culled" json:"culled"`
	MeanEnergy float64 `csv:"mean_energy" json:"mean_energy"`
	Signals    int     `csv:"signals" json:"signals"` // Active after the tick
	Emitted    int     `csv:"emitted" json:"emitted"`
	Resources  int     `csv:"resources" json:"resources"`
	Eats       int     `csv:"eats" json:"eats"`
	Attacks    int     `csv:"attacks" json:"attacks"`
	NoOps      int     `csv:"noops" json:"noops"`
}

// LogValue implements slog.LogValuer.
func (s TickSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("tick", s.Tick),
		slog.Uint64("epoch", s.Epoch),
		slog.Int("alive", s.Alive),
		slog.Int("died", s.Died),
		slog.Int("born", s.Born),
		slog.Float64("mean_energy", s.MeanEnergy),
		slog.Int("signals", s.Signals),
		slog.Int("resources", s.Resources),
		slog.Int("noops", s.NoOps),
	)
}
