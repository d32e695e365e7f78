package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/botlife/config"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick uint64 `csv:"-"`
	WindowEndTick   uint64 `csv:"window_end"`

	// Population at window end
	Alive     int `csv:"alive"`
	Resources int `csv:"resources"`
	Lineages  int `csv:"lineages"`

	// Events during window
	Births  int `csv:"births"`
	Deaths  int `csv:"deaths"`
	Culled  int `csv:"culled"`
	Eats    int `csv:"eats"`
	Attacks int `csv:"attacks"`
	Emitted int `csv:"emitted"`
	NoOps   int `csv:"noops"`

	// Energy distribution (sampled at window end)
	EnergyMean float64 `csv:"energy_mean"`
	EnergyStd  float64 `csv:"energy_std"`
	EnergyP10  float64 `csv:"energy_p10"`
	EnergyP50  float64 `csv:"energy_p50"`
	EnergyP90  float64 `csv:"energy_p90"`

	// Generations
	MaxGeneration  int     `csv:"max_generation"`
	MeanGeneration float64 `csv:"mean_generation"`

	// Strategy mix
	BehaviorTree int `csv:"strategy_behavior_tree"`
	Utility      int `csv:"strategy_utility"`
	GOAP         int `csv:"strategy_goap"`
	QLearning    int `csv:"strategy_qlearning"`
	Chain        int `csv:"strategy_chain"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeEnergyStats calculates mean, sample standard deviation and
// percentiles from energy values.
func ComputeEnergyStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}
	if n == 1 {
		mean = values[0]
	} else {
		mean, std = stat.MeanStdDev(values, nil)
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// Share returns the fraction of alive bots running strategy name.
func (s WindowStats) Share(name string) float64 {
	if s.Alive == 0 {
		return 0
	}
	return float64(s.StrategyCount(name)) / float64(s.Alive)
}

// StrategyCount returns the count for a strategy name.
func (s WindowStats) StrategyCount(name string) int {
	switch name {
	case config.StrategyBehaviorTree:
		return s.BehaviorTree
	case config.StrategyUtility:
		return s.Utility
	case config.StrategyGOAP:
		return s.GOAP
	case config.StrategyQLearning:
		return s.QLearning
	case config.ModeChain:
		return s.Chain
	}
	return 0
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Int("alive", s.Alive),
		slog.Int("births", s.Births),
		slog.Int("deaths", s.Deaths),
		slog.Float64("energy_mean", s.EnergyMean),
		slog.Int("max_generation", s.MaxGeneration),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"alive", s.Alive,
		"resources", s.Resources,
		"lineages", s.Lineages,
		"births", s.Births,
		"deaths", s.Deaths,
		"culled", s.Culled,
		"eats", s.Eats,
		"attacks", s.Attacks,
		"emitted", s.Emitted,
		"noops", s.NoOps,
		"energy_mean", s.EnergyMean,
		"energy_std", s.EnergyStd,
		"energy_p10", s.EnergyP10,
		"energy_p50", s.EnergyP50,
		"energy_p90", s.EnergyP90,
		"max_generation", s.MaxGeneration,
		"mean_generation", s.MeanGeneration,
		"behavior_tree", s.BehaviorTree,
		"utility", s.Utility,
		"goap", s.GOAP,
		"qlearning", s.QLearning,
		"chain", s.Chain,
	)
}
