package telemetry

import "github.com/pthm-cable/botlife/config"

// Population is the end-of-window sample the engine hands to Flush.
type Population struct {
	Energies    []float64
	Generations []int
	Strategies  map[string]int // Bots per strategy name
	Lineages    int            // Distinct lineage ids among live bots
	Resources   int
}

// Collector accumulates tick summaries within windows and produces
// WindowStats.
type Collector struct {
	windowTicks     uint64
	windowStartTick uint64

	// Event counters for current window
	births  int
	deaths  int
	culled  int
	eats    int
	attacks int
	emitted int
	noops   int
}

// NewCollector creates a collector flushing every windowTicks ticks.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: uint64(windowTicks)}
}

// Record adds a tick's events to the current window.
func (c *Collector) Record(s TickSummary) {
	c.births += s.Born
	c.deaths += s.Died
	c.culled += s.Culled
	c.eats += s.Eats
	c.attacks += s.Attacks
	c.emitted += s.Emitted
	c.noops += s.NoOps
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick uint64, pop Population) WindowStats {
	mean, std, p10, p50, p90 := ComputeEnergyStats(pop.Energies)

	var maxGen, sumGen int
	for _, g := range pop.Generations {
		maxGen = max(maxGen, g)
		sumGen += g
	}
	var meanGen float64
	if len(pop.Generations) > 0 {
		meanGen = float64(sumGen) / float64(len(pop.Generations))
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,

		Alive:     len(pop.Energies),
		Resources: pop.Resources,
		Lineages:  pop.Lineages,

		Births:  c.births,
		Deaths:  c.deaths,
		Culled:  c.culled,
		Eats:    c.eats,
		Attacks: c.attacks,
		Emitted: c.emitted,
		NoOps:   c.noops,

		EnergyMean: mean,
		EnergyStd:  std,
		EnergyP10:  p10,
		EnergyP50:  p50,
		EnergyP90:  p90,

		MaxGeneration:  maxGen,
		MeanGeneration: meanGen,

		BehaviorTree: pop.Strategies[config.StrategyBehaviorTree],
		Utility:      pop.Strategies[config.StrategyUtility],
		GOAP:         pop.Strategies[config.StrategyGOAP],
		QLearning:    pop.Strategies[config.StrategyQLearning],
		Chain:        pop.Strategies[config.ModeChain],
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.births = 0
	c.deaths = 0
	c.culled = 0
	c.eats = 0
	c.attacks = 0
	c.emitted = 0
	c.noops = 0

	return stats
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() uint64 {
	return c.windowTicks
}
