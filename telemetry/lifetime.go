package telemetry

import "github.com/pthm-cable/botlife/genetics"

// LifetimeStats tracks per-bot statistics over its lifetime.
type LifetimeStats struct {
	BornTick  uint64          `json:"born_tick"`
	Age       int             `json:"age"` // Ticks lived, updated at death
	LineageID uint64          `json:"lineage_id"`
	Strategy  string          `json:"strategy"`
	Genome    genetics.Genome `json:"-"`

	// Combat
	Attacks int `json:"attacks"`
	Kills   int `json:"kills"`

	// Reproduction
	Children int `json:"children"`

	// Energy
	PeakEnergy float64 `json:"peak_energy"`
	Foraged    float64 `json:"foraged"` // cumulative energy gained from eating
	Signals    int     `json:"signals"`
}

// LifetimeTracker manages per-bot lifetime statistics.
type LifetimeTracker struct {
	stats map[uint64]*LifetimeStats
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{
		stats: make(map[uint64]*LifetimeStats),
	}
}

// Register creates lifetime stats for a new bot.
func (lt *LifetimeTracker) Register(id, bornTick, lineage uint64, strategy string, genome genetics.Genome) {
	lt.stats[id] = &LifetimeStats{
		BornTick:  bornTick,
		LineageID: lineage,
		Strategy:  strategy,
		Genome:    genome,
	}
}

// Get returns the lifetime stats for a bot, or nil if not found.
func (lt *LifetimeTracker) Get(id uint64) *LifetimeStats {
	return lt.stats[id]
}

// Remove removes a bot's stats and returns them.
func (lt *LifetimeTracker) Remove(id uint64) *LifetimeStats {
	stats := lt.stats[id]
	delete(lt.stats, id)
	return stats
}

// RecordAttack increments the attack count.
func (lt *LifetimeTracker) RecordAttack(id uint64) {
	if s := lt.stats[id]; s != nil {
		s.Attacks++
	}
}

// RecordKill increments kill count.
func (lt *LifetimeTracker) RecordKill(id uint64) {
	if s := lt.stats[id]; s != nil {
		s.Kills++
	}
}

// RecordChild increments children count.
func (lt *LifetimeTracker) RecordChild(parentID uint64) {
	if s := lt.stats[parentID]; s != nil {
		s.Children++
	}
}

// RecordForage adds eating gain to the cumulative total.
func (lt *LifetimeTracker) RecordForage(id uint64, amount float64) {
	if s := lt.stats[id]; s != nil {
		s.Foraged += amount
	}
}

// RecordSignal increments the emitted signal count.
func (lt *LifetimeTracker) RecordSignal(id uint64) {
	if s := lt.stats[id]; s != nil {
		s.Signals++
	}
}

// UpdateEnergy tracks peak energy.
func (lt *LifetimeTracker) UpdateEnergy(id uint64, energy float64) {
	if s := lt.stats[id]; s != nil && energy > s.PeakEnergy {
		s.PeakEnergy = energy
	}
}

// Count returns the number of tracked bots.
func (lt *LifetimeTracker) Count() int {
	return len(lt.stats)
}

// ActiveLineageCount returns the number of distinct lineages tracked.
func (lt *LifetimeTracker) ActiveLineageCount() int {
	seen := make(map[uint64]struct{})
	for _, stats := range lt.stats {
		seen[stats.LineageID] = struct{}{}
	}
	return len(seen)
}
