package telemetry

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sort"

	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
)

// HallEntry records a successful bot's genome and fitness.
type HallEntry struct {
	BotID     uint64
	Fitness   float64
	Children  int
	Kills     int
	Survival  int // Ticks lived
	Foraged   float64
	LineageID uint64
	Strategy  string
	Genome    genetics.Genome
}

// HallOfFame stores proven genomes for reseeding when populations crash.
// Halls are keyed by strategy name.
type HallOfFame struct {
	cfg   config.HallOfFameConfig
	halls map[string][]HallEntry
	rng   *rand.Rand
}

// NewHallOfFame creates an empty hall of fame.
func NewHallOfFame(cfg config.HallOfFameConfig, rng *rand.Rand) *HallOfFame {
	return &HallOfFame{
		cfg:   cfg,
		halls: make(map[string][]HallEntry),
		rng:   rng,
	}
}

// Consider evaluates a dead bot for hall of fame entry.
// Returns true if the bot was added to the hall.
func (hof *HallOfFame) Consider(id uint64, stats *LifetimeStats) bool {
	if stats == nil || !hof.meetsEntryCriteria(stats) {
		return false
	}

	entry := HallEntry{
		BotID:     id,
		Fitness:   hof.calculateFitness(stats),
		Children:  stats.Children,
		Kills:     stats.Kills,
		Survival:  stats.Age,
		Foraged:   stats.Foraged,
		LineageID: stats.LineageID,
		Strategy:  stats.Strategy,
		Genome:    stats.Genome,
	}
	hall := hof.insertEntry(hof.halls[entry.Strategy], entry)
	hof.halls[entry.Strategy] = hall
	return slices.ContainsFunc(hall, func(e HallEntry) bool { return e.BotID == id })
}

// meetsEntryCriteria checks if a bot qualifies for the hall.
func (hof *HallOfFame) meetsEntryCriteria(stats *LifetimeStats) bool {
	// Primary criterion: reproduced
	if hof.cfg.MinChildren > 0 && stats.Children >= hof.cfg.MinChildren {
		return true
	}
	// Secondary criterion: survived long enough and ate something
	return hof.cfg.MinAge > 0 && stats.Age >= hof.cfg.MinAge && stats.Foraged > 0
}

// calculateFitness computes the weighted fitness score.
func (hof *HallOfFame) calculateFitness(stats *LifetimeStats) float64 {
	c := hof.cfg
	return float64(stats.Children)*c.ChildrenWeight +
		float64(stats.Age)*c.SurvivalWeight +
		stats.Foraged*c.ForageWeight +
		float64(stats.Kills)*c.KillsWeight
}

// insertEntry adds an entry to the hall, maintaining sorted order by fitness.
// If the hall is full, the lowest-fitness entry is removed.
func (hof *HallOfFame) insertEntry(hall []HallEntry, entry HallEntry) []HallEntry {
	maxSize := max(hof.cfg.Size, 1)

	// Find insertion point (sorted descending by fitness)
	idx := sort.Search(len(hall), func(i int) bool {
		return hall[i].Fitness < entry.Fitness
	})

	// If hall is full and entry would be last (lowest), skip it
	if len(hall) >= maxSize && idx >= maxSize {
		return hall
	}

	hall = slices.Insert(hall, idx, entry)
	if len(hall) > maxSize {
		hall = hall[:maxSize]
	}
	return hall
}

// strategies returns the hall keys in sorted order.
func (hof *HallOfFame) strategies() []string {
	names := make([]string, 0, len(hof.halls))
	for name := range hof.halls {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Sample selects a genome using tournament selection. An empty strategy
// samples across every hall. ok is false when there is nothing to sample.
func (hof *HallOfFame) Sample(strategy string) (genetics.Genome, bool) {
	var pool []HallEntry
	if strategy == "" {
		for _, name := range hof.strategies() {
			pool = append(pool, hof.halls[name]...)
		}
	} else {
		pool = hof.halls[strategy]
	}
	if len(pool) == 0 {
		return genetics.Genome{}, false
	}

	// Tournament selection with k=3
	const tournamentSize = 3
	best := -1
	for i := 0; i < tournamentSize && i < len(pool); i++ {
		idx := hof.rng.Intn(len(pool))
		if best < 0 || pool[idx].Fitness > pool[best].Fitness {
			best = idx
		}
	}
	return pool[best].Genome, true
}

// Size returns the number of entries for a strategy, or across every hall
// when strategy is empty.
func (hof *HallOfFame) Size(strategy string) int {
	if strategy != "" {
		return len(hof.halls[strategy])
	}
	n := 0
	for _, hall := range hof.halls {
		n += len(hall)
	}
	return n
}

// TopFitness returns the highest fitness in a strategy's hall.
// Returns 0 if the hall is empty.
func (hof *HallOfFame) TopFitness(strategy string) float64 {
	hall := hof.halls[strategy]
	if len(hall) == 0 {
		return 0
	}
	return hall[0].Fitness
}

// hallEntryJSON is the JSON-serializable representation of a hall entry.
type hallEntryJSON struct {
	BotID     uint64             `json:"bot_id"`
	Fitness   float64            `json:"fitness"`
	Children  int                `json:"children"`
	Kills     int                `json:"kills"`
	Survival  int                `json:"survival_ticks"`
	Foraged   float64            `json:"foraged"`
	LineageID uint64             `json:"lineage_id"`
	Genome    map[string]float64 `json:"genome"`
}

// MarshalJSON serializes the hall of fame keyed by strategy name.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	export := make(map[string][]hallEntryJSON, len(hof.halls))
	for name, hall := range hof.halls {
		entries := make([]hallEntryJSON, len(hall))
		for i, e := range hall {
			entries[i] = hallEntryJSON{
				BotID:     e.BotID,
				Fitness:   e.Fitness,
				Children:  e.Children,
				Kills:     e.Kills,
				Survival:  e.Survival,
				Foraged:   e.Foraged,
				LineageID: e.LineageID,
				Genome:    e.Genome.Named(),
			}
		}
		export[name] = entries
	}
	return json.MarshalIndent(export, "", "  ")
}

// LoadHallOfFameFromFile reads a hall of fame JSON file written by
// MarshalJSON.
func LoadHallOfFameFromFile(path string, cfg config.HallOfFameConfig, rng *rand.Rand) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var raw map[string][]hallEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(cfg, rng)
	for name, entries := range raw {
		for _, ej := range entries {
			g, err := genetics.FromNamed(ej.Genome)
			if err != nil {
				return nil, fmt.Errorf("hall of fame entry %d: %w", ej.BotID, err)
			}
			hof.halls[name] = hof.insertEntry(hof.halls[name], HallEntry{
				BotID:     ej.BotID,
				Fitness:   ej.Fitness,
				Children:  ej.Children,
				Kills:     ej.Kills,
				Survival:  ej.Survival,
				Foraged:   ej.Foraged,
				LineageID: ej.LineageID,
				Strategy:  name,
				Genome:    g,
			})
		}
	}
	return hof, nil
}
