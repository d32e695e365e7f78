package sim

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/world"
)

// BotState is a bot as published in a Snapshot.
type BotState struct {
	ID         uint64          `json:"id"`
	Position   r2.Vec          `json:"position"`
	Velocity   r2.Vec          `json:"velocity"`
	Energy     float64         `json:"energy"`
	MaxEnergy  float64         `json:"max_energy"`
	Age        int             `json:"age"`
	Generation int             `json:"generation"`
	LineageID  uint64          `json:"lineage_id"`
	Cooldown   int             `json:"cooldown"`
	State      string          `json:"state"`
	Strategy   string          `json:"strategy"`
	Genome     genetics.Genome `json:"genome"`
}

// ResourceState is a resource as published in a Snapshot.
type ResourceState struct {
	ID       uint64  `json:"id"`
	Position r2.Vec  `json:"position"`
	Quantity float64 `json:"quantity"`
	Capacity float64 `json:"capacity"`
	Kind     string  `json:"kind"`
}

// ObstacleState is an obstacle as published in a Snapshot.
type ObstacleState struct {
	ID       uint64            `json:"id"`
	Position r2.Vec            `json:"position"`
	Extent   components.Extent `json:"extent"`
}

// Counters are cumulative engine totals.
type Counters struct {
	Alive     int    `json:"alive"`
	Dead      int    `json:"dead"` // Awaiting removal
	Resources int    `json:"resources"`
	Obstacles int    `json:"obstacles"`
	Signals   int    `json:"signals"`
	Births    uint64 `json:"births"`
	Deaths    uint64 `json:"deaths"`
	Culled    uint64 `json:"culled"`
	Removed   uint64 `json:"removed"`
	Reseeded  uint64 `json:"reseeded"`
}

// Snapshot is a deep copy of the world published after each tick.
type Snapshot struct {
	Tick      uint64          `json:"tick"`
	Epoch     uint64          `json:"epoch"`
	Width     float64         `json:"width"`
	Height    float64         `json:"height"`
	Bots      []BotState      `json:"bots"`
	Resources []ResourceState `json:"resources"`
	Obstacles []ObstacleState `json:"obstacles"`
	Signals   []world.Signal  `json:"signals"`
	Counters  Counters        `json:"counters"`
	Halted    string          `json:"halted,omitempty"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Bots = slices.Clone(s.Bots)
	cp.Resources = slices.Clone(s.Resources)
	cp.Obstacles = slices.Clone(s.Obstacles)
	cp.Signals = slices.Clone(s.Signals)
	return &cp
}

// Bot returns the published state of a bot.
func (s *Snapshot) Bot(id uint64) (BotState, bool) {
	i, ok := slices.BinarySearchFunc(s.Bots, id, func(b BotState, id uint64) int {
		switch {
		case b.ID < id:
			return -1
		case b.ID > id:
			return 1
		}
		return 0
	})
	if !ok {
		return BotState{}, false
	}
	return s.Bots[i], true
}

// capture builds a snapshot of the current world. Callers hold e.mu.
func (e *Engine) capture() *Snapshot {
	w := e.world
	b := w.Bounds()
	s := &Snapshot{
		Tick:     w.Tick(),
		Epoch:    e.epoch,
		Width:    b.Max.X - b.Min.X,
		Height:   b.Max.Y - b.Min.Y,
		Signals:  w.Signals.All(),
		Counters: e.counters,
	}

	for _, id := range w.BotIDs() {
		bot, _ := w.Bot(id)
		st := BotState{
			ID:         id,
			Position:   bot.Position.Vec(),
			Velocity:   r2.Vec{X: bot.Velocity.X, Y: bot.Velocity.Y},
			Energy:     bot.Vitals.Energy,
			MaxEnergy:  bot.Vitals.MaxEnergy,
			Age:        bot.Vitals.Age,
			Generation: bot.Vitals.Generation,
			LineageID:  bot.Vitals.LineageID,
			Cooldown:   bot.Vitals.Cooldown,
			State:      bot.Vitals.State.String(),
			Genome:     *bot.Genome,
		}
		if m, ok := e.minds[id]; ok {
			st.Strategy = m.strategy.Name()
		}
		if bot.Vitals.State == components.Alive {
			s.Counters.Alive++
		} else {
			s.Counters.Dead++
		}
		s.Bots = append(s.Bots, st)
	}

	for _, id := range w.ResourceIDs() {
		r, _ := w.Resource(id)
		s.Resources = append(s.Resources, ResourceState{
			ID:       id,
			Position: r.Position.Vec(),
			Quantity: r.Stock.Quantity,
			Capacity: r.Stock.Capacity,
			Kind:     r.Stock.Kind.String(),
		})
	}

	for _, id := range w.ObstacleIDs() {
		o, _ := w.Obstacle(id)
		s.Obstacles = append(s.Obstacles, ObstacleState{ID: id, Position: o.Position.Vec(), Extent: o.Extent})
	}

	s.Counters.Resources = len(s.Resources)
	s.Counters.Obstacles = len(s.Obstacles)
	s.Counters.Signals = len(s.Signals)
	if e.halted != nil {
		s.Halted = e.halted.Error()
	}
	return s
}
