package sensors

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/world"
)

// Sensor builds perceptions from the world. Sense only reads the world and
// may run from many goroutines once the world index is refreshed.
type Sensor struct {
	w *world.World
}

// New creates a sensor over w.
func New(w *world.World) *Sensor {
	return &Sensor{w: w}
}

// Sense returns the perception of bot id. ok is false when id is not a
// living bot.
func (s *Sensor) Sense(id uint64) (*Perception, bool) {
	b, ok := s.w.Bot(id)
	if !ok || b.Vitals.State != components.Alive {
		return nil, false
	}
	cfg := s.w.Config()
	pos := b.Position.Vec()
	radius := b.Genome.Get(genetics.SensorRange)

	p := &Perception{
		Tick: s.w.Tick(),
		Self: Self{
			ID:         id,
			Position:   pos,
			Velocity:   r2.Vec{X: b.Velocity.X, Y: b.Velocity.Y},
			Energy:     b.Vitals.Energy,
			MaxEnergy:  b.Vitals.MaxEnergy,
			Age:        b.Vitals.Age,
			Generation: b.Vitals.Generation,
			Cooldown:   b.Vitals.Cooldown,
			Mature:     b.Vitals.Age >= cfg.Evolution.MaturityAge,
		},
		Ambient: s.w.Ambient.Sample(pos),
		Bounds:  s.w.Bounds(),
	}

	ids := s.w.QueryRadiusInto(nil, pos, radius)
	p.Neighbors = make([]Neighbor, 0, len(ids))
	for _, nid := range ids {
		if nid == id {
			continue
		}
		if n, ok := s.describe(nid, pos); ok {
			p.Neighbors = append(p.Neighbors, n)
		}
	}
	slices.SortStableFunc(p.Neighbors, func(a, b Neighbor) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if limit := cfg.Sensors.MaxNeighbors; len(p.Neighbors) > limit {
		p.Neighbors = p.Neighbors[:limit]
	}

	signals := s.w.Signals.Audible(nil, pos, cfg.Derived.MaxAudibleRadius)
	for _, sig := range signals {
		if sig.Sender == id {
			continue
		}
		off := r2.Sub(sig.Origin, pos)
		p.Signals = append(p.Signals, SignalReading{
			ID:       sig.ID,
			Tag:      sig.Tag,
			Offset:   off,
			Distance: r2.Norm(off),
			Strength: sig.Strength,
			Sender:   sig.Sender,
		})
	}
	return p, true
}

func (s *Sensor) describe(id uint64, from r2.Vec) (Neighbor, bool) {
	kind, ok := s.w.Kind(id)
	if !ok {
		return Neighbor{}, false
	}
	n := Neighbor{ID: id, Kind: kind}
	switch kind {
	case components.KindBot:
		b, _ := s.w.Bot(id)
		n.Offset = r2.Sub(b.Position.Vec(), from)
		n.Energy = b.Vitals.Energy
		n.Aggression = b.Genome.Get(genetics.Aggression)
		n.Mature = b.Vitals.Age >= s.w.Config().Evolution.MaturityAge
	case components.KindResource:
		r, _ := s.w.Resource(id)
		n.Offset = r2.Sub(r.Position.Vec(), from)
		n.Quantity = r.Stock.Quantity
	case components.KindObstacle:
		o, _ := s.w.Obstacle(id)
		n.Offset = r2.Sub(o.Position.Vec(), from)
		n.Extent = o.Extent
	}
	n.Distance = r2.Norm(n.Offset)
	return n, true
}
