// Package sensors builds the per-bot, per-tick perception snapshot.
package sensors

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/world"
)

// Neighbor is a perceived entity relative to the perceiving bot.
type Neighbor struct {
	ID       uint64
	Kind     components.Kind
	Offset   r2.Vec  // neighbour position minus own position
	Distance float64 // |Offset|

	Energy     float64 // bots only
	Aggression float64 // bots only
	Mature     bool    // bots only
	Quantity   float64 // resources only
	Extent     components.Extent
}

// SignalReading is a perceived signal.
type SignalReading struct {
	ID       uint64
	Tag      world.SignalTag
	Offset   r2.Vec
	Distance float64
	Strength float64
	Sender   uint64
}

// Self is the perceiving bot's own state.
type Self struct {
	ID         uint64
	Position   r2.Vec
	Velocity   r2.Vec
	Energy     float64
	MaxEnergy  float64
	Age        int
	Generation int
	Cooldown   int
	Mature     bool
}

// Perception is the read-only snapshot handed to a decision strategy. It is
// discarded after the tick. Neighbors are sorted by distance, then id.
type Perception struct {
	Tick      uint64
	Self      Self
	Neighbors []Neighbor
	Signals   []SignalReading
	Ambient   world.Reading
	Bounds    r2.Box
}

// EnergyFraction returns energy over max energy.
func (p *Perception) EnergyFraction() float64 {
	if p.Self.MaxEnergy <= 0 {
		return 0
	}
	return p.Self.Energy / p.Self.MaxEnergy
}

// Nearest returns the closest neighbour of kind.
func (p *Perception) Nearest(kind components.Kind) (Neighbor, bool) {
	for _, n := range p.Neighbors {
		if n.Kind == kind {
			return n, true
		}
	}
	return Neighbor{}, false
}

// NearestFood returns the closest resource with quantity left.
func (p *Perception) NearestFood() (Neighbor, bool) {
	for _, n := range p.Neighbors {
		if n.Kind == components.KindResource && n.Quantity > 0 {
			return n, true
		}
	}
	return Neighbor{}, false
}

// NearestThreat returns the closest bot at or above the aggression threshold
// within radius.
func (p *Perception) NearestThreat(aggression, radius float64) (Neighbor, bool) {
	for _, n := range p.Neighbors {
		if n.Distance > radius {
			break
		}
		if n.Kind == components.KindBot && n.Aggression >= aggression {
			return n, true
		}
	}
	return Neighbor{}, false
}

// WeakestBotWithin returns the bot with the least energy within radius. Ties
// go to the nearer one.
func (p *Perception) WeakestBotWithin(radius float64) (Neighbor, bool) {
	var best Neighbor
	found := false
	for _, n := range p.Neighbors {
		if n.Distance > radius {
			break
		}
		if n.Kind != components.KindBot || n.Energy <= 0 {
			continue
		}
		if !found || n.Energy < best.Energy {
			best, found = n, true
		}
	}
	return best, found
}

// NearestMate returns the closest mature bot.
func (p *Perception) NearestMate() (Neighbor, bool) {
	for _, n := range p.Neighbors {
		if n.Kind == components.KindBot && n.Mature {
			return n, true
		}
	}
	return Neighbor{}, false
}

// Count returns the number of neighbours of kind.
func (p *Perception) Count(kind components.Kind) int {
	c := 0
	for _, n := range p.Neighbors {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

// Strongest returns the strongest heard signal with tag.
func (p *Perception) Strongest(tag world.SignalTag) (SignalReading, bool) {
	var best SignalReading
	found := false
	for _, s := range p.Signals {
		if s.Tag == tag && (!found || s.Strength > best.Strength) {
			best, found = s, true
		}
	}
	return best, found
}
