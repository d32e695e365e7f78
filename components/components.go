// Package components defines ECS components for the simulation.
package components

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/genetics"
)

// Kind is the fixed entity kind.
type Kind uint8

const (
	KindBot Kind = iota + 1
	KindResource
	KindObstacle
)

func (k Kind) String() string {
	switch k {
	case KindBot:
		return "bot"
	case KindResource:
		return "resource"
	case KindObstacle:
		return "obstacle"
	default:
		return "unknown"
	}
}

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindBot, KindResource, KindObstacle} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Lifecycle is a bot's lifecycle state.
type Lifecycle uint8

const (
	Alive Lifecycle = iota
	Dead            // Pending removal at the next epoch
)

func (l Lifecycle) String() string {
	if l == Dead {
		return "dead"
	}
	return "alive"
}

// Identity is the stable identifier of an entity. IDs are never reused,
// unlike ark entity handles.
type Identity struct {
	ID   uint64 `inspect:"label"`
	Kind Kind   `inspect:"label"`
}

// Position is an entity's world position.
type Position struct {
	X, Y float64
}

// Vec returns the position as a vector.
func (p Position) Vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

// PositionOf converts a vector to a Position.
func PositionOf(v r2.Vec) Position { return Position{X: v.X, Y: v.Y} }

// Velocity is the displacement applied by a bot's last move.
type Velocity struct {
	X, Y float64
}

// ReproIntent records a bot's request to reproduce at the next epoch.
type ReproIntent struct {
	Eligible bool
	Partner  uint64 // 0 means asexual
}

// Vitals bundles a bot's energy, age and lifecycle.
type Vitals struct {
	Energy     float64     `inspect:"bar,max:MaxEnergy"`
	MaxEnergy  float64     `inspect:"label,fmt:%.0f"`
	Age        int         `inspect:"label"`
	Generation int         `inspect:"label"`
	LineageID  uint64      `inspect:"label"`
	ParentA    uint64      `inspect:"label"`
	ParentB    uint64      `inspect:"label"`
	State      Lifecycle   `inspect:"label"`
	BornTick   uint64      `inspect:"label"`
	DiedTick   uint64      `inspect:"label"`
	Cooldown   int         `inspect:"label"` // Ticks until the bot may reproduce again
	Intent     ReproIntent `inspect:"skip"`
}

// Living reports whether the bot can act.
func (v *Vitals) Living() bool { return v.State == Alive && v.Energy > 0 }

// Headroom is the energy the bot can still absorb.
func (v *Vitals) Headroom() float64 { return max(v.MaxEnergy-v.Energy, 0) }

// Genome wraps the genetics vector as a component.
type Genome struct {
	Genes genetics.Genome `inspect:"skip"`
}

// ResourceKind tags what a resource yields.
type ResourceKind uint8

const (
	ResourceFood   ResourceKind = iota // Regrows
	ResourceEnergy                     // Does not regrow
)

func (k ResourceKind) String() string {
	if k == ResourceEnergy {
		return "energy"
	}
	return "food"
}

// Stock is the consumable quantity of a resource.
type Stock struct {
	Quantity  float64      `inspect:"bar"`
	Capacity  float64      `inspect:"label,fmt:%.0f"`
	RegenRate float64      `inspect:"label,fmt:%.3f"`
	Kind      ResourceKind `inspect:"label"`
}

// Extent is the half size of an axis-aligned obstacle.
type Extent struct {
	HalfWidth  float64
	HalfHeight float64
}

// Box returns the obstacle rectangle centred on pos.
func (e Extent) Box(pos Position) r2.Box {
	return r2.Box{
		Min: r2.Vec{X: pos.X - e.HalfWidth, Y: pos.Y - e.HalfHeight},
		Max: r2.Vec{X: pos.X + e.HalfWidth, Y: pos.Y + e.HalfHeight},
	}
}

// Contains reports whether p lies inside the obstacle centred on pos.
func (e Extent) Contains(pos Position, p r2.Vec) bool {
	return p.X >= pos.X-e.HalfWidth && p.X <= pos.X+e.HalfWidth &&
		p.Y >= pos.Y-e.HalfHeight && p.Y <= pos.Y+e.HalfHeight
}
