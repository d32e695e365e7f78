// Package action defines what a bot can do in a tick and resolves those
// choices against the world.
package action

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/world"
)

// Kind tags an action.
type Kind uint8

const (
	KindIdle Kind = iota
	KindMove
	KindEat
	KindEmit
	KindAttack
	KindReproduce
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindMove:
		return "move"
	case KindEat:
		return "eat"
	case KindEmit:
		return "emit"
	case KindAttack:
		return "attack"
	case KindReproduce:
		return "reproduce"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Priority orders kinds when scores tie. Higher wins.
func (k Kind) Priority() int {
	switch k {
	case KindEat:
		return 5
	case KindAttack:
		return 4
	case KindReproduce:
		return 3
	case KindMove:
		return 2
	case KindEmit:
		return 1
	default:
		return 0
	}
}

// Action is a tagged variant. Only the fields of its Kind are meaningful.
type Action struct {
	Kind      Kind            `json:"kind"`
	Direction r2.Vec          `json:"direction,omitzero"` // Move
	Target    uint64          `json:"target,omitempty"`   // Eat, Attack
	Tag       world.SignalTag `json:"tag,omitempty"`      // Emit
	Partner   uint64          `json:"partner,omitempty"`  // Reproduce; 0 is asexual
}

// Idle does nothing.
func Idle() Action { return Action{Kind: KindIdle} }

// Move heads in direction. The resolver normalises it.
func Move(direction r2.Vec) Action { return Action{Kind: KindMove, Direction: direction} }

// MoveTo heads from one point towards another.
func MoveTo(from, to r2.Vec) Action { return Move(r2.Sub(to, from)) }

// MoveAway heads directly away from a point.
func MoveAway(from, threat r2.Vec) Action { return Move(r2.Sub(from, threat)) }

// Eat consumes from resource target.
func Eat(target uint64) Action { return Action{Kind: KindEat, Target: target} }

// Emit broadcasts a signal.
func Emit(tag world.SignalTag) Action { return Action{Kind: KindEmit, Tag: tag} }

// Attack damages bot target.
func Attack(target uint64) Action { return Action{Kind: KindAttack, Target: target} }

// Reproduce requests reproduction at the next epoch.
func Reproduce(partner uint64) Action { return Action{Kind: KindReproduce, Partner: partner} }

func (a Action) String() string {
	switch a.Kind {
	case KindMove:
		return fmt.Sprintf("move(%.2f, %.2f)", a.Direction.X, a.Direction.Y)
	case KindEat, KindAttack:
		return fmt.Sprintf("%s(%d)", a.Kind, a.Target)
	case KindEmit:
		return fmt.Sprintf("emit(%s)", a.Tag)
	case KindReproduce:
		if a.Partner == 0 {
			return "reproduce(asexual)"
		}
		return fmt.Sprintf("reproduce(%d)", a.Partner)
	default:
		return a.Kind.String()
	}
}
