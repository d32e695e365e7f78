package sim

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/decision"
	"github.com/pthm-cable/botlife/inspector"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/simerr"
	"github.com/pthm-cable/botlife/telemetry"
)

// BotView is a detailed, copied view of one bot.
type BotView struct {
	ID       uint64                   `json:"id"`
	Tick     uint64                   `json:"tick"`
	Position r2.Vec                   `json:"position"`
	Velocity r2.Vec                   `json:"velocity"`
	Genome   map[string]float64       `json:"genome"`
	Vitals   []inspector.Field        `json:"vitals"`
	Memory   []memory.Event           `json:"memory"`
	Strategy decision.State           `json:"strategy"`
	Lifetime *telemetry.LifetimeStats `json:"lifetime,omitempty"`
}

// Inspect returns a view of bot id. Unknown ids and non-bots are lookup
// errors.
func (e *Engine) Inspect(id uint64) (*BotView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kind, ok := e.world.Kind(id)
	if !ok {
		return nil, simerr.Lookup("inspect", "entity %d does not exist", id)
	}
	if kind != components.KindBot {
		return nil, simerr.Lookup("inspect", "entity %d is a %s, not a bot", id, kind)
	}
	b, _ := e.world.Bot(id)
	v := &BotView{
		ID:       id,
		Tick:     e.world.Tick(),
		Position: b.Position.Vec(),
		Velocity: r2.Vec{X: b.Velocity.X, Y: b.Velocity.Y},
		Genome:   b.Genome.Named(),
		Vitals:   inspector.ExtractFields(b.Vitals),
	}
	if m, ok := e.minds[id]; ok {
		v.Memory = m.mem.Events()
		v.Strategy = decision.Describe(m.strategy)
	}
	if stats := e.lifetimes.Get(id); stats != nil {
		cp := *stats
		v.Lifetime = &cp
	}
	return v, nil
}
