package decision

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/world"
)

// env bundles the inputs of one decision with the predicates and action
// builders every strategy shares.
type env struct {
	cfg *config.Config
	p   *sensors.Perception
	mem *memory.Memory
	g   genetics.Genome
	rng *rand.Rand
}

func newEnv(cfg *config.Config, rng *rand.Rand, p *sensors.Perception, mem *memory.Memory, g genetics.Genome) *env {
	return &env{cfg: cfg, p: p, mem: mem, g: g, rng: rng}
}

func (e *env) energy() float64 { return e.p.EnergyFraction() }
func (e *env) hungry() bool    { return e.energy() < e.cfg.Decision.HungerThreshold }
func (e *env) starving() bool  { return e.energy() < e.cfg.Decision.StarvingThreshold }
func (e *env) full() bool      { return e.energy() >= e.cfg.Decision.FullThreshold }

func (e *env) reach() float64 { return e.cfg.Actions.InteractionRadius }

// dangerRadius widens with caution.
func (e *env) dangerRadius() float64 {
	return e.cfg.Decision.DangerRadius * (0.5 + e.g.Get(genetics.Caution))
}

func (e *env) threat() (sensors.Neighbor, bool) {
	return e.p.NearestThreat(e.cfg.Decision.ThreatAggression, e.dangerRadius())
}

func (e *env) threatened() bool {
	_, ok := e.threat()
	return ok
}

func (e *env) food() (sensors.Neighbor, bool) { return e.p.NearestFood() }

func (e *env) seesFood() bool {
	_, ok := e.food()
	return ok
}

func (e *env) foodInReach() (sensors.Neighbor, bool) {
	f, ok := e.food()
	if !ok || f.Distance > e.reach() {
		return sensors.Neighbor{}, false
	}
	return f, true
}

func (e *env) canEat() bool {
	_, ok := e.foodInReach()
	return ok && !e.full()
}

// aggressive bots hunt once hungry; very aggressive ones always.
func (e *env) aggressive() bool {
	a := e.g.Get(genetics.Aggression)
	return a >= 0.8 || (a >= 0.5 && e.hungry())
}

func (e *env) prey() (sensors.Neighbor, bool) {
	if !e.aggressive() {
		return sensors.Neighbor{}, false
	}
	return e.p.WeakestBotWithin(e.g.Get(genetics.SensorRange))
}

func (e *env) preyInReach() (sensors.Neighbor, bool) {
	if !e.aggressive() {
		return sensors.Neighbor{}, false
	}
	return e.p.WeakestBotWithin(e.reach())
}

func (e *env) canReproduce() bool {
	s := e.p.Self
	return s.Mature && s.Cooldown == 0 && e.energy() >= e.g.Get(genetics.ReproductionThreshold)
}

func (e *env) recalled() (memory.Event, bool) {
	if e.mem == nil {
		return memory.Event{}, false
	}
	ev, ok := e.mem.RecallFood()
	if !ok || r2.Norm(r2.Sub(ev.Position, e.p.Self.Position)) <= e.reach() {
		return memory.Event{}, false
	}
	return ev, true
}

func (e *env) remembersFood() bool {
	_, ok := e.recalled()
	return ok
}

// canSignal enforces the emission cooldown and keeps a reserve of energy.
func (e *env) canSignal() bool {
	if e.p.Self.Energy < 2*e.cfg.Actions.SignalCost {
		return false
	}
	if e.mem == nil {
		return true
	}
	since := uint64(0)
	if cd := uint64(e.cfg.Decision.SignalCooldown); e.p.Tick > cd {
		since = e.p.Tick - cd
	}
	_, recent := e.mem.LatestSince(memory.Emitted, since)
	return !recent
}

func (e *env) sociable() bool { return e.g.Get(genetics.Sociability) >= 0.5 }

func (e *env) heard(tag world.SignalTag) (sensors.SignalReading, bool) {
	return e.p.Strongest(tag)
}

// Action builders.

func (e *env) eatOrApproach(f sensors.Neighbor) action.Action {
	if f.Distance <= e.reach() {
		return action.Eat(f.ID)
	}
	return action.Move(f.Offset)
}

func (e *env) approachFood() (action.Action, bool) {
	f, ok := e.food()
	if !ok {
		return action.Action{}, false
	}
	return e.eatOrApproach(f), true
}

func (e *env) eat() (action.Action, bool) {
	f, ok := e.foodInReach()
	if !ok {
		return action.Action{}, false
	}
	return action.Eat(f.ID), true
}

func (e *env) flee() (action.Action, bool) {
	t, ok := e.threat()
	if !ok {
		return action.Action{}, false
	}
	if t.Distance == 0 {
		return e.wander(), true
	}
	return action.Move(r2.Scale(-1, t.Offset)), true
}

func (e *env) hunt() (action.Action, bool) {
	if t, ok := e.preyInReach(); ok {
		return action.Attack(t.ID), true
	}
	if t, ok := e.prey(); ok {
		return action.Move(t.Offset), true
	}
	return action.Action{}, false
}

func (e *env) reproduce() (action.Action, bool) {
	if !e.canReproduce() {
		return action.Action{}, false
	}
	if e.sociable() {
		if m, ok := e.p.NearestMate(); ok {
			return action.Reproduce(m.ID), true
		}
	}
	return action.Reproduce(0), true
}

func (e *env) recall() (action.Action, bool) {
	ev, ok := e.recalled()
	if !ok {
		return action.Action{}, false
	}
	return action.MoveTo(e.p.Self.Position, ev.Position), true
}

func (e *env) followSignal(tag world.SignalTag) (action.Action, bool) {
	s, ok := e.heard(tag)
	if !ok || s.Distance == 0 {
		return action.Action{}, false
	}
	return action.Move(s.Offset), true
}

func (e *env) avoidSignal(tag world.SignalTag) (action.Action, bool) {
	s, ok := e.heard(tag)
	if !ok || s.Distance == 0 {
		return action.Action{}, false
	}
	return action.Move(r2.Scale(-1, s.Offset)), true
}

func (e *env) emit(tag world.SignalTag) (action.Action, bool) {
	if !e.canSignal() {
		return action.Action{}, false
	}
	return action.Emit(tag), true
}

// explore heads for the least recently visited neighbouring cell. Curious
// bots take a random heading more often.
func (e *env) explore() action.Action {
	if e.mem == nil || e.rng.Float64() < 0.5*e.g.Get(genetics.Curiosity) {
		return e.wander()
	}
	here := e.mem.CellOf(e.p.Self.Position)
	best := math.MaxInt
	var choices []r2.Vec
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			c := memory.Cell{X: here.X + dx, Y: here.Y + dy}
			centre := e.mem.CellCenter(c)
			if !inside(e.p.Bounds, centre) {
				continue
			}
			f := e.mem.Familiarity(centre)
			switch {
			case f < best:
				best = f
				choices = append(choices[:0], centre)
			case f == best:
				choices = append(choices, centre)
			}
		}
	}
	if len(choices) == 0 {
		return e.wander()
	}
	return action.MoveTo(e.p.Self.Position, choices[e.rng.Intn(len(choices))])
}

func (e *env) wander() action.Action {
	theta := e.rng.Float64() * 2 * math.Pi
	return action.Move(r2.Vec{X: math.Cos(theta), Y: math.Sin(theta)})
}

func inside(b r2.Box, p r2.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}
