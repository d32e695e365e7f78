package decision

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/world"
)

// Curve maps an input in [0, 1] to a score in [0, 1].
type Curve func(x float64) float64

func clamp01(v float64) float64 { return min(max(v, 0), 1) }

// Linear is m*x + b.
func Linear(m, b float64) Curve {
	return func(x float64) float64 { return clamp01(m*x + b) }
}

// Inverse is 1 - x.
func Inverse() Curve {
	return func(x float64) float64 { return clamp01(1 - x) }
}

// Sigmoid is a logistic curve of steepness k centred on mid.
func Sigmoid(k, mid float64) Curve {
	return func(x float64) float64 { return clamp01(1 / (1 + math.Exp(-k*(x-mid)))) }
}

// Exponential is x^k.
func Exponential(k float64) Curve {
	return func(x float64) float64 { return clamp01(math.Pow(clamp01(x), k)) }
}

// Smoothstep is the cubic Hermite step between lo and hi.
func Smoothstep(lo, hi float64) Curve {
	return func(x float64) float64 {
		if hi <= lo {
			if x >= hi {
				return 1
			}
			return 0
		}
		t := clamp01((x - lo) / (hi - lo))
		return t * t * (3 - 2*t)
	}
}

var (
	hungerCurve    = Exponential(2)
	proximityCurve = Inverse()
	dangerCurve    = Sigmoid(10, 0.5)
	matingCurve    = Smoothstep(0.5, 1)
	noveltyCurve   = Exponential(0.5)
)

type candidate struct {
	name   string
	action action.Action
	score  float64
}

// Utility scores every available action and takes the best.
type Utility struct {
	cfg  *config.Config
	rng  *rand.Rand
	last string
}

// NewUtility creates a utility strategy.
func NewUtility(cfg *config.Config, rng *rand.Rand) *Utility {
	return &Utility{cfg: cfg, rng: rng}
}

func (u *Utility) Name() string { return config.StrategyUtility }

// candidates lists the scored options for e. Scores are in [0, 1] before
// gene weights.
func (u *Utility) candidates(e *env) []candidate {
	g := e.g
	hunger := hungerCurve(1 - e.energy())
	out := []candidate{{name: "idle", action: action.Idle(), score: 0.02}}

	if f, ok := e.foodInReach(); ok && !e.full() {
		out = append(out, candidate{"eat", action.Eat(f.ID), clamp01(hunger + 0.2)})
	}
	if f, ok := e.food(); ok && f.Distance > e.reach() {
		near := proximityCurve(f.Distance / g.Get(genetics.SensorRange))
		out = append(out, candidate{"move_to_food", action.Move(f.Offset), hunger * (0.5 + 0.5*near) * g.Get(genetics.ForageWeight) / 2})
	}
	if a, ok := e.recall(); ok && !e.seesFood() {
		out = append(out, candidate{"recall_food", a, hunger * 0.6})
	}
	if t, ok := e.threat(); ok {
		closeness := proximityCurve(t.Distance / e.dangerRadius())
		a, _ := e.flee()
		out = append(out, candidate{"flee", a, dangerCurve(closeness) * (0.5 + 0.5*g.Get(genetics.Caution))})
	}
	if t, ok := e.preyInReach(); ok {
		out = append(out, candidate{"attack", action.Attack(t.ID), g.Get(genetics.Aggression) * (0.3 + 0.7*hunger)})
	}
	if a, ok := e.reproduce(); ok {
		out = append(out, candidate{"reproduce", a, matingCurve(e.energy()) * (0.6 + 0.4*g.Get(genetics.Sociability))})
	}
	if e.canSignal() {
		social := g.Get(genetics.Sociability)
		if e.seesFood() {
			out = append(out, candidate{"emit_food", action.Emit(world.SignalFood), 0.3 * social * (1 - hunger)})
		}
		if e.threatened() {
			out = append(out, candidate{"emit_danger", action.Emit(world.SignalDanger), 0.5 * social})
		}
		if e.canReproduce() {
			if _, ok := e.p.NearestMate(); !ok {
				out = append(out, candidate{"emit_mate", action.Emit(world.SignalMate), 0.4 * social})
			}
		}
	}
	if a, ok := e.followSignal(world.SignalFood); ok && !e.seesFood() {
		out = append(out, candidate{"follow_food_signal", a, hunger * 0.5})
	}
	familiar := 0.0
	if e.mem != nil {
		familiar = min(float64(e.mem.Familiarity(e.p.Self.Position))/5, 1)
	}
	out = append(out, candidate{"explore", e.explore(), 0.1 + 0.3*g.Get(genetics.Curiosity)*noveltyCurve(1-familiar)})
	return out
}

// best returns the index of the highest score. Ties go to the higher kind
// priority, then to the earlier candidate.
func best(cands []candidate, scores []float64) int {
	top := floats.Max(scores)
	pick := -1
	for i, c := range cands {
		if scores[i] != top {
			continue
		}
		if pick < 0 || c.action.Kind.Priority() > cands[pick].action.Kind.Priority() {
			pick = i
		}
	}
	return pick
}

func (u *Utility) Decide(p *sensors.Perception, mem *memory.Memory, g genetics.Genome) action.Action {
	e := newEnv(u.cfg, u.rng, p, mem, g)
	cands := u.candidates(e)
	scores := make([]float64, len(cands))
	for i, c := range cands {
		scores[i] = c.score
	}
	i := best(cands, scores)
	u.last = cands[i].name
	return cands[i].action
}

func (u *Utility) Describe() State {
	return State{Strategy: u.Name(), LastChoice: u.last}
}
