package action

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/world"
)

// Intent is one bot's chosen action for a tick.
type Intent struct {
	Bot    uint64
	Action Action
}

// Outcome reports what an intent did to its bot.
type Outcome struct {
	Bot         uint64
	Action      Action
	Applied     bool    // The action changed the world
	NoOp        bool    // A lookup failed or a precondition did not hold
	EnergyDelta float64 // Net over the tick, including upkeep
	Reward      float64
	Died        bool
	Accepted    bool // Reproduce intent recorded
}

// Recollection is a memory event for a bot, which may differ from the bot
// whose action produced it.
type Recollection struct {
	Bot   uint64
	Event memory.Event
}

// Result summarises one resolution pass.
type Result struct {
	Outcomes []Outcome // Ascending bot id
	Memories []Recollection
	Died     []uint64 // Bots marked Dead this tick, ascending
	NoOps    int
	Emitted  int
}

// Resolver applies intents to the world. It never creates or destroys
// entities.
type Resolver struct {
	w *world.World
}

// NewResolver creates a resolver over w.
func NewResolver(w *world.World) *Resolver {
	return &Resolver{w: w}
}

// Resolve applies intents in ascending bot id order, then runs upkeep over
// every living bot and marks the dead. Bots that are Dead or out of energy
// when their turn comes do not act. The only error is an invariant
// violation from the world.
func (r *Resolver) Resolve(intents []Intent) (*Result, error) {
	sorted := slices.Clone(intents)
	slices.SortStableFunc(sorted, func(a, b Intent) int { return cmp.Compare(a.Bot, b.Bot) })

	res := &Result{Outcomes: make([]Outcome, 0, len(sorted))}
	before := make(map[uint64]float64, len(sorted))
	for _, in := range sorted {
		if b, ok := r.w.Bot(in.Bot); ok {
			before[in.Bot] = b.Vitals.Energy
		}
	}

	for _, in := range sorted {
		out := Outcome{Bot: in.Bot, Action: in.Action}
		b, ok := r.w.Bot(in.Bot)
		switch {
		case !ok:
			out.NoOp = true
		case !b.Vitals.Living():
			// Dead bots and drained bots waiting for upkeep skip their turn.
		default:
			if err := r.apply(b, in.Action, &out, res); err != nil {
				return nil, err
			}
		}
		if out.NoOp {
			res.NoOps++
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	res.Died = r.upkeep()
	died := make(map[uint64]bool, len(res.Died))
	for _, id := range res.Died {
		died[id] = true
	}

	cfg := r.w.Config().QLearning
	for i := range res.Outcomes {
		out := &res.Outcomes[i]
		start, ok := before[out.Bot]
		if !ok {
			continue
		}
		b, _ := r.w.Bot(out.Bot)
		out.EnergyDelta = b.Vitals.Energy - start
		out.Died = died[out.Bot]
		out.Reward = out.EnergyDelta
		if out.Died {
			out.Reward -= cfg.DeathPenalty
		}
		if out.Accepted {
			out.Reward += cfg.IntentBonus
		}
	}
	return res, nil
}

func (r *Resolver) apply(b world.Bot, a Action, out *Outcome, res *Result) error {
	switch a.Kind {
	case KindMove:
		return r.move(b, a, out)
	case KindEat:
		r.eat(b, a, out, res)
	case KindEmit:
		r.emit(b, a, out, res)
	case KindAttack:
		r.attack(b, a, out, res)
	case KindReproduce:
		r.reproduce(b, a, out)
	}
	return nil
}

func (r *Resolver) move(b world.Bot, a Action, out *Outcome) error {
	n := r2.Norm(a.Direction)
	if n == 0 {
		return nil
	}
	from := b.Position.Vec()
	step := r2.Scale(b.Genome.Get(genetics.Speed)/n, a.Direction)
	to := r.w.Clamp(r2.Add(from, step))
	if r.w.Blocked(to) {
		out.NoOp = true
		*b.Velocity = components.Velocity{}
		return nil
	}
	dist := r2.Norm(r2.Sub(to, from))
	if err := r.w.SetPosition(b.ID, to); err != nil {
		return err
	}
	*b.Velocity = components.Velocity{X: to.X - from.X, Y: to.Y - from.Y}
	b.Vitals.Energy = max(b.Vitals.Energy-dist*r.w.Config().Energy.MoveCost, 0)
	out.Applied = true
	return nil
}

func (r *Resolver) withinReach(b world.Bot, p r2.Vec) bool {
	return r2.Norm2(r2.Sub(p, b.Position.Vec())) <= r.w.Config().Derived.InteractionRadiusSq
}

func (r *Resolver) eat(b world.Bot, a Action, out *Outcome, res *Result) {
	food, ok := r.w.Resource(a.Target)
	if !ok || food.Stock.Quantity <= 0 || !r.withinReach(b, food.Position.Vec()) {
		out.NoOp = true
		return
	}
	transfer := min(r.w.Config().Actions.EatAmount, food.Stock.Quantity, b.Vitals.Headroom())
	if transfer <= 0 {
		out.NoOp = true
		return
	}
	food.Stock.Quantity -= transfer
	b.Vitals.Energy += transfer
	out.Applied = true

	tick := r.w.Tick()
	fp := food.Position.Vec()
	res.Memories = append(res.Memories, Recollection{Bot: b.ID, Event: memory.Event{
		Tick: tick, Kind: memory.Ate, Position: fp, Subject: food.ID, Value: transfer,
	}})
	if food.Stock.Quantity <= 0 {
		food.Stock.Quantity = 0
		res.Memories = append(res.Memories, Recollection{Bot: b.ID, Event: memory.Event{
			Tick: tick, Kind: memory.ResourceDepleted, Position: fp, Subject: food.ID,
		}})
	}
}

func (r *Resolver) emit(b world.Bot, a Action, out *Outcome, res *Result) {
	cfg := r.w.Config()
	if a.Tag == 0 || b.Vitals.Energy < cfg.Actions.SignalCost {
		out.NoOp = true
		return
	}
	b.Vitals.Energy -= cfg.Actions.SignalCost
	pos := b.Position.Vec()
	r.w.Signals.Emit(world.Signal{
		Origin:    pos,
		Strength:  cfg.Signals.InitialStrength,
		DecayRate: cfg.Signals.DecayRate,
		Expand:    cfg.Signals.ExpandTicks,
		Tag:       a.Tag,
		Tick:      r.w.Tick(),
		Sender:    b.ID,
	})
	res.Emitted++
	out.Applied = true
	res.Memories = append(res.Memories, Recollection{Bot: b.ID, Event: memory.Event{
		Tick: r.w.Tick(), Kind: memory.Emitted, Position: pos, Value: float64(a.Tag),
	}})
}

func (r *Resolver) attack(b world.Bot, a Action, out *Outcome, res *Result) {
	if a.Target == b.ID {
		out.NoOp = true
		return
	}
	target, ok := r.w.Bot(a.Target)
	if !ok || !target.Vitals.Living() || !r.withinReach(b, target.Position.Vec()) {
		out.NoOp = true
		return
	}
	cfg := r.w.Config().Actions
	damage := min(b.Genome.Get(genetics.AttackStrength)*cfg.AttackDamage, target.Vitals.Energy)
	target.Vitals.Energy -= damage
	b.Vitals.Energy = max(b.Vitals.Energy-cfg.AttackCost, 0)
	b.Vitals.Energy += min(damage*cfg.AttackEfficiency, b.Vitals.Headroom())
	out.Applied = true

	tick := r.w.Tick()
	res.Memories = append(res.Memories,
		Recollection{Bot: b.ID, Event: memory.Event{
			Tick: tick, Kind: memory.Attacked, Position: target.Position.Vec(), Subject: target.ID, Value: damage,
		}},
		Recollection{Bot: target.ID, Event: memory.Event{
			Tick: tick, Kind: memory.WasAttacked, Position: b.Position.Vec(), Subject: b.ID, Value: damage,
		}},
	)
}

// Eligible reports whether a bot may request reproduction now.
func Eligible(b world.Bot, maturity int) bool {
	v := b.Vitals
	if !v.Living() || v.Age < maturity || v.Cooldown > 0 || v.MaxEnergy <= 0 {
		return false
	}
	return v.Energy/v.MaxEnergy >= b.Genome.Get(genetics.ReproductionThreshold)
}

func (r *Resolver) reproduce(b world.Bot, a Action, out *Outcome) {
	if !Eligible(b, r.w.Config().Evolution.MaturityAge) {
		out.NoOp = true
		return
	}
	if a.Partner == b.ID {
		a.Partner = 0
	}
	b.Vitals.Intent = components.ReproIntent{Eligible: true, Partner: a.Partner}
	out.Applied = true
	out.Accepted = true
}
