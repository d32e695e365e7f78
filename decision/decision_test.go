package decision

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/simerr"
	"github.com/pthm-cable/botlife/world"
)

func perception(energy float64, neighbors ...sensors.Neighbor) *sensors.Perception {
	return &sensors.Perception{
		Tick: 100,
		Self: sensors.Self{
			ID:        1,
			Position:  r2.Vec{X: 50, Y: 50},
			Energy:    energy,
			MaxEnergy: 100,
			Mature:    true,
		},
		Neighbors: neighbors,
		Bounds:    r2.Box{Max: r2.Vec{X: 100, Y: 100}},
	}
}

func food(id uint64, dx float64) sensors.Neighbor {
	return sensors.Neighbor{ID: id, Kind: components.KindResource, Offset: r2.Vec{X: dx}, Distance: dx, Quantity: 5}
}

func threat(id uint64, dx float64) sensors.Neighbor {
	return sensors.Neighbor{ID: id, Kind: components.KindBot, Offset: r2.Vec{X: dx}, Distance: dx, Energy: 50, Aggression: 0.9}
}

// loner neither signals nor hunts.
func loner() genetics.Genome {
	return genetics.Default().With(genetics.Sociability, 0).With(genetics.Aggression, 0)
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }
func (panicky) Decide(*sensors.Perception, *memory.Memory, genetics.Genome) action.Action {
	panic("boom")
}

func TestDecideRecoversPanic(t *testing.T) {
	a, err := Decide(panicky{}, perception(50), nil, genetics.Default())
	if err == nil {
		t.Error("expected panic to be reported")
	}
	if a.Kind != action.KindIdle {
		t.Errorf("expected idle, got %v", a)
	}
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	rng := rand.New(rand.NewSource(1))
	for _, name := range append(config.StrategyNames, config.ModeChain) {
		s, err := New(name, cfg, rng)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("expected name %s, got %s", name, s.Name())
		}
	}
	if _, err := New("neural", cfg, rng); !simerr.Is(err, simerr.KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
	if _, err := NewChainFromNames([]string{config.ModeChain}, cfg, rng); err == nil {
		t.Error("expected nested chain to be rejected")
	}
}

func TestNameFor(t *testing.T) {
	tests := []struct {
		gene float64
		want string
	}{
		{0, config.StrategyBehaviorTree},
		{0.3, config.StrategyUtility},
		{0.6, config.StrategyGOAP},
		{1, config.StrategyQLearning},
	}
	for _, tt := range tests {
		g := genetics.Default().With(genetics.StrategyChoice, tt.gene)
		if got := NameFor(config.ModeGenetic, g); got != tt.want {
			t.Errorf("gene %v: expected %s, got %s", tt.gene, tt.want, got)
		}
	}
	if got := NameFor(config.StrategyGOAP, genetics.Default()); got != config.StrategyGOAP {
		t.Errorf("expected fixed mode to win, got %s", got)
	}
}

func TestBehaviorTree(t *testing.T) {
	tests := []struct {
		name string
		p    *sensors.Perception
		g    genetics.Genome
		kind action.Kind
		leaf string
	}{
		{"flee threat", perception(60, threat(2, 10)), loner(), action.KindMove, "flee"},
		{"warn when sociable", perception(60, threat(2, 10)), loner().With(genetics.Sociability, 1), action.KindEmit, "warn"},
		{"eat in reach", perception(30, food(3, 5)), loner(), action.KindEat, "eat"},
		{"approach food", perception(30, food(3, 50)), loner(), action.KindMove, "approach_food"},
		{"reproduce", perception(90), loner(), action.KindReproduce, "reproduce"},
		{"explore", perception(55), loner(), action.KindMove, "explore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bt := NewBehaviorTree(config.Default(), rand.New(rand.NewSource(1)))
			a := bt.Decide(tt.p, nil, tt.g)
			if a.Kind != tt.kind {
				t.Errorf("expected %v, got %v", tt.kind, a)
			}
			if got := bt.Describe().LastChoice; got != tt.leaf {
				t.Errorf("expected leaf %s, got %s", tt.leaf, got)
			}
		})
	}
}

func TestFleeHeadsAway(t *testing.T) {
	bt := NewBehaviorTree(config.Default(), rand.New(rand.NewSource(1)))
	a := bt.Decide(perception(60, threat(2, 10)), nil, loner())
	if a.Direction.X >= 0 {
		t.Errorf("expected to move away from a threat on +x, got %v", a.Direction)
	}
}

func TestCurves(t *testing.T) {
	curves := map[string]Curve{
		"linear":      Linear(2, -0.5),
		"inverse":     Inverse(),
		"sigmoid":     Sigmoid(10, 0.5),
		"exponential": Exponential(2),
		"smoothstep":  Smoothstep(0.2, 0.8),
	}
	for name, c := range curves {
		for x := -0.5; x <= 1.5; x += 0.1 {
			if y := c(x); y < 0 || y > 1 {
				t.Errorf("%s(%v) = %v outside [0,1]", name, x, y)
			}
		}
	}
	if Smoothstep(0.2, 0.8)(0.5) != 0.5 {
		t.Error("expected smoothstep midpoint 0.5")
	}
}

func TestUtilityTieBreak(t *testing.T) {
	cands := []candidate{
		{"move", action.Move(r2.Vec{X: 1}), 0.5},
		{"emit", action.Emit(world.SignalFood), 0.5},
		{"eat", action.Eat(3), 0.5},
		{"attack", action.Attack(4), 0.5},
		{"idle", action.Idle(), 0.1},
	}
	scores := []float64{0.5, 0.5, 0.5, 0.5, 0.1}
	if got := best(cands, scores); cands[got].name != "eat" {
		t.Errorf("expected eat to win the tie, got %s", cands[got].name)
	}
}

func TestUtilityPrefersEatingWhenHungry(t *testing.T) {
	u := NewUtility(config.Default(), rand.New(rand.NewSource(1)))
	a := u.Decide(perception(10, food(3, 5)), nil, loner())
	if a.Kind != action.KindEat || a.Target != 3 {
		t.Errorf("expected eat(3), got %v", a)
	}
	a = u.Decide(perception(60, threat(2, 5)), nil, loner().With(genetics.Caution, 1))
	if a.Kind != action.KindMove || a.Direction.X >= 0 {
		t.Errorf("expected flight, got %v", a)
	}
}

func planNames(plan []int) []string {
	var out []string
	for _, i := range plan {
		out = append(out, Operators[i].Name)
	}
	return out
}

func TestPlan(t *testing.T) {
	g := genetics.Default()
	tests := []struct {
		name  string
		start Facts
		goal  Goal
		want  []string
	}{
		{"explore for food", FactSafe, GoalFed, []string{"explore", "move_to_food", "eat"}},
		{"recall beats explore", FactSafe | FactRemembersFood, GoalFed, []string{"recall_food", "move_to_food", "eat"}},
		{"food in sight", FactSafe | FactSeesFood, GoalFed, []string{"move_to_food", "eat"}},
		{"flee", FactThreatened, GoalSafe, []string{"flee"}},
		{"reproduce", FactSafe | FactFed | FactCanMate, GoalReproduced, []string{"reproduce"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planNames(Plan(Operators, tt.start, tt.goal, g, 256))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestPlanBudgetAndTies(t *testing.T) {
	g := genetics.Default()
	if plan := Plan(Operators, FactSafe, GoalFed, g, 0); plan != nil {
		t.Errorf("expected no plan without budget, got %v", plan)
	}
	ops := []Operator{
		{Name: "first", Add: FactFed, Cost: fixed(1)},
		{Name: "second", Add: FactFed, Cost: fixed(1)},
	}
	if plan := Plan(ops, 0, GoalFed, g, 10); len(plan) != 1 || plan[0] != 0 {
		t.Errorf("expected the first inserted operator to win the tie, got %v", plan)
	}
	unreachable := []Operator{{Name: "noop", Add: FactSeesFood, Cost: fixed(1)}}
	if plan := Plan(unreachable, 0, GoalFed, g, 10); plan != nil {
		t.Errorf("expected no plan, got %v", plan)
	}
}

func TestGOAPDecide(t *testing.T) {
	s := NewGOAP(config.Default(), rand.New(rand.NewSource(1)))
	a := s.Decide(perception(30, food(3, 40)), nil, loner())
	if a.Kind != action.KindMove {
		t.Errorf("expected to approach food, got %v", a)
	}
	st := s.Describe()
	if st.Goal != "fed" || len(st.Plan) != 2 || st.Plan[0] != "move_to_food" {
		t.Errorf("expected fed goal with move_to_food plan, got %+v", st)
	}
	// Arriving drops the finished step.
	a = s.Decide(perception(30, food(3, 5)), nil, loner())
	if a.Kind != action.KindEat || a.Target != 3 {
		t.Errorf("expected eat(3), got %v", a)
	}
	// A threat switches goal.
	a = s.Decide(perception(30, threat(2, 10)), nil, loner())
	if a.Kind != action.KindMove || s.Describe().Goal != "safe" {
		t.Errorf("expected to re-plan for safety, got %v goal %s", a, s.Describe().Goal)
	}
}

func TestGOAPIdlesWithoutPlan(t *testing.T) {
	cfg := config.Default()
	cfg.Decision.PlanBudget = 1
	s := NewGOAP(cfg, rand.New(rand.NewSource(1)))
	a := s.Decide(perception(30, food(3, 40)), nil, loner())
	if a.Kind != action.KindIdle {
		t.Errorf("expected idle, got %v", a)
	}
	if st := s.Describe(); st.Goal != "fed" || len(st.Plan) != 0 {
		t.Errorf("expected fed goal with empty plan, got %+v", st)
	}

	c := NewChain(NewGOAP(cfg, rand.New(rand.NewSource(1))), fixedStrategy{"eater", action.Eat(7)})
	a = c.Decide(perception(30, food(3, 40)), nil, loner())
	if a.Kind != action.KindEat || c.Describe().LastChoice != "eater" {
		t.Errorf("expected eater to answer, got %v from %s", a, c.Describe().LastChoice)
	}
}

func TestGOAPExploresWhenSatisfied(t *testing.T) {
	s := NewGOAP(config.Default(), rand.New(rand.NewSource(1)))
	p := perception(95)
	p.Self.Mature = false
	a := s.Decide(p, nil, loner())
	if a.Kind != action.KindMove {
		t.Errorf("expected to explore, got %v", a)
	}
	st := s.Describe()
	if st.Goal != "explore" || len(st.Plan) != 1 || st.Plan[0] != "wander" {
		t.Errorf("expected explore goal with wander plan, got %+v", st)
	}
}

// In a one-state world where only eating pays, greedy choice converges on
// eating and the windowed reward does not fall.
func TestQLearningConverges(t *testing.T) {
	cfg := config.Default()
	cfg.QLearning.Alpha = 0.2
	cfg.QLearning.Epsilon = 0.5
	cfg.QLearning.EpsilonDecay = 0.99
	cfg.QLearning.EpsilonMin = 0.05
	q := NewQLearning(cfg, rand.New(rand.NewSource(42)))

	var valid [NumQActions]bool
	for i := range valid {
		valid[i] = true
	}
	const window = 100
	var means []float64
	total := 0.0
	for step := 1; step <= 10*window; step++ {
		a := q.choose(0, valid)
		q.decay()
		r := 0.0
		if a == QEat {
			r = 1
		}
		q.learn(0, a, r, 0)
		total += r
		if step%window == 0 {
			means = append(means, total/window)
			total = 0
		}
	}
	for i := 1; i < len(means); i++ {
		if means[i] < means[i-1]-0.1 {
			t.Errorf("window %d reward %v fell from %v", i, means[i], means[i-1])
		}
	}
	if last := means[len(means)-1]; last < 0.8 {
		t.Errorf("expected final window reward near 1, got %v", last)
	}
	q.epsilon = 0
	if best := q.choose(0, valid); best != QEat {
		t.Errorf("expected greedy choice eat, got %v", best)
	}
}

func TestQLearningDecideAndReward(t *testing.T) {
	cfg := config.Default()
	cfg.QLearning.Epsilon = 0
	cfg.QLearning.EpsilonMin = 0
	q := NewQLearning(cfg, rand.New(rand.NewSource(1)))
	p := perception(30, food(3, 5))

	// All values start at zero so the first valid action, move_to_food, wins.
	a := q.Decide(p, nil, loner())
	if a.Kind != action.KindEat {
		t.Errorf("expected move_to_food to resolve to eat(3) in reach, got %v", a)
	}
	q.Reward(5, false)
	q.Decide(p, nil, loner())
	if q.Value(q.lastState, QMoveToFood) <= 0 {
		t.Errorf("expected positive value after reward, got %v", q.Value(q.lastState, QMoveToFood))
	}
	q.Reward(-10, true)
	if st := q.Describe(); st.Updates != 2 || st.Visited != 1 {
		t.Errorf("expected 2 updates over 1 state, got %+v", st)
	}
}

func TestQStateEncoding(t *testing.T) {
	seen := make(map[int]bool)
	for e := range energyBuckets {
		for f := range foodBuckets {
			for d := range densityBuckets {
				for th := range threatBuckets {
					s := encodeState(e, f, d, th)
					if s < 0 || s >= NumQStates || seen[s] {
						t.Fatalf("state %d out of range or duplicated", s)
					}
					seen[s] = true
				}
			}
		}
	}
}

type fixedStrategy struct {
	name string
	a    action.Action
}

func (f fixedStrategy) Name() string { return f.name }
func (f fixedStrategy) Decide(*sensors.Perception, *memory.Memory, genetics.Genome) action.Action {
	return f.a
}

func TestChainFallsThrough(t *testing.T) {
	c := NewChain(
		fixedStrategy{"lazy", action.Idle()},
		fixedStrategy{"eater", action.Eat(7)},
		fixedStrategy{"mover", action.Move(r2.Vec{X: 1})},
	)
	a := c.Decide(perception(50), nil, genetics.Default())
	if a.Kind != action.KindEat || c.Describe().LastChoice != "eater" {
		t.Errorf("expected eater to answer, got %v from %s", a, c.Describe().LastChoice)
	}
	if c.String() != "lazy>eater>mover" {
		t.Errorf("unexpected chain %s", c.String())
	}
	all := NewChain(fixedStrategy{"lazy", action.Idle()})
	if a := all.Decide(perception(50), nil, genetics.Default()); a.Kind != action.KindIdle {
		t.Errorf("expected idle, got %v", a)
	}
}
