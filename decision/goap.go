package decision

import (
	"container/heap"
	"math/rand"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
)

// Facts is a boolean world-state bitset for planning.
type Facts uint16

const (
	FactSeesFood Facts = 1 << iota
	FactAtFood
	FactFed
	FactThreatened
	FactSafe
	FactRemembersFood
	FactPreyNear
	FactCanMate
	FactReproduced
	FactExplored
)

func (f Facts) has(mask Facts) bool { return f&mask == mask }

// Goal is a desired fact set.
type Goal struct {
	Name string
	Want Facts
}

var (
	GoalSafe       = Goal{Name: "safe", Want: FactSafe}
	GoalFed        = Goal{Name: "fed", Want: FactFed}
	GoalReproduced = Goal{Name: "reproduced", Want: FactReproduced}
	// GoalExplore is pursued when nothing more urgent is unmet.
	GoalExplore = Goal{Name: "explore", Want: FactExplored}
)

// Operator is a planning step.
type Operator struct {
	Name   string
	Pre    Facts
	NotPre Facts // must be false
	Add    Facts
	Del    Facts
	Cost   func(g genetics.Genome) float64
	Act    func(e *env) (action.Action, bool)
}

func (o *Operator) applicable(f Facts) bool {
	return f.has(o.Pre) && f&o.NotPre == 0
}

func (o *Operator) apply(f Facts) Facts {
	return (f | o.Add) &^ o.Del
}

func fixed(c float64) func(genetics.Genome) float64 {
	return func(genetics.Genome) float64 { return c }
}

// Operators in insertion order; cost ties in planning follow this order.
var Operators = []Operator{
	{
		Name: "move_to_food", Pre: FactSeesFood, NotPre: FactAtFood, Add: FactAtFood,
		Cost: func(g genetics.Genome) float64 { return 2 / g.Get(genetics.ForageWeight) },
		Act:  (*env).approachFood,
	},
	{
		Name: "eat", Pre: FactAtFood, Add: FactFed,
		Cost: fixed(1),
		Act:  (*env).eat,
	},
	{
		Name: "recall_food", Pre: FactRemembersFood, NotPre: FactSeesFood, Add: FactSeesFood,
		Cost: fixed(3),
		Act:  (*env).recall,
	},
	{
		Name: "explore", NotPre: FactSeesFood, Add: FactSeesFood,
		Cost: func(g genetics.Genome) float64 { return 5 - 2*g.Get(genetics.Curiosity) },
		Act:  always((*env).explore),
	},
	{
		Name: "flee", Pre: FactThreatened, Add: FactSafe, Del: FactThreatened,
		Cost: fixed(1),
		Act:  (*env).flee,
	},
	{
		Name: "hunt", Pre: FactPreyNear, Add: FactFed,
		Cost: func(g genetics.Genome) float64 { return 4 - 2*g.Get(genetics.Aggression) },
		Act:  (*env).hunt,
	},
	{
		Name: "reproduce", Pre: FactCanMate, Add: FactReproduced,
		Cost: fixed(1),
		Act:  (*env).reproduce,
	},
	{
		Name: "wander", Pre: FactSafe | FactFed, NotPre: FactExplored, Add: FactExplored,
		Cost: fixed(1),
		Act:  always((*env).explore),
	},
}

// senseFacts derives planning facts from a decision environment.
func senseFacts(e *env) Facts {
	var f Facts
	if e.seesFood() {
		f |= FactSeesFood
	}
	if _, ok := e.foodInReach(); ok {
		f |= FactAtFood
	}
	if !e.hungry() {
		f |= FactFed
	}
	if e.threatened() {
		f |= FactThreatened
	} else {
		f |= FactSafe
	}
	if e.remembersFood() {
		f |= FactRemembersFood
	}
	if _, ok := e.prey(); ok {
		f |= FactPreyNear
	}
	if e.canReproduce() {
		f |= FactCanMate
	}
	return f
}

// selectGoal picks the most urgent unmet goal, falling back to exploring.
func selectGoal(f Facts) Goal {
	for _, g := range []Goal{GoalSafe, GoalFed, GoalReproduced} {
		if g == GoalReproduced && !f.has(FactCanMate) {
			continue
		}
		if !f.has(g.Want) {
			return g
		}
	}
	return GoalExplore
}

type planNode struct {
	facts Facts
	cost  float64
	seq   int
	plan  []int
	index int
}

type planHeap []*planNode

func (h planHeap) Len() int { return len(h) }
func (h planHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].seq < h[j].seq
}
func (h planHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *planHeap) Push(x any) {
	n := x.(*planNode)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *planHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[0 : n-1]
	return node
}

// Plan runs a uniform-cost search from start to a state satisfying goal,
// expanding at most budget nodes. It returns operator indices, or nil when
// no plan was found.
func Plan(ops []Operator, start Facts, goal Goal, g genetics.Genome, budget int) []int {
	if start.has(goal.Want) {
		return []int{}
	}
	open := &planHeap{}
	heap.Push(open, &planNode{facts: start})
	best := map[Facts]float64{start: 0}
	closed := make(map[Facts]struct{})
	seq := 0

	for expanded := 0; open.Len() > 0 && expanded < budget; {
		cur := heap.Pop(open).(*planNode)
		if cur.facts.has(goal.Want) {
			return cur.plan
		}
		if _, done := closed[cur.facts]; done {
			continue
		}
		closed[cur.facts] = struct{}{}
		expanded++

		for i := range ops {
			op := &ops[i]
			if !op.applicable(cur.facts) {
				continue
			}
			next := op.apply(cur.facts)
			if _, done := closed[next]; done {
				continue
			}
			cost := cur.cost + op.Cost(g)
			if c, seen := best[next]; seen && cost >= c {
				continue
			}
			best[next] = cost
			seq++
			plan := make([]int, len(cur.plan)+1)
			copy(plan, cur.plan)
			plan[len(cur.plan)] = i
			heap.Push(open, &planNode{facts: next, cost: cost, seq: seq, plan: plan})
		}
	}
	return nil
}

// GOAP plans towards its most urgent goal and executes the first step of
// the plan, re-planning when the goal changes or a step stops applying.
type GOAP struct {
	cfg *config.Config
	rng *rand.Rand

	goal    Goal
	plan    []int
	replans int
}

// NewGOAP creates a planning strategy.
func NewGOAP(cfg *config.Config, rng *rand.Rand) *GOAP {
	return &GOAP{cfg: cfg, rng: rng}
}

func (s *GOAP) Name() string { return config.StrategyGOAP }

func (s *GOAP) Decide(p *sensors.Perception, mem *memory.Memory, g genetics.Genome) action.Action {
	e := newEnv(s.cfg, s.rng, p, mem, g)
	facts := senseFacts(e)
	goal := selectGoal(facts)
	// Drop steps whose effects already hold.
	for len(s.plan) > 0 && facts.has(Operators[s.plan[0]].Add) {
		s.plan = s.plan[1:]
	}
	if goal != s.goal || len(s.plan) == 0 || !Operators[s.plan[0]].applicable(facts) {
		s.goal = goal
		s.plan = Plan(Operators, facts, goal, g, s.cfg.Decision.PlanBudget)
		s.replans++
	}
	if len(s.plan) == 0 {
		return action.Idle()
	}
	if a, ok := Operators[s.plan[0]].Act(e); ok {
		return a
	}
	s.plan = nil
	return action.Idle()
}

func (s *GOAP) Describe() State {
	st := State{Strategy: s.Name(), Goal: s.goal.Name, Updates: s.replans}
	for _, i := range s.plan {
		st.Plan = append(st.Plan, Operators[i].Name)
	}
	return st
}
