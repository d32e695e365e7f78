package decision

import (
	"math/rand"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/world"
)

// Status is the result of ticking a behavior tree node.
type Status uint8

const (
	Failure Status = iota
	Success
)

// Node is a behavior tree node. A successful leaf writes its action into
// the tick.
type Node interface {
	Tick(t *btTick) Status
}

type btTick struct {
	*env
	action action.Action
	leaf   string
}

// Sequence succeeds when every child succeeds, stopping at the first
// failure.
type Sequence []Node

func (s Sequence) Tick(t *btTick) Status {
	for _, n := range s {
		if n.Tick(t) == Failure {
			return Failure
		}
	}
	return Success
}

// Selector succeeds with the first child that succeeds.
type Selector []Node

func (s Selector) Tick(t *btTick) Status {
	for _, n := range s {
		if n.Tick(t) == Success {
			return Success
		}
	}
	return Failure
}

// Condition succeeds when its predicate holds.
type Condition func(e *env) bool

func (c Condition) Tick(t *btTick) Status {
	if c(t.env) {
		return Success
	}
	return Failure
}

// Inverter flips its child's status.
type Inverter struct{ Child Node }

func (i Inverter) Tick(t *btTick) Status {
	if i.Child.Tick(t) == Success {
		return Failure
	}
	return Success
}

// ActionLeaf succeeds when its builder produces an action.
type ActionLeaf struct {
	Name  string
	Build func(e *env) (action.Action, bool)
}

func (l ActionLeaf) Tick(t *btTick) Status {
	a, ok := l.Build(t.env)
	if !ok {
		return Failure
	}
	t.action = a
	t.leaf = l.Name
	return Success
}

func leaf(name string, build func(e *env) (action.Action, bool)) ActionLeaf {
	return ActionLeaf{Name: name, Build: build}
}

func always(f func(e *env) action.Action) func(e *env) (action.Action, bool) {
	return func(e *env) (action.Action, bool) { return f(e), true }
}

func emitLeaf(name string, tag world.SignalTag) ActionLeaf {
	return leaf(name, func(e *env) (action.Action, bool) { return e.emit(tag) })
}

// DefaultTree is the stock behaviour: warn and flee, eat, breed, forage
// when hungry, share finds, explore.
func DefaultTree() Node {
	return Selector{
		Sequence{
			Condition((*env).threatened),
			Selector{
				Sequence{Condition((*env).sociable), emitLeaf("warn", world.SignalDanger)},
				Sequence{Condition((*env).aggressive), leaf("fight", (*env).hunt)},
				leaf("flee", (*env).flee),
			},
		},
		Sequence{Condition((*env).canEat), leaf("eat", (*env).eat)},
		Sequence{
			Condition((*env).canReproduce),
			Selector{
				Sequence{
					Condition((*env).sociable),
					Inverter{Condition(func(e *env) bool { _, ok := e.p.NearestMate(); return ok })},
					emitLeaf("call_mate", world.SignalMate),
				},
				leaf("reproduce", (*env).reproduce),
			},
		},
		Sequence{
			Condition((*env).hungry),
			Selector{
				leaf("approach_food", (*env).approachFood),
				leaf("hunt", (*env).hunt),
				leaf("follow_food_signal", func(e *env) (action.Action, bool) { return e.followSignal(world.SignalFood) }),
				leaf("recall_food", (*env).recall),
			},
		},
		Sequence{
			Condition((*env).seesFood),
			Condition((*env).sociable),
			emitLeaf("share_food", world.SignalFood),
		},
		leaf("avoid_danger", func(e *env) (action.Action, bool) { return e.avoidSignal(world.SignalDanger) }),
		leaf("explore", always((*env).explore)),
	}
}

// BehaviorTree decides by ticking a stateless tree from the root.
type BehaviorTree struct {
	cfg  *config.Config
	rng  *rand.Rand
	root Node
	last string
}

// NewBehaviorTree creates a strategy running DefaultTree.
func NewBehaviorTree(cfg *config.Config, rng *rand.Rand) *BehaviorTree {
	return &BehaviorTree{cfg: cfg, rng: rng, root: DefaultTree()}
}

func (b *BehaviorTree) Name() string { return config.StrategyBehaviorTree }

func (b *BehaviorTree) Decide(p *sensors.Perception, mem *memory.Memory, g genetics.Genome) action.Action {
	t := &btTick{env: newEnv(b.cfg, b.rng, p, mem, g), action: action.Idle(), leaf: "idle"}
	b.root.Tick(t)
	b.last = t.leaf
	return t.action
}

func (b *BehaviorTree) Describe() State {
	return State{Strategy: b.Name(), LastChoice: b.last}
}
