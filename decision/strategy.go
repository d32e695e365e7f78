// Package decision turns a perception into an action. Four strategies are
// available behind one interface: a behavior tree, utility scoring, goal
// oriented action planning and tabular Q-learning. Each bot owns its own
// strategy instance.
package decision

import (
	"fmt"
	"math/rand"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/simerr"
)

// Strategy chooses one action per tick. Decide must only read p and mem.
type Strategy interface {
	Name() string
	Decide(p *sensors.Perception, mem *memory.Memory, g genetics.Genome) action.Action
}

// Learner receives the reward of its last decision before the next one.
type Learner interface {
	Reward(r float64, terminal bool)
}

// Describer exposes a strategy's internal state for inspection.
type Describer interface {
	Describe() State
}

// State is a strategy's inspectable state. Fields not used by a strategy
// stay empty.
type State struct {
	Strategy   string   `json:"strategy"`
	LastChoice string   `json:"last_choice,omitempty"`
	Goal       string   `json:"goal,omitempty"`
	Plan       []string `json:"plan,omitempty"`
	Epsilon    float64  `json:"epsilon,omitempty"`
	QState     int      `json:"q_state,omitempty"`
	Visited    int      `json:"visited_states,omitempty"`
	Updates    int      `json:"updates,omitempty"`
}

// Decide runs s and converts a panic into Idle. err reports the panic.
func Decide(s Strategy, p *sensors.Perception, mem *memory.Memory, g genetics.Genome) (a action.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			a = action.Idle()
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Decide(p, mem, g), nil
}

// Describe returns s's state, or just its name when it keeps none.
func Describe(s Strategy) State {
	if d, ok := s.(Describer); ok {
		return d.Describe()
	}
	return State{Strategy: s.Name()}
}

// New builds the named strategy. rng drives every random choice it makes.
func New(name string, cfg *config.Config, rng *rand.Rand) (Strategy, error) {
	switch name {
	case config.StrategyBehaviorTree:
		return NewBehaviorTree(cfg, rng), nil
	case config.StrategyUtility:
		return NewUtility(cfg, rng), nil
	case config.StrategyGOAP:
		return NewGOAP(cfg, rng), nil
	case config.StrategyQLearning:
		return NewQLearning(cfg, rng), nil
	case config.ModeChain:
		return NewChainFromNames(cfg.Decision.Chain, cfg, rng)
	default:
		return nil, simerr.Configuration("strategy", "unknown strategy %q", name)
	}
}

// NameFor returns the strategy name a bot with genome g runs under mode.
func NameFor(mode string, g genetics.Genome) string {
	if mode == config.ModeGenetic {
		return config.StrategyNames[g.StrategyIndex(len(config.StrategyNames))]
	}
	return mode
}

// ForGenome builds the strategy cfg's decision mode assigns to genome g.
func ForGenome(cfg *config.Config, g genetics.Genome, rng *rand.Rand) (Strategy, error) {
	return New(NameFor(cfg.Decision.Mode, g), cfg, rng)
}
