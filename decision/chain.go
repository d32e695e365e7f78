package decision

import (
	"math/rand"
	"strings"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/simerr"
)

// Chain asks its strategies in order and takes the first non-Idle action.
type Chain struct {
	strategies []Strategy
	last       string
}

// NewChain creates a fallback chain.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// NewChainFromNames builds a chain of named strategies sharing rng.
func NewChainFromNames(names []string, cfg *config.Config, rng *rand.Rand) (*Chain, error) {
	if len(names) == 0 {
		return nil, simerr.Configuration("strategy", "empty fallback chain")
	}
	c := &Chain{}
	for _, name := range names {
		if name == config.ModeChain {
			return nil, simerr.Configuration("strategy", "fallback chain cannot nest %q", name)
		}
		s, err := New(name, cfg, rng)
		if err != nil {
			return nil, err
		}
		c.strategies = append(c.strategies, s)
	}
	return c, nil
}

func (c *Chain) Name() string { return config.ModeChain }

func (c *Chain) Decide(p *sensors.Perception, mem *memory.Memory, g genetics.Genome) action.Action {
	c.last = ""
	for _, s := range c.strategies {
		a := s.Decide(p, mem, g)
		if a.Kind != action.KindIdle {
			c.last = s.Name()
			return a
		}
	}
	return action.Idle()
}

// Reward forwards to every learning member.
func (c *Chain) Reward(r float64, terminal bool) {
	for _, s := range c.strategies {
		if l, ok := s.(Learner); ok {
			l.Reward(r, terminal)
		}
	}
}

func (c *Chain) Describe() State {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	st := State{Strategy: c.Name(), Plan: names, LastChoice: c.last}
	if len(c.strategies) > 0 {
		inner := Describe(c.strategies[0])
		st.Goal = inner.Goal
		st.Epsilon = inner.Epsilon
	}
	return st
}

// String lists the chain members.
func (c *Chain) String() string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return strings.Join(names, ">")
}
