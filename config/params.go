package config

import (
	"math"
	"slices"

	"github.com/pthm-cable/botlife/simerr"
)

// Parameter describes a runtime tunable with its documented range.
type Parameter struct {
	Name        string  `json:"name"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Integer     bool    `json:"integer"`
	Description string  `json:"description"`

	get func(*Config) float64
	set func(*Config, float64)
}

// ParameterValue is a parameter together with its current value.
type ParameterValue struct {
	Parameter
	Value float64 `json:"value"`
}

func floatParam(name, desc string, min, max float64, field func(*Config) *float64) Parameter {
	return Parameter{
		Name: name, Min: min, Max: max, Description: desc,
		get: func(c *Config) float64 { return *field(c) },
		set: func(c *Config, v float64) { *field(c) = v },
	}
}

func intParam(name, desc string, min, max float64, field func(*Config) *int) Parameter {
	return Parameter{
		Name: name, Min: min, Max: max, Integer: true, Description: desc,
		get: func(c *Config) float64 { return float64(*field(c)) },
		set: func(c *Config, v float64) { *field(c) = int(v) },
	}
}

// registry lists every tunable. Order is the order reported to callers.
var registry = []Parameter{
	floatParam("world.width", "world width", 10, 1e6, func(c *Config) *float64 { return &c.World.Width }),
	floatParam("world.height", "world height", 10, 1e6, func(c *Config) *float64 { return &c.World.Height }),
	intParam("spatial.node_capacity", "quadtree points per node", 1, 4096, func(c *Config) *int { return &c.Spatial.NodeCapacity }),
	intParam("spatial.max_depth", "quadtree depth limit", 1, 24, func(c *Config) *int { return &c.Spatial.MaxDepth }),
	intParam("population.max_bots", "live bot cap", 1, 1e6, func(c *Config) *int { return &c.Population.MaxBots }),
	intParam("population.max_resources", "resource spawn cap", 0, 1e6, func(c *Config) *int { return &c.Population.MaxResources }),
	floatParam("energy.max", "bot energy capacity", 1, 1e9, func(c *Config) *float64 { return &c.Energy.Max }),
	floatParam("energy.base_metabolism", "energy drain per tick", 0, 1e3, func(c *Config) *float64 { return &c.Energy.BaseMetabolism }),
	floatParam("energy.move_cost", "energy per unit moved", 0, 1e3, func(c *Config) *float64 { return &c.Energy.MoveCost }),
	floatParam("energy.temperature_stress", "extra drain per unit of temperature deviation", 0, 1e3, func(c *Config) *float64 { return &c.Energy.TemperatureStress }),
	intParam("energy.max_age", "ticks before death of old age, 0 disables", 0, 1e9, func(c *Config) *int { return &c.Energy.MaxAge }),
	floatParam("resource.regen_rate", "quantity regrown per tick", 0, 1e3, func(c *Config) *float64 { return &c.Resource.RegenRate }),
	floatParam("resource.spawn_chance", "probability of a new resource per tick", 0, 1, func(c *Config) *float64 { return &c.Resource.SpawnChance }),
	floatParam("actions.interaction_radius", "eat and attack reach", 0.1, 1e4, func(c *Config) *float64 { return &c.Actions.InteractionRadius }),
	floatParam("actions.eat_amount", "quantity transferred per eat", 0.001, 1e6, func(c *Config) *float64 { return &c.Actions.EatAmount }),
	floatParam("actions.attack_damage", "damage per attack at attack gene 1", 0, 1e6, func(c *Config) *float64 { return &c.Actions.AttackDamage }),
	floatParam("actions.attack_efficiency", "fraction of damage gained by attacker", 0, 1, func(c *Config) *float64 { return &c.Actions.AttackEfficiency }),
	floatParam("actions.signal_cost", "energy per emitted signal", 0, 1e6, func(c *Config) *float64 { return &c.Actions.SignalCost }),
	intParam("signals.expand_ticks", "ticks a signal spreads before fading", 0, 1000, func(c *Config) *int { return &c.Signals.ExpandTicks }),
	floatParam("signals.decay_rate", "fraction of signal strength lost per tick", 0.0001, 1, func(c *Config) *float64 { return &c.Signals.DecayRate }),
	intParam("evolution.epoch_length", "ticks per evolution epoch", 1, 1e7, func(c *Config) *int { return &c.Evolution.EpochLength }),
	intParam("evolution.maturity_age", "ticks before a bot may reproduce", 0, 1e9, func(c *Config) *int { return &c.Evolution.MaturityAge }),
	floatParam("evolution.reproduction_cost", "energy paid per offspring", 0, 1e9, func(c *Config) *float64 { return &c.Evolution.ReproductionCost }),
	floatParam("evolution.mate_radius", "maximum partner distance", 0, 1e6, func(c *Config) *float64 { return &c.Evolution.MateRadius }),
	floatParam("mutation.amount", "mutation perturbation as a fraction of gene span", 0, 1, func(c *Config) *float64 { return &c.Mutation.Amount }),
	floatParam("mutation.rate_min", "lower bound on the mutation-rate gene", 0, 1, func(c *Config) *float64 { return &c.Mutation.RateMin }),
	floatParam("mutation.rate_max", "upper bound on the mutation-rate gene", 0, 1, func(c *Config) *float64 { return &c.Mutation.RateMax }),
	floatParam("qlearning.alpha", "learning rate", 0, 1, func(c *Config) *float64 { return &c.QLearning.Alpha }),
	floatParam("qlearning.gamma", "discount factor", 0, 1, func(c *Config) *float64 { return &c.QLearning.Gamma }),
	floatParam("qlearning.epsilon", "initial exploration rate", 0, 1, func(c *Config) *float64 { return &c.QLearning.Epsilon }),
	floatParam("qlearning.epsilon_min", "exploration floor", 0, 1, func(c *Config) *float64 { return &c.QLearning.EpsilonMin }),
	floatParam("qlearning.epsilon_decay", "exploration decay per decision", 0, 1, func(c *Config) *float64 { return &c.QLearning.EpsilonDecay }),
}

func lookup(name string) (Parameter, bool) {
	i := slices.IndexFunc(registry, func(p Parameter) bool { return p.Name == name })
	if i < 0 {
		return Parameter{}, false
	}
	return registry[i], true
}

// Parameters returns the current value of every tunable.
func (c *Config) Parameters() []ParameterValue {
	out := make([]ParameterValue, len(registry))
	for i, p := range registry {
		out[i] = ParameterValue{Parameter: p, Value: p.get(c)}
	}
	return out
}

// Get returns the value of a named tunable.
func (c *Config) Get(name string) (float64, error) {
	p, ok := lookup(name)
	if !ok {
		return 0, simerr.Configuration("get_parameter", "unknown parameter %q", name)
	}
	return p.get(c), nil
}

// Set validates and applies a named tunable. Out-of-range values are
// rejected, never clamped, and leave c unchanged.
func (c *Config) Set(name string, value float64) error {
	p, ok := lookup(name)
	if !ok {
		return simerr.Configuration("set_parameter", "unknown parameter %q", name)
	}
	if err := p.check(value); err != nil {
		return err
	}
	next := c.Clone()
	p.set(next, value)
	if err := next.validateRelations(); err != nil {
		return err
	}
	next.computeDerived()
	*c = *next
	return nil
}

func (p Parameter) check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return simerr.Configuration("set_parameter", "%s: value must be finite", p.Name)
	}
	if v < p.Min || v > p.Max {
		return simerr.Configuration("set_parameter", "%s: value %g outside [%g, %g]", p.Name, v, p.Min, p.Max)
	}
	if p.Integer && v != math.Trunc(v) {
		return simerr.Configuration("set_parameter", "%s: value %g must be an integer", p.Name, v)
	}
	return nil
}

// Validate checks every tunable against its range plus the structural
// settings that are not runtime tunables.
func (c *Config) Validate() error {
	for _, p := range registry {
		if err := p.check(p.get(c)); err != nil {
			return simerr.Configuration("validate", "%s", simerr.Reason(err))
		}
	}
	if err := c.validateRelations(); err != nil {
		return err
	}

	switch c.Spatial.Mode {
	case SpatialIncremental, SpatialRebuild:
	default:
		return simerr.Configuration("validate", "spatial.mode %q must be %q or %q", c.Spatial.Mode, SpatialIncremental, SpatialRebuild)
	}

	switch {
	case c.Decision.Mode == ModeGenetic:
	case c.Decision.Mode == ModeChain:
		if len(c.Decision.Chain) == 0 {
			return simerr.Configuration("validate", "decision.chain must not be empty in chain mode")
		}
		for _, name := range c.Decision.Chain {
			if !slices.Contains(StrategyNames, name) {
				return simerr.Configuration("validate", "decision.chain: unknown strategy %q", name)
			}
		}
	case slices.Contains(StrategyNames, c.Decision.Mode):
	default:
		return simerr.Configuration("validate", "decision.mode %q is not a strategy, %q or %q", c.Decision.Mode, ModeGenetic, ModeChain)
	}

	positive := []struct {
		name string
		v    int
	}{
		{"memory.capacity", c.Memory.Capacity},
		{"memory.visit_capacity", c.Memory.VisitCapacity},
		{"sensors.max_neighbors", c.Sensors.MaxNeighbors},
		{"signals.max_signals", c.Signals.MaxSignals},
		{"decision.plan_budget", c.Decision.PlanBudget},
		{"ambient.day_length", c.Ambient.DayLength},
		{"telemetry.window_ticks", c.Telemetry.WindowTicks},
		{"hall_of_fame.size", c.HallOfFame.Size},
	}
	for _, f := range positive {
		if f.v <= 0 {
			return simerr.Configuration("validate", "%s must be positive, got %d", f.name, f.v)
		}
	}
	if c.Signals.ExpandTicks < 0 {
		return simerr.Configuration("validate", "signals.expand_ticks must not be negative, got %d", c.Signals.ExpandTicks)
	}
	if c.Memory.CellSize <= 0 {
		return simerr.Configuration("validate", "memory.cell_size must be positive, got %g", c.Memory.CellSize)
	}
	if c.Population.InitialBots < 0 || c.Population.InitialBots > c.Population.MaxBots {
		return simerr.Configuration("validate", "population.initial_bots %d must be within [0, %d]", c.Population.InitialBots, c.Population.MaxBots)
	}
	if c.HallOfFame.ReseedBelow < 0 || c.HallOfFame.ReseedCount < 0 {
		return simerr.Configuration("validate", "hall_of_fame reseed settings must not be negative")
	}
	if c.Engine.Workers < 0 {
		return simerr.Configuration("validate", "engine.workers must not be negative")
	}
	return nil
}

// validateRelations checks constraints that span more than one tunable.
func (c *Config) validateRelations() error {
	if c.Mutation.RateMin > c.Mutation.RateMax {
		return simerr.Configuration("validate", "mutation.rate_min %g exceeds mutation.rate_max %g", c.Mutation.RateMin, c.Mutation.RateMax)
	}
	if c.QLearning.EpsilonMin > c.QLearning.Epsilon {
		return simerr.Configuration("validate", "qlearning.epsilon_min %g exceeds qlearning.epsilon %g", c.QLearning.EpsilonMin, c.QLearning.Epsilon)
	}
	if c.Energy.Initial < 0 || c.Energy.Initial > c.Energy.Max {
		return simerr.Configuration("validate", "energy.initial %g must be within [0, %g]", c.Energy.Initial, c.Energy.Max)
	}
	if c.Resource.MinQuantity > c.Resource.MaxQuantity {
		return simerr.Configuration("validate", "resource.min_quantity %g exceeds resource.max_quantity %g", c.Resource.MinQuantity, c.Resource.MaxQuantity)
	}
	if c.World.ObstacleMinSize > c.World.ObstacleMaxSize {
		return simerr.Configuration("validate", "world.obstacle_min_size exceeds world.obstacle_max_size")
	}
	return nil
}
