package sim

import (
	"log/slog"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/simerr"
	"github.com/pthm-cable/botlife/world"
)

type spawnOptions struct {
	genome   *genetics.Genome
	energy   *float64
	quantity *float64
	extent   *components.Extent
	strategy string
}

// SpawnOption adjusts an entity created by Spawn. Options that do not apply
// to the spawned kind are ignored.
type SpawnOption func(*spawnOptions)

// WithGenome sets a bot's genome. Genes are clamped into range.
func WithGenome(g genetics.Genome) SpawnOption {
	return func(o *spawnOptions) { o.genome = &g }
}

// WithEnergy sets a bot's starting energy.
func WithEnergy(v float64) SpawnOption {
	return func(o *spawnOptions) { o.energy = &v }
}

// WithQuantity sets a resource's starting quantity.
func WithQuantity(v float64) SpawnOption {
	return func(o *spawnOptions) { o.quantity = &v }
}

// WithExtent sets an obstacle's half size.
func WithExtent(ext components.Extent) SpawnOption {
	return func(o *spawnOptions) { o.extent = &ext }
}

// WithStrategy forces a bot's strategy regardless of the decision mode.
func WithStrategy(name string) SpawnOption {
	return func(o *spawnOptions) { o.strategy = name }
}

// Spawn adds an entity at pos. A rejected request leaves the world
// unchanged.
func (e *Engine) Spawn(kind components.Kind, pos r2.Vec, opts ...SpawnOption) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return 0, e.halted
	}

	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		id  uint64
		err error
	)
	switch kind {
	case components.KindBot:
		id, err = e.spawnBot(pos, o)
	case components.KindResource:
		stock := e.world.NewStock(e.rng)
		if o.quantity != nil {
			stock.Quantity = *o.quantity
			stock.Capacity = max(stock.Capacity, *o.quantity)
		}
		id, err = e.world.AddResource(pos, stock)
	case components.KindObstacle:
		half := e.cfg.World.ObstacleMinSize / 2
		ext := components.Extent{HalfWidth: half, HalfHeight: half}
		if o.extent != nil {
			ext = *o.extent
		}
		if ext.HalfWidth <= 0 || ext.HalfHeight <= 0 {
			return 0, simerr.Configuration("spawn", "obstacle extent must be positive")
		}
		id, err = e.world.AddObstacle(pos, ext)
	default:
		return 0, simerr.Configuration("spawn", "unknown entity kind %d", kind)
	}
	if err != nil {
		return 0, err
	}
	e.snap = e.capture()
	slog.Info("spawn", "kind", kind.String(), "id", id, "x", pos.X, "y", pos.Y, "tick", e.world.Tick())
	return id, nil
}

func (e *Engine) spawnBot(pos r2.Vec, o spawnOptions) (uint64, error) {
	if n := e.world.NumLiveBots(); n >= e.cfg.Population.MaxBots {
		return 0, simerr.Capacity("spawn", "population at cap %d", e.cfg.Population.MaxBots)
	}
	g := genetics.Random(e.rng)
	if o.genome != nil {
		g = *o.genome
		g.Clamp()
	}
	energy := e.cfg.Energy.Initial
	if o.energy != nil {
		energy = *o.energy
		if energy <= 0 || energy > e.cfg.Energy.Max {
			return 0, simerr.Configuration("spawn", "energy %g must be within (0, %g]", energy, e.cfg.Energy.Max)
		}
	}
	return e.addBot(world.BotSpec{Position: pos, Genome: g, Energy: energy}, o.strategy)
}

// SetParameter changes a tunable between ticks. Out-of-range values are
// rejected and leave the engine unchanged. Resizing the world clamps every
// entity into the new bounds.
func (e *Engine) SetParameter(name string, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	old, err := e.cfg.Get(name)
	if err != nil {
		return err
	}
	if err := e.cfg.Set(name, value); err != nil {
		return err
	}
	switch name {
	case "world.width", "world.height":
		e.world.Resize(e.cfg.World.Width, e.cfg.World.Height)
	case "spatial.node_capacity", "spatial.max_depth":
		e.world.Rebuild()
	case "energy.max":
		e.world.SetMaxEnergy(e.cfg.Energy.Max)
	}
	e.snap = e.capture()
	slog.Info("parameter_set", "name", name, "old", old, "new", value, "tick", e.world.Tick())
	return nil
}

// Parameters returns every tunable with its range and current value.
func (e *Engine) Parameters() []config.ParameterValue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Parameters()
}
