package sim

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/inspector"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/simerr"
)

type panicStrategy struct{}

func (panicStrategy) Name() string { return "panic" }

func (panicStrategy) Decide(*sensors.Perception, *memory.Memory, genetics.Genome) action.Action {
	panic("broken strategy")
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World.Width = 400
	cfg.World.Height = 400
	cfg.World.Obstacles = 3
	cfg.Population.InitialBots = 20
	cfg.Population.MaxBots = 40
	cfg.Population.InitialResources = 30
	cfg.Population.MaxResources = 50
	cfg.Evolution.EpochLength = 50
	cfg.Evolution.MaturityAge = 20
	cfg.Evolution.Cooldown = 30
	cfg.Engine.Workers = 1
	cfg.Engine.CheckInvariants = true
	cfg.HallOfFame.ReseedBelow = 0
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, seed int64, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, seed, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func steps(t *testing.T, e *Engine, n int) TickSummary {
	t.Helper()
	var sum TickSummary
	for range n {
		var err error
		if sum, err = e.Step(); err != nil {
			t.Fatalf("step %d: %v", sum.Tick, err)
		}
	}
	return sum
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero max bots", func(c *config.Config) { c.Population.MaxBots = 0 }},
		{"unknown mode", func(c *config.Config) { c.Decision.Mode = "telepathy" }},
		{"empty chain", func(c *config.Config) { c.Decision.Mode = config.ModeChain; c.Decision.Chain = nil }},
		{"initial over cap", func(c *config.Config) { c.Population.InitialBots = 100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := New(cfg, 1)
			if !simerr.Is(err, simerr.KindConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	run := func(workers, threshold int) *Snapshot {
		cfg := testConfig()
		cfg.Engine.Workers = workers
		cfg.Engine.ParallelThreshold = threshold
		e := newEngine(t, cfg, 42)
		steps(t, e, 150)
		return e.Snapshot()
	}

	a := run(1, 1000)
	b := run(1, 1000)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("expected identical snapshots for the same seed")
	}
	c := run(4, 1)
	if !reflect.DeepEqual(a, c) {
		t.Error("expected the worker pool to produce the sequential result")
	}
	if len(a.Bots) == 0 {
		t.Error("expected bots in the snapshot")
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := newEngine(t, testConfig(), 1)
	b := newEngine(t, testConfig(), 2)
	steps(t, a, 20)
	steps(t, b, 20)
	if reflect.DeepEqual(a.Snapshot(), b.Snapshot()) {
		t.Error("expected different seeds to diverge")
	}
}

func TestConsistencyOverManyTicks(t *testing.T) {
	cfg := testConfig()
	cfg.HallOfFame.ReseedBelow = 5
	e := newEngine(t, cfg, 7)
	for range 600 {
		sum, err := e.Step()
		if err != nil {
			t.Fatalf("tick %d: %v", sum.Tick, err)
		}
		if sum.Alive > cfg.Population.MaxBots {
			t.Fatalf("tick %d: %d alive over cap %d", sum.Tick, sum.Alive, cfg.Population.MaxBots)
		}
	}
	if err := e.world.CheckConsistency(); err != nil {
		t.Error(err)
	}

	snap := e.Snapshot()
	alive := 0
	for _, b := range snap.Bots {
		if b.State == components.Alive.String() {
			alive++
			if _, ok := e.minds[b.ID]; !ok {
				t.Errorf("bot %d has no mind", b.ID)
			}
		}
	}
	if alive != snap.Counters.Alive || alive != e.world.NumLiveBots() {
		t.Errorf("expected %d alive, got snapshot %d world %d", alive, snap.Counters.Alive, e.world.NumLiveBots())
	}
	for id := range e.minds {
		if !e.world.Exists(id) {
			t.Errorf("mind for removed bot %d", id)
		}
	}
}

func TestPopulationCapAfterEpoch(t *testing.T) {
	cfg := testConfig()
	cfg.Population.MaxBots = 25
	cfg.Energy.BaseMetabolism = 0
	cfg.Evolution.ReproductionCost = 1
	cfg.Evolution.MaturityAge = 0
	cfg.Evolution.Cooldown = 1
	cfg.Evolution.EpochLength = 10
	e := newEngine(t, cfg, 3)
	epochs := 0
	for range 200 {
		sum, err := e.Step()
		if err != nil {
			t.Fatal(err)
		}
		if sum.EpochRan {
			epochs++
			if sum.Alive > cfg.Population.MaxBots {
				t.Errorf("epoch at tick %d left %d alive, cap %d", sum.Tick, sum.Alive, cfg.Population.MaxBots)
			}
		}
	}
	if epochs != 20 {
		t.Errorf("expected 20 epochs, got %d", epochs)
	}
}

func TestStarvedBotRemovedAtEpoch(t *testing.T) {
	cfg := testConfig()
	cfg.Population.InitialBots = 0
	cfg.Population.InitialResources = 0
	cfg.Population.MaxResources = 0
	cfg.Resource.SpawnChance = 0
	cfg.Evolution.EpochLength = 10
	e := newEngine(t, cfg, 5)

	p, _ := e.world.RandomFreePosition(e.rng, 0)
	id, err := e.Spawn(components.KindBot, p, WithEnergy(0.0001), WithStrategy(config.StrategyBehaviorTree))
	if err != nil {
		t.Fatal(err)
	}

	sum := steps(t, e, 1)
	if sum.Died != 1 {
		t.Errorf("expected 1 death, got %d", sum.Died)
	}
	bot, ok := e.Snapshot().Bot(id)
	if !ok || bot.State != components.Dead.String() {
		t.Fatalf("expected bot %d dead in the snapshot, got %+v", id, bot)
	}

	steps(t, e, 9)
	if _, ok := e.Snapshot().Bot(id); ok {
		t.Error("expected the dead bot gone after the epoch")
	}
	if _, ok := e.minds[id]; ok {
		t.Error("expected the dead bot's mind dropped")
	}
}

func TestReseedRefillsCrashedPopulation(t *testing.T) {
	cfg := testConfig()
	cfg.Population.InitialBots = 0
	cfg.HallOfFame.ReseedBelow = 5
	cfg.HallOfFame.ReseedCount = 8
	e := newEngine(t, cfg, 9)

	sum := steps(t, e, 1)
	if sum.Born != 8 || sum.Alive != 8 {
		t.Errorf("expected 8 reseeded bots, got born %d alive %d", sum.Born, sum.Alive)
	}
	if got := e.Snapshot().Counters.Reseeded; got != 8 {
		t.Errorf("expected reseed counter 8, got %d", got)
	}
}

func TestSpawn(t *testing.T) {
	cfg := testConfig()
	cfg.World.Obstacles = 0
	cfg.Population.InitialBots = 2
	cfg.Population.MaxBots = 3
	e := newEngine(t, cfg, 1)

	if _, err := e.Spawn(components.KindObstacle, r2.Vec{X: 200, Y: 200}, WithExtent(components.Extent{HalfWidth: 10, HalfHeight: 10})); err != nil {
		t.Fatalf("spawn obstacle: %v", err)
	}

	tests := []struct {
		name string
		kind components.Kind
		pos  r2.Vec
		opts []SpawnOption
		want simerr.Kind
	}{
		{"outside world", components.KindBot, r2.Vec{X: -1, Y: 10}, nil, simerr.KindConfiguration},
		{"inside obstacle", components.KindBot, r2.Vec{X: 205, Y: 195}, nil, simerr.KindConfiguration},
		{"unknown strategy", components.KindBot, r2.Vec{X: 50, Y: 50}, []SpawnOption{WithStrategy("nope")}, simerr.KindConfiguration},
		{"energy over max", components.KindBot, r2.Vec{X: 50, Y: 50}, []SpawnOption{WithEnergy(1e9)}, simerr.KindConfiguration},
		{"negative quantity", components.KindResource, r2.Vec{X: 50, Y: 50}, []SpawnOption{WithQuantity(-1)}, simerr.KindConfiguration},
		{"flat obstacle", components.KindObstacle, r2.Vec{X: 50, Y: 50}, []SpawnOption{WithExtent(components.Extent{})}, simerr.KindConfiguration},
		{"unknown kind", components.Kind(99), r2.Vec{X: 50, Y: 50}, nil, simerr.KindConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := e.Snapshot()
			_, err := e.Spawn(tt.kind, tt.pos, tt.opts...)
			if simerr.KindOf(err) != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !reflect.DeepEqual(before, e.Snapshot()) {
				t.Error("expected a rejected spawn to leave the world unchanged")
			}
		})
	}

	g := genetics.Default()
	g[genetics.Speed] = 1e6
	id, err := e.Spawn(components.KindBot, r2.Vec{X: 50, Y: 50}, WithGenome(g), WithEnergy(42))
	if err != nil {
		t.Fatal(err)
	}
	bot, ok := e.Snapshot().Bot(id)
	if !ok || bot.Energy != 42 {
		t.Fatalf("expected spawned bot with energy 42, got %+v", bot)
	}
	if limit := genetics.Specs[genetics.Speed].Max; bot.Genome.Get(genetics.Speed) != limit {
		t.Errorf("expected speed clamped to %v, got %v", limit, bot.Genome.Get(genetics.Speed))
	}

	if _, err := e.Spawn(components.KindBot, r2.Vec{X: 60, Y: 60}); !simerr.Is(err, simerr.KindCapacity) {
		t.Errorf("expected capacity error at the cap, got %v", err)
	}

	rid, err := e.Spawn(components.KindResource, r2.Vec{X: 80, Y: 80}, WithQuantity(7))
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range e.Snapshot().Resources {
		if r.ID == rid && r.Quantity != 7 {
			t.Errorf("expected quantity 7, got %v", r.Quantity)
		}
	}
}

func TestSetParameter(t *testing.T) {
	e := newEngine(t, testConfig(), 1)

	tests := []struct {
		name  string
		param string
		value float64
	}{
		{"unknown", "gravity", 1},
		{"below range", "evolution.epoch_length", 0},
		{"above range", "qlearning.epsilon", 2},
		{"not integer", "population.max_bots", 10.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := e.Parameters()
			err := e.SetParameter(tt.param, tt.value)
			if !simerr.Is(err, simerr.KindConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
			if !reflect.DeepEqual(before, e.Parameters()) {
				t.Error("expected parameters unchanged")
			}
		})
	}

	if err := e.SetParameter("evolution.epoch_length", 7); err != nil {
		t.Fatal(err)
	}
	if got := e.Config().Evolution.EpochLength; got != 7 {
		t.Errorf("expected epoch length 7, got %d", got)
	}
	steps(t, e, 7)
	if e.Snapshot().Epoch != 1 {
		t.Error("expected the new epoch length to take effect")
	}
}

func TestSetParameterResize(t *testing.T) {
	cfg := testConfig()
	cfg.World.Obstacles = 0
	e := newEngine(t, cfg, 1)
	steps(t, e, 5)

	if err := e.SetParameter("world.width", 100); err != nil {
		t.Fatal(err)
	}
	snap := e.Snapshot()
	if snap.Width != 100 {
		t.Errorf("expected width 100, got %v", snap.Width)
	}
	for _, b := range snap.Bots {
		if b.Position.X > 100 {
			t.Errorf("bot %d outside the new bounds at %v", b.ID, b.Position)
		}
	}
	for _, r := range snap.Resources {
		if r.Position.X > 100 {
			t.Errorf("resource %d outside the new bounds at %v", r.ID, r.Position)
		}
	}
	if err := e.world.CheckConsistency(); err != nil {
		t.Error(err)
	}
	steps(t, e, 5)
}

func TestSetParameterAppliesToLiveState(t *testing.T) {
	cfg := testConfig()
	cfg.World.Obstacles = 0
	e := newEngine(t, cfg, 1)
	steps(t, e, 2)

	if err := e.SetParameter("spatial.max_depth", 1); err != nil {
		t.Fatal(err)
	}
	if d := e.world.IndexDepth(); d > 1 {
		t.Errorf("expected index depth at most 1, got %d", d)
	}
	if err := e.SetParameter("spatial.max_depth", 24); err != nil {
		t.Fatal(err)
	}
	if err := e.SetParameter("spatial.node_capacity", 1); err != nil {
		t.Fatal(err)
	}
	if d := e.world.IndexDepth(); d < 2 {
		t.Errorf("expected index to split with capacity 1, got depth %d", d)
	}
	if err := e.world.CheckConsistency(); err != nil {
		t.Error(err)
	}

	tests := []struct {
		name  string
		value float64
	}{
		{"raise", 400},
		{"lower", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.SetParameter("energy.max", tt.value); err != nil {
				t.Fatal(err)
			}
			for _, b := range e.Snapshot().Bots {
				if b.MaxEnergy != tt.value {
					t.Errorf("expected bot %d max energy %v, got %v", b.ID, tt.value, b.MaxEnergy)
				}
				if b.Energy > tt.value {
					t.Errorf("expected bot %d energy at most %v, got %v", b.ID, tt.value, b.Energy)
				}
			}
		})
	}
	steps(t, e, 3)
}

func TestInspect(t *testing.T) {
	e := newEngine(t, testConfig(), 1)
	steps(t, e, 3)
	snap := e.Snapshot()

	if _, err := e.Inspect(999999); !simerr.Is(err, simerr.KindLookup) {
		t.Errorf("expected lookup error for an unknown id, got %v", err)
	}
	if len(snap.Resources) > 0 {
		if _, err := e.Inspect(snap.Resources[0].ID); !simerr.Is(err, simerr.KindLookup) {
			t.Errorf("expected lookup error for a resource, got %v", err)
		}
	}

	bot := snap.Bots[0]
	v, err := e.Inspect(bot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Genome) != int(genetics.NumGenes) {
		t.Errorf("expected %d genes, got %d", genetics.NumGenes, len(v.Genome))
	}
	if v.Strategy.Strategy != bot.Strategy {
		t.Errorf("expected strategy %q, got %q", bot.Strategy, v.Strategy.Strategy)
	}
	if f, ok := inspector.Find(v.Vitals, "Energy"); !ok || f.Value.(float64) != bot.Energy {
		t.Errorf("expected energy field %v, got %+v", bot.Energy, f)
	} else if want := min(bot.Energy/bot.MaxEnergy, 1); f.Fraction != want {
		t.Errorf("expected energy bar at %v, got %v", want, f.Fraction)
	}
	if v.Lifetime == nil {
		t.Error("expected lifetime stats for a live bot")
	}
	if len(v.Memory) > e.cfg.Memory.Capacity {
		t.Errorf("expected at most %d events, got %d", e.cfg.Memory.Capacity, len(v.Memory))
	}
}

func TestInvariantHaltPersists(t *testing.T) {
	e := newEngine(t, testConfig(), 1)
	steps(t, e, 2)
	boom := errors.New("index drift")
	e.check = func() error { return boom }

	_, err := e.Step()
	if !simerr.Is(err, simerr.KindInvariant) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped invariant violation, got %v", err)
	}
	tick := e.Tick()

	for range 3 {
		_, again := e.Step()
		if again != err {
			t.Errorf("expected the same halt error, got %v", again)
		}
	}
	if e.Tick() != tick {
		t.Errorf("expected a halted engine not to advance, tick %d became %d", tick, e.Tick())
	}
	if e.Snapshot().Halted == "" {
		t.Error("expected the snapshot to report the halt")
	}
	if _, err := e.Spawn(components.KindBot, r2.Vec{X: 10, Y: 10}); err != e.Halted() {
		t.Errorf("expected spawn refused after a halt, got %v", err)
	}
}

func TestStrategyFailureDegradesToIdle(t *testing.T) {
	cfg := testConfig()
	cfg.Population.InitialBots = 0
	e := newEngine(t, cfg, 1)
	id, err := e.Spawn(components.KindBot, r2.Vec{X: 30, Y: 30}, WithStrategy(config.StrategyUtility))
	if err != nil {
		t.Fatal(err)
	}
	e.minds[id].strategy = panicStrategy{}
	before, _ := e.Snapshot().Bot(id)

	steps(t, e, 1)
	after, _ := e.Snapshot().Bot(id)
	if after.Position != before.Position {
		t.Errorf("expected an idle bot to stay at %v, got %v", before.Position, after.Position)
	}
}

func TestRunMaxTicks(t *testing.T) {
	var seen []uint64
	e := newEngine(t, testConfig(), 1, WithMaxTicks(25), WithObserver(func(s TickSummary) { seen = append(seen, s.Tick) }))
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.Tick() != 25 || len(seen) != 25 {
		t.Errorf("expected 25 ticks observed, got tick %d and %d summaries", e.Tick(), len(seen))
	}
	if seen[0] != 1 || seen[24] != 25 {
		t.Errorf("expected ticks 1..25, got %d..%d", seen[0], seen[24])
	}
}

// One bot beside one inexhaustible resource, with nothing else changing:
// the learner should settle on eating.
func TestQLearningLearnsToEat(t *testing.T) {
	cfg := testConfig()
	cfg.World.Obstacles = 0
	cfg.Population.InitialBots = 0
	cfg.Population.InitialResources = 0
	cfg.Resource.SpawnChance = 0
	cfg.Resource.RegenRate = 0
	cfg.Energy.Max = 1e6
	cfg.Energy.MaxAge = 0
	cfg.Evolution.EpochLength = 1e6
	cfg.QLearning.Alpha = 0.5
	cfg.QLearning.Epsilon = 0.3
	cfg.QLearning.EpsilonDecay = 0.99
	cfg.QLearning.EpsilonMin = 0
	e := newEngine(t, cfg, 1)

	if _, err := e.Spawn(components.KindResource, r2.Vec{X: 201, Y: 200}, WithQuantity(1e6)); err != nil {
		t.Fatal(err)
	}
	id, err := e.Spawn(components.KindBot, r2.Vec{X: 200, Y: 200},
		WithGenome(genetics.Default()), WithEnergy(100), WithStrategy(config.StrategyQLearning))
	if err != nil {
		t.Fatal(err)
	}

	const window = 100
	var early, late int
	for i := range 6 * window {
		sum := steps(t, e, 1)
		switch {
		case i < window:
			early += sum.Eats
		case i >= 5*window:
			late += sum.Eats
		}
	}
	if late < early {
		t.Errorf("expected eating not to fall off, got %d early and %d late", early, late)
	}
	if late < window*9/10 {
		t.Errorf("expected the bot to eat on nearly every late tick, got %d of %d", late, window)
	}
	v, err := e.Inspect(id)
	if err != nil {
		t.Fatal(err)
	}
	if v.Strategy.Strategy != config.StrategyQLearning || v.Strategy.Updates == 0 {
		t.Errorf("expected a trained q-learner, got %+v", v.Strategy)
	}
}

func TestRunPauseResumeStop(t *testing.T) {
	ticks := make(chan uint64, 1024)
	e := newEngine(t, testConfig(), 1, WithObserver(func(s TickSummary) {
		select {
		case ticks <- s.Tick:
		default:
		}
	}))

	e.Pause()
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	if e.Tick() != 0 {
		t.Fatalf("expected a paused run not to step, got tick %d", e.Tick())
	}
	e.Resume()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case tick := <-ticks:
			if tick < 5 {
				continue
			}
		case <-deadline:
			t.Fatal("timed out waiting for ticks")
		}
		break
	}

	e.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
	if e.Running() {
		t.Error("expected Run to have exited")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	e := newEngine(t, testConfig(), 1, WithTickInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Errorf("expected nil on context end, got %v", err)
	}
	if e.Tick() == 0 {
		t.Error("expected some ticks before the deadline")
	}
}
