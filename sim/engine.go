// Package sim drives the simulation: it owns the world, sequences every
// system in a fixed order each tick and exposes the control surface used by
// the binaries and the HTTP server.
package sim

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/botlife/action"
	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/decision"
	"github.com/pthm-cable/botlife/evolution"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/memory"
	"github.com/pthm-cable/botlife/sensors"
	"github.com/pthm-cable/botlife/simerr"
	"github.com/pthm-cable/botlife/telemetry"
	"github.com/pthm-cable/botlife/world"
)

// TickSummary describes one completed tick.
type TickSummary = telemetry.TickSummary

// mind is the per-bot state that lives outside the ECS.
type mind struct {
	mem      *memory.Memory
	strategy decision.Strategy
	rng      *rand.Rand
}

// job is one bot's slot in the decide phase. Workers write only their own
// slot.
type job struct {
	id     uint64
	mind   *mind
	genome genetics.Genome
	p      *sensors.Perception
	act    action.Action
	err    error
}

// Engine is the simulation facade. All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	cfg  *config.Config
	seed int64
	rng  *rand.Rand

	world    *world.World
	sensor   *sensors.Sensor
	resolver *action.Resolver
	evo      *evolution.System
	pool     *pool
	minds    map[uint64]*mind
	jobs     []job

	lifetimes *telemetry.LifetimeTracker
	hall      *telemetry.HallOfFame
	perf      *telemetry.PerfCollector

	epoch    uint64
	counters Counters
	halted   error
	last     TickSummary
	snap     *Snapshot
	check    func() error

	observers []func(TickSummary)
	maxTicks  uint64
	interval  time.Duration

	// Run control
	running bool
	paused  bool
	wake    chan struct{}
	cancel  func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithHallOfFame replaces the empty hall of fame, e.g. with one loaded from
// a previous run.
func WithHallOfFame(h *telemetry.HallOfFame) Option {
	return func(e *Engine) { e.hall = h }
}

// WithObserver registers fn to receive every tick summary. Observers run
// on the stepping goroutine after the engine lock is released.
func WithObserver(fn func(TickSummary)) Option {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// WithMaxTicks stops Run once the world reaches tick n. 0 runs forever.
func WithMaxTicks(n uint64) Option {
	return func(e *Engine) { e.maxTicks = n }
}

// WithTickInterval paces Run. 0 runs as fast as possible.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// New builds an engine from a copy of cfg and populates the initial world.
// The same cfg and seed always produce the same run.
func New(cfg *config.Config, seed int64, opts ...Option) (*Engine, error) {
	c := cfg.Clone()
	if err := c.Prepare(); err != nil {
		return nil, err
	}
	if c.Decision.Mode == config.ModeChain {
		if _, err := decision.NewChainFromNames(c.Decision.Chain, c, rand.New(rand.NewSource(seed))); err != nil {
			return nil, err
		}
	} else if c.Decision.Mode != config.ModeGenetic {
		if _, err := decision.New(c.Decision.Mode, c, rand.New(rand.NewSource(seed))); err != nil {
			return nil, err
		}
	}

	rng := rand.New(rand.NewSource(seed))
	w := world.New(c, seed)
	e := &Engine{
		cfg:       c,
		seed:      seed,
		rng:       rng,
		world:     w,
		sensor:    sensors.New(w),
		resolver:  action.NewResolver(w),
		evo:       evolution.New(c),
		pool:      newPool(c.Engine.Workers, c.Engine.ParallelThreshold),
		minds:     make(map[uint64]*mind),
		lifetimes: telemetry.NewLifetimeTracker(),
		perf:      telemetry.NewPerfCollector(c.Telemetry.WindowTicks),
		wake:      make(chan struct{}, 1),
	}
	e.check = w.CheckConsistency
	for _, opt := range opts {
		opt(e)
	}
	if e.hall == nil {
		e.hall = telemetry.NewHallOfFame(c.HallOfFame, rand.New(rand.NewSource(seed^0x5eed)))
	}

	if err := w.Populate(rng); err != nil {
		return nil, fmt.Errorf("populate world: %w", err)
	}
	for range c.Population.InitialBots {
		p, ok := w.RandomFreePosition(rng, 0)
		if !ok {
			break
		}
		if _, err := e.addBot(world.BotSpec{Position: p, Genome: genetics.Random(rng), Energy: c.Energy.Initial}, ""); err != nil {
			return nil, err
		}
	}
	w.Refresh()
	e.snap = e.capture()

	slog.Info("engine_created",
		"seed", seed,
		"bots", w.NumLiveBots(),
		"resources", w.NumResources(),
		"obstacles", len(w.ObstacleIDs()),
		"mode", c.Decision.Mode,
	)
	return e, nil
}

// addBot creates a bot with its mind and lifetime record. An empty strategy
// uses the configured decision mode.
func (e *Engine) addBot(spec world.BotSpec, strategy string) (uint64, error) {
	m, err := e.newMind(e.world.NextID(), spec.Genome, strategy)
	if err != nil {
		return 0, err
	}
	id, err := e.world.AddBot(spec)
	if err != nil {
		return 0, err
	}
	e.minds[id] = m
	b, _ := e.world.Bot(id)
	e.lifetimes.Register(id, e.world.Tick(), b.Vitals.LineageID, m.strategy.Name(), spec.Genome)
	return id, nil
}

func (e *Engine) newMind(id uint64, g genetics.Genome, strategy string) (*mind, error) {
	mc := e.cfg.Memory
	rng := rand.New(rand.NewSource(e.seed + int64(id)*7919))
	var (
		s   decision.Strategy
		err error
	)
	if strategy != "" {
		s, err = decision.New(strategy, e.cfg, rng)
	} else {
		s, err = decision.ForGenome(e.cfg, g, rng)
	}
	if err != nil {
		return nil, err
	}
	return &mind{mem: memory.New(mc.Capacity, mc.VisitCapacity, mc.CellSize), strategy: s, rng: rng}, nil
}

// Step advances the simulation by one tick. After an invariant violation
// the engine is halted and every call returns the same error.
func (e *Engine) Step() (TickSummary, error) {
	e.mu.Lock()
	sum, err := e.step()
	observers := e.observers
	e.mu.Unlock()

	if err == nil {
		for _, fn := range observers {
			fn(sum)
		}
	}
	return sum, err
}

func (e *Engine) step() (TickSummary, error) {
	if e.halted != nil {
		return e.last, e.halted
	}
	sum, err := e.advance()
	if err != nil {
		if simerr.KindOf(err) == simerr.KindUnknown {
			err = simerr.Wrap(simerr.KindInvariant, "step", err)
		}
		e.halted = err
		e.snap = e.capture()
		slog.Error("engine_halted", "tick", e.world.Tick(), "error", err)
		return e.last, err
	}
	e.last = sum
	return sum, nil
}

// advance runs one tick in the fixed phase order.
func (e *Engine) advance() (TickSummary, error) {
	w := e.world
	e.perf.StartTick()
	defer e.perf.EndTick()

	e.perf.StartPhase(telemetry.PhaseWorld)
	w.BeginTick()
	w.RegrowResources()
	if _, err := w.MaybeSpawnResource(e.rng); err != nil {
		return TickSummary{}, err
	}
	sum := TickSummary{Tick: w.Tick()}

	e.perf.StartPhase(telemetry.PhaseIndex)
	w.Refresh()

	e.perf.StartPhase(telemetry.PhaseDecide)
	e.decide()

	e.perf.StartPhase(telemetry.PhaseMemory)
	e.remember()

	e.perf.StartPhase(telemetry.PhaseResolve)
	intents := make([]action.Intent, len(e.jobs))
	for i, j := range e.jobs {
		intents[i] = action.Intent{Bot: j.id, Action: j.act}
	}
	res, err := e.resolver.Resolve(intents)
	if err != nil {
		return TickSummary{}, err
	}
	e.absorb(res, &sum)

	e.perf.StartPhase(telemetry.PhaseEvolution)
	if e.evo.Due(w.Tick()) {
		if err := e.runEpoch(&sum); err != nil {
			return TickSummary{}, err
		}
	}
	if err := e.reseed(&sum); err != nil {
		return TickSummary{}, err
	}

	if e.cfg.Engine.CheckInvariants {
		e.perf.StartPhase(telemetry.PhaseCheck)
		if err := e.check(); err != nil {
			return TickSummary{}, err
		}
	}

	e.perf.StartPhase(telemetry.PhaseTelemetry)
	e.summarize(&sum)
	e.snap = e.capture()
	return sum, nil
}

// decide senses and chooses an action for every live bot. Sensing only
// reads the world, and each job touches only its own mind, so the result
// does not depend on how the pool splits the work.
func (e *Engine) decide() {
	live := e.world.LiveBotIDs()
	e.jobs = e.jobs[:0]
	for _, id := range live {
		m, ok := e.minds[id]
		if !ok {
			continue
		}
		b, _ := e.world.Bot(id)
		e.jobs = append(e.jobs, job{id: id, mind: m, genome: *b.Genome})
	}

	jobs := e.jobs
	e.pool.run(len(jobs), func(start, end int) {
		for i := start; i < end; i++ {
			j := &jobs[i]
			p, ok := e.sensor.Sense(j.id)
			if !ok {
				j.act = action.Idle()
				continue
			}
			j.p = p
			j.act, j.err = decision.Decide(j.mind.strategy, p, j.mind.mem, j.genome)
		}
	})

	for _, j := range jobs {
		if j.err != nil {
			slog.Warn("strategy_failed", "bot", j.id, "tick", e.world.Tick(), "error", j.err)
		}
	}
}

// remember records what each bot perceived this tick. Repeated sightings
// of the same subject are recorded once.
func (e *Engine) remember() {
	dc := e.cfg.Decision
	for _, j := range e.jobs {
		p := j.p
		if p == nil {
			continue
		}
		mem := j.mind.mem
		mem.Visit(p.Tick, p.Self.Position)

		note := func(kind memory.EventKind, n sensors.Neighbor, value float64) {
			if last, ok := mem.Latest(kind); ok && last.Subject == n.ID {
				return
			}
			mem.Record(memory.Event{
				Tick:     p.Tick,
				Kind:     kind,
				Position: r2.Add(p.Self.Position, n.Offset),
				Subject:  n.ID,
				Value:    value,
			})
		}
		if n, ok := p.NearestFood(); ok {
			note(memory.ResourceSeen, n, n.Quantity)
		}
		if n, ok := p.NearestThreat(dc.ThreatAggression, dc.DangerRadius); ok {
			note(memory.ThreatSeen, n, n.Energy)
		}
		if n, ok := p.Nearest(components.KindBot); ok {
			note(memory.BotSeen, n, n.Energy)
		}
		if s, ok := strongest(p); ok {
			if last, ok := mem.Latest(memory.SignalHeard); !ok || last.Subject != s.ID {
				mem.Record(memory.Event{
					Tick:     p.Tick,
					Kind:     memory.SignalHeard,
					Position: r2.Add(p.Self.Position, s.Offset),
					Subject:  s.ID,
					Value:    float64(s.Tag),
				})
			}
		}
	}
}

func strongest(p *sensors.Perception) (sensors.SignalReading, bool) {
	var (
		best sensors.SignalReading
		ok   bool
	)
	for _, s := range p.Signals {
		if !ok || s.Strength > best.Strength {
			best, ok = s, true
		}
	}
	return best, ok
}

// absorb applies a resolution result to minds, lifetimes and the summary.
func (e *Engine) absorb(res *action.Result, sum *TickSummary) {
	w := e.world
	for _, r := range res.Memories {
		if m, ok := e.minds[r.Bot]; ok {
			m.mem.Record(r.Event)
		}
		switch r.Event.Kind {
		case memory.Ate:
			e.lifetimes.RecordForage(r.Bot, r.Event.Value)
		case memory.Attacked:
			e.lifetimes.RecordAttack(r.Bot)
			if t, ok := w.Bot(r.Event.Subject); ok && t.Vitals.State == components.Dead {
				e.lifetimes.RecordKill(r.Bot)
			}
		case memory.Emitted:
			e.lifetimes.RecordSignal(r.Bot)
		}
	}

	for _, o := range res.Outcomes {
		if o.Applied {
			switch o.Action.Kind {
			case action.KindEat:
				sum.Eats++
			case action.KindAttack:
				sum.Attacks++
			}
		}
		m, ok := e.minds[o.Bot]
		if !ok {
			continue
		}
		if l, ok := m.strategy.(decision.Learner); ok {
			l.Reward(o.Reward, o.Died)
		}
		if b, ok := w.Bot(o.Bot); ok {
			e.lifetimes.UpdateEnergy(o.Bot, b.Vitals.Energy)
		}
	}

	for _, id := range res.Died {
		e.retire(id)
	}
	sum.Died = len(res.Died)
	sum.NoOps = res.NoOps
	sum.Emitted = res.Emitted
	e.counters.Deaths += uint64(len(res.Died))
}

// retire offers a finished life to the hall of fame and drops its record.
func (e *Engine) retire(id uint64) {
	stats := e.lifetimes.Get(id)
	if stats == nil {
		return
	}
	if b, ok := e.world.Bot(id); ok {
		stats.Age = b.Vitals.Age
	}
	e.hall.Consider(id, stats)
	e.lifetimes.Remove(id)
}

func (e *Engine) runEpoch(sum *TickSummary) error {
	w := e.world
	// Culled bots are live until the epoch removes them.
	culledAge := make(map[uint64]int)
	for _, id := range w.LiveBotIDs() {
		b, _ := w.Bot(id)
		culledAge[id] = b.Vitals.Age
	}

	res, err := e.evo.Run(w, e.rng)
	if err != nil {
		return err
	}
	e.epoch++
	sum.EpochRan = true

	for _, id := range res.Removed {
		delete(e.minds, id)
		e.lifetimes.Remove(id)
	}
	for _, id := range res.Culled {
		delete(e.minds, id)
		if stats := e.lifetimes.Get(id); stats != nil {
			stats.Age = culledAge[id]
			e.hall.Consider(id, stats)
			e.lifetimes.Remove(id)
		}
	}
	for _, birth := range res.Births {
		b, _ := w.Bot(birth.Child)
		m, err := e.newMind(birth.Child, *b.Genome, "")
		if err != nil {
			return err
		}
		e.minds[birth.Child] = m
		e.lifetimes.Register(birth.Child, w.Tick(), b.Vitals.LineageID, m.strategy.Name(), *b.Genome)

		for _, parent := range []uint64{birth.ParentA, birth.ParentB} {
			if parent == 0 {
				continue
			}
			e.lifetimes.RecordChild(parent)
			if pm, ok := e.minds[parent]; ok {
				pm.mem.Record(memory.Event{
					Tick: w.Tick(), Kind: memory.Reproduced, Position: b.Position.Vec(), Subject: birth.Child,
				})
			}
		}
	}

	sum.Removed = len(res.Removed)
	sum.Culled = len(res.Culled)
	sum.Born += len(res.Births)
	e.counters.Removed += uint64(len(res.Removed))
	e.counters.Culled += uint64(len(res.Culled))
	e.counters.Births += uint64(len(res.Births))

	slog.Info("epoch",
		"epoch", e.epoch,
		"tick", w.Tick(),
		"alive", res.Alive,
		"births", len(res.Births),
		"removed", len(res.Removed),
		"culled", len(res.Culled),
	)
	return nil
}

// reseed refills a crashed population from the hall of fame, or with random
// genomes while the hall is empty.
func (e *Engine) reseed(sum *TickSummary) error {
	hc := e.cfg.HallOfFame
	alive := e.world.NumLiveBots()
	if hc.ReseedBelow <= 0 || alive >= hc.ReseedBelow {
		return nil
	}
	params := genetics.MutationParams{
		RateMin: e.cfg.Mutation.RateMin,
		RateMax: e.cfg.Mutation.RateMax,
		Amount:  e.cfg.Mutation.Amount,
	}

	reseeded, fromHall := 0, 0
	for i := 0; i < hc.ReseedCount && alive+reseeded < e.cfg.Population.MaxBots; i++ {
		p, ok := e.world.RandomFreePosition(e.rng, 0)
		if !ok {
			break
		}
		g, ok := e.hall.Sample("")
		if ok {
			g, _ = genetics.Mutate(g, e.rng, params)
			fromHall++
		} else {
			g = genetics.Random(e.rng)
		}
		if _, err := e.addBot(world.BotSpec{Position: p, Genome: g, Energy: e.cfg.Energy.Initial}, ""); err != nil {
			return err
		}
		reseeded++
	}
	if reseeded == 0 {
		return nil
	}
	sum.Born += reseeded
	e.counters.Births += uint64(reseeded)
	e.counters.Reseeded += uint64(reseeded)

	slog.Info("reseed",
		"tick", e.world.Tick(),
		"population_before", alive,
		"reseeded_count", reseeded,
		"from_hall", fromHall,
		"hall_size", e.hall.Size(""),
	)
	return nil
}

func (e *Engine) summarize(sum *TickSummary) {
	w := e.world
	live := w.LiveBotIDs()
	energies := make([]float64, 0, len(live))
	for _, id := range live {
		b, _ := w.Bot(id)
		energies = append(energies, b.Vitals.Energy)
	}
	if len(energies) > 0 {
		sum.MeanEnergy = stat.Mean(energies, nil)
	}
	sum.Epoch = e.epoch
	sum.Alive = len(live)
	sum.Signals = w.Signals.Len()
	sum.Resources = w.NumResources()
}

// Snapshot returns a copy of the world taken at the end of the last tick,
// or after the last spawn or parameter change.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Clone()
}

// Population reports the distributions the telemetry window needs.
func (e *Engine) Population() telemetry.Population {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.world
	pop := telemetry.Population{
		Strategies: make(map[string]int),
		Lineages:   e.lifetimes.ActiveLineageCount(),
		Resources:  w.NumResources(),
	}
	for _, id := range w.LiveBotIDs() {
		b, _ := w.Bot(id)
		pop.Energies = append(pop.Energies, b.Vitals.Energy)
		pop.Generations = append(pop.Generations, b.Vitals.Generation)
		if m, ok := e.minds[id]; ok {
			pop.Strategies[m.strategy.Name()]++
		}
	}
	return pop
}

// Tick returns the current tick.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Tick()
}

// Halted returns the error that halted the engine, if any.
func (e *Engine) Halted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Clone()
}

// HallOfFame returns the engine's genome archive.
func (e *Engine) HallOfFame() *telemetry.HallOfFame { return e.hall }

// Perf returns phase timings over the recent window.
func (e *Engine) Perf() telemetry.PerfStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.perf.Stats()
}

// Close stops the worker pool and any running loop.
func (e *Engine) Close() {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool.stop()
}
