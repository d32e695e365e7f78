// Package world holds the authoritative simulation state: every entity, the
// spatial index over them, the signal medium and the ambient fields.
package world

import (
	"slices"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/simerr"
	"github.com/pthm-cable/botlife/spatial"
)

// Bot gives access to a bot's components. Pointers stay valid until the
// next entity is added or removed.
type Bot struct {
	ID       uint64
	Position *components.Position
	Velocity *components.Velocity
	Vitals   *components.Vitals
	Genome   *genetics.Genome
}

// Resource gives access to a resource's components.
type Resource struct {
	ID       uint64
	Position *components.Position
	Stock    *components.Stock
}

// Obstacle gives access to an obstacle's components.
type Obstacle struct {
	ID       uint64
	Position components.Position
	Extent   components.Extent
}

// BotSpec describes a bot to create.
type BotSpec struct {
	Position   r2.Vec
	Genome     genetics.Genome
	Energy     float64
	Generation int
	LineageID  uint64 // 0 starts a new lineage at the bot's own id
	ParentA    uint64
	ParentB    uint64
}

// World is the entity store. It is not safe for concurrent mutation; during
// the parallel sensing phase callers only read.
type World struct {
	cfg    *config.Config
	ecs    *ecs.World
	bounds r2.Box
	tick   uint64
	nextID uint64

	entities map[uint64]ecs.Entity

	botMapper *ecs.Map5[
		components.Identity,
		components.Position,
		components.Velocity,
		components.Vitals,
		components.Genome,
	]
	botFilter *ecs.Filter5[
		components.Identity,
		components.Position,
		components.Velocity,
		components.Vitals,
		components.Genome,
	]
	resourceMapper *ecs.Map3[components.Identity, components.Position, components.Stock]
	resourceFilter *ecs.Filter3[components.Identity, components.Position, components.Stock]
	obstacleMapper *ecs.Map3[components.Identity, components.Position, components.Extent]
	obstacleFilter *ecs.Filter3[components.Identity, components.Position, components.Extent]

	// Individual component mappers for lookups
	identMap  *ecs.Map1[components.Identity]
	posMap    *ecs.Map1[components.Position]
	velMap    *ecs.Map1[components.Velocity]
	vitalsMap *ecs.Map1[components.Vitals]
	genomeMap *ecs.Map1[components.Genome]
	stockMap  *ecs.Map1[components.Stock]
	extentMap *ecs.Map1[components.Extent]

	// index mirrors every alive entity with a position. In rebuild mode it is
	// marked stale on mutation and rebuilt before the next query.
	index *spatial.Quadtree
	stale bool

	// obstacles indexes obstacle centres for collision checks.
	obstacles     *spatial.Quadtree
	maxHalfExtent float64

	Signals *SignalStore
	Ambient *Ambient
}

// New creates an empty world sized by cfg. seed drives the ambient noise.
func New(cfg *config.Config, seed int64) *World {
	w := ecs.NewWorld()
	bounds := r2.Box{Max: r2.Vec{X: cfg.World.Width, Y: cfg.World.Height}}
	sc := cfg.Spatial
	return &World{
		cfg:      cfg,
		ecs:      w,
		bounds:   bounds,
		entities: make(map[uint64]ecs.Entity),

		botMapper: ecs.NewMap5[
			components.Identity,
			components.Position,
			components.Velocity,
			components.Vitals,
			components.Genome,
		](w),
		botFilter: ecs.NewFilter5[
			components.Identity,
			components.Position,
			components.Velocity,
			components.Vitals,
			components.Genome,
		](w),
		resourceMapper: ecs.NewMap3[components.Identity, components.Position, components.Stock](w),
		resourceFilter: ecs.NewFilter3[components.Identity, components.Position, components.Stock](w),
		obstacleMapper: ecs.NewMap3[components.Identity, components.Position, components.Extent](w),
		obstacleFilter: ecs.NewFilter3[components.Identity, components.Position, components.Extent](w),

		identMap:  ecs.NewMap1[components.Identity](w),
		posMap:    ecs.NewMap1[components.Position](w),
		velMap:    ecs.NewMap1[components.Velocity](w),
		vitalsMap: ecs.NewMap1[components.Vitals](w),
		genomeMap: ecs.NewMap1[components.Genome](w),
		stockMap:  ecs.NewMap1[components.Stock](w),
		extentMap: ecs.NewMap1[components.Extent](w),

		index:     spatial.New(bounds, sc.NodeCapacity, sc.MaxDepth),
		obstacles: spatial.New(bounds, sc.NodeCapacity, sc.MaxDepth),

		Signals: newSignalStore(bounds, sc.NodeCapacity, sc.MaxDepth,
			cfg.Signals.MaxSignals, cfg.Signals.MinStrength, cfg.Signals.RangePerStrength),
		Ambient: newAmbient(seed, cfg.Ambient.NoiseScale, cfg.Ambient.Drift, cfg.Ambient.DayLength),
	}
}

// Config returns the configuration the world reads.
func (w *World) Config() *config.Config { return w.cfg }

// Bounds returns the world rectangle.
func (w *World) Bounds() r2.Box { return w.bounds }

// Tick returns the current tick.
func (w *World) Tick() uint64 { return w.tick }

// NextID returns the id the next created entity will receive.
func (w *World) NextID() uint64 { return w.nextID + 1 }

// BeginTick advances the clock, ages signals and moves ambient time. It
// returns the number of signals that faded out.
func (w *World) BeginTick() int {
	w.tick++
	w.Ambient.advance(w.tick)
	return w.Signals.Decay()
}

func (w *World) allocID() uint64 {
	w.nextID++
	return w.nextID
}

// InBounds reports whether p lies inside the world.
func (w *World) InBounds(p r2.Vec) bool {
	return p.X >= w.bounds.Min.X && p.X <= w.bounds.Max.X && p.Y >= w.bounds.Min.Y && p.Y <= w.bounds.Max.Y
}

// Clamp moves p to the nearest point inside the world.
func (w *World) Clamp(p r2.Vec) r2.Vec {
	return r2.Vec{
		X: min(max(p.X, w.bounds.Min.X), w.bounds.Max.X),
		Y: min(max(p.Y, w.bounds.Min.Y), w.bounds.Max.Y),
	}
}

// Blocked reports whether p lies inside any obstacle.
func (w *World) Blocked(p r2.Vec) bool {
	m := w.maxHalfExtent
	if w.obstacles.Len() == 0 {
		return false
	}
	box := r2.Box{Min: r2.Vec{X: p.X - m, Y: p.Y - m}, Max: r2.Vec{X: p.X + m, Y: p.Y + m}}
	for _, id := range w.obstacles.QueryRect(box) {
		e := w.entities[id]
		if w.extentMap.Get(e).Contains(*w.posMap.Get(e), p) {
			return true
		}
	}
	return false
}

// AddBot creates a bot and returns its id.
func (w *World) AddBot(spec BotSpec) (uint64, error) {
	if !w.InBounds(spec.Position) {
		return 0, simerr.Configuration("spawn", "position (%g, %g) outside world", spec.Position.X, spec.Position.Y)
	}
	if w.Blocked(spec.Position) {
		return 0, simerr.Configuration("spawn", "position (%g, %g) inside an obstacle", spec.Position.X, spec.Position.Y)
	}
	id := w.allocID()
	lineage := spec.LineageID
	if lineage == 0 {
		lineage = id
	}
	genome := spec.Genome
	genome.Clamp()
	energy := min(max(spec.Energy, 0), w.cfg.Energy.Max)

	ident := components.Identity{ID: id, Kind: components.KindBot}
	pos := components.PositionOf(spec.Position)
	vel := components.Velocity{}
	vitals := components.Vitals{
		Energy:     energy,
		MaxEnergy:  w.cfg.Energy.Max,
		Generation: spec.Generation,
		LineageID:  lineage,
		ParentA:    spec.ParentA,
		ParentB:    spec.ParentB,
		BornTick:   w.tick,
	}
	g := components.Genome{Genes: genome}
	e := w.botMapper.NewEntity(&ident, &pos, &vel, &vitals, &g)
	w.entities[id] = e
	if err := w.indexInsert(id, spec.Position); err != nil {
		return 0, err
	}
	return id, nil
}

// AddResource creates a resource and returns its id.
func (w *World) AddResource(p r2.Vec, stock components.Stock) (uint64, error) {
	if !w.InBounds(p) {
		return 0, simerr.Configuration("spawn", "position (%g, %g) outside world", p.X, p.Y)
	}
	if w.Blocked(p) {
		return 0, simerr.Configuration("spawn", "position (%g, %g) inside an obstacle", p.X, p.Y)
	}
	if stock.Quantity < 0 || stock.Capacity < stock.Quantity {
		return 0, simerr.Configuration("spawn", "resource quantity %g must be within [0, %g]", stock.Quantity, stock.Capacity)
	}
	id := w.allocID()
	ident := components.Identity{ID: id, Kind: components.KindResource}
	pos := components.PositionOf(p)
	e := w.resourceMapper.NewEntity(&ident, &pos, &stock)
	w.entities[id] = e
	if err := w.indexInsert(id, p); err != nil {
		return 0, err
	}
	return id, nil
}

// AddObstacle creates an obstacle centred on p and returns its id.
func (w *World) AddObstacle(p r2.Vec, extent components.Extent) (uint64, error) {
	if !w.InBounds(p) {
		return 0, simerr.Configuration("spawn", "position (%g, %g) outside world", p.X, p.Y)
	}
	if extent.HalfWidth <= 0 || extent.HalfHeight <= 0 {
		return 0, simerr.Configuration("spawn", "obstacle extent must be positive")
	}
	id := w.allocID()
	ident := components.Identity{ID: id, Kind: components.KindObstacle}
	pos := components.PositionOf(p)
	e := w.obstacleMapper.NewEntity(&ident, &pos, &extent)
	w.entities[id] = e
	if err := w.obstacles.Insert(id, p); err != nil {
		return 0, simerr.Invariant("spawn", "obstacle index: %v", err)
	}
	w.maxHalfExtent = max(w.maxHalfExtent, extent.HalfWidth, extent.HalfHeight)
	if err := w.indexInsert(id, p); err != nil {
		return 0, err
	}
	return id, nil
}

// Remove destroys an entity. Only the removal phase calls this; action
// resolution never destroys entities.
func (w *World) Remove(id uint64) bool {
	e, ok := w.entities[id]
	if !ok {
		return false
	}
	if w.identMap.Get(e).Kind == components.KindObstacle {
		w.obstacles.Remove(id)
	}
	w.ecs.RemoveEntity(e)
	delete(w.entities, id)
	w.indexRemove(id)
	return true
}

// Exists reports whether id refers to a live entity record.
func (w *World) Exists(id uint64) bool {
	_, ok := w.entities[id]
	return ok
}

// Kind returns the kind of id.
func (w *World) Kind(id uint64) (components.Kind, bool) {
	e, ok := w.entities[id]
	if !ok {
		return 0, false
	}
	return w.identMap.Get(e).Kind, true
}

// Position returns the position of id.
func (w *World) Position(id uint64) (r2.Vec, bool) {
	e, ok := w.entities[id]
	if !ok {
		return r2.Vec{}, false
	}
	return w.posMap.Get(e).Vec(), true
}

// Bot returns the bot with id.
func (w *World) Bot(id uint64) (Bot, bool) {
	e, ok := w.entities[id]
	if !ok || w.identMap.Get(e).Kind != components.KindBot {
		return Bot{}, false
	}
	return Bot{
		ID:       id,
		Position: w.posMap.Get(e),
		Velocity: w.velMap.Get(e),
		Vitals:   w.vitalsMap.Get(e),
		Genome:   &w.genomeMap.Get(e).Genes,
	}, true
}

// Resource returns the resource with id.
func (w *World) Resource(id uint64) (Resource, bool) {
	e, ok := w.entities[id]
	if !ok || w.identMap.Get(e).Kind != components.KindResource {
		return Resource{}, false
	}
	return Resource{ID: id, Position: w.posMap.Get(e), Stock: w.stockMap.Get(e)}, true
}

// Obstacle returns the obstacle with id.
func (w *World) Obstacle(id uint64) (Obstacle, bool) {
	e, ok := w.entities[id]
	if !ok || w.identMap.Get(e).Kind != components.KindObstacle {
		return Obstacle{}, false
	}
	return Obstacle{ID: id, Position: *w.posMap.Get(e), Extent: *w.extentMap.Get(e)}, true
}

// SetPosition moves a bot. The caller clamps and collision-checks p.
func (w *World) SetPosition(id uint64, p r2.Vec) error {
	e, ok := w.entities[id]
	if !ok {
		return simerr.Lookup("move", "no entity %d", id)
	}
	if !w.InBounds(p) {
		return simerr.Invariant("move", "position (%g, %g) outside world", p.X, p.Y)
	}
	*w.posMap.Get(e) = components.PositionOf(p)
	if w.vitalsMap.Get(e).State == components.Dead {
		return nil
	}
	return w.indexUpdate(id, p)
}

// MarkDead transitions a bot to Dead and drops it from the spatial index.
// The entity stays until the next removal phase.
func (w *World) MarkDead(id uint64) bool {
	b, ok := w.Bot(id)
	if !ok || b.Vitals.State == components.Dead {
		return false
	}
	b.Vitals.State = components.Dead
	b.Vitals.DiedTick = w.tick
	b.Vitals.Intent = components.ReproIntent{}
	w.indexRemove(id)
	return true
}

// SetMaxEnergy sets the energy capacity of every bot, clamping current
// energy to it.
func (w *World) SetMaxEnergy(limit float64) {
	query := w.botFilter.Query()
	for query.Next() {
		_, _, _, vitals, _ := query.Get()
		vitals.MaxEnergy = limit
		vitals.Energy = min(vitals.Energy, limit)
	}
}

// BotIDs returns every bot id, alive or dead, ascending.
func (w *World) BotIDs() []uint64 {
	var ids []uint64
	query := w.botFilter.Query()
	for query.Next() {
		ident, _, _, _, _ := query.Get()
		ids = append(ids, ident.ID)
	}
	slices.Sort(ids)
	return ids
}

// LiveBotIDs returns the ids of Alive bots, ascending.
func (w *World) LiveBotIDs() []uint64 {
	var ids []uint64
	query := w.botFilter.Query()
	for query.Next() {
		ident, _, _, vitals, _ := query.Get()
		if vitals.State == components.Alive {
			ids = append(ids, ident.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// DeadBotIDs returns the ids of bots pending removal, ascending.
func (w *World) DeadBotIDs() []uint64 {
	var ids []uint64
	query := w.botFilter.Query()
	for query.Next() {
		ident, _, _, vitals, _ := query.Get()
		if vitals.State == components.Dead {
			ids = append(ids, ident.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// ResourceIDs returns every resource id, ascending.
func (w *World) ResourceIDs() []uint64 {
	var ids []uint64
	query := w.resourceFilter.Query()
	for query.Next() {
		ident, _, _ := query.Get()
		ids = append(ids, ident.ID)
	}
	slices.Sort(ids)
	return ids
}

// ObstacleIDs returns every obstacle id, ascending.
func (w *World) ObstacleIDs() []uint64 {
	var ids []uint64
	query := w.obstacleFilter.Query()
	for query.Next() {
		ident, _, _ := query.Get()
		ids = append(ids, ident.ID)
	}
	slices.Sort(ids)
	return ids
}

// NumLiveBots counts Alive bots.
func (w *World) NumLiveBots() int {
	n := 0
	query := w.botFilter.Query()
	for query.Next() {
		_, _, _, vitals, _ := query.Get()
		if vitals.State == components.Alive {
			n++
		}
	}
	return n
}

// NumResources counts resources.
func (w *World) NumResources() int {
	n := 0
	query := w.resourceFilter.Query()
	for query.Next() {
		n++
	}
	return n
}

// indexed returns the ids that must be in the spatial index, ascending.
func (w *World) indexed() []uint64 {
	ids := w.LiveBotIDs()
	ids = append(ids, w.ResourceIDs()...)
	ids = append(ids, w.ObstacleIDs()...)
	slices.Sort(ids)
	return ids
}
