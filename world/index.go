package world

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/simerr"
	"github.com/pthm-cable/botlife/spatial"
)

func (w *World) incremental() bool { return w.cfg.Spatial.Mode != config.SpatialRebuild }

func (w *World) indexInsert(id uint64, p r2.Vec) error {
	if !w.incremental() {
		w.stale = true
		return nil
	}
	if err := w.index.Insert(id, p); err != nil {
		return simerr.Invariant("index", "%v", err)
	}
	return nil
}

func (w *World) indexUpdate(id uint64, p r2.Vec) error {
	if !w.incremental() {
		w.stale = true
		return nil
	}
	if err := w.index.Update(id, p); err != nil {
		return simerr.Invariant("index", "%v", err)
	}
	return nil
}

func (w *World) indexRemove(id uint64) {
	if !w.incremental() {
		w.stale = true
		return
	}
	w.index.Remove(id)
}

// Refresh brings a stale index up to date. The engine calls it before the
// parallel sensing phase so readers never trigger a rebuild.
func (w *World) Refresh() {
	if w.stale {
		w.rebuildIndex()
	}
}

// Rebuild reconstructs every index with the current spatial node capacity
// and depth limit.
func (w *World) Rebuild() {
	sc := w.cfg.Spatial
	w.index = spatial.New(w.bounds, sc.NodeCapacity, sc.MaxDepth)
	w.obstacles = spatial.New(w.bounds, sc.NodeCapacity, sc.MaxDepth)
	w.reindexObstacles()
	w.rebuildIndex()
	w.Signals.reindex(spatial.New(w.bounds, sc.NodeCapacity, sc.MaxDepth))
}

// IndexDepth returns the depth of the entity index.
func (w *World) IndexDepth() int { return w.index.Depth() }

// Stale reports whether the index awaits a rebuild.
func (w *World) Stale() bool { return w.stale }

func (w *World) rebuildIndex() {
	w.index.Clear()
	for _, id := range w.indexed() {
		p, _ := w.Position(id)
		// Positions are kept in bounds by every mutator.
		_ = w.index.Insert(id, p)
	}
	w.stale = false
}

// QueryRadius returns the ids of indexed entities within r of p, ascending.
func (w *World) QueryRadius(p r2.Vec, r float64) []uint64 {
	w.Refresh()
	return w.index.QueryRadius(p, r)
}

// QueryRadiusInto is QueryRadius appending into dst[:0]. It does not
// refresh, so it is safe for concurrent readers after Refresh.
func (w *World) QueryRadiusInto(dst []uint64, p r2.Vec, r float64) []uint64 {
	return w.index.QueryRadiusInto(dst, p, r)
}

// QueryRect returns the ids of indexed entities inside box, ascending.
func (w *World) QueryRect(box r2.Box) []uint64 {
	w.Refresh()
	return w.index.QueryRect(box)
}

// IndexedIDs returns the ids in the spatial index, ascending.
func (w *World) IndexedIDs() []uint64 {
	w.Refresh()
	return w.index.IDs()
}

// CheckConsistency verifies that the spatial index mirrors exactly the Alive
// entities with a position, at their current positions, and that no live
// bot has negative energy.
func (w *World) CheckConsistency() error {
	w.Refresh()
	want := w.indexed()
	got := w.index.IDs()
	if !slices.Equal(want, got) {
		return simerr.Invariant("check", "spatial index holds %d ids, world has %d indexable entities", len(got), len(want))
	}
	for _, id := range want {
		p, _ := w.Position(id)
		ip, _ := w.index.Position(id)
		if p != ip {
			return simerr.Invariant("check", "entity %d indexed at (%g, %g) but is at (%g, %g)", id, ip.X, ip.Y, p.X, p.Y)
		}
	}
	query := w.botFilter.Query()
	var bad uint64
	for query.Next() {
		ident, _, _, vitals, _ := query.Get()
		if vitals.State == components.Alive && vitals.Energy < 0 && bad == 0 {
			bad = ident.ID
		}
	}
	if bad != 0 {
		return simerr.Invariant("check", "bot %d has negative energy", bad)
	}
	return nil
}

// Resize changes the world bounds. Entities outside the new bounds are
// clamped inside and every index is rebuilt.
func (w *World) Resize(width, height float64) {
	w.bounds = r2.Box{Max: r2.Vec{X: width, Y: height}}

	query := w.botFilter.Query()
	for query.Next() {
		_, pos, _, _, _ := query.Get()
		*pos = components.PositionOf(w.Clamp(pos.Vec()))
	}
	rq := w.resourceFilter.Query()
	for rq.Next() {
		_, pos, _ := rq.Get()
		*pos = components.PositionOf(w.Clamp(pos.Vec()))
	}
	oq := w.obstacleFilter.Query()
	for oq.Next() {
		_, pos, _ := oq.Get()
		*pos = components.PositionOf(w.Clamp(pos.Vec()))
	}

	w.index.Reset(w.bounds)
	w.obstacles.Reset(w.bounds)
	w.reindexObstacles()
	w.rebuildIndex()
	w.Signals.reset(w.bounds)
}

func (w *World) reindexObstacles() {
	for _, id := range w.ObstacleIDs() {
		p, _ := w.Position(id)
		_ = w.obstacles.Insert(id, p)
	}
}
