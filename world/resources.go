package world

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/components"
)

const freePositionAttempts = 50

// RandomFreePosition draws a uniform in-bounds point outside every obstacle,
// keeping margin from the edges. ok is false when no point was found.
func (w *World) RandomFreePosition(rng *rand.Rand, margin float64) (r2.Vec, bool) {
	b := w.bounds
	for range freePositionAttempts {
		p := r2.Vec{
			X: b.Min.X + margin + rng.Float64()*max(b.Max.X-b.Min.X-2*margin, 0),
			Y: b.Min.Y + margin + rng.Float64()*max(b.Max.Y-b.Min.Y-2*margin, 0),
		}
		if !w.Blocked(p) {
			return p, true
		}
	}
	return r2.Vec{}, false
}

// NewStock draws a resource stock. One in five resources is a non-regrowing
// energy cache.
func (w *World) NewStock(rng *rand.Rand) components.Stock {
	rc := w.cfg.Resource
	q := rc.MinQuantity + rng.Float64()*(rc.MaxQuantity-rc.MinQuantity)
	if rng.Intn(5) == 0 {
		return components.Stock{Quantity: q, Capacity: q, Kind: components.ResourceEnergy}
	}
	return components.Stock{Quantity: q, Capacity: q, RegenRate: rc.RegenRate, Kind: components.ResourceFood}
}

// Populate places the initial obstacles and resources.
func (w *World) Populate(rng *rand.Rand) error {
	wc := w.cfg.World
	for range wc.Obstacles {
		size := func() float64 {
			return wc.ObstacleMinSize + rng.Float64()*(wc.ObstacleMaxSize-wc.ObstacleMinSize)
		}
		ext := components.Extent{HalfWidth: size() / 2, HalfHeight: size() / 2}
		p, ok := w.RandomFreePosition(rng, max(ext.HalfWidth, ext.HalfHeight))
		if !ok {
			continue
		}
		if _, err := w.AddObstacle(p, ext); err != nil {
			return err
		}
	}
	for range w.cfg.Population.InitialResources {
		if _, err := w.SpawnResource(rng); err != nil {
			return err
		}
	}
	return nil
}

// SpawnResource places one random resource. It returns 0 without error when
// no free position was found.
func (w *World) SpawnResource(rng *rand.Rand) (uint64, error) {
	p, ok := w.RandomFreePosition(rng, 0)
	if !ok {
		return 0, nil
	}
	return w.AddResource(p, w.NewStock(rng))
}

// dayFactor is the day multiplier during daylight, else 1.
func (w *World) dayFactor() float64 {
	if w.Ambient.IsDay() {
		return w.cfg.Resource.DayMultiplier
	}
	return 1
}

// RegrowResources adds each food resource's regrowth, scaled by local
// fertility and daylight, up to capacity.
func (w *World) RegrowResources() {
	day := w.dayFactor()
	query := w.resourceFilter.Query()
	for query.Next() {
		_, pos, stock := query.Get()
		if stock.RegenRate <= 0 || stock.Quantity >= stock.Capacity {
			continue
		}
		fert := w.Ambient.Sample(pos.Vec()).Fertility
		stock.Quantity = min(stock.Quantity+stock.RegenRate*(0.5+fert)*day, stock.Capacity)
	}
}

// MaybeSpawnResource spawns a resource with the configured per-tick chance,
// boosted by day, while below the resource cap.
func (w *World) MaybeSpawnResource(rng *rand.Rand) (uint64, error) {
	chance := w.cfg.Resource.SpawnChance * w.dayFactor()
	if rng.Float64() >= chance || w.NumResources() >= w.cfg.Population.MaxResources {
		return 0, nil
	}
	return w.SpawnResource(rng)
}
