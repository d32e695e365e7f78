package action

import (
	"github.com/pthm-cable/botlife/genetics"
)

// upkeep applies metabolism and ageing to every living bot and marks bots
// that ran out of energy or time as Dead. It returns the newly dead ids.
func (r *Resolver) upkeep() []uint64 {
	cfg := r.w.Config().Energy
	var died []uint64
	for _, id := range r.w.LiveBotIDs() {
		b, _ := r.w.Bot(id)
		v := b.Vitals

		stress := r.w.Ambient.Sample(b.Position.Vec()).TemperatureStress()
		cost := b.Genome.Get(genetics.Metabolism) * (cfg.BaseMetabolism + cfg.TemperatureStress*stress)
		v.Energy -= cost
		v.Age++
		if v.Cooldown > 0 {
			v.Cooldown--
		}

		// Clamp energy
		if v.Energy > v.MaxEnergy {
			v.Energy = v.MaxEnergy
		}
		if v.Energy <= 0 {
			v.Energy = 0
		}

		// Death check
		if v.Energy <= 0 || (cfg.MaxAge > 0 && v.Age >= cfg.MaxAge) {
			r.w.MarkDead(id)
			died = append(died, id)
		}
	}
	return died
}
