// Package evolution runs the epoch pass: removal of the dead, population
// capping, and reproduction of eligible bots.
package evolution

import (
	"cmp"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
	"github.com/pthm-cable/botlife/world"
)

// Retries for an offspring position that lands in an obstacle.
const placementAttempts = 10

// Birth records one offspring.
type Birth struct {
	Child   uint64
	ParentA uint64
	ParentB uint64 // 0 for asexual
}

// Result summarises an epoch.
type Result struct {
	Tick    uint64
	Removed []uint64 // Dead bots removed, ascending
	Culled  []uint64 // Live bots removed to respect the cap
	Births  []Birth
	Alive   int // Live bots after the epoch
}

// System runs epochs.
type System struct {
	cfg *config.Config
}

// New creates an evolution system reading cfg.
func New(cfg *config.Config) *System {
	return &System{cfg: cfg}
}

// Due reports whether tick ends an epoch.
func (s *System) Due(tick uint64) bool {
	n := s.cfg.Evolution.EpochLength
	return n > 0 && tick > 0 && tick%uint64(n) == 0
}

// breeder is a reproduction candidate.
type breeder struct {
	bot      world.Bot
	pos      r2.Vec
	energy   float64
	sexual   bool
	partner  uint64
	consumed bool
}

// Run executes one epoch. All randomness comes from rng.
func (s *System) Run(w *world.World, rng *rand.Rand) (*Result, error) {
	res := &Result{Tick: w.Tick()}

	// Collect before mutating.
	res.Removed = w.DeadBotIDs()
	var eligible []uint64
	for _, id := range w.LiveBotIDs() {
		b, _ := w.Bot(id)
		if b.Vitals.Intent.Eligible && b.Vitals.Living() && b.Vitals.Cooldown == 0 {
			eligible = append(eligible, id)
		}
	}

	for _, id := range res.Removed {
		w.Remove(id)
	}

	res.Culled = s.cull(w)
	if len(res.Culled) > 0 {
		culled := make(map[uint64]bool, len(res.Culled))
		for _, id := range res.Culled {
			culled[id] = true
		}
		eligible = slices.DeleteFunc(eligible, func(id uint64) bool { return culled[id] })
	}

	free := s.cfg.Population.MaxBots - w.NumLiveBots()
	if free > 0 && len(eligible) > 0 {
		births, err := s.breed(w, rng, eligible, free)
		if err != nil {
			return nil, err
		}
		res.Births = births
	}

	for _, id := range w.LiveBotIDs() {
		b, _ := w.Bot(id)
		b.Vitals.Intent.Eligible = false
		b.Vitals.Intent.Partner = 0
	}
	res.Alive = w.NumLiveBots()
	return res, nil
}

// cull removes the lowest-energy live bots over the cap. Among equal
// energies the younger, higher id goes first.
func (s *System) cull(w *world.World) []uint64 {
	live := w.LiveBotIDs()
	over := len(live) - s.cfg.Population.MaxBots
	if over <= 0 {
		return nil
	}
	energy := make(map[uint64]float64, len(live))
	for _, id := range live {
		b, _ := w.Bot(id)
		energy[id] = b.Vitals.Energy
	}
	slices.SortFunc(live, func(a, b uint64) int {
		if c := cmp.Compare(energy[a], energy[b]); c != 0 {
			return c
		}
		return cmp.Compare(b, a)
	})
	culled := slices.Clone(live[:over])
	for _, id := range culled {
		w.MarkDead(id)
		w.Remove(id)
	}
	slices.Sort(culled)
	return culled
}

// admit ranks candidates by energy descending then id ascending and keeps
// at most free of them.
func admit(w *world.World, ids []uint64, free int) []*breeder {
	out := make([]*breeder, 0, len(ids))
	for _, id := range ids {
		b, _ := w.Bot(id)
		out = append(out, &breeder{
			bot:     b,
			pos:     b.Position.Vec(),
			energy:  b.Vitals.Energy,
			sexual:  b.Vitals.Intent.Partner != 0,
			partner: b.Vitals.Intent.Partner,
		})
	}
	slices.SortFunc(out, func(a, b *breeder) int {
		if c := cmp.Compare(b.energy, a.energy); c != 0 {
			return c
		}
		return cmp.Compare(a.bot.ID, b.bot.ID)
	})
	if len(out) > free {
		out = out[:free]
	}
	return out
}

// mate finds the nearest unconsumed admitted candidate within radius. The
// requested partner wins when it qualifies.
func mate(self *breeder, pool []*breeder, radius float64) *breeder {
	r2max := radius * radius
	var best *breeder
	bestD := 0.0
	for _, c := range pool {
		if c == self || c.consumed {
			continue
		}
		d := r2.Norm2(r2.Sub(c.pos, self.pos))
		if d > r2max {
			continue
		}
		if c.bot.ID == self.partner {
			return c
		}
		if best == nil || d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func (s *System) breed(w *world.World, rng *rand.Rand, ids []uint64, free int) ([]Birth, error) {
	ec := s.cfg.Evolution
	params := genetics.MutationParams{
		RateMin: s.cfg.Mutation.RateMin,
		RateMax: s.cfg.Mutation.RateMax,
		Amount:  s.cfg.Mutation.Amount,
	}
	pool := admit(w, ids, free)

	// Pointers into the ark storage go stale once an entity is added, so
	// offspring are created after every parent has been charged.
	type plan struct {
		spec  world.BotSpec
		birth Birth
	}
	var plans []plan
	for _, p := range pool {
		if p.consumed {
			continue
		}
		p.consumed = true
		var other *breeder
		if p.sexual {
			other = mate(p, pool, ec.MateRadius)
		}

		var (
			genome genetics.Genome
			origin r2.Vec
			birth  = Birth{ParentA: p.bot.ID}
			gen    = p.bot.Vitals.Generation
		)
		if other != nil {
			share := ec.ReproductionCost / 2
			if p.energy <= share || other.energy <= share {
				other = nil
			}
		}
		if other != nil {
			other.consumed = true
			genome = genetics.Offspring(*p.bot.Genome, *other.bot.Genome, rng, params)
			origin = r2.Scale(0.5, r2.Add(p.pos, other.pos))
			birth.ParentB = other.bot.ID
			gen = max(gen, other.bot.Vitals.Generation)
			share := ec.ReproductionCost / 2
			p.bot.Vitals.Energy -= share
			other.bot.Vitals.Energy -= share
			other.bot.Vitals.Cooldown = ec.Cooldown
		} else {
			if p.energy <= ec.ReproductionCost {
				continue
			}
			genome, _ = genetics.Mutate(*p.bot.Genome, rng, params)
			origin = p.pos
			p.bot.Vitals.Energy -= ec.ReproductionCost
		}
		p.bot.Vitals.Cooldown = ec.Cooldown

		plans = append(plans, plan{
			spec: world.BotSpec{
				Position:   s.place(w, rng, origin, p.pos),
				Genome:     genome,
				Energy:     ec.OffspringEnergy,
				Generation: gen + 1,
				LineageID:  p.bot.Vitals.LineageID,
				ParentA:    birth.ParentA,
				ParentB:    birth.ParentB,
			},
			birth: birth,
		})
	}

	births := make([]Birth, 0, len(plans))
	for _, pl := range plans {
		id, err := w.AddBot(pl.spec)
		if err != nil {
			return births, err
		}
		pl.birth.Child = id
		births = append(births, pl.birth)
	}
	return births, nil
}

// place scatters an offspring around origin, clamped into the world and
// off obstacles. fallback is a known free point.
func (s *System) place(w *world.World, rng *rand.Rand, origin, fallback r2.Vec) r2.Vec {
	off := s.cfg.Evolution.SpawnOffset
	for range placementAttempts {
		p := w.Clamp(r2.Add(origin, r2.Vec{
			X: (rng.Float64()*2 - 1) * off,
			Y: (rng.Float64()*2 - 1) * off,
		}))
		if !w.Blocked(p) {
			return p
		}
	}
	return fallback
}
