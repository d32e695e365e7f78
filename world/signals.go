package world

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/botlife/spatial"
)

// SignalTag is the semantic payload of a signal.
type SignalTag uint8

const (
	SignalDanger SignalTag = iota + 1
	SignalFood
	SignalMate
)

func (t SignalTag) String() string {
	switch t {
	case SignalDanger:
		return "danger"
	case SignalFood:
		return "food"
	case SignalMate:
		return "mate"
	default:
		return "unknown"
	}
}

// MarshalText encodes the tag by name.
func (t SignalTag) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Signal is a broadcast that spreads for Expand ticks at full strength and
// then decays.
type Signal struct {
	ID        uint64    `json:"id"`
	Origin    r2.Vec    `json:"origin"`
	Strength  float64   `json:"strength"`
	DecayRate float64   `json:"decay_rate"`
	Expand    int       `json:"expand"`
	Age       int       `json:"age"`
	Tag       SignalTag `json:"tag"`
	Tick      uint64    `json:"tick"`
	Sender    uint64    `json:"sender"`
}

// Radius is how far the signal currently reaches. It never exceeds
// Strength * rangePerStrength.
func (s Signal) Radius(rangePerStrength float64) float64 {
	r := s.Strength * rangePerStrength
	if s.Age < s.Expand {
		r *= float64(s.Age+1) / float64(s.Expand+1)
	}
	return r
}

// SignalStore is the world-wide signal medium. Signals are indexed by origin
// in their own quadtree so propagation uses the same neighbour queries as
// sensing.
type SignalStore struct {
	signals          map[uint64]*Signal
	order            []uint64 // ascending id, oldest first
	index            *spatial.Quadtree
	nextID           uint64
	maxSignals       int
	minStrength      float64
	rangePerStrength float64
}

func newSignalStore(bounds r2.Box, capacity, maxDepth, maxSignals int, minStrength, rangePerStrength float64) *SignalStore {
	return &SignalStore{
		signals:          make(map[uint64]*Signal),
		index:            spatial.New(bounds, capacity, maxDepth),
		maxSignals:       maxSignals,
		minStrength:      minStrength,
		rangePerStrength: rangePerStrength,
	}
}

// Len returns the number of active signals.
func (s *SignalStore) Len() int { return len(s.order) }

// Emit appends a signal and returns its id. The oldest signal is evicted
// when the store is full.
func (s *SignalStore) Emit(sig Signal) uint64 {
	if s.maxSignals > 0 && len(s.order) >= s.maxSignals {
		s.remove(s.order[0])
	}
	s.nextID++
	sig.ID = s.nextID
	if err := s.index.Insert(sig.ID, sig.Origin); err != nil {
		// Origins come from clamped bot positions.
		return 0
	}
	s.signals[sig.ID] = &sig
	s.order = append(s.order, sig.ID)
	return sig.ID
}

// Decay ages every signal. Signals past their spreading phase weaken by
// their decay rate, and those below the minimum strength are dropped. It
// returns the number removed.
func (s *SignalStore) Decay() int {
	var dead []uint64
	for _, id := range s.order {
		sig := s.signals[id]
		sig.Age++
		if sig.Age <= sig.Expand {
			continue
		}
		sig.Strength *= 1 - sig.DecayRate
		if sig.Strength < s.minStrength {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		s.remove(id)
	}
	return len(dead)
}

func (s *SignalStore) remove(id uint64) {
	if _, ok := s.signals[id]; !ok {
		return
	}
	delete(s.signals, id)
	s.index.Remove(id)
	if i, found := slices.BinarySearch(s.order, id); found {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

// Audible returns the signals whose current reach covers p, ascending by id.
// maxRadius bounds the search; it must be at least the reach of the
// strongest signal. The result is appended to dst[:0]. Safe for concurrent
// readers while no signal is emitted or decayed.
func (s *SignalStore) Audible(dst []Signal, p r2.Vec, maxRadius float64) []Signal {
	dst = dst[:0]
	ids := s.index.QueryRadius(p, maxRadius)
	for _, id := range ids {
		sig := s.signals[id]
		r := sig.Radius(s.rangePerStrength)
		if r2.Norm2(r2.Sub(sig.Origin, p)) <= r*r {
			dst = append(dst, *sig)
		}
	}
	return dst
}

// All returns a copy of every signal, ascending by id.
func (s *SignalStore) All() []Signal {
	out := make([]Signal, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.signals[id])
	}
	return out
}

// reset moves the medium to new bounds, dropping signals that fall outside.
func (s *SignalStore) reset(bounds r2.Box) {
	s.index.Reset(bounds)
	s.reinsert()
}

// reindex moves every signal into a fresh tree.
func (s *SignalStore) reindex(tree *spatial.Quadtree) {
	s.index = tree
	s.reinsert()
}

func (s *SignalStore) reinsert() {
	kept := s.order[:0]
	for _, id := range s.order {
		sig := s.signals[id]
		if err := s.index.Insert(id, sig.Origin); err != nil {
			delete(s.signals, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}
