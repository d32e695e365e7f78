// Package memory holds per-bot bounded memories of perceived events and
// recently visited places.
package memory

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// EventKind tags a remembered event.
type EventKind uint8

const (
	ResourceSeen EventKind = iota + 1
	ResourceDepleted
	BotSeen
	ThreatSeen
	SignalHeard
	Ate
	Attacked
	WasAttacked
	Emitted
	Reproduced
)

var eventNames = map[EventKind]string{
	ResourceSeen:     "resource_seen",
	ResourceDepleted: "resource_depleted",
	BotSeen:          "bot_seen",
	ThreatSeen:       "threat_seen",
	SignalHeard:      "signal_heard",
	Ate:              "ate",
	Attacked:         "attacked",
	WasAttacked:      "was_attacked",
	Emitted:          "emitted",
	Reproduced:       "reproduced",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is one remembered observation.
type Event struct {
	Tick     uint64    `json:"tick"`
	Kind     EventKind `json:"kind"`
	Position r2.Vec    `json:"position"`
	Subject  uint64    `json:"subject,omitempty"` // Entity id the event concerns, if any
	Value    float64   `json:"value,omitempty"`   // Quantity, energy or signal tag
}

// Cell is a familiarity grid coordinate.
type Cell struct{ X, Y int }

type visit struct {
	tick uint64
	cell Cell
}

// Memory is a bounded FIFO of events plus a bounded ring of recent visits.
// When full, the oldest entry is evicted.
type Memory struct {
	events   ring[Event]
	visits   ring[visit]
	cellSize float64
}

// New creates a memory holding at most capacity events and visitCapacity
// visits.
func New(capacity, visitCapacity int, cellSize float64) *Memory {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Memory{
		events:   newRing[Event](capacity),
		visits:   newRing[visit](visitCapacity),
		cellSize: cellSize,
	}
}

// Record appends an event, evicting the oldest when full.
func (m *Memory) Record(e Event) { m.events.push(e) }

// Visit records that the bot was at pos on tick. Consecutive visits to the
// same cell are stored once.
func (m *Memory) Visit(tick uint64, pos r2.Vec) {
	c := m.CellOf(pos)
	if last, ok := m.visits.newest(); ok && last.cell == c {
		return
	}
	m.visits.push(visit{tick: tick, cell: c})
}

// Len returns the number of stored events.
func (m *Memory) Len() int { return m.events.len() }

// Capacity returns the event capacity.
func (m *Memory) Capacity() int { return len(m.events.buf) }

// VisitLen returns the number of stored visits.
func (m *Memory) VisitLen() int { return m.visits.len() }

// Events returns a copy of the stored events, oldest first.
func (m *Memory) Events() []Event {
	out := make([]Event, 0, m.events.len())
	m.events.each(func(e Event) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Latest returns the most recent event of kind.
func (m *Memory) Latest(kind EventKind) (Event, bool) {
	var found Event
	ok := false
	m.events.eachNewest(func(e Event) bool {
		if e.Kind == kind {
			found, ok = e, true
			return false
		}
		return true
	})
	return found, ok
}

// LatestSince returns the most recent event of kind no older than tick.
func (m *Memory) LatestSince(kind EventKind, tick uint64) (Event, bool) {
	e, ok := m.Latest(kind)
	if !ok || e.Tick < tick {
		return Event{}, false
	}
	return e, true
}

// RecallFood returns the most recently seen resource that has not since
// been remembered as depleted.
func (m *Memory) RecallFood() (Event, bool) {
	depleted := make(map[uint64]bool)
	var found Event
	ok := false
	m.events.eachNewest(func(e Event) bool {
		switch e.Kind {
		case ResourceDepleted:
			depleted[e.Subject] = true
		case ResourceSeen:
			if !depleted[e.Subject] {
				found, ok = e, true
				return false
			}
		}
		return true
	})
	return found, ok
}

// CellOf returns the familiarity cell containing pos.
func (m *Memory) CellOf(pos r2.Vec) Cell {
	return Cell{X: int(math.Floor(pos.X / m.cellSize)), Y: int(math.Floor(pos.Y / m.cellSize))}
}

// CellCenter returns the centre of a familiarity cell.
func (m *Memory) CellCenter(c Cell) r2.Vec {
	return r2.Vec{X: (float64(c.X) + 0.5) * m.cellSize, Y: (float64(c.Y) + 0.5) * m.cellSize}
}

// Familiarity counts recent visits to the cell containing pos.
func (m *Memory) Familiarity(pos r2.Vec) int {
	c := m.CellOf(pos)
	n := 0
	m.visits.each(func(v visit) bool {
		if v.cell == c {
			n++
		}
		return true
	})
	return n
}

// CellSize returns the familiarity grid cell size.
func (m *Memory) CellSize() float64 { return m.cellSize }
