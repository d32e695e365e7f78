package memory

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestRecordEvictsOldest(t *testing.T) {
	m := New(3, 4, 10)
	for i := range 5 {
		m.Record(Event{Tick: uint64(i), Kind: BotSeen})
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 events, got %d", m.Len())
	}
	events := m.Events()
	for i, e := range events {
		if want := uint64(i + 2); e.Tick != want {
			t.Errorf("event %d: expected tick %d, got %d", i, want, e.Tick)
		}
	}
}

func TestLatest(t *testing.T) {
	m := New(10, 4, 10)
	m.Record(Event{Tick: 1, Kind: ResourceSeen, Subject: 5})
	m.Record(Event{Tick: 2, Kind: BotSeen, Subject: 6})
	m.Record(Event{Tick: 3, Kind: ResourceSeen, Subject: 7})

	e, ok := m.Latest(ResourceSeen)
	if !ok || e.Subject != 7 {
		t.Errorf("expected latest resource 7, got %+v ok=%v", e, ok)
	}
	if _, ok := m.Latest(Ate); ok {
		t.Error("expected no Ate event")
	}
	if _, ok := m.LatestSince(BotSeen, 3); ok {
		t.Error("expected BotSeen at tick 2 to be too old")
	}
}

func TestRecallFoodSkipsDepleted(t *testing.T) {
	m := New(10, 4, 10)
	m.Record(Event{Tick: 1, Kind: ResourceSeen, Subject: 5, Position: r2.Vec{X: 1, Y: 1}})
	m.Record(Event{Tick: 2, Kind: ResourceSeen, Subject: 7, Position: r2.Vec{X: 2, Y: 2}})
	m.Record(Event{Tick: 3, Kind: ResourceDepleted, Subject: 7})

	e, ok := m.RecallFood()
	if !ok || e.Subject != 5 {
		t.Errorf("expected to recall resource 5, got %+v ok=%v", e, ok)
	}

	m.Record(Event{Tick: 4, Kind: ResourceDepleted, Subject: 5})
	if _, ok := m.RecallFood(); ok {
		t.Error("expected nothing to recall")
	}
}

func TestFamiliarityBounded(t *testing.T) {
	m := New(4, 3, 10)
	m.Visit(1, r2.Vec{X: 1, Y: 1})
	m.Visit(2, r2.Vec{X: 2, Y: 2}) // same cell, collapsed
	m.Visit(3, r2.Vec{X: 15, Y: 1})
	m.Visit(4, r2.Vec{X: 5, Y: 5})
	if got := m.Familiarity(r2.Vec{X: 3, Y: 3}); got != 2 {
		t.Errorf("expected familiarity 2, got %d", got)
	}
	for i := range 10 {
		m.Visit(uint64(10+i), r2.Vec{X: float64(100 + i*20), Y: 0})
	}
	if m.VisitLen() != 3 {
		t.Errorf("expected visit ring capped at 3, got %d", m.VisitLen())
	}
	if got := m.Familiarity(r2.Vec{X: 3, Y: 3}); got != 0 {
		t.Errorf("expected old visits evicted, got %d", got)
	}
}

func TestCellOfNegative(t *testing.T) {
	m := New(1, 1, 10)
	if c := m.CellOf(r2.Vec{X: -0.5, Y: 9.9}); c != (Cell{X: -1, Y: 0}) {
		t.Errorf("expected {-1 0}, got %v", c)
	}
	if c := m.CellCenter(Cell{X: 2, Y: 3}); c != (r2.Vec{X: 25, Y: 35}) {
		t.Errorf("expected centre (25,35), got %v", c)
	}
}

func TestZeroCapacity(t *testing.T) {
	m := New(0, 0, 10)
	m.Record(Event{Kind: Ate})
	m.Visit(1, r2.Vec{})
	if m.Len() != 0 || m.VisitLen() != 0 {
		t.Error("expected zero capacity memory to stay empty")
	}
}
