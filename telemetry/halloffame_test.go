package telemetry

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/genetics"
)

func hallConfig() config.HallOfFameConfig {
	return config.HallOfFameConfig{
		Size:           3,
		MinChildren:    1,
		MinAge:         100,
		ChildrenWeight: 10,
		SurvivalWeight: 0.01,
		ForageWeight:   0.1,
		KillsWeight:    2,
	}
}

func TestHallOfFameEntryCriteria(t *testing.T) {
	tests := []struct {
		name  string
		stats LifetimeStats
		want  bool
	}{
		{"reproduced", LifetimeStats{Children: 1, Strategy: "goap"}, true},
		{"old forager", LifetimeStats{Age: 150, Foraged: 5, Strategy: "goap"}, true},
		{"old but never ate", LifetimeStats{Age: 150, Strategy: "goap"}, false},
		{"young", LifetimeStats{Age: 10, Foraged: 5, Strategy: "goap"}, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hof := NewHallOfFame(hallConfig(), rand.New(rand.NewSource(1)))
			stats := tt.stats
			if got := hof.Consider(uint64(i+1), &stats); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHallOfFameKeepsBest(t *testing.T) {
	hof := NewHallOfFame(hallConfig(), rand.New(rand.NewSource(1)))
	for i := 1; i <= 5; i++ {
		hof.Consider(uint64(i), &LifetimeStats{Children: i, Strategy: "utility"})
	}
	if hof.Size("utility") != 3 {
		t.Fatalf("expected hall capped at 3, got %d", hof.Size("utility"))
	}
	if hof.TopFitness("utility") != 50 {
		t.Errorf("expected top fitness 50, got %v", hof.TopFitness("utility"))
	}
	if hof.Consider(6, &LifetimeStats{Children: 1, Strategy: "utility"}) {
		t.Error("expected a weaker entry to be rejected from a full hall")
	}
	if hof.Size("") != 3 || hof.Size("goap") != 0 {
		t.Errorf("unexpected sizes: all %d goap %d", hof.Size(""), hof.Size("goap"))
	}
}

func TestHallOfFameSample(t *testing.T) {
	hof := NewHallOfFame(hallConfig(), rand.New(rand.NewSource(1)))
	if _, ok := hof.Sample(""); ok {
		t.Error("expected no sample from an empty hall")
	}
	g := genetics.Default().With(genetics.Curiosity, 0.9)
	hof.Consider(1, &LifetimeStats{Children: 2, Strategy: "goap", Genome: g})
	got, ok := hof.Sample("")
	if !ok || got != g {
		t.Errorf("expected the only genome, got %v %v", got, ok)
	}
	if _, ok := hof.Sample("qlearning"); ok {
		t.Error("expected no sample from an empty strategy hall")
	}
}

func TestHallOfFameRoundTrip(t *testing.T) {
	hof := NewHallOfFame(hallConfig(), rand.New(rand.NewSource(1)))
	g := genetics.Default().With(genetics.Aggression, 0.75)
	hof.Consider(7, &LifetimeStats{Children: 2, Kills: 1, Age: 300, Foraged: 20, LineageID: 3, Strategy: "behavior_tree", Genome: g})

	data, err := hof.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "hall_of_fame.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadHallOfFameFromFile(path, hallConfig(), rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size("behavior_tree") != 1 {
		t.Fatalf("expected 1 entry, got %d", loaded.Size("behavior_tree"))
	}
	if loaded.TopFitness("behavior_tree") != hof.TopFitness("behavior_tree") {
		t.Errorf("expected fitness %v, got %v", hof.TopFitness("behavior_tree"), loaded.TopFitness("behavior_tree"))
	}
	got, _ := loaded.Sample("behavior_tree")
	if got != g {
		t.Errorf("expected genome preserved, got %v", got)
	}
}

func TestLifetimeTracker(t *testing.T) {
	lt := NewLifetimeTracker()
	lt.Register(1, 0, 1, "goap", genetics.Default())
	lt.Register(2, 5, 1, "qlearning", genetics.Default())
	lt.Register(3, 5, 3, "qlearning", genetics.Default())

	lt.RecordForage(1, 4)
	lt.RecordForage(1, 2.5)
	lt.RecordAttack(1)
	lt.RecordKill(1)
	lt.RecordChild(1)
	lt.RecordSignal(1)
	lt.UpdateEnergy(1, 80)
	lt.UpdateEnergy(1, 60)
	lt.RecordKill(99) // unknown ids are ignored

	s := lt.Get(1)
	if s.Foraged != 6.5 || s.Attacks != 1 || s.Kills != 1 || s.Children != 1 || s.Signals != 1 || s.PeakEnergy != 80 {
		t.Errorf("unexpected stats %+v", s)
	}
	if lt.ActiveLineageCount() != 2 {
		t.Errorf("expected 2 lineages, got %d", lt.ActiveLineageCount())
	}
	if removed := lt.Remove(1); removed != s || lt.Count() != 2 {
		t.Error("expected Remove to return and drop the stats")
	}
}
