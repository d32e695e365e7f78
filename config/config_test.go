package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/botlife/simerr"
)

func TestDefaultsLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	if cfg.World.Width != 3000 || cfg.World.Height != 2000 {
		t.Errorf("expected 3000x2000 world, got %vx%v", cfg.World.Width, cfg.World.Height)
	}
	if cfg.Spatial.NodeCapacity != 10 {
		t.Errorf("expected node capacity 10, got %d", cfg.Spatial.NodeCapacity)
	}
	if got, want := cfg.Derived.InteractionRadiusSq, cfg.Actions.InteractionRadius*cfg.Actions.InteractionRadius; got != want {
		t.Errorf("expected derived radius sq %v, got %v", want, got)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("evolution:\n  epoch_length: 25\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Evolution.EpochLength != 25 {
		t.Errorf("expected overlay epoch length 25, got %d", cfg.Evolution.EpochLength)
	}
	if cfg.Evolution.MaturityAge != 200 {
		t.Errorf("expected default maturity age to survive overlay, got %d", cfg.Evolution.MaturityAge)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative epoch", "evolution:\n  epoch_length: -5\n"},
		{"bad mode", "decision:\n  mode: telepathy\n"},
		{"bad chain", "decision:\n  mode: chain\n  chain: [goap, oracle]\n"},
		{"inverted mutation bounds", "mutation:\n  rate_min: 0.6\n  rate_max: 0.2\n"},
		{"bad spatial mode", "spatial:\n  mode: grid\n"},
		{"negative signal spread", "signals:\n  expand_ticks: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cfg.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !simerr.Is(err, simerr.KindConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestSetParameter(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("qlearning.alpha", 0.3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.QLearning.Alpha != 0.3 {
		t.Errorf("expected alpha 0.3, got %v", cfg.QLearning.Alpha)
	}

	if err := cfg.Set("actions.interaction_radius", 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Derived.InteractionRadiusSq != 400 {
		t.Errorf("expected derived values recomputed, got %v", cfg.Derived.InteractionRadiusSq)
	}
}

func TestSetParameterRejects(t *testing.T) {
	tests := []struct {
		name  string
		param string
		value float64
	}{
		{"negative epoch length", "evolution.epoch_length", -1},
		{"fractional epoch length", "evolution.epoch_length", 2.5},
		{"epsilon above one", "qlearning.epsilon", 1.5},
		{"unknown", "gravity", 9.8},
		{"negative signal spread", "signals.expand_ticks", -1},
		{"rate min above max", "mutation.rate_min", 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			before, _ := cfg.Get("evolution.epoch_length")
			err := cfg.Set(tt.param, tt.value)
			if !simerr.Is(err, simerr.KindConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			after, _ := cfg.Get("evolution.epoch_length")
			if before != after {
				t.Errorf("expected config unchanged after rejected set")
			}
		})
	}
}

func TestParametersReportsCurrentValues(t *testing.T) {
	cfg := Default()
	params := cfg.Parameters()
	if len(params) == 0 {
		t.Fatal("expected parameters")
	}
	for _, p := range params {
		if p.Value < p.Min || p.Value > p.Max {
			t.Errorf("default %s=%v outside [%v, %v]", p.Name, p.Value, p.Min, p.Max)
		}
	}
}

func TestCloneIsolatesChain(t *testing.T) {
	cfg := Default()
	cp := cfg.Clone()
	cp.Decision.Chain[0] = StrategyQLearning
	if cfg.Decision.Chain[0] == StrategyQLearning {
		t.Error("expected clone to copy the chain slice")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Evolution.EpochLength = 42
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("writing: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if loaded.Evolution.EpochLength != 42 {
		t.Errorf("expected 42, got %d", loaded.Evolution.EpochLength)
	}
}

func TestPrepareRecomputesDerived(t *testing.T) {
	cfg := Default()
	cfg.Actions.InteractionRadius = 3
	if err := cfg.Prepare(); err != nil {
		t.Fatal(err)
	}
	if cfg.Derived.InteractionRadiusSq != 9 {
		t.Errorf("expected derived radius sq 9, got %v", cfg.Derived.InteractionRadiusSq)
	}
	cfg.Population.MaxBots = 0
	if err := cfg.Prepare(); !simerr.Is(err, simerr.KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
