package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeEnergyStats(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	mean, std, p10, p50, p90 := ComputeEnergyStats(values)

	// Mean should be 0.55
	if math.Abs(mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", mean)
	}

	// Sample standard deviation of 0.1..1.0
	if math.Abs(std-0.3028) > 0.001 {
		t.Errorf("std = %v, want ~0.3028", std)
	}

	// P10 should be around 0.19
	if math.Abs(p10-0.19) > 0.01 {
		t.Errorf("p10 = %v, want ~0.19", p10)
	}

	// P50 should be around 0.55
	if math.Abs(p50-0.55) > 0.01 {
		t.Errorf("p50 = %v, want ~0.55", p50)
	}

	// P90 should be around 0.91
	if math.Abs(p90-0.91) > 0.01 {
		t.Errorf("p90 = %v, want ~0.91", p90)
	}
}

func TestComputeEnergyStatsEmpty(t *testing.T) {
	mean, std, p10, p50, p90 := ComputeEnergyStats([]float64{})

	if mean != 0 || std != 0 || p10 != 0 || p50 != 0 || p90 != 0 {
		t.Error("empty slice should return all zeros")
	}
}

func TestComputeEnergyStatsSingle(t *testing.T) {
	mean, std, _, p50, _ := ComputeEnergyStats([]float64{42})
	if mean != 42 || std != 0 || p50 != 42 {
		t.Errorf("expected 42/0/42, got %v/%v/%v", mean, std, p50)
	}
}

func TestCollectorFlush(t *testing.T) {
	c := NewCollector(10)
	if c.ShouldFlush(5) {
		t.Error("expected no flush before the window ends")
	}
	c.Record(TickSummary{Tick: 3, Born: 2, Died: 1, Eats: 4})
	c.Record(TickSummary{Tick: 7, Died: 2, Attacks: 1, NoOps: 3})
	if !c.ShouldFlush(10) {
		t.Fatal("expected flush at window end")
	}

	stats := c.Flush(10, Population{
		Energies:    []float64{10, 20, 30},
		Generations: []int{0, 2, 5},
		Strategies:  map[string]int{"goap": 2, "qlearning": 1},
		Lineages:    2,
		Resources:   7,
	})
	if stats.Births != 2 || stats.Deaths != 3 || stats.Eats != 4 || stats.Attacks != 1 || stats.NoOps != 3 {
		t.Errorf("unexpected event counts: %+v", stats)
	}
	if stats.Alive != 3 || stats.EnergyMean != 20 || stats.MaxGeneration != 5 {
		t.Errorf("unexpected population stats: %+v", stats)
	}
	if stats.GOAP != 2 || stats.QLearning != 1 || stats.Utility != 0 {
		t.Errorf("unexpected strategy mix: %+v", stats)
	}
	if math.Abs(stats.Share("goap")-2.0/3) > 1e-9 {
		t.Errorf("expected goap share 2/3, got %v", stats.Share("goap"))
	}

	next := c.Flush(20, Population{})
	if next.WindowStartTick != 10 || next.Births != 0 || next.Deaths != 0 {
		t.Errorf("expected counters reset, got %+v", next)
	}
}
