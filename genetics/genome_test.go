package genetics

import (
	"math"
	"math/rand"
	"testing"
)

func TestSpecsOrdered(t *testing.T) {
	for i, s := range Specs {
		if s.Name == "" {
			t.Errorf("gene %d has no spec", i)
		}
		if s.Min > s.Default || s.Default > s.Max {
			t.Errorf("%s default %v outside [%v, %v]", s.Name, s.Default, s.Min, s.Max)
		}
		if g, ok := GeneByName(s.Name); !ok || g != Gene(i) {
			t.Errorf("GeneByName(%q) = %v, %v", s.Name, g, ok)
		}
	}
}

func TestRandomWithinRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 200 {
		g := Random(rng)
		for i, s := range Specs {
			if g[i] < s.Min || g[i] > s.Max {
				t.Fatalf("%s=%v outside range", s.Name, g[i])
			}
		}
	}
}

func TestCrossoverPicksFromParents(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a := Default()
	b := Default()
	for i, s := range Specs {
		a[i] = s.Min
		b[i] = s.Max
	}
	child := Crossover(a, b, rng)
	fromA, fromB := 0, 0
	for i := range child {
		switch child[i] {
		case a[i]:
			fromA++
		case b[i]:
			fromB++
		default:
			t.Errorf("gene %d=%v came from neither parent", i, child[i])
		}
	}
	if fromA == 0 || fromB == 0 {
		t.Logf("all genes from one parent (a=%d b=%d), unlikely but legal", fromA, fromB)
	}
}

func TestMutateRespectsRateBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := Default().With(MutationRate, 1)

	_, n := Mutate(g, rng, MutationParams{RateMin: 0, RateMax: 0, Amount: 0.5})
	if n != 0 {
		t.Errorf("expected no mutations with rate capped at 0, got %d", n)
	}

	_, n = Mutate(g, rng, MutationParams{RateMin: 0, RateMax: 1, Amount: 0.5})
	if n != int(NumGenes) {
		t.Errorf("expected every gene to mutate at rate 1, got %d", n)
	}
}

func TestMutateStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	g := Default().With(MutationRate, 1)
	params := MutationParams{RateMin: 0, RateMax: 1, Amount: 1}
	for range 500 {
		g, _ = Mutate(g, rng, params)
		for i, s := range Specs {
			if g[i] < s.Min || g[i] > s.Max {
				t.Fatalf("%s=%v escaped range", s.Name, g[i])
			}
		}
	}
}

func TestOffspringDeterministic(t *testing.T) {
	a := Random(rand.New(rand.NewSource(5)))
	b := Random(rand.New(rand.NewSource(6)))
	params := MutationParams{RateMin: 0.01, RateMax: 0.5, Amount: 0.1}
	c1 := Offspring(a, b, rand.New(rand.NewSource(7)), params)
	c2 := Offspring(a, b, rand.New(rand.NewSource(7)), params)
	if c1 != c2 {
		t.Error("expected identical offspring for identical seeds")
	}
}

func TestFromNamed(t *testing.T) {
	g, err := FromNamed(map[string]float64{"speed": 3, "aggression": 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Get(Speed) != 3 || g.Get(Aggression) != 0.9 {
		t.Errorf("expected overrides applied, got %v", g.Named())
	}
	if g.Get(Caution) != Specs[Caution].Default {
		t.Errorf("expected default caution")
	}
	if _, err := FromNamed(map[string]float64{"wings": 1}); err == nil {
		t.Error("expected error for unknown gene")
	}
	if _, err := FromNamed(map[string]float64{"speed": 100}); err == nil {
		t.Error("expected error for out-of-range gene")
	}
}

func TestStrategyIndex(t *testing.T) {
	tests := []struct {
		v    float64
		want int
	}{
		{0, 0}, {0.24, 0}, {0.25, 1}, {0.6, 2}, {0.99, 3}, {1, 3},
	}
	for _, tt := range tests {
		g := Default().With(StrategyChoice, tt.v)
		if got := g.StrategyIndex(4); got != tt.want {
			t.Errorf("StrategyIndex(%v) = %d, expected %d", tt.v, got, tt.want)
		}
	}
}

func TestDistance(t *testing.T) {
	a := Default()
	if d := Distance(a, a); d != 0 {
		t.Errorf("expected zero self distance, got %v", d)
	}
	b := a.With(Aggression, 1)
	want := math.Abs(1 - Specs[Aggression].Default)
	if d := Distance(a, b); math.Abs(d-want) > 1e-9 {
		t.Errorf("expected %v, got %v", want, d)
	}
}

func TestClampResetsNaN(t *testing.T) {
	g := Default()
	g[Speed] = math.NaN()
	g[Caution] = 5
	g.Clamp()
	if g[Speed] != Specs[Speed].Default {
		t.Errorf("expected NaN reset to default, got %v", g[Speed])
	}
	if g[Caution] != 1 {
		t.Errorf("expected clamp to 1, got %v", g[Caution])
	}
}
