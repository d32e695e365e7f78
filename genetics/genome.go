// Package genetics defines the bot genome: an ordered vector of bounded
// trait genes with crossover and mutation operators.
package genetics

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Gene indexes a trait in a Genome.
type Gene int

const (
	SensorRange           Gene = iota // Perception radius
	Speed                             // Distance per move
	Metabolism                        // Multiplies base energy drain
	ReproductionThreshold             // Energy fraction required to reproduce
	MutationRate                      // Per-gene mutation probability for offspring
	AttackStrength                    // Multiplies attack damage
	StrategyChoice                    // Selects the decision strategy in genetic mode
	Aggression                        // Weight of hunting behaviour
	Sociability                       // Weight of signalling and mating
	Curiosity                         // Weight of exploration
	Caution                           // Weight of fleeing
	ForageWeight                      // Weight of food seeking

	NumGenes
)

// Spec is the range and default of a gene.
type Spec struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
}

// Span returns Max - Min.
func (s Spec) Span() float64 { return s.Max - s.Min }

// Specs lists every gene in Genome order.
var Specs = [NumGenes]Spec{
	SensorRange:           {"sensor_range", 20, 200, 80},
	Speed:                 {"speed", 0.5, 5, 2},
	Metabolism:            {"metabolism", 0.5, 2, 1},
	ReproductionThreshold: {"reproduction_threshold", 0.3, 0.95, 0.6},
	MutationRate:          {"mutation_rate", 0, 1, 0.1},
	AttackStrength:        {"attack_strength", 0, 1, 0.3},
	StrategyChoice:        {"strategy_choice", 0, 1, 0.5},
	Aggression:            {"aggression", 0, 1, 0.3},
	Sociability:           {"sociability", 0, 1, 0.5},
	Curiosity:             {"curiosity", 0, 1, 0.5},
	Caution:               {"caution", 0, 1, 0.5},
	ForageWeight:          {"forage_weight", 0.5, 2, 1},
}

// String returns the gene name.
func (g Gene) String() string {
	if g < 0 || g >= NumGenes {
		return fmt.Sprintf("gene(%d)", int(g))
	}
	return Specs[g].Name
}

// GeneByName returns the gene with the given name.
func GeneByName(name string) (Gene, bool) {
	for i, s := range Specs {
		if s.Name == name {
			return Gene(i), true
		}
	}
	return 0, false
}

// Genome is an ordered vector of trait values, each within its Spec range.
type Genome [NumGenes]float64

// Default returns a genome with every gene at its default.
func Default() Genome {
	var g Genome
	for i, s := range Specs {
		g[i] = s.Default
	}
	return g
}

// Random returns a genome with every gene drawn uniformly from its range.
func Random(rng *rand.Rand) Genome {
	var g Genome
	for i, s := range Specs {
		g[i] = s.Min + rng.Float64()*s.Span()
	}
	return g
}

// Get returns the value of a gene.
func (g Genome) Get(gene Gene) float64 { return g[gene] }

// With returns a copy of g with gene set to v, clamped to range.
func (g Genome) With(gene Gene, v float64) Genome {
	g[gene] = clamp(v, Specs[gene].Min, Specs[gene].Max)
	return g
}

// Clamp forces every gene into its range. NaN genes reset to default.
func (g *Genome) Clamp() {
	for i, s := range Specs {
		if math.IsNaN(g[i]) {
			g[i] = s.Default
			continue
		}
		g[i] = clamp(g[i], s.Min, s.Max)
	}
}

// Named returns the genome keyed by gene name.
func (g Genome) Named() map[string]float64 {
	m := make(map[string]float64, NumGenes)
	for i, s := range Specs {
		m[s.Name] = g[i]
	}
	return m
}

// FromNamed builds a genome from named values over the defaults. Unknown
// names and out-of-range values are errors.
func FromNamed(values map[string]float64) (Genome, error) {
	g := Default()
	for name, v := range values {
		gene, ok := GeneByName(name)
		if !ok {
			return g, fmt.Errorf("unknown gene %q", name)
		}
		s := Specs[gene]
		if math.IsNaN(v) || v < s.Min || v > s.Max {
			return g, fmt.Errorf("gene %s: value %g outside [%g, %g]", name, v, s.Min, s.Max)
		}
		g[gene] = v
	}
	return g, nil
}

// StrategyIndex maps the strategy gene onto one of n strategies.
func (g Genome) StrategyIndex(n int) int {
	if n <= 1 {
		return 0
	}
	i := int(g[StrategyChoice] * float64(n))
	return min(max(i, 0), n-1)
}

// Normalized returns every gene scaled to [0, 1] within its range.
func (g Genome) Normalized() []float64 {
	out := make([]float64, NumGenes)
	for i, s := range Specs {
		if s.Span() > 0 {
			out[i] = (g[i] - s.Min) / s.Span()
		}
	}
	return out
}

// Distance is the Euclidean distance between two genomes in normalized gene
// space.
func Distance(a, b Genome) float64 {
	return floats.Distance(a.Normalized(), b.Normalized(), 2)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
