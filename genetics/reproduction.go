package genetics

import "math/rand"

// Crossover picks every gene from a or b with equal probability.
func Crossover(a, b Genome, rng *rand.Rand) Genome {
	var child Genome
	for i := range child {
		if rng.Float64() < 0.5 {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child
}

// MutationParams bounds mutation.
type MutationParams struct {
	RateMin float64 // Floor applied to the mutation-rate gene
	RateMax float64 // Ceiling applied to the mutation-rate gene
	Amount  float64 // Perturbation as a fraction of each gene's span
}

// Mutate perturbs each gene with probability equal to g's own mutation-rate
// gene, clamped to [RateMin, RateMax]. A perturbation is uniform in
// ±Amount×span and the result stays within the gene range. It returns the
// mutated genome and how many genes changed.
func Mutate(g Genome, rng *rand.Rand, p MutationParams) (Genome, int) {
	rate := clamp(g[MutationRate], p.RateMin, p.RateMax)
	n := 0
	for i, s := range Specs {
		if rng.Float64() >= rate {
			continue
		}
		delta := (rng.Float64()*2 - 1) * p.Amount * s.Span()
		g[i] = clamp(g[i]+delta, s.Min, s.Max)
		n++
	}
	return g, n
}

// Offspring combines crossover and mutation. For asexual reproduction pass
// the same genome twice.
func Offspring(a, b Genome, rng *rand.Rand, p MutationParams) Genome {
	child, _ := Mutate(Crossover(a, b, rng), rng, p)
	return child
}
