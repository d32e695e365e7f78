package main

import (
	"context"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/botlife/config"
	"github.com/pthm-cable/botlife/runner"
	"github.com/pthm-cable/botlife/sim"
	"github.com/pthm-cable/botlife/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params      *ParamVector
	maxTicks    uint64
	seeds       []int64
	baseConfig  *config.Config
	windowTicks int

	// Best run tracking
	mu             sync.Mutex
	bestFitness    float64
	bestHallOfFame *telemetry.HallOfFame
	lastQuality    float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks uint64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		maxTicks:    maxTicks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		windowTicks: 500,
		bestFitness: math.Inf(1),
	}
}

// BestHallOfFame returns the hall of fame from the best evaluation.
func (fe *FitnessEvaluator) BestHallOfFame() *telemetry.HallOfFame {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestHallOfFame
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// A population below minViablePop for extinctionGraceTicks consecutive
// ticks counts as functionally extinct.
const (
	minViablePop         = 3
	extinctionGraceTicks = 500
	warmupTicks          = 200
)

// runResult holds the results from a single simulation run.
type runResult struct {
	survivalTicks uint64 // ticks before functional extinction (or maxTicks if survived)
	windowStats   []telemetry.WindowStats
	hallOfFame    *telemetry.HallOfFame
	maxEnergy     float64
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness    float64
	quality    float64
	hallOfFame *telemetry.HallOfFame
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Invalid configurations score +Inf.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.baseConfig.Clone()
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		return math.Inf(1)
	}

	// Run all seeds in parallel
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			result, err := fe.runSimulation(cfg, s)
			if err != nil {
				results[idx] = seedResult{fitness: math.Inf(1)}
				return
			}
			quality := computeQuality(result.windowStats, result.maxEnergy)
			results[idx] = seedResult{
				fitness:    computeFitness(result.survivalTicks, quality),
				quality:    quality,
				hallOfFame: result.hallOfFame,
			}
		}(i, seed)
	}
	wg.Wait()

	var totalFitness, totalQuality float64
	bestSeedFitness := math.Inf(1)
	var bestSeedHallOfFame *telemetry.HallOfFame
	for _, r := range results {
		totalFitness += r.fitness
		totalQuality += r.quality
		if r.fitness < bestSeedFitness {
			bestSeedFitness = r.fitness
			bestSeedHallOfFame = r.hallOfFame
		}
	}

	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestHallOfFame = bestSeedHallOfFame
	}
	fe.lastQuality = totalQuality / n
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation executes a single headless run until functional
// extinction or maxTicks, whichever comes first.
func (fe *FitnessEvaluator) runSimulation(cfg *config.Config, seed int64) (*runResult, error) {
	result := &runResult{maxEnergy: cfg.Energy.Max}
	hooks := runner.NewHooks(context.Background(), runner.Options{
		WindowTicks: fe.windowTicks,
		OnWindow: func(s telemetry.WindowStats) {
			result.windowStats = append(result.windowStats, s)
		},
	})
	e, err := sim.New(cfg, seed, sim.WithObserver(hooks.Observe))
	if err != nil {
		return nil, err
	}
	defer e.Close()
	hooks.Bind(e)

	var below uint64
	for e.Tick() < fe.maxTicks {
		sum, err := e.Step()
		if err != nil {
			// A halted engine ends the run where it stopped.
			break
		}
		if sum.Tick < warmupTicks {
			continue
		}
		if sum.Alive == 0 {
			break
		}
		if sum.Alive < minViablePop {
			below++
			if below >= extinctionGraceTicks {
				break
			}
		} else {
			below = 0
		}
	}
	result.survivalTicks = e.Tick()
	result.hallOfFame = e.HallOfFame()
	return result, nil
}

// computeFitness is -(survivalTicks × (1 + 0.2 × quality)). Survival
// dominates; quality separates configs with similar survival.
func computeFitness(survivalTicks uint64, quality float64) float64 {
	return -(float64(survivalTicks) * (1.0 + 0.2*quality))
}

// Quality component weights.
const (
	qualityWeightStability = 0.35
	qualityWeightEnergy    = 0.25
	qualityWeightDiversity = 0.25
	qualityWeightTurnover  = 0.15

	qualityWarmupWindows = 2
)

// computeQuality scores an ecosystem in [0, 1] from window stats.
func computeQuality(windows []telemetry.WindowStats, maxEnergy float64) float64 {
	if len(windows) <= qualityWarmupWindows || maxEnergy <= 0 {
		return 0
	}
	valid := windows[qualityWarmupWindows:]

	alive := make([]float64, 0, len(valid))
	var energySum, diversitySum, turnoverSum float64
	var n float64
	for _, w := range valid {
		if w.Alive < minViablePop {
			continue
		}
		n++
		alive = append(alive, float64(w.Alive))

		// Median energy near 40% of capacity
		e := w.EnergyP50 / maxEnergy
		energySum += math.Exp(-math.Pow((e-0.40)/0.20, 2))

		diversitySum += mixEntropy(w)

		// Births per bot per window, saturating
		turnoverSum += 1 - math.Exp(-float64(w.Births)/float64(w.Alive))
	}
	if n == 0 {
		return 0
	}

	stability := 0.0
	if len(alive) >= 2 {
		if mean := stat.Mean(alive, nil); mean > 0 {
			cv := stat.StdDev(alive, nil) / mean
			stability = math.Exp(-cv * cv)
		}
	}

	quality := qualityWeightStability*stability +
		qualityWeightEnergy*energySum/n +
		qualityWeightDiversity*diversitySum/n +
		qualityWeightTurnover*turnoverSum/n
	return min(max(quality, 0), 1)
}

// mixEntropy is the normalised Shannon entropy of the strategy mix.
func mixEntropy(w telemetry.WindowStats) float64 {
	counts := []float64{
		float64(w.BehaviorTree),
		float64(w.Utility),
		float64(w.GOAP),
		float64(w.QLearning),
		float64(w.Chain),
	}
	var total float64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	p := make([]float64, 0, len(counts))
	for _, c := range counts {
		if c > 0 {
			p = append(p, c/total)
		}
	}
	if len(p) < 2 {
		return 0
	}
	return stat.Entropy(p) / math.Log(float64(len(counts)))
}
