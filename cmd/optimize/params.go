package main

import (
	"fmt"
	"math"

	"github.com/pthm-cable/botlife/config"
)

// ParamSpec defines a single optimizable parameter. Path is the tunable's
// name in the config registry; the search bounds are narrower than the
// registry's validation range.
type ParamSpec struct {
	Name string
	Path string
	Min  float64
	Max  float64
	Int  bool // Rounded before use
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Energy
			{Name: "base_metabolism", Path: "energy.base_metabolism", Min: 0.01, Max: 0.3},
			{Name: "move_cost", Path: "energy.move_cost", Min: 0.005, Max: 0.2},
			{Name: "temperature_stress", Path: "energy.temperature_stress", Min: 0, Max: 0.2},
			// Resources
			{Name: "regen_rate", Path: "resource.regen_rate", Min: 0.005, Max: 0.5},
			{Name: "spawn_chance", Path: "resource.spawn_chance", Min: 0.001, Max: 0.2},
			{Name: "eat_amount", Path: "actions.eat_amount", Min: 1, Max: 20},
			// Combat
			{Name: "attack_damage", Path: "actions.attack_damage", Min: 1, Max: 30},
			{Name: "attack_efficiency", Path: "actions.attack_efficiency", Min: 0.1, Max: 0.9},
			// Reproduction
			{Name: "maturity_age", Path: "evolution.maturity_age", Min: 20, Max: 500, Int: true},
			{Name: "reproduction_cost", Path: "evolution.reproduction_cost", Min: 5, Max: 100},
			{Name: "mate_radius", Path: "evolution.mate_radius", Min: 10, Max: 400},
			{Name: "mutation_amount", Path: "mutation.amount", Min: 0.01, Max: 0.3},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// FromConfig extracts the current parameter values, clamped into the
// search bounds.
func (pv *ParamVector) FromConfig(cfg *config.Config) ([]float64, error) {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		x, err := cfg.Get(spec.Path)
		if err != nil {
			return nil, err
		}
		v[i] = x
	}
	return pv.Clamp(v), nil
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds. Integer parameters are
// rounded.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
		if spec.Int {
			clamped[i] = math.Round(clamped[i])
		}
	}
	return clamped
}

// ApplyToConfig sets clamped values on cfg through the tunable registry.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) error {
	for i, v := range pv.Clamp(values) {
		if err := cfg.Set(pv.Specs[i].Path, v); err != nil {
			return fmt.Errorf("apply %s: %w", pv.Specs[i].Name, err)
		}
	}
	return nil
}
