package main

import (
	"github.com/pthm-cable/homeostasis/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name string  // Human-readable name
	Path string  // Config path for logging
	Min  float64 // Lower bound
	Max  float64 // Upper bound

	get func(*config.Config) float64
	set func(*config.Config, float64)
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Reproduction controller
			{Name: "repro_sensitivity", Path: "control.reproduction.sensitivity", Min: 0.02, Max: 0.5,
				get: func(c *config.Config) float64 { return c.Control.Reproduction.Sensitivity },
				set: func(c *config.Config, v float64) { c.Control.Reproduction.Sensitivity = v }},
			{Name: "repro_smoothing", Path: "control.reproduction.smoothing_alpha", Min: 0.1, Max: 1.0,
				get: func(c *config.Config) float64 { return c.Control.Reproduction.SmoothingAlpha },
				set: func(c *config.Config, v float64) { c.Control.Reproduction.SmoothingAlpha = v }},
			{Name: "repro_deadband", Path: "control.reproduction.deadband", Min: 0.0, Max: 0.2,
				get: func(c *config.Config) float64 { return c.Control.Reproduction.Deadband },
				set: func(c *config.Config, v float64) { c.Control.Reproduction.Deadband = v }},
			// Mortality controller
			{Name: "mort_sensitivity", Path: "control.mortality.sensitivity", Min: 0.02, Max: 0.5,
				get: func(c *config.Config) float64 { return c.Control.Mortality.Sensitivity },
				set: func(c *config.Config, v float64) { c.Control.Mortality.Sensitivity = v }},
			{Name: "mort_target_max", Path: "control.mortality.target_max", Min: 3.0, Max: 10.0,
				get: func(c *config.Config) float64 { return c.Control.Mortality.TargetMax },
				set: func(c *config.Config, v float64) { c.Control.Mortality.TargetMax = v }},
			{Name: "mort_target_avg", Path: "control.mortality.target_avg", Min: 1.0, Max: 5.0,
				get: func(c *config.Config) float64 { return c.Control.Mortality.TargetAvg },
				set: func(c *config.Config, v float64) { c.Control.Mortality.TargetAvg = v }},
			// Band recalibrator
			{Name: "band_std_mult", Path: "control.band.std_mult", Min: 0.5, Max: 3.0,
				get: func(c *config.Config) float64 { return c.Control.Band.StdMult },
				set: func(c *config.Config, v float64) { c.Control.Band.StdMult = v }},
			{Name: "band_alpha", Path: "control.band.alpha", Min: 0.05, Max: 1.0,
				get: func(c *config.Config) float64 { return c.Control.Band.Alpha },
				set: func(c *config.Config, v float64) { c.Control.Band.Alpha = v }},
			// Demographics
			{Name: "capacity_ema_alpha", Path: "demographics.capacity_ema_alpha", Min: 0.05, Max: 0.9,
				get: func(c *config.Config) float64 { return c.Demographics.CapacityEMAAlpha },
				set: func(c *config.Config, v float64) { c.Demographics.CapacityEMAAlpha = v }},
			{Name: "relief_multiplier", Path: "demographics.relief_multiplier", Min: 0.2, Max: 1.0,
				get: func(c *config.Config) float64 { return c.Demographics.ReliefMultiplier },
				set: func(c *config.Config, v float64) { c.Demographics.ReliefMultiplier = v }},
			// Initial tunables (bounds stay as configured)
			{Name: "repro_base_chance", Path: "parameters.repro_base_chance.value", Min: 0.05, Max: 0.6,
				get: func(c *config.Config) float64 { return c.Parameters.ReproBaseChance.Value },
				set: func(c *config.Config, v float64) { c.Parameters.ReproBaseChance.Value = v }},
			{Name: "starv_threshold", Path: "parameters.starv_threshold.value", Min: 2.2, Max: 4.2,
				get: func(c *config.Config) float64 { return c.Parameters.StarvThreshold.Value },
				set: func(c *config.Config, v float64) { c.Parameters.StarvThreshold.Value = v }},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// Extract reads the current parameter values from a config.
func (pv *ParamVector) Extract(cfg *config.Config) []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.get(cfg)
	}
	return v
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

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into cfg.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	for i, v := range pv.Clamp(values) {
		pv.Specs[i].set(cfg, v)
	}
}
