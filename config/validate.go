package config

import (
	"errors"
	"fmt"
	"math"
)

// ConfigError reports an invalid configuration value. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks bounds and cross-field constraints. All problems are
// reported together, joined with errors.Join.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if c.Clock.TicksPerDay < 1 {
		fail("clock.ticks_per_day", "must be >= 1, got %d", c.Clock.TicksPerDay)
	}
	if c.Clock.DaysPerSeason < 1 {
		fail("clock.days_per_season", "must be >= 1, got %d", c.Clock.DaysPerSeason)
	}

	if c.World.Width < 1 || c.World.Height < 1 {
		fail("world", "grid must be at least 1x1, got %dx%d", c.World.Width, c.World.Height)
	}
	if c.World.CapFactor <= 0 {
		fail("world.cap_factor", "must be positive")
	}
	if c.World.InitialFill < 0 || c.World.InitialFill > 1 {
		fail("world.initial_fill", "must be in [0,1], got %v", c.World.InitialFill)
	}
	if c.World.Groups < 0 || c.World.RegionsPerGroup < 0 || c.World.InitialMembers < 0 {
		fail("world", "group counts must be non-negative")
	}
	if c.World.Groups*c.World.RegionsPerGroup > c.World.Width*c.World.Height {
		fail("world.regions_per_group", "%d groups of %d regions do not fit a %dx%d grid",
			c.World.Groups, c.World.RegionsPerGroup, c.World.Width, c.World.Height)
	}

	for name, p := range map[string]float64{
		"wave.resource_period":  c.Wave.ResourcePeriod,
		"wave.fertility_period": c.Wave.FertilityPeriod,
		"wave.mortality_period": c.Wave.MortalityPeriod,
	} {
		if p <= 0 {
			fail(name, "must be positive, got %v", p)
		}
	}
	for name, a := range map[string]float64{
		"wave.resource_amplitude":  c.Wave.ResourceAmplitude,
		"wave.fertility_amplitude": c.Wave.FertilityAmplitude,
		"wave.mortality_amplitude": c.Wave.MortalityAmplitude,
	} {
		if a < 0 {
			fail(name, "must be non-negative, got %v", a)
		}
	}

	for typ, r := range c.Resource.IntrinsicRates {
		if r < 0 {
			fail("resource.intrinsic_rates."+typ, "must be non-negative, got %v", r)
		}
	}
	if c.Resource.UtilizationWindow < 1 {
		fail("resource.utilization_window", "must be >= 1")
	}
	for name, f := range map[string]float64{
		"resource.harvest_max":        c.Resource.HarvestMax,
		"resource.harvest_base":       c.Resource.HarvestBase,
		"resource.harvest_per_capita": c.Resource.HarvestPerCapita,
		"resource.bootstrap_fraction": c.Resource.BootstrapFraction,
	} {
		if f < 0 || f > 1 {
			fail(name, "must be in [0,1], got %v", f)
		}
	}

	if c.Demographics.CapacityEMAAlpha <= 0 || c.Demographics.CapacityEMAAlpha > 1 {
		fail("demographics.capacity_ema_alpha", "must be in (0,1]")
	}
	if c.Demographics.AgeMortalityBase < 0 || c.Demographics.AgeMortalityMax > 1 ||
		c.Demographics.AgeMortalityBase > c.Demographics.AgeMortalityMax {
		fail("demographics.age_mortality", "need 0 <= base <= max <= 1")
	}
	if c.Demographics.AgeSteepness <= 0 {
		fail("demographics.age_steepness", "must be positive")
	}
	// Relief scales the starvation death chance down, never up.
	if c.Demographics.ReliefMultiplier <= 0 || c.Demographics.ReliefMultiplier > 1 {
		fail("demographics.relief_multiplier", "must be in (0,1], got %v", c.Demographics.ReliefMultiplier)
	}

	for name, p := range c.Parameters.All() {
		checkParam(name, p, fail)
	}

	checkController := func(name string, interval int64, alpha float64) {
		if interval < 1 {
			fail(name+".interval", "must be >= 1, got %d", interval)
		}
		if alpha <= 0 || alpha > 1 {
			fail(name, "smoothing alpha must be in (0,1], got %v", alpha)
		}
	}
	r := c.Control.Reproduction
	checkController("control.reproduction", r.Interval, r.SmoothingAlpha)
	if r.MinSamples < 1 || r.Window < r.MinSamples {
		fail("control.reproduction.window", "need 1 <= min_samples <= window")
	}
	m := c.Control.Mortality
	checkController("control.mortality", m.Interval, 1)
	if m.TargetMax <= 0 || m.TargetAvg <= 0 {
		fail("control.mortality", "targets must be positive")
	}
	b := c.Control.Band
	checkController("control.band", b.Interval, b.Alpha)
	if b.InitialMin >= b.InitialMax {
		fail("control.band", "initial_min %v must be below initial_max %v", b.InitialMin, b.InitialMax)
	}
	if b.MinWindow < 2 {
		fail("control.band.min_window", "must be >= 2")
	}
	if b.MinWindow > c.Telemetry.AuditCapacity {
		fail("control.band.min_window", "%d exceeds telemetry.audit_capacity %d", b.MinWindow, c.Telemetry.AuditCapacity)
	}
	if r.MinSamples > c.Telemetry.AuditCapacity {
		fail("control.reproduction.min_samples", "%d exceeds telemetry.audit_capacity %d", r.MinSamples, c.Telemetry.AuditCapacity)
	}

	if c.Telemetry.AuditCapacity < 1 {
		fail("telemetry.audit_capacity", "must be >= 1")
	}
	if c.Telemetry.AuditCapacity < b.MinWindow {
		fail("telemetry.audit_capacity", "%d cannot hold control.band.min_window %d", c.Telemetry.AuditCapacity, b.MinWindow)
	}
	if c.Telemetry.AuditCapacity < r.Window {
		fail("telemetry.audit_capacity", "%d cannot hold control.reproduction.window %d", c.Telemetry.AuditCapacity, r.Window)
	}

	if c.Telemetry.WindowTicks < 1 {
		fail("telemetry.window_ticks", "must be >= 1")
	}

	if c.Parallel.Workers < 0 || c.Parallel.Threshold < 0 {
		fail("parallel", "workers and threshold must be non-negative")
	}

	return errors.Join(errs...)
}

func checkParam(name string, p ParamConfig, fail func(string, string, ...any)) {
	field := "parameters." + name
	switch {
	case math.IsNaN(p.Value) || math.IsInf(p.Value, 0):
		fail(field, "value must be finite")
	case p.Min > p.Max:
		fail(field, "min %v exceeds max %v", p.Min, p.Max)
	case p.Value < p.Min || p.Value > p.Max:
		fail(field, "value %v outside [%v, %v]", p.Value, p.Min, p.Max)
	}
}

// All returns every parameter keyed by its YAML name.
func (p ParametersConfig) All() map[string]ParamConfig {
	return map[string]ParamConfig{
		"repro_base_chance":             p.ReproBaseChance,
		"repro_cooldown":                p.ReproCooldown,
		"starv_death_rate":              p.StarvDeathRate,
		"cap_over_penalty_slope":        p.CapOverPenaltySlope,
		"starv_threshold":               p.StarvThreshold,
		"food_per_capita_per_day":       p.FoodPerCapitaPerDay,
		"starv_decay":                   p.StarvDecay,
		"starv_death_chance_max":        p.StarvDeathChanceMax,
		"repro_food_min":                p.ReproFoodMin,
		"repro_surplus_cap":             p.ReproSurplusCap,
		"low_pop_threshold":             p.LowPopThreshold,
		"low_pop_repro_mult":            p.LowPopReproMult,
		"repro_second_tier_pressure":    p.ReproSecondTierPressure,
		"repro_second_tier_chance_mult": p.ReproSecondTierChanceMult,
	}
}
