// Package config provides configuration loading and validation for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Seed         int64              `yaml:"seed"`
	Clock        ClockConfig        `yaml:"clock"`
	World        WorldConfig        `yaml:"world"`
	Wave         WaveConfig         `yaml:"wave"`
	Resource     ResourceConfig     `yaml:"resource"`
	Demographics DemographicsConfig `yaml:"demographics"`
	Parameters   ParametersConfig   `yaml:"parameters"`
	Control      ControlConfig      `yaml:"control"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
	Parallel     ParallelConfig     `yaml:"parallel"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Bookmarks    BookmarksConfig    `yaml:"bookmarks"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ClockConfig maps ticks onto the calendar.
type ClockConfig struct {
	TicksPerDay   int `yaml:"ticks_per_day"`
	DaysPerSeason int `yaml:"days_per_season"`
}

// WorldConfig holds region generation and initial group layout.
type WorldConfig struct {
	Width           int     `yaml:"width"`             // Region grid width
	Height          int     `yaml:"height"`            // Region grid height
	NoiseScale      float64 `yaml:"noise_scale"`
	NoiseOctaves    int     `yaml:"noise_octaves"`
	CapFactor       float64 `yaml:"cap_factor"`        // capacity = terrain base * this
	InitialFill     float64 `yaml:"initial_fill"`      // fraction of capacity at activation
	Groups          int     `yaml:"groups"`            // groups founded at start
	RegionsPerGroup int     `yaml:"regions_per_group"` // territory size
	InitialMembers  int     `yaml:"initial_members"`
	InitialFood     float64 `yaml:"initial_food"`
}

// WaveConfig holds the long-period environmental wave parameters.
type WaveConfig struct {
	Enabled              bool    `yaml:"enabled"`
	ResourcePeriod       float64 `yaml:"resource_period"`   // days
	FertilityPeriod      float64 `yaml:"fertility_period"`
	MortalityPeriod      float64 `yaml:"mortality_period"`
	ResourceAmplitude    float64 `yaml:"resource_amplitude"`
	FertilityAmplitude   float64 `yaml:"fertility_amplitude"`
	MortalityAmplitude   float64 `yaml:"mortality_amplitude"`
	LowPopThreshold      int     `yaml:"low_pop_threshold"` // world population below which fertility is floored
	LowPopFertilityFloor float64 `yaml:"low_pop_fertility_floor"`
}

// ResourceConfig holds regeneration and harvesting parameters.
type ResourceConfig struct {
	IntrinsicRates     map[string]float64            `yaml:"intrinsic_rates"`      // logistic r per renewable type
	MineralLinearRegen float64                       `yaml:"mineral_linear_regen"`
	MineralLowFraction float64                       `yaml:"mineral_low_fraction"` // full regen below this fraction of capacity
	MineralTrickle     float64                       `yaml:"mineral_trickle"`      // regen scale above it
	BootstrapFraction  float64                       `yaml:"bootstrap_fraction"`
	UtilizationWindow  int                           `yaml:"utilization_window"`
	HarvestBase        float64                       `yaml:"harvest_base"`
	HarvestPerCapita   float64                       `yaml:"harvest_per_capita"`
	HarvestMax         float64                       `yaml:"harvest_max"`
	SeasonMultipliers  map[string]map[string]float64 `yaml:"season_multipliers"`   // season -> type -> multiplier
}

// DemographicsConfig holds mortality and reproduction shape parameters that are
// not adjusted by controllers.
type DemographicsConfig struct {
	AgeMortalityBase float64 `yaml:"age_mortality_base"`
	AgeMortalityMax  float64 `yaml:"age_mortality_max"`
	AgeMidpoint      float64 `yaml:"age_midpoint"`     // ticks
	AgeSteepness     float64 `yaml:"age_steepness"`
	AgeMax           float64 `yaml:"age_max"`
	SmallGroupSize   int     `yaml:"small_group_size"` // pressure clamped at threshold+2 at or below this size
	CapacityEMAAlpha float64 `yaml:"capacity_ema_alpha"`
	ReliefWindow     int64   `yaml:"relief_window"`
	ReliefDeathCount int     `yaml:"relief_death_count"`
	ReliefDuration   int64   `yaml:"relief_duration"`
	ReliefMultiplier float64 `yaml:"relief_multiplier"`
}

// ParamConfig holds the initial value and bounds of one tunable parameter.
type ParamConfig struct {
	Value float64 `yaml:"value"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// ParametersConfig holds every parameter exposed through the parameter registry.
type ParametersConfig struct {
	ReproBaseChance           ParamConfig `yaml:"repro_base_chance"`
	ReproCooldown             ParamConfig `yaml:"repro_cooldown"` // ticks
	StarvDeathRate            ParamConfig `yaml:"starv_death_rate"`
	CapOverPenaltySlope       ParamConfig `yaml:"cap_over_penalty_slope"`
	StarvThreshold            ParamConfig `yaml:"starv_threshold"`
	FoodPerCapitaPerDay       ParamConfig `yaml:"food_per_capita_per_day"`
	StarvDecay                ParamConfig `yaml:"starv_decay"`
	StarvDeathChanceMax       ParamConfig `yaml:"starv_death_chance_max"`
	ReproFoodMin              ParamConfig `yaml:"repro_food_min"`
	ReproSurplusCap           ParamConfig `yaml:"repro_surplus_cap"`
	LowPopThreshold           ParamConfig `yaml:"low_pop_threshold"`
	LowPopReproMult           ParamConfig `yaml:"low_pop_repro_mult"`
	ReproSecondTierPressure   ParamConfig `yaml:"repro_second_tier_pressure"`
	ReproSecondTierChanceMult ParamConfig `yaml:"repro_second_tier_chance_mult"`
}

// ControlConfig holds the three feedback controllers.
type ControlConfig struct {
	Reproduction ReproductionControlConfig `yaml:"reproduction"`
	Mortality    MortalityControlConfig    `yaml:"mortality"`
	Band         BandControlConfig         `yaml:"band"`
}

// ReproductionControlConfig tunes reproduction against the population band.
type ReproductionControlConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Interval        int64   `yaml:"interval"`
	Window          int     `yaml:"window"`
	MinSamples      int     `yaml:"min_samples"`
	Deadband        float64 `yaml:"deadband"`
	Sensitivity     float64 `yaml:"sensitivity"`
	ChanceStepCap   float64 `yaml:"chance_step_cap"`
	CooldownStepCap float64 `yaml:"cooldown_step_cap"`
	SmoothingAlpha  float64 `yaml:"smoothing_alpha"`
	MinChange       float64 `yaml:"min_change"`
	HistoryLimit    int     `yaml:"history_limit"`
}

// MortalityControlConfig tunes starvation mortality against pressure targets.
type MortalityControlConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Interval      int64   `yaml:"interval"`
	TargetMax     float64 `yaml:"target_max"`
	TargetAvg     float64 `yaml:"target_avg"`
	Sensitivity   float64 `yaml:"sensitivity"`
	MaxMargin     float64 `yaml:"max_margin"`    // tighten when max exceeds target by this
	AvgMargin     float64 `yaml:"avg_margin"`    // or avg exceeds target by this
	SevereMargin  float64 `yaml:"severe_margin"` // lower threshold when max exceeds target by this
	RelaxRatio    float64 `yaml:"relax_ratio"`
	ThresholdStep float64 `yaml:"threshold_step"`
	HistoryLimit  int     `yaml:"history_limit"`
}

// BandControlConfig tunes the population band itself.
type BandControlConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Interval     int64   `yaml:"interval"`
	MinWindow    int     `yaml:"min_window"`
	StdMult      float64 `yaml:"std_mult"`
	ShrinkBias   float64 `yaml:"shrink_bias"`
	Alpha        float64 `yaml:"alpha"`
	MinHalf      float64 `yaml:"min_half"`
	MaxHalfFrac  float64 `yaml:"max_half_frac"`
	MinWidth     float64 `yaml:"min_width"`
	InitialMin   float64 `yaml:"initial_min"`
	InitialMax   float64 `yaml:"initial_max"`
	HistoryLimit int     `yaml:"history_limit"`
}

// RecoveryConfig holds auto-reseed parameters for extinct worlds.
type RecoveryConfig struct {
	Enabled      bool `yaml:"enabled"`
	ZeroPopTicks int  `yaml:"zero_pop_ticks"`
	MaxPerGroup  int  `yaml:"max_per_group"`
}

// ParallelConfig holds worker pool settings.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // below this many items, run serially
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	AuditCapacity       int   `yaml:"audit_capacity"`
	WindowTicks         int64 `yaml:"window_ticks"`    // stats window length
	BookmarkHistorySize int   `yaml:"bookmark_history_size"`
	PerfCollectorWindow int   `yaml:"perf_collector_window"`
	SnapshotOnBookmark  bool  `yaml:"snapshot_on_bookmark"`
	SnapshotRecent      int   `yaml:"snapshot_recent"` // audit snapshots included in bookmark reports
}

// BookmarksConfig holds bookmark detection thresholds.
type BookmarksConfig struct {
	PopulationCrash PopulationCrashConfig `yaml:"population_crash"`
	StableBand      StableBandConfig      `yaml:"stable_band"`
}

// PopulationCrashConfig holds crash detection parameters.
type PopulationCrashConfig struct {
	DropPercent float64 `yaml:"drop_percent"`
	MinDrop     int     `yaml:"min_drop"`
}

// StableBandConfig holds stability detection parameters.
type StableBandConfig struct {
	CVThreshold   float64 `yaml:"cv_threshold"`
	StableWindows int     `yaml:"stable_windows"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	TicksPerSeason int64 // Clock.DaysPerSeason * Clock.TicksPerDay
	TicksPerYear   int64
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Defaults returns the embedded default configuration without validation.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// MustDefaults is like Defaults but panics on error. Intended for tests.
func MustDefaults() *Config {
	cfg, err := Defaults()
	if err != nil {
		panic(fmt.Sprintf("config: failed to load defaults: %v", err))
	}
	return cfg
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	tpd := c.Clock.TicksPerDay
	if tpd < 1 {
		tpd = 1
	}
	c.Derived.TicksPerSeason = int64(c.Clock.DaysPerSeason) * int64(tpd)
	c.Derived.TicksPerYear = c.Derived.TicksPerSeason * 4
}

// Refresh recomputes derived values after fields were changed in code.
func (c *Config) Refresh() {
	c.computeDerived()
}

// Clone returns a deep copy via a YAML round trip.
func (c *Config) Clone() (*Config, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	out.computeDerived()
	return out, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
