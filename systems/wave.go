package systems

import (
	"log/slog"
	"math"

	"github.com/pthm-cable/homeostasis/config"
)

// Multiplier ranges for each wave.
const (
	resourceWaveMin  = 0.2
	resourceWaveMax  = 2.0
	fertilityWaveMin = 0.3
	fertilityWaveMax = 1.8
	mortalityWaveMin = 0.5
	mortalityWaveMax = 1.5
)

// Wave is the set of multipliers in effect for one tick.
type Wave struct {
	Resource  float64 `json:"resource"`
	Fertility float64 `json:"fertility"`
	Mortality float64 `json:"mortality"`
}

// Neutral returns the multipliers of a disabled modulator.
func Neutral() Wave {
	return Wave{Resource: 1, Fertility: 1, Mortality: 1}
}

// LogValue implements slog.LogValuer.
func (w Wave) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("resource", w.Resource),
		slog.Float64("fertility", w.Fertility),
		slog.Float64("mortality", w.Mortality),
	)
}

// WaveModulator produces slow sinusoidal multipliers for resource regeneration,
// fertility and mortality. All methods are pure functions of the tick.
type WaveModulator struct {
	cfg         config.WaveConfig
	ticksPerDay float64
}

// NewWaveModulator creates a modulator. Periods in cfg are measured in days.
func NewWaveModulator(cfg config.WaveConfig, ticksPerDay int) *WaveModulator {
	if ticksPerDay < 1 {
		ticksPerDay = 1
	}
	return &WaveModulator{cfg: cfg, ticksPerDay: float64(ticksPerDay)}
}

func (w *WaveModulator) day(tick int64) float64 {
	return float64(tick) / w.ticksPerDay
}

// ResourceMultiplier combines a primary wave with a slower secondary one.
// Result is in [0.2, 2.0].
func (w *WaveModulator) ResourceMultiplier(tick int64) float64 {
	if !w.cfg.Enabled || w.cfg.ResourceAmplitude == 0 {
		return 1.0
	}
	t := w.day(tick)
	p := w.cfg.ResourcePeriod
	wave := 0.7*math.Sin(2*math.Pi*t/p) + 0.3*math.Sin(2*math.Pi*t/(1.3*p))
	return clamp(1+wave*w.cfg.ResourceAmplitude, resourceWaveMin, resourceWaveMax)
}

// FertilityMultiplier is phase-shifted from the resource wave and floored
// while the world population is small. Result is in [0.3, 1.8].
func (w *WaveModulator) FertilityMultiplier(tick int64, totalPopulation int) float64 {
	if !w.cfg.Enabled || w.cfg.FertilityAmplitude == 0 {
		return 1.0
	}
	t := w.day(tick)
	wave := math.Sin(2*math.Pi*t/w.cfg.FertilityPeriod + math.Pi/3)
	m := clamp(1+wave*w.cfg.FertilityAmplitude, fertilityWaveMin, fertilityWaveMax)
	if totalPopulation < w.cfg.LowPopThreshold && m < w.cfg.LowPopFertilityFloor {
		m = w.cfg.LowPopFertilityFloor
	}
	return m
}

// MortalityMultiplier is anti-correlated with fertility. Result is in [0.5, 1.5].
func (w *WaveModulator) MortalityMultiplier(tick int64) float64 {
	if !w.cfg.Enabled || w.cfg.MortalityAmplitude == 0 {
		return 1.0
	}
	t := w.day(tick)
	wave := math.Sin(2*math.Pi*t/w.cfg.MortalityPeriod + math.Pi)
	return clamp(1+wave*w.cfg.MortalityAmplitude, mortalityWaveMin, mortalityWaveMax)
}

// At returns all three multipliers for a tick.
func (w *WaveModulator) At(tick int64, totalPopulation int) Wave {
	return Wave{
		Resource:  w.ResourceMultiplier(tick),
		Fertility: w.FertilityMultiplier(tick, totalPopulation),
		Mortality: w.MortalityMultiplier(tick),
	}
}
