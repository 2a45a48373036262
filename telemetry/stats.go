package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick int64  `csv:"-"`
	WindowEndTick   int64  `csv:"window_end"`
	Season          string `csv:"season"`

	// Population at window end and over the window
	Population     int     `csv:"population"`
	Groups         int     `csv:"groups"`
	PopulationMean float64 `csv:"population_mean"`
	PopulationMin  int     `csv:"population_min"`
	PopulationMax  int     `csv:"population_max"`
	PopulationCV   float64 `csv:"population_cv"`
	PopulationP10  float64 `csv:"population_p10"`
	PopulationP50  float64 `csv:"population_p50"`
	PopulationP90  float64 `csv:"population_p90"`

	// Events during window
	Births           int `csv:"births"`
	StarvationDeaths int `csv:"starvation_deaths"`
	NaturalDeaths    int `csv:"natural_deaths"`

	// Starvation pressure
	PressureAvg  float64 `csv:"pressure_avg"`
	PressurePeak float64 `csv:"pressure_peak"`

	// Resources at window end
	Food        float64 `csv:"food"`
	Ore         float64 `csv:"ore"`
	FoodDelta   float64 `csv:"food_delta"`
	Utilization float64 `csv:"utilization"`

	// Multipliers at window end
	WaveResource  float64 `csv:"wave_resource"`
	WaveFertility float64 `csv:"wave_fertility"`
	WaveMortality float64 `csv:"wave_mortality"`

	// Band and fraction of window ticks spent inside it
	BandMin    float64 `csv:"band_min"`
	BandMax    float64 `csv:"band_max"`
	InBandFrac float64 `csv:"in_band_frac"`
}

// MeanStd returns the mean and sample standard deviation (n-1) of values.
// Fewer than two values yield a zero deviation.
func MeanStd(values []float64) (mean, std float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}
	mean, std = stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// CV returns the coefficient of variation, or 0 when the mean is not positive.
func CV(values []float64) float64 {
	mean, std := MeanStd(values)
	if mean <= 0 {
		return 0
	}
	return std / mean
}

// ComputePressureStats summarizes per-group starvation pressures.
func ComputePressureStats(pressures []float64) PressureStats {
	if len(pressures) == 0 {
		return PressureStats{}
	}
	var ps PressureStats
	for _, p := range pressures {
		ps.Total += p
		if p > ps.Max {
			ps.Max = p
		}
	}
	ps.Avg = stat.Mean(pressures, nil)
	return ps
}

// ComputeDistribution returns mean and empirical percentiles of values.
func ComputeDistribution(values []float64) (mean, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0
	}

	mean = stat.Mean(values, nil)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)

	return mean, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.String("season", s.Season),
		slog.Int("population", s.Population),
		slog.Int("groups", s.Groups),
		slog.Float64("population_mean", s.PopulationMean),
		slog.Float64("population_p50", s.PopulationP50),
		slog.Int("births", s.Births),
		slog.Int("starvation_deaths", s.StarvationDeaths),
		slog.Int("natural_deaths", s.NaturalDeaths),
		slog.Float64("pressure_avg", s.PressureAvg),
		slog.Float64("pressure_peak", s.PressurePeak),
		slog.Float64("food", s.Food),
		slog.Float64("utilization", s.Utilization),
		slog.Float64("band_min", s.BandMin),
		slog.Float64("band_max", s.BandMax),
		slog.Float64("in_band_frac", s.InBandFrac),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"season", s.Season,
		"population", s.Population,
		"groups", s.Groups,
		"population_mean", s.PopulationMean,
		"population_cv", s.PopulationCV,
		"population_p10", s.PopulationP10,
		"population_p90", s.PopulationP90,
		"births", s.Births,
		"starvation_deaths", s.StarvationDeaths,
		"natural_deaths", s.NaturalDeaths,
		"pressure_avg", s.PressureAvg,
		"pressure_peak", s.PressurePeak,
		"food", s.Food,
		"ore", s.Ore,
		"utilization", s.Utilization,
		"wave_resource", s.WaveResource,
		"wave_fertility", s.WaveFertility,
		"wave_mortality", s.WaveMortality,
		"band_min", s.BandMin,
		"band_max", s.BandMax,
		"in_band_frac", s.InBandFrac,
	)
}
