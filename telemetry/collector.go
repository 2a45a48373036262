package telemetry

import "github.com/pthm-cable/homeostasis/systems"

// Collector accumulates tick snapshots within fixed windows and produces
// WindowStats.
type Collector struct {
	windowTicks int64

	// Current window tracking
	windowStartTick int64

	births           int
	starvationDeaths int
	naturalDeaths    int
	populations      []float64
	pressureSum      float64
	pressurePeak     float64
	inBand           int
	startFood        float64
	haveStart        bool
}

// NewCollector creates a collector flushing every windowTicks ticks.
func NewCollector(windowTicks int64) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: windowTicks}
}

// Record adds one tick snapshot to the current window.
func (c *Collector) Record(s AuditSnapshot) {
	if !c.haveStart {
		c.startFood = s.ResourceTotals.Food()
		c.haveStart = true
	}
	c.births += s.Births
	c.starvationDeaths += s.StarvationDeaths
	c.naturalDeaths += s.NaturalDeaths
	c.populations = append(c.populations, float64(s.Population))
	c.pressureSum += s.Pressure.Avg
	if s.Pressure.Max > c.pressurePeak {
		c.pressurePeak = s.Pressure.Max
	}
	pop := float64(s.Population)
	if pop >= s.BandMin && pop <= s.BandMax {
		c.inBand++
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// Flush produces a WindowStats ending at last and resets counters for the
// next window. utilization is the smoothed food utilization ratio.
func (c *Collector) Flush(last AuditSnapshot, season systems.Season, utilization float64) WindowStats {
	n := len(c.populations)
	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   last.Tick,
		Season:          season.String(),

		Population: last.Population,
		Groups:     last.Groups,

		Births:           c.births,
		StarvationDeaths: c.starvationDeaths,
		NaturalDeaths:    c.naturalDeaths,

		PressurePeak: c.pressurePeak,

		Food:        last.ResourceTotals.Food(),
		Ore:         last.ResourceTotals[systems.Mineral],
		FoodDelta:   last.ResourceTotals.Food() - c.startFood,
		Utilization: utilization,

		WaveResource:  last.Wave.Resource,
		WaveFertility: last.Wave.Fertility,
		WaveMortality: last.Wave.Mortality,

		BandMin: last.BandMin,
		BandMax: last.BandMax,
	}

	if n > 0 {
		stats.PopulationMean, stats.PopulationP10, stats.PopulationP50, stats.PopulationP90 = ComputeDistribution(c.populations)
		stats.PopulationCV = CV(c.populations)
		lo, hi := c.populations[0], c.populations[0]
		for _, p := range c.populations {
			lo = min(lo, p)
			hi = max(hi, p)
		}
		stats.PopulationMin = int(lo)
		stats.PopulationMax = int(hi)
		stats.PressureAvg = c.pressureSum / float64(n)
		stats.InBandFrac = float64(c.inBand) / float64(n)
	}

	// Reset for next window
	c.windowStartTick = last.Tick
	c.births = 0
	c.starvationDeaths = 0
	c.naturalDeaths = 0
	c.populations = c.populations[:0]
	c.pressureSum = 0
	c.pressurePeak = 0
	c.inBand = 0
	c.haveStart = false

	return stats
}

// Resume starts an empty window at tick, for runs restored mid-way.
func (c *Collector) Resume(tick int64) {
	c.windowStartTick = tick
	c.populations = c.populations[:0]
	c.births, c.starvationDeaths, c.naturalDeaths, c.inBand = 0, 0, 0, 0
	c.pressureSum, c.pressurePeak = 0, 0
	c.haveStart = false
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() int64 {
	return c.windowTicks
}
