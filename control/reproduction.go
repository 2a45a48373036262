package control

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// ReproductionController steers the rolling average population toward the
// band midpoint by retuning REPRO_BASE_CHANCE and REPRO_COOLDOWN.
type ReproductionController struct {
	cfg   config.ReproductionControlConfig
	reg   *Registry
	State ControllerState
}

// NewReproductionController creates the controller over reg.
func NewReproductionController(cfg config.ReproductionControlConfig, reg *Registry) *ReproductionController {
	return &ReproductionController{
		cfg:   cfg,
		reg:   reg,
		State: newControllerState("reproduction", cfg.HistoryLimit),
	}
}

// Update runs one cycle if the interval has elapsed, reading the rolling
// window from the ledger.
func (c *ReproductionController) Update(tick int64, ledger *telemetry.AuditLedger, band Band) ([]Adjustment, error) {
	if !c.cfg.Enabled {
		return nil, nil
	}
	if !c.State.due(tick, c.cfg.Interval) {
		return nil, ErrNotDue
	}

	pops := ledger.Populations(c.cfg.Window)
	if len(pops) == 0 {
		return nil, fmt.Errorf("%w: empty ledger", ErrInsufficientHistory)
	}
	return c.Adjust(tick, stat.Mean(pops, nil), len(pops), band)
}

// Adjust applies one controller step for a given rolling average. It is a
// no-op below min_samples, for a non-positive or non-finite average, and for
// a degenerate band; those leave the controller due on the next tick.
func (c *ReproductionController) Adjust(tick int64, avg float64, samples int, band Band) ([]Adjustment, error) {
	if samples < c.cfg.MinSamples {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientHistory, samples, c.cfg.MinSamples)
	}
	if math.IsNaN(avg) || math.IsInf(avg, 0) || avg <= 0 {
		return nil, fmt.Errorf("%w: rolling average %v", ErrInsufficientHistory, avg)
	}
	if !band.Valid() {
		return nil, fmt.Errorf("%w: degenerate band %v", ErrInsufficientHistory, band)
	}
	c.State.LastEvaluatedTick = tick

	deviation := (avg - band.Mid()) / math.Max(1, band.HalfWidth())
	if math.Abs(deviation) <= c.cfg.Deadband {
		return nil, nil
	}

	// Below the band: more births. Above it: fewer.
	dir, reason := 1.0, "below band"
	if deviation > 0 {
		dir, reason = -1.0, "above band"
	}
	mag := math.Abs(deviation) * c.cfg.Sensitivity

	var out []Adjustment

	chance := c.reg.Get(ReproBaseChance)
	step := math.Min(c.cfg.ChanceStepCap, mag*chance)
	if adj, ok := c.State.commit(c.reg, tick, ReproBaseChance, c.smooth(chance, chance+dir*step), c.cfg.MinChange, reason); ok {
		out = append(out, adj)
	}

	cooldown := c.reg.Get(ReproCooldown)
	step = math.Min(c.cfg.CooldownStepCap, mag*cooldown)
	if adj, ok := c.State.commit(c.reg, tick, ReproCooldown, c.smooth(cooldown, cooldown-dir*step), c.cfg.MinChange, reason); ok {
		out = append(out, adj)
	}

	return out, nil
}

func (c *ReproductionController) smooth(prev, target float64) float64 {
	return c.cfg.SmoothingAlpha*target + (1-c.cfg.SmoothingAlpha)*prev
}
