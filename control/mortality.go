package control

import (
	"fmt"
	"math"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// MortalityCapacityController keeps starvation pressure near its targets by
// moving STARV_DEATH_RATE, CAP_OVER_PENALTY_SLOPE and STARV_THRESHOLD.
type MortalityCapacityController struct {
	cfg   config.MortalityControlConfig
	reg   *Registry
	State ControllerState
}

// NewMortalityCapacityController creates the controller over reg.
func NewMortalityCapacityController(cfg config.MortalityControlConfig, reg *Registry) *MortalityCapacityController {
	return &MortalityCapacityController{
		cfg:   cfg,
		reg:   reg,
		State: newControllerState("mortality", cfg.HistoryLimit),
	}
}

// Update runs one cycle against the latest snapshot if the interval has elapsed.
func (c *MortalityCapacityController) Update(tick int64, ledger *telemetry.AuditLedger) ([]Adjustment, error) {
	if !c.cfg.Enabled {
		return nil, nil
	}
	if !c.State.due(tick, c.cfg.Interval) {
		return nil, ErrNotDue
	}

	latest, ok := ledger.Latest()
	if !ok {
		return nil, fmt.Errorf("%w: empty ledger", ErrInsufficientHistory)
	}
	return c.Adjust(tick, latest.Pressure)
}

// Adjust applies one controller step for the given pressure aggregate.
func (c *MortalityCapacityController) Adjust(tick int64, ps telemetry.PressureStats) ([]Adjustment, error) {
	if !finite(ps.Max) || !finite(ps.Avg) {
		return nil, fmt.Errorf("%w: pressure max=%v avg=%v", ErrInsufficientHistory, ps.Max, ps.Avg)
	}
	c.State.LastEvaluatedTick = tick

	overMax := ps.Max - c.cfg.TargetMax
	overAvg := ps.Avg - c.cfg.TargetAvg
	sens := c.cfg.Sensitivity

	rate := c.reg.Get(StarvDeathRate)
	slope := c.reg.Get(CapOverPenaltySlope)
	threshold := c.reg.Get(StarvThreshold)

	var out []Adjustment
	commit := func(p Param, v float64, reason string) {
		if adj, ok := c.State.commit(c.reg, tick, p, v, 0, reason); ok {
			out = append(out, adj)
		}
	}

	switch {
	case overMax > c.cfg.MaxMargin || overAvg > c.cfg.AvgMargin:
		overshoot := math.Max(overMax/c.cfg.TargetMax, overAvg/c.cfg.TargetAvg)
		commit(StarvDeathRate, rate+sens*overshoot*rate, "pressure over target")
		commit(CapOverPenaltySlope, slope*(1+0.6*sens), "pressure over target")
		if overMax > c.cfg.SevereMargin {
			commit(StarvThreshold, threshold-c.cfg.ThresholdStep, "pressure severely over target")
		}
	case ps.Max < c.cfg.RelaxRatio*c.cfg.TargetMax && ps.Avg < c.cfg.RelaxRatio*c.cfg.TargetAvg:
		commit(StarvDeathRate, rate*(1-0.5*sens), "pressure under target")
		commit(CapOverPenaltySlope, slope*(1-0.4*sens), "pressure under target")
		commit(StarvThreshold, threshold+c.cfg.ThresholdStep, "pressure under target")
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
