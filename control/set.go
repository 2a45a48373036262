package control

import (
	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// Set runs the three controllers over one registry, in a fixed order, after
// each tick's snapshot has been appended.
type Set struct {
	Registry     *Registry
	Reproduction *ReproductionController
	Mortality    *MortalityCapacityController
	Band         *PopulationBandRecalibrator
}

// NewSet builds the registry and controllers from cfg.
func NewSet(cfg *config.Config) *Set {
	reg := NewRegistry(cfg.Parameters)
	return &Set{
		Registry:     reg,
		Reproduction: NewReproductionController(cfg.Control.Reproduction, reg),
		Mortality:    NewMortalityCapacityController(cfg.Control.Mortality, reg),
		Band:         NewPopulationBandRecalibrator(cfg.Control.Band),
	}
}

// Result collects what one Update changed. Errs holds faults that turned a
// controller cycle into a no-op; deferrals are not included.
type Result struct {
	Adjustments   []Adjustment
	Recalibration *Recalibration
	Errs          []error
}

// Changed reports whether anything was committed.
func (r Result) Changed() bool {
	return len(r.Adjustments) > 0 || r.Recalibration != nil
}

// Update runs every due controller. It never fails: faults degrade to a
// no-op for that controller and are reported in the result.
func (s *Set) Update(tick int64, ledger *telemetry.AuditLedger) Result {
	var res Result
	keep := func(err error) {
		if err != nil && !Deferred(err) {
			res.Errs = append(res.Errs, err)
		}
	}

	adj, err := s.Reproduction.Update(tick, ledger, s.Band.Band())
	res.Adjustments = append(res.Adjustments, adj...)
	keep(err)

	adj, err = s.Mortality.Update(tick, ledger)
	res.Adjustments = append(res.Adjustments, adj...)
	keep(err)

	res.Recalibration, err = s.Band.Update(tick, ledger)
	keep(err)

	return res
}

// Timings is the persistable controller bookkeeping.
type Timings struct {
	Reproduction Timing `json:"reproduction"`
	Mortality    Timing `json:"mortality"`
	Band         Timing `json:"band"`
}

// Timings returns the evaluation/adjustment ticks of every controller.
func (s *Set) Timings() Timings {
	return Timings{
		Reproduction: s.Reproduction.State.timing(),
		Mortality:    s.Mortality.State.timing(),
		Band:         s.Band.State.timing(),
	}
}

// RestoreTimings reinstates saved controller bookkeeping.
func (s *Set) RestoreTimings(t Timings) {
	s.Reproduction.State.restore(t.Reproduction)
	s.Mortality.State.restore(t.Mortality)
	s.Band.State.restore(t.Band)
}
