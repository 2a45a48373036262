package control

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// Band is the population range the other controllers steer toward.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Mid returns the band midpoint.
func (b Band) Mid() float64 { return (b.Min + b.Max) / 2 }

// HalfWidth returns half the band width.
func (b Band) HalfWidth() float64 { return (b.Max - b.Min) / 2 }

// Contains reports whether pop lies inside the band.
func (b Band) Contains(pop float64) bool { return pop >= b.Min && pop <= b.Max }

// Valid reports whether the band is finite and non-empty.
func (b Band) Valid() bool {
	return finite(b.Min) && finite(b.Max) && b.Max > b.Min
}

func (b Band) String() string {
	return fmt.Sprintf("[%.2f, %.2f]", b.Min, b.Max)
}

// Recalibration records one band update.
type Recalibration struct {
	Tick     int64   `json:"tick"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Old      Band    `json:"old"`
	Proposed Band    `json:"proposed"`
	New      Band    `json:"new"`
}

// Row converts the recalibration for CSV output.
func (r Recalibration) Row() telemetry.BandRow {
	return telemetry.BandRow{
		Tick:        r.Tick,
		Mean:        r.Mean,
		Std:         r.Std,
		OldMin:      r.Old.Min,
		OldMax:      r.Old.Max,
		ProposedMin: r.Proposed.Min,
		ProposedMax: r.Proposed.Max,
		NewMin:      r.New.Min,
		NewMax:      r.New.Max,
	}
}

// PopulationBandRecalibrator moves the band to track realized population
// variance. It is the only writer of the band.
type PopulationBandRecalibrator struct {
	cfg     config.BandControlConfig
	band    Band
	State   ControllerState
	history *telemetry.Ring[Recalibration]
}

// NewPopulationBandRecalibrator starts from the configured initial band.
func NewPopulationBandRecalibrator(cfg config.BandControlConfig) *PopulationBandRecalibrator {
	return &PopulationBandRecalibrator{
		cfg:     cfg,
		band:    Band{Min: cfg.InitialMin, Max: cfg.InitialMax},
		State:   newControllerState("band", cfg.HistoryLimit),
		history: telemetry.NewRing[Recalibration](cfg.HistoryLimit),
	}
}

// Band returns the current band.
func (r *PopulationBandRecalibrator) Band() Band {
	return r.band
}

// Restore replaces the band from saved state. Invalid bands are ignored.
func (r *PopulationBandRecalibrator) Restore(b Band) {
	if b.Valid() {
		r.band = b
	}
}

// History returns recorded recalibrations, oldest first.
func (r *PopulationBandRecalibrator) History() []Recalibration {
	return r.history.Slice()
}

// Update recalibrates from the ledger if the interval has elapsed.
func (r *PopulationBandRecalibrator) Update(tick int64, ledger *telemetry.AuditLedger) (*Recalibration, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	if !r.State.due(tick, r.cfg.Interval) {
		return nil, ErrNotDue
	}

	if ledger.Len() < r.cfg.MinWindow {
		return nil, fmt.Errorf("%w: %d ticks, need %d", ErrInsufficientHistory, ledger.Len(), r.cfg.MinWindow)
	}
	return r.Recalibrate(tick, ledger.Populations(r.cfg.MinWindow))
}

// Recalibrate blends a band proposed from pops into the current band.
func (r *PopulationBandRecalibrator) Recalibrate(tick int64, pops []float64) (*Recalibration, error) {
	if len(pops) < r.cfg.MinWindow || len(pops) < 2 {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientHistory, len(pops), r.cfg.MinWindow)
	}
	mean, std := telemetry.MeanStd(pops)
	proposed, err := r.ProposeBand(mean, std)
	if err != nil {
		return nil, err
	}
	r.State.LastEvaluatedTick = tick

	old := r.band
	a := r.cfg.Alpha
	next := Band{
		Min: old.Min + a*(proposed.Min-old.Min),
		Max: old.Max + a*(proposed.Max-old.Max),
	}
	if next.Max < next.Min+r.cfg.MinWidth {
		next.Max = next.Min + r.cfg.MinWidth
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%w: blended band %v", ErrInsufficientHistory, next)
	}
	r.band = next

	rec := Recalibration{Tick: tick, Mean: mean, Std: std, Old: old, Proposed: proposed, New: next}
	r.history.Push(rec)
	r.State.LastAdjustedTick = tick
	slog.Info("band recalibrated", "tick", tick, "mean", mean, "std", std, "old", old.String(), "new", next.String())
	return &rec, nil
}

// ProposeBand derives a band centered on mean with a half width scaled from
// std and clamped to [min_half, max_half_frac*mean].
func (r *PopulationBandRecalibrator) ProposeBand(mean, std float64) (Band, error) {
	if !finite(mean) || !finite(std) || mean <= 0 {
		return Band{}, fmt.Errorf("%w: mean=%v std=%v", ErrInsufficientHistory, mean, std)
	}
	half := std * r.cfg.StdMult * r.cfg.ShrinkBias
	half = math.Min(half, r.cfg.MaxHalfFrac*mean)
	half = math.Max(half, r.cfg.MinHalf)

	lo := math.Max(1, mean-half)
	hi := math.Max(lo+r.cfg.MinWidth, mean+half)
	return Band{Min: lo, Max: hi}, nil
}
