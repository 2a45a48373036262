package telemetry

import (
	"log/slog"

	"github.com/pthm-cable/homeostasis/systems"
)

// Amounts holds one value per resource type.
type Amounts [systems.NumResourceTypes]float64

// Sum returns the total over all types.
func (a Amounts) Sum() float64 {
	var s float64
	for _, v := range a {
		s += v
	}
	return s
}

// Food returns the total over renewable types.
func (a Amounts) Food() float64 {
	var s float64
	for _, t := range systems.ResourceTypes {
		if t.Renewable() {
			s += a[t]
		}
	}
	return s
}

// PressureStats summarizes starvation pressure across groups.
type PressureStats struct {
	Total float64 `json:"total"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// AuditSnapshot is an immutable record of one tick.
type AuditSnapshot struct {
	Tick       int64 `json:"tick"`
	Population int   `json:"population"`
	Groups     int   `json:"groups"`

	ResourceTotals Amounts `json:"resource_totals"`
	ResourceDelta  Amounts `json:"resource_delta"`

	Births           int `json:"births"`
	StarvationDeaths int `json:"starvation_deaths"`
	NaturalDeaths    int `json:"natural_deaths"`

	CumBirths           int64 `json:"cum_births"`
	CumStarvationDeaths int64 `json:"cum_starvation_deaths"`
	CumNaturalDeaths    int64 `json:"cum_natural_deaths"`

	Pressure PressureStats `json:"starvation_pressure"`
	Wave     systems.Wave  `json:"wave"`
	BandMin  float64       `json:"band_min"`
	BandMax  float64       `json:"band_max"`
}

// Deaths returns all deaths recorded in the snapshot.
func (s AuditSnapshot) Deaths() int {
	return s.StarvationDeaths + s.NaturalDeaths
}

// LogValue implements slog.LogValuer for structured logging.
func (s AuditSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("tick", s.Tick),
		slog.Int("population", s.Population),
		slog.Int("groups", s.Groups),
		slog.Float64("food", s.ResourceTotals.Food()),
		slog.Float64("ore", s.ResourceTotals[systems.Mineral]),
		slog.Int("births", s.Births),
		slog.Int("starvation_deaths", s.StarvationDeaths),
		slog.Int("natural_deaths", s.NaturalDeaths),
		slog.Float64("pressure_max", s.Pressure.Max),
		slog.Float64("pressure_avg", s.Pressure.Avg),
		slog.Float64("band_min", s.BandMin),
		slog.Float64("band_max", s.BandMax),
	)
}

// AuditLedger keeps a bounded rolling history of tick snapshots plus
// cumulative counters. It is the only source of truth controllers read.
type AuditLedger struct {
	history *Ring[AuditSnapshot]

	cumBirths     int64
	cumStarvation int64
	cumNatural    int64
}

// NewAuditLedger creates a ledger holding the newest capacity snapshots.
func NewAuditLedger(capacity int) *AuditLedger {
	return &AuditLedger{history: NewRing[AuditSnapshot](capacity)}
}

// Append records a snapshot. The delta and cumulative fields are filled in
// from the ledger's own state; callers leave them zero.
func (l *AuditLedger) Append(s AuditSnapshot) AuditSnapshot {
	if prev, ok := l.history.Last(); ok {
		for i := range s.ResourceDelta {
			s.ResourceDelta[i] = s.ResourceTotals[i] - prev.ResourceTotals[i]
		}
	}
	l.cumBirths += int64(s.Births)
	l.cumStarvation += int64(s.StarvationDeaths)
	l.cumNatural += int64(s.NaturalDeaths)
	s.CumBirths = l.cumBirths
	s.CumStarvationDeaths = l.cumStarvation
	s.CumNaturalDeaths = l.cumNatural

	l.history.Push(s)
	return s
}

// Len returns the number of retained snapshots.
func (l *AuditLedger) Len() int { return l.history.Len() }

// Capacity returns the maximum number of retained snapshots.
func (l *AuditLedger) Capacity() int { return l.history.Cap() }

// Latest returns the newest snapshot.
func (l *AuditLedger) Latest() (AuditSnapshot, bool) {
	return l.history.Last()
}

// Recent returns copies of the newest n snapshots, oldest first.
func (l *AuditLedger) Recent(n int) []AuditSnapshot {
	return l.history.Tail(n)
}

// Populations returns the population series of the newest n snapshots.
func (l *AuditLedger) Populations(n int) []float64 {
	size := l.history.Len()
	if n > size || n < 0 {
		n = size
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(l.history.At(size - n + i).Population)
	}
	return out
}

// Cumulative returns total births, starvation deaths and natural deaths.
func (l *AuditLedger) Cumulative() (births, starvation, natural int64) {
	return l.cumBirths, l.cumStarvation, l.cumNatural
}

// Restore replaces the ledger contents, for resuming from persisted state.
// Snapshots are expected oldest first; only the newest Capacity are kept.
func (l *AuditLedger) Restore(snaps []AuditSnapshot) {
	l.history.Reset()
	for _, s := range snaps {
		l.history.Push(s)
	}
	if last, ok := l.history.Last(); ok {
		l.cumBirths = last.CumBirths
		l.cumStarvation = last.CumStarvationDeaths
		l.cumNatural = last.CumNaturalDeaths
	} else {
		l.cumBirths, l.cumStarvation, l.cumNatural = 0, 0, 0
	}
}
