package sim

import (
	"sort"

	"github.com/pthm-cable/homeostasis/control"
	"github.com/pthm-cable/homeostasis/systems"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// GroupDiagnostics is a read-only view of one group.
type GroupDiagnostics struct {
	ID                 int     `json:"id"`
	Members            int     `json:"members"`
	State              string  `json:"state"`
	StarvationPressure float64 `json:"starvation_pressure"`
	FoodPool           float64 `json:"food_pool"`
	OrePool            float64 `json:"ore_pool"`
	CapacityEstimate   float64 `json:"capacity_estimate"`
	InRelief           bool    `json:"in_relief"`
}

// Diagnostics is a read-only summary of the current simulation state.
type Diagnostics struct {
	Tick            int64                   `json:"tick"`
	Population      int                     `json:"population"`
	Band            control.Band            `json:"band"`
	Wave            systems.Wave            `json:"wave"`
	Season          string                  `json:"season"`
	Parameters      map[string]float64      `json:"parameters"`
	Utilization     telemetry.Amounts       `json:"utilization"`
	FoodUtilization float64                 `json:"food_utilization"`
	OverHarvested   []string                `json:"over_harvested,omitempty"`
	Pressure        telemetry.PressureStats `json:"pressure"`
	Capacity        float64                 `json:"capacity"` // sum of group estimates
	Groups          []GroupDiagnostics      `json:"groups"`
}

// Diagnostics collects the current state for reporting.
func (s *Simulation) Diagnostics() Diagnostics {
	params := s.controls.Registry.Tunables()
	d := Diagnostics{
		Tick:            s.tick,
		Population:      s.roster.Total(),
		Band:            s.controls.Band.Band(),
		Wave:            s.lastWave,
		Season:          systems.SeasonAt(s.tick, s.cfg.Derived.TicksPerSeason).String(),
		Parameters:      s.controls.Registry.Values(),
		Utilization:     s.util.Ratios(),
		FoodUtilization: s.util.FoodRatio(),
		Groups:          make([]GroupDiagnostics, 0, len(s.groups)),
	}
	for _, t := range systems.ResourceTypes {
		if s.util.OverHarvested(t) {
			d.OverHarvested = append(d.OverHarvested, t.String())
		}
	}

	pressures := make([]float64, 0, len(s.groups))
	for _, g := range s.groups {
		pressures = append(pressures, g.StarvationPressure)
		d.Capacity += g.CapacityEstimate
		d.Groups = append(d.Groups, GroupDiagnostics{
			ID:                 g.ID,
			Members:            s.roster.Count(g.ID),
			State:              g.State(params).String(),
			StarvationPressure: g.StarvationPressure,
			FoodPool:           g.FoodPool,
			OrePool:            g.OrePool,
			CapacityEstimate:   g.CapacityEstimate,
			InRelief:           g.InRelief(s.tick),
		})
	}
	d.Pressure = telemetry.ComputePressureStats(pressures)
	return d
}

// Snapshots returns up to n of the most recent audit snapshots, oldest
// first. Snapshots are values, so callers cannot alter the ledger.
func (s *Simulation) Snapshots(n int) []telemetry.AuditSnapshot {
	return s.ledger.Recent(n)
}

// Latest returns the most recent audit snapshot.
func (s *Simulation) Latest() (telemetry.AuditSnapshot, bool) {
	return s.ledger.Latest()
}

// Parameters returns the current value of every tunable.
func (s *Simulation) Parameters() map[string]float64 {
	return s.controls.Registry.Values()
}

// Band returns the current population band.
func (s *Simulation) Band() control.Band {
	return s.controls.Band.Band()
}

// Wave returns the multipliers used by the last tick.
func (s *Simulation) Wave() systems.Wave {
	return s.lastWave
}

// Population returns the current total population.
func (s *Simulation) Population() int {
	return s.roster.Total()
}

// Adjustments returns the recorded controller adjustments, oldest first.
func (s *Simulation) Adjustments() []control.Adjustment {
	out := append(s.controls.Reproduction.State.History(), s.controls.Mortality.State.History()...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out
}

// Recalibrations returns the recorded band updates, oldest first.
func (s *Simulation) Recalibrations() []control.Recalibration {
	return s.controls.Band.History()
}

// AdjustParameters applies manual overrides outside the controller cycle.
// Unknown keys and non-finite values reject the whole batch; accepted
// values are clamped to their bounds.
func (s *Simulation) AdjustParameters(overrides map[string]float64) (map[string]control.Change, error) {
	changes, err := s.controls.Registry.Override(overrides)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([]telemetry.AdjustmentRow, 0, len(names))
	for _, name := range names {
		ch := changes[name]
		rows = append(rows, telemetry.AdjustmentRow{
			Tick:       s.tick,
			Controller: "manual",
			Param:      name,
			Old:        ch.Old,
			New:        ch.New,
			Reason:     "override",
		})
	}
	s.recordAdjustments(rows)
	return changes, nil
}
