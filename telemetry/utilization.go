package telemetry

import (
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/homeostasis/systems"
)

// Utilization tracks how much of each resource type's regeneration is being
// consumed. Ratios above 1 mean stocks are being drawn down. The figures are
// advisory and feed diagnostics only.
type Utilization struct {
	regenerated Amounts
	consumed    Amounts
	ratios      [systems.NumResourceTypes]*Ring[float64]
}

// NewUtilization creates a tracker smoothing over window updates.
func NewUtilization(window int) *Utilization {
	u := &Utilization{}
	for i := range u.ratios {
		u.ratios[i] = NewRing[float64](window)
	}
	return u
}

// AddRegenerated accumulates regeneration for the current tick.
func (u *Utilization) AddRegenerated(a Amounts) {
	for i, v := range a {
		u.regenerated[i] += v
	}
}

// AddConsumed accumulates consumption for the current tick.
func (u *Utilization) AddConsumed(a Amounts) {
	for i, v := range a {
		u.consumed[i] += v
	}
}

// Update folds the tick's accumulators into the smoothing window and resets
// them. Types with no regeneration this tick are skipped.
func (u *Utilization) Update() {
	for i := range u.ratios {
		if u.regenerated[i] > 0 {
			u.ratios[i].Push(u.consumed[i] / u.regenerated[i])
		}
	}
	u.regenerated = Amounts{}
	u.consumed = Amounts{}
}

// Ratio returns the smoothed consumed/regenerated ratio for a type.
func (u *Utilization) Ratio(t systems.ResourceType) float64 {
	r := u.ratios[t]
	if r.Len() == 0 {
		return 0
	}
	return stat.Mean(r.Slice(), nil)
}

// Ratios returns the smoothed ratio of every type.
func (u *Utilization) Ratios() Amounts {
	var out Amounts
	for _, t := range systems.ResourceTypes {
		out[t] = u.Ratio(t)
	}
	return out
}

// FoodRatio returns the mean smoothed ratio over renewable types that have data.
func (u *Utilization) FoodRatio() float64 {
	var sum float64
	var n int
	for _, t := range systems.ResourceTypes {
		if t.Renewable() && u.ratios[t].Len() > 0 {
			sum += u.Ratio(t)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// OverHarvested reports whether consumption outpaces regeneration for a type.
func (u *Utilization) OverHarvested(t systems.ResourceType) bool {
	return u.Ratio(t) > 1
}
