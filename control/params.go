// Package control holds the tunable parameter registry and the feedback
// controllers that retune it between ticks.
package control

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/systems"
)

// Param enumerates the registry keys.
type Param uint8

const (
	ReproBaseChance Param = iota
	ReproCooldown
	StarvDeathRate
	CapOverPenaltySlope
	StarvThreshold
	FoodPerCapitaPerDay
	StarvDecay
	StarvDeathChanceMax
	ReproFoodMin
	ReproSurplusCap
	LowPopThreshold
	LowPopReproMult
	ReproSecondTierPressure
	ReproSecondTierChanceMult
	numParams
)

var paramNames = [numParams]string{
	ReproBaseChance:           "REPRO_BASE_CHANCE",
	ReproCooldown:             "REPRO_COOLDOWN",
	StarvDeathRate:            "STARV_DEATH_RATE",
	CapOverPenaltySlope:       "CAP_OVER_PENALTY_SLOPE",
	StarvThreshold:            "STARV_THRESHOLD",
	FoodPerCapitaPerDay:       "FOOD_PER_CAPITA_PER_DAY",
	StarvDecay:                "STARV_DECAY",
	StarvDeathChanceMax:       "STARV_DEATH_CHANCE_MAX",
	ReproFoodMin:              "REPRO_FOOD_MIN",
	ReproSurplusCap:           "REPRO_SURPLUS_CAP",
	LowPopThreshold:           "LOW_POP_THRESHOLD",
	LowPopReproMult:           "LOW_POP_REPRO_MULT",
	ReproSecondTierPressure:   "REPRO_SECOND_TIER_PRESSURE",
	ReproSecondTierChanceMult: "REPRO_SECOND_TIER_CHANCE_MULT",
}

func (p Param) String() string {
	if p < numParams {
		return paramNames[p]
	}
	return fmt.Sprintf("Param(%d)", uint8(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Param) MarshalText() ([]byte, error) {
	if p >= numParams {
		return nil, fmt.Errorf("%w: %d", ErrUnknownParameter, uint8(p))
	}
	return []byte(paramNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Param) UnmarshalText(b []byte) error {
	parsed, err := ParseParam(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Params returns every registry key in declaration order.
func Params() []Param {
	out := make([]Param, numParams)
	for i := range out {
		out[i] = Param(i)
	}
	return out
}

// ParseParam resolves a key name. Matching is case-insensitive so the
// lowercase config names are accepted too.
func ParseParam(name string) (Param, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range paramNames {
		if n == upper {
			return Param(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
}

// Bounds is the inclusive range a parameter is clamped to.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to the bounds.
func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Change is the before/after pair of one committed parameter.
type Change struct {
	Old float64 `json:"old"`
	New float64 `json:"new"`
}

// Registry owns the current value and bounds of every tunable. The only way
// to change a value is Commit, which clamps before storing.
type Registry struct {
	values [numParams]float64
	bounds [numParams]Bounds
}

// NewRegistry builds a registry from the configured values and bounds.
// The config is expected to be validated already.
func NewRegistry(cfg config.ParametersConfig) *Registry {
	r := &Registry{}
	all := cfg.All()
	for i, name := range paramNames {
		pc := all[strings.ToLower(name)]
		r.bounds[i] = Bounds{Min: pc.Min, Max: pc.Max}
		r.values[i] = r.bounds[i].Clamp(pc.Value)
	}
	return r
}

// Get returns the current value of p.
func (r *Registry) Get(p Param) float64 {
	return r.values[p]
}

// Bounds returns the bounds of p.
func (r *Registry) Bounds(p Param) Bounds {
	return r.bounds[p]
}

// Commit clamps v to the bounds of p and stores it. Non-finite values are
// rejected and leave the registry untouched.
func (r *Registry) Commit(p Param, v float64) (Change, error) {
	if p >= numParams {
		return Change{}, fmt.Errorf("%w: %v", ErrUnknownParameter, p)
	}
	old := r.values[p]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Change{Old: old, New: old}, fmt.Errorf("%w: %s = %v", ErrInvalidValue, p, v)
	}
	r.values[p] = r.bounds[p].Clamp(v)
	return Change{Old: old, New: r.values[p]}, nil
}

// Override applies a batch of manual overrides. Every key and value is
// checked before anything is committed, so a bad batch changes nothing.
func (r *Registry) Override(overrides map[string]float64) (map[string]Change, error) {
	parsed := make(map[Param]float64, len(overrides))
	for name, v := range overrides {
		p, err := ParseParam(name)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s = %v", ErrInvalidValue, p, v)
		}
		parsed[p] = v
	}

	out := make(map[string]Change, len(parsed))
	for p, v := range parsed {
		ch, _ := r.Commit(p, v)
		out[p.String()] = ch
		slog.Info("parameter override", "param", p.String(), "old", ch.Old, "new", ch.New)
	}
	return out, nil
}

// Tunables returns a value snapshot for the demographic step.
func (r *Registry) Tunables() systems.Tunables {
	return systems.Tunables{
		ReproBaseChance:           r.values[ReproBaseChance],
		ReproCooldown:             r.values[ReproCooldown],
		StarvDeathRate:            r.values[StarvDeathRate],
		CapOverPenaltySlope:       r.values[CapOverPenaltySlope],
		StarvThreshold:            r.values[StarvThreshold],
		FoodPerCapitaPerDay:       r.values[FoodPerCapitaPerDay],
		StarvDecay:                r.values[StarvDecay],
		StarvDeathChanceMax:       r.values[StarvDeathChanceMax],
		ReproFoodMin:              r.values[ReproFoodMin],
		ReproSurplusCap:           r.values[ReproSurplusCap],
		LowPopThreshold:           r.values[LowPopThreshold],
		LowPopReproMult:           r.values[LowPopReproMult],
		ReproSecondTierPressure:   r.values[ReproSecondTierPressure],
		ReproSecondTierChanceMult: r.values[ReproSecondTierChanceMult],
	}
}

// Values returns the current values keyed by name.
func (r *Registry) Values() map[string]float64 {
	out := make(map[string]float64, numParams)
	for i, v := range r.values {
		out[paramNames[i]] = v
	}
	return out
}

// Restore commits saved values. Unknown keys are skipped with a warning so
// older saves still load.
func (r *Registry) Restore(values map[string]float64) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p, err := ParseParam(k)
		if err != nil {
			slog.Warn("skipping unknown saved parameter", "key", k)
			continue
		}
		if _, err := r.Commit(p, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// LogValue implements slog.LogValuer.
func (r *Registry) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 5)
	for _, p := range []Param{ReproBaseChance, ReproCooldown, StarvDeathRate, CapOverPenaltySlope, StarvThreshold} {
		attrs = append(attrs, slog.Float64(strings.ToLower(p.String()), r.values[p]))
	}
	return slog.GroupValue(attrs...)
}
