package systems

import (
	"errors"
	"strings"

	"github.com/pthm-cable/homeostasis/config"
)

// Transient computation errors. A stock that reports one is left unchanged
// for the tick; the caller logs and moves on.
var (
	ErrZeroCapacity = errors.New("resource stock has zero capacity")
	ErrNonFinite    = errors.New("non-finite value in computation")
)

// ResourceType identifies a kind of regional resource.
type ResourceType uint8

const (
	Plant ResourceType = iota
	Animal
	Fish
	Mineral
	numResourceTypes
)

// NumResourceTypes is the number of resource types.
const NumResourceTypes = int(numResourceTypes)

// ResourceTypes lists every type in index order.
var ResourceTypes = [numResourceTypes]ResourceType{Plant, Animal, Fish, Mineral}

var resourceNames = [numResourceTypes]string{"plant", "animal", "fish", "mineral"}

func (r ResourceType) String() string {
	if r < numResourceTypes {
		return resourceNames[r]
	}
	return "unknown"
}

// Renewable reports whether the type regrows logistically. Renewable
// resources are food; minerals are ore.
func (r ResourceType) Renewable() bool {
	return r != Mineral
}

// ParseResourceType maps a lower-case name to its type.
func ParseResourceType(name string) (ResourceType, bool) {
	name = strings.ToLower(name)
	for i, n := range resourceNames {
		if n == name {
			return ResourceType(i), true
		}
	}
	return 0, false
}

// ResourceStock is the amount of one resource type held by one region.
// Invariant: 0 <= Amount <= Capacity.
type ResourceStock struct {
	Region    int          `json:"region"`
	Type      ResourceType `json:"type"`
	Capacity  float64      `json:"capacity"`
	RegenRate float64      `json:"regen_rate"` // logistic r
	Amount    float64      `json:"amount"`
}

// RegenParams holds the regeneration shape shared by all stocks.
type RegenParams struct {
	BootstrapFraction  float64
	MineralLinearRegen float64
	MineralLowFraction float64
	MineralTrickle     float64
}

// NewRegenParams extracts regeneration parameters from config.
func NewRegenParams(cfg config.ResourceConfig) RegenParams {
	return RegenParams{
		BootstrapFraction:  cfg.BootstrapFraction,
		MineralLinearRegen: cfg.MineralLinearRegen,
		MineralLowFraction: cfg.MineralLowFraction,
		MineralTrickle:     cfg.MineralTrickle,
	}
}

// IntrinsicRates returns the configured logistic r per type. Minerals have none.
func IntrinsicRates(cfg config.ResourceConfig) [numResourceTypes]float64 {
	var out [numResourceTypes]float64
	for name, r := range cfg.IntrinsicRates {
		if t, ok := ParseResourceType(name); ok && t.Renewable() {
			out[t] = r
		}
	}
	return out
}

// Growth computes the regeneration of a stock for one tick without applying it.
//
// Renewables grow logistically, r*season*wave*A*(1-A/K). Near-empty stocks
// get a bootstrap floor so they can recover from depletion. Minerals regain a
// fixed fraction of capacity while nearly exhausted and a trickle otherwise.
func (p RegenParams) Growth(s *ResourceStock, season, wave float64) (float64, error) {
	if s.Capacity <= 0 {
		return 0, ErrZeroCapacity
	}
	k := s.Capacity
	a := s.Amount

	var growth float64
	if s.Type.Renewable() {
		growth = s.RegenRate * season * wave * a * (1 - a/k)
		if a < p.BootstrapFraction*k {
			floor := p.BootstrapFraction * k * season * wave
			if growth < floor {
				growth = floor
			}
		}
	} else {
		growth = k * p.MineralLinearRegen
		if a >= p.MineralLowFraction*k {
			growth *= p.MineralTrickle
		}
	}

	if !finite(growth) {
		return 0, ErrNonFinite
	}
	return growth, nil
}

// Step regenerates a stock for one tick and returns the amount actually
// added. On error the stock is left unchanged.
func (p RegenParams) Step(s *ResourceStock, season, wave float64) (float64, error) {
	growth, err := p.Growth(s, season, wave)
	if err != nil {
		return 0, err
	}
	before := s.Amount
	s.Amount = clamp(s.Amount+growth, 0, s.Capacity)
	return s.Amount - before, nil
}

// Draw removes up to want from the stock and returns what was removed.
func (s *ResourceStock) Draw(want float64) float64 {
	if want <= 0 || !finite(want) {
		return 0
	}
	if want > s.Amount {
		want = s.Amount
	}
	s.Amount -= want
	return want
}

// RegionGrowth is the regeneration produced by one region in one tick.
type RegionGrowth struct {
	Region int
	ByType [numResourceTypes]float64
	Errs   []error
}

// ResourcePool steps the stocks of regions. It holds only shared read-only
// parameters, so distinct regions can be stepped concurrently.
type ResourcePool struct {
	params  RegenParams
	seasons SeasonTable
}

// NewResourcePool creates a pool from config.
func NewResourcePool(cfg config.ResourceConfig) *ResourcePool {
	return &ResourcePool{
		params:  NewRegenParams(cfg),
		seasons: NewSeasonTable(cfg.SeasonMultipliers),
	}
}

// StepRegion regenerates every stock of a region. Failing stocks are skipped
// and their errors collected.
func (p *ResourcePool) StepRegion(region int, stocks []ResourceStock, season Season, wave float64) RegionGrowth {
	out := RegionGrowth{Region: region}
	for i := range stocks {
		s := &stocks[i]
		grown, err := p.params.Step(s, p.seasons.Multiplier(season, s.Type), wave)
		if err != nil {
			out.Errs = append(out.Errs, err)
			continue
		}
		out.ByType[s.Type] += grown
	}
	return out
}
