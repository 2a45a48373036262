package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/homeostasis/config"
)

// pressureFloor is the level below which decaying starvation pressure snaps
// to zero, so a fed group eventually returns to the Stable state.
const pressureFloor = 0.01

// AgentID identifies a member in the population subsystem.
type AgentID uint64

// Member is the per-agent view the demographic step needs.
type Member struct {
	ID       AgentID
	BornTick int64
}

// Tunables are the demographic parameters in effect for one tick. Controllers
// adjust some of them between ticks; the step only reads a copy.
type Tunables struct {
	ReproBaseChance           float64
	ReproCooldown             float64 // ticks
	StarvDeathRate            float64
	CapOverPenaltySlope       float64
	StarvThreshold            float64
	FoodPerCapitaPerDay       float64
	StarvDecay                float64
	StarvDeathChanceMax       float64
	ReproFoodMin              float64
	ReproSurplusCap           float64
	LowPopThreshold           float64
	LowPopReproMult           float64
	ReproSecondTierPressure   float64
	ReproSecondTierChanceMult float64
}

// TunablesFromConfig returns the configured initial parameter values.
func TunablesFromConfig(p config.ParametersConfig) Tunables {
	return Tunables{
		ReproBaseChance:           p.ReproBaseChance.Value,
		ReproCooldown:             p.ReproCooldown.Value,
		StarvDeathRate:            p.StarvDeathRate.Value,
		CapOverPenaltySlope:       p.CapOverPenaltySlope.Value,
		StarvThreshold:            p.StarvThreshold.Value,
		FoodPerCapitaPerDay:       p.FoodPerCapitaPerDay.Value,
		StarvDecay:                p.StarvDecay.Value,
		StarvDeathChanceMax:       p.StarvDeathChanceMax.Value,
		ReproFoodMin:              p.ReproFoodMin.Value,
		ReproSurplusCap:           p.ReproSurplusCap.Value,
		LowPopThreshold:           p.LowPopThreshold.Value,
		LowPopReproMult:           p.LowPopReproMult.Value,
		ReproSecondTierPressure:   p.ReproSecondTierPressure.Value,
		ReproSecondTierChanceMult: p.ReproSecondTierChanceMult.Value,
	}
}

// GroupState is derived from starvation pressure and never stored.
type GroupState uint8

const (
	StateStable GroupState = iota
	StateRecovering
	StateStressed
	StateCritical
)

func (s GroupState) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateRecovering:
		return "recovering"
	case StateStressed:
		return "stressed"
	case StateCritical:
		return "critical"
	}
	return "unknown"
}

// ClassifyPressure maps a pressure onto a GroupState.
func ClassifyPressure(pressure float64, t Tunables) GroupState {
	switch {
	case pressure <= 0:
		return StateStable
	case pressure < t.ReproSecondTierPressure*t.StarvThreshold:
		return StateRecovering
	case pressure <= t.StarvThreshold:
		return StateStressed
	default:
		return StateCritical
	}
}

// PopulationGroup is a faction-like collective that pools food and shares
// starvation pressure. Members live in the population subsystem; the group
// only holds aggregate state.
type PopulationGroup struct {
	ID                 int
	Territory          []int // region IDs, owned exclusively
	StarvationPressure float64
	LastBirthTick      int64
	FoodPool           float64
	OrePool            float64
	CapacityEstimate   float64
	CapacityReady      bool

	starvDeathTicks []int64
	ReliefUntil     int64

	rng *rand.Rand
}

// NewPopulationGroup creates a group with its own random stream.
func NewPopulationGroup(id int, territory []int, seed int64) *PopulationGroup {
	return &PopulationGroup{
		ID:            id,
		Territory:     territory,
		LastBirthTick: math.MinInt32,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Reseed replaces the group's random stream.
func (g *PopulationGroup) Reseed(seed int64) {
	g.rng = rand.New(rand.NewSource(seed))
}

// State derives the group's condition from its pressure.
func (g *PopulationGroup) State(t Tunables) GroupState {
	return ClassifyPressure(g.StarvationPressure, t)
}

// InRelief reports whether adaptive mortality relief is active.
func (g *PopulationGroup) InRelief(tick int64) bool {
	return tick < g.ReliefUntil
}

// StepInput is everything a group step reads besides the group itself.
type StepInput struct {
	Tick    int64
	Members []Member         // sorted by ID
	Stocks  []*ResourceStock // stocks of the group's territory
	Params  Tunables
	Wave    Wave
	Season  Season
}

// Outcome is the result of one group step. The caller applies deaths and
// births to the population subsystem.
type Outcome struct {
	Group            int
	Deaths           []AgentID
	StarvationDeaths int
	NaturalDeaths    int
	Births           int
	Harvested        [numResourceTypes]float64
}

// DemographicProcessor runs the per-group consume, mortality and birth step.
// It holds only read-only configuration, so distinct groups can be stepped
// concurrently.
type DemographicProcessor struct {
	cfg         config.DemographicsConfig
	harvest     config.ResourceConfig
	seasons     SeasonTable
	ticksPerDay float64
}

// NewDemographicProcessor creates a processor from config.
func NewDemographicProcessor(cfg *config.Config) *DemographicProcessor {
	tpd := cfg.Clock.TicksPerDay
	if tpd < 1 {
		tpd = 1
	}
	return &DemographicProcessor{
		cfg:         cfg.Demographics,
		harvest:     cfg.Resource,
		seasons:     NewSeasonTable(cfg.Resource.SeasonMultipliers),
		ticksPerDay: float64(tpd),
	}
}

// NeedPerCapita is the food one member consumes per tick.
func (d *DemographicProcessor) NeedPerCapita(t Tunables) float64 {
	return t.FoodPerCapitaPerDay / d.ticksPerDay
}

// Step advances one group by one tick.
func (d *DemographicProcessor) Step(g *PopulationGroup, in StepInput) Outcome {
	out := Outcome{Group: g.ID}
	n := len(in.Members)
	p := in.Params

	d.gather(g, in, &out)
	d.consume(g, n, p)
	d.updateCapacity(g, in)
	d.applyCapacityPressure(g, n, p)

	if g.StarvationPressure < 0 || !finite(g.StarvationPressure) {
		g.StarvationPressure = 0
	}
	if n > 0 && n <= d.cfg.SmallGroupSize {
		if ceiling := p.StarvThreshold + 2; g.StarvationPressure > ceiling {
			g.StarvationPressure = ceiling
		}
	}

	d.mortality(g, in, &out)
	d.birth(g, in, n-len(out.Deaths), &out)
	return out
}

// gather harvests a population-scaled fraction of every territory stock.
func (d *DemographicProcessor) gather(g *PopulationGroup, in StepInput, out *Outcome) {
	n := len(in.Members)
	if n == 0 {
		return
	}
	frac := math.Min(d.harvest.HarvestBase+float64(n)*d.harvest.HarvestPerCapita, d.harvest.HarvestMax)
	for _, s := range in.Stocks {
		got := s.Draw(s.Amount * frac)
		out.Harvested[s.Type] += got
		if s.Type.Renewable() {
			g.FoodPool += got
		} else {
			g.OrePool += got
		}
	}
}

// consume feeds members from the pool. Unmet need becomes pressure; a fully
// fed group decays its pressure toward zero.
func (d *DemographicProcessor) consume(g *PopulationGroup, n int, p Tunables) {
	need := float64(n) * d.NeedPerCapita(p)
	if need <= 0 {
		return
	}
	if g.FoodPool >= need {
		g.FoodPool -= need
		g.StarvationPressure *= 1 - p.StarvDecay
		if g.StarvationPressure < pressureFloor {
			g.StarvationPressure = 0
		}
		return
	}
	g.StarvationPressure += need - g.FoodPool
	g.FoodPool = 0
}

// updateCapacity folds the territory's sustainable yield into the EMA estimate.
func (d *DemographicProcessor) updateCapacity(g *PopulationGroup, in StepInput) {
	need := d.NeedPerCapita(in.Params)
	if need <= 0 {
		return
	}
	var yield float64
	for _, s := range in.Stocks {
		if !s.Type.Renewable() {
			continue
		}
		// Maximum sustainable yield of a logistic stock is r*K/4.
		yield += s.RegenRate * s.Capacity / 4 * d.seasons.Multiplier(in.Season, s.Type) * in.Wave.Resource
	}
	sustainable := yield / need
	if !finite(sustainable) {
		return
	}
	if !g.CapacityReady {
		g.CapacityEstimate = sustainable
		g.CapacityReady = true
		return
	}
	a := d.cfg.CapacityEMAAlpha
	g.CapacityEstimate = a*sustainable + (1-a)*g.CapacityEstimate
}

func (d *DemographicProcessor) applyCapacityPressure(g *PopulationGroup, n int, p Tunables) {
	if g.CapacityEstimate <= 0 || float64(n) <= g.CapacityEstimate {
		return
	}
	over := float64(n)/g.CapacityEstimate - 1
	g.StarvationPressure += p.CapOverPenaltySlope * over
}

// StarvationDeathChance is the per-member death probability at a pressure.
func StarvationDeathChance(pressure float64, p Tunables, mortalityMult, relief float64) float64 {
	if pressure <= p.StarvThreshold {
		return 0
	}
	chance := p.StarvDeathRate * (pressure - p.StarvThreshold) * mortalityMult * relief
	return clamp(chance, 0, p.StarvDeathChanceMax)
}

// AgeDeathChance is a logistic curve rising from base toward max around the
// midpoint, certain at the maximum age.
func (d *DemographicProcessor) AgeDeathChance(age float64) float64 {
	c := d.cfg
	if c.AgeMax > 0 && age >= c.AgeMax {
		return 1
	}
	if c.AgeMortalityMax <= 0 {
		return 0
	}
	x := (age - c.AgeMidpoint) / c.AgeSteepness
	return clamp(c.AgeMortalityBase+(c.AgeMortalityMax-c.AgeMortalityBase)*logistic(x), 0, 1)
}

func (d *DemographicProcessor) mortality(g *PopulationGroup, in StepInput, out *Outcome) {
	if len(in.Members) == 0 {
		return
	}
	relief := 1.0
	if g.InRelief(in.Tick) {
		relief = d.cfg.ReliefMultiplier
	}
	starv := StarvationDeathChance(g.StarvationPressure, in.Params, in.Wave.Mortality, relief)

	for _, m := range in.Members {
		if starv > 0 && g.rng.Float64() < starv {
			out.Deaths = append(out.Deaths, m.ID)
			out.StarvationDeaths++
			continue
		}
		if g.rng.Float64() < d.AgeDeathChance(float64(in.Tick-m.BornTick)) {
			out.Deaths = append(out.Deaths, m.ID)
			out.NaturalDeaths++
		}
	}

	d.trackRelief(g, in.Tick, out.StarvationDeaths)
}

// trackRelief opens a relief period after a burst of starvation deaths.
func (d *DemographicProcessor) trackRelief(g *PopulationGroup, tick int64, deaths int) {
	if d.cfg.ReliefDeathCount <= 0 {
		return
	}
	for i := 0; i < deaths; i++ {
		g.starvDeathTicks = append(g.starvDeathTicks, tick)
	}
	cutoff := tick - d.cfg.ReliefWindow
	keep := g.starvDeathTicks[:0]
	for _, t := range g.starvDeathTicks {
		if t > cutoff {
			keep = append(keep, t)
		}
	}
	g.starvDeathTicks = keep
	if len(g.starvDeathTicks) >= d.cfg.ReliefDeathCount && !g.InRelief(tick) {
		g.ReliefUntil = tick + d.cfg.ReliefDuration
		g.starvDeathTicks = g.starvDeathTicks[:0]
	}
}

// BirthChance returns the probability of a birth this tick, or zero when the
// group is gated by cooldown, food or pressure.
func (d *DemographicProcessor) BirthChance(g *PopulationGroup, tick int64, alive int, p Tunables, fertility float64) float64 {
	if alive <= 0 {
		return 0
	}
	if float64(tick-g.LastBirthTick) < p.ReproCooldown {
		return 0
	}
	perCapita := g.FoodPool / float64(alive)
	if perCapita < p.ReproFoodMin {
		return 0
	}

	tier := 0.0
	switch {
	case g.StarvationPressure <= 0:
		tier = 1
	case g.StarvationPressure < p.ReproSecondTierPressure*p.StarvThreshold:
		tier = p.ReproSecondTierChanceMult
	default:
		return 0
	}

	surplus := p.ReproSurplusCap
	if p.ReproFoodMin > 0 {
		surplus = math.Min(perCapita/p.ReproFoodMin, p.ReproSurplusCap)
	}
	chance := p.ReproBaseChance * surplus * fertility * tier
	if float64(alive) < p.LowPopThreshold {
		chance *= p.LowPopReproMult
	}
	return clamp(chance, 0, 1)
}

func (d *DemographicProcessor) birth(g *PopulationGroup, in StepInput, alive int, out *Outcome) {
	chance := d.BirthChance(g, in.Tick, alive, in.Params, in.Wave.Fertility)
	if chance <= 0 {
		return
	}
	if g.rng.Float64() < chance {
		out.Births = 1
		g.LastBirthTick = in.Tick
	}
}
