package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/homeostasis/config"
)

// newTestProcessor returns a processor with age mortality disabled so that
// only starvation deaths occur.
func newTestProcessor(t *testing.T, ticksPerDay int) (*DemographicProcessor, Tunables) {
	t.Helper()
	cfg := config.MustDefaults()
	cfg.Clock.TicksPerDay = ticksPerDay
	cfg.Demographics.AgeMortalityBase = 0
	cfg.Demographics.AgeMortalityMax = 0
	cfg.Demographics.AgeMax = 0
	cfg.Refresh()
	return NewDemographicProcessor(cfg), TunablesFromConfig(cfg.Parameters)
}

func makeMembers(n int, bornTick int64) []Member {
	out := make([]Member, n)
	for i := range out {
		out[i] = Member{ID: AgentID(i + 1), BornTick: bornTick}
	}
	return out
}

func removeDead(members []Member, dead []AgentID) []Member {
	gone := make(map[AgentID]bool, len(dead))
	for _, id := range dead {
		gone[id] = true
	}
	kept := members[:0]
	for _, m := range members {
		if !gone[m.ID] {
			kept = append(kept, m)
		}
	}
	return kept
}

func TestStarvationPressureOnsetWithoutFood(t *testing.T) {
	d, params := newTestProcessor(t, 4)
	params.CapOverPenaltySlope = 0

	g := NewPopulationGroup(1, nil, 11)
	members := makeMembers(5, 0)
	ceiling := params.StarvThreshold + 2

	want := []float64{1.25, 2.5, 3.75}
	prev := 0.0
	firstRollTick := int64(-1)
	for tick := int64(1); tick <= 10; tick++ {
		out := d.Step(g, StepInput{Tick: tick, Members: members, Params: params, Wave: Neutral()})
		p := g.StarvationPressure

		if int(tick) <= len(want) && math.Abs(p-want[tick-1]) > 1e-9 {
			t.Errorf("tick %d: pressure = %v, want %v", tick, p, want[tick-1])
		}
		if len(members) > 0 && prev < ceiling && p <= prev {
			t.Errorf("tick %d: pressure %v did not increase from %v", tick, p, prev)
		}
		if p <= params.StarvThreshold && out.StarvationDeaths > 0 {
			t.Errorf("tick %d: %d starvation deaths at pressure %v <= threshold", tick, out.StarvationDeaths, p)
		}
		if firstRollTick < 0 && StarvationDeathChance(p, params, 1, 1) > 0 {
			firstRollTick = tick
		}
		if out.Births != 0 {
			t.Errorf("tick %d: birth without food", tick)
		}

		members = removeDead(members, out.Deaths)
		prev = p
	}
	if firstRollTick != 3 {
		t.Errorf("first tick with a starvation roll = %d, want 3", firstRollTick)
	}
}

func TestFedGroupDecaysToStable(t *testing.T) {
	d, params := newTestProcessor(t, 1)
	g := NewPopulationGroup(1, nil, 1)
	g.StarvationPressure = 2.0
	g.FoodPool = 1000
	members := makeMembers(4, 0)

	prev := g.StarvationPressure
	for tick := int64(1); tick < 100; tick++ {
		d.Step(g, StepInput{Tick: tick, Members: members, Params: params, Wave: Neutral()})
		if g.StarvationPressure > prev {
			t.Fatalf("tick %d: pressure rose from %v to %v while fed", tick, prev, g.StarvationPressure)
		}
		prev = g.StarvationPressure
	}
	if g.State(params) != StateStable {
		t.Errorf("state = %v, want stable (pressure %v)", g.State(params), g.StarvationPressure)
	}
}

func TestPressureNeverNegative(t *testing.T) {
	d, params := newTestProcessor(t, 1)
	g := NewPopulationGroup(2, nil, 5)
	members := makeMembers(8, 0)
	for tick := int64(1); tick < 500; tick++ {
		// Alternate feast and famine
		if tick%20 < 10 {
			g.FoodPool += 20
		}
		out := d.Step(g, StepInput{Tick: tick, Members: members, Params: params, Wave: Neutral()})
		if g.StarvationPressure < 0 {
			t.Fatalf("tick %d: negative pressure %v", tick, g.StarvationPressure)
		}
		members = removeDead(members, out.Deaths)
		for i := 0; i < out.Births; i++ {
			members = append(members, Member{ID: AgentID(1000 + tick), BornTick: tick})
		}
	}
}

func TestClassifyPressure(t *testing.T) {
	_, params := newTestProcessor(t, 1)
	tests := []struct {
		p    float64
		want GroupState
	}{
		{0, StateStable},
		{0.5, StateRecovering},
		{1.5, StateStressed},
		{3.0, StateStressed},
		{3.01, StateCritical},
	}
	for _, tt := range tests {
		if got := ClassifyPressure(tt.p, params); got != tt.want {
			t.Errorf("ClassifyPressure(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestBirthChanceGating(t *testing.T) {
	d, params := newTestProcessor(t, 1)
	params.LowPopThreshold = 0

	g := NewPopulationGroup(1, nil, 1)
	g.FoodPool = 100
	g.LastBirthTick = 0

	if got := d.BirthChance(g, 5, 10, params, 1); got != 0 {
		t.Errorf("inside cooldown: chance = %v, want 0", got)
	}

	full := d.BirthChance(g, 100, 10, params, 1)
	if full <= 0 {
		t.Fatalf("fed group past cooldown: chance = %v, want > 0", full)
	}
	// Surplus is 10/2.5 = 4, exactly the cap
	if want := params.ReproBaseChance * 4; math.Abs(full-want) > 1e-9 {
		t.Errorf("full chance = %v, want %v", full, want)
	}

	g.StarvationPressure = 1.0
	second := d.BirthChance(g, 100, 10, params, 1)
	if want := full * params.ReproSecondTierChanceMult; math.Abs(second-want) > 1e-9 {
		t.Errorf("second tier chance = %v, want %v", second, want)
	}

	g.StarvationPressure = 2.0
	if got := d.BirthChance(g, 100, 10, params, 1); got != 0 {
		t.Errorf("pressure above second tier: chance = %v, want 0", got)
	}

	g.StarvationPressure = 0
	g.FoodPool = 10
	if got := d.BirthChance(g, 100, 10, params, 1); got != 0 {
		t.Errorf("food per capita 1.0 below minimum: chance = %v, want 0", got)
	}
}

func TestLowPopulationBoostsBirths(t *testing.T) {
	d, params := newTestProcessor(t, 1)
	g := NewPopulationGroup(1, nil, 1)
	g.FoodPool = 50 // 5 per capita, surplus 2

	small := d.BirthChance(g, 100, 10, params, 0.5)
	params.LowPopThreshold = 0
	plain := d.BirthChance(g, 100, 10, params, 0.5)
	if want := params.ReproBaseChance * 2 * 0.5; math.Abs(plain-want) > 1e-9 {
		t.Errorf("plain chance = %v, want %v", plain, want)
	}
	if math.Abs(small-plain*params.LowPopReproMult) > 1e-9 {
		t.Errorf("low pop chance = %v, want %v", small, plain*params.LowPopReproMult)
	}
}

func TestGatherHarvestsTerritory(t *testing.T) {
	d, params := newTestProcessor(t, 1)
	g := NewPopulationGroup(1, []int{0}, 1)
	plant := &ResourceStock{Type: Plant, Capacity: 1000, RegenRate: 0.02, Amount: 1000}
	ore := &ResourceStock{Type: Mineral, Capacity: 100, Amount: 100}
	members := makeMembers(20, 0)

	out := d.Step(g, StepInput{
		Tick:    1,
		Members: members,
		Stocks:  []*ResourceStock{plant, ore},
		Params:  params,
		Wave:    Neutral(),
	})

	// 3% base + 20 * 0.1% = 5%
	if math.Abs(out.Harvested[Plant]-50) > 1e-9 {
		t.Errorf("plant harvested = %v, want 50", out.Harvested[Plant])
	}
	if math.Abs(plant.Amount-950) > 1e-9 {
		t.Errorf("plant stock = %v, want 950", plant.Amount)
	}
	if math.Abs(g.OrePool-5) > 1e-9 {
		t.Errorf("ore = %v, want 5", g.OrePool)
	}
	// 50 harvested minus 20 eaten
	if math.Abs(g.FoodPool-30) > 1e-9 {
		t.Errorf("food = %v, want 30", g.FoodPool)
	}
}

func TestCapacityEstimateAndOvercrowding(t *testing.T) {
	d, params := newTestProcessor(t, 1)
	g := NewPopulationGroup(1, []int{0}, 1)
	// r*K/4 = 0.02*200/4 = 1 food per tick at spring plant multiplier 2.0 -> 2 members
	stock := &ResourceStock{Type: Plant, Capacity: 200, RegenRate: 0.02, Amount: 0}
	g.FoodPool = 1e6
	members := makeMembers(4, 0)

	d.Step(g, StepInput{Tick: 1, Members: members, Stocks: []*ResourceStock{stock}, Params: params, Wave: Neutral(), Season: Spring})

	if math.Abs(g.CapacityEstimate-2) > 1e-9 {
		t.Fatalf("capacity estimate = %v, want 2", g.CapacityEstimate)
	}
	want := params.CapOverPenaltySlope * (4.0/2.0 - 1)
	if math.Abs(g.StarvationPressure-want) > 1e-9 {
		t.Errorf("pressure = %v, want overcrowding penalty %v", g.StarvationPressure, want)
	}
}

func TestAgeDeathChance(t *testing.T) {
	cfg := config.MustDefaults()
	d := NewDemographicProcessor(cfg)
	young := d.AgeDeathChance(0)
	mid := d.AgeDeathChance(cfg.Demographics.AgeMidpoint)
	old := d.AgeDeathChance(cfg.Demographics.AgeMax - 1)

	if math.Abs(young-cfg.Demographics.AgeMortalityBase) > 1e-6 {
		t.Errorf("young chance = %v, want ~%v", young, cfg.Demographics.AgeMortalityBase)
	}
	if !(young < mid && mid < old) {
		t.Errorf("chance not increasing: %v, %v, %v", young, mid, old)
	}
	if got := d.AgeDeathChance(cfg.Demographics.AgeMax); got != 1 {
		t.Errorf("chance at max age = %v, want 1", got)
	}
}

func TestReliefAfterDeathBurst(t *testing.T) {
	d, params := newTestProcessor(t, 1)
	params.StarvDeathChanceMax = 1
	params.StarvDeathRate = 10

	g := NewPopulationGroup(1, nil, 3)
	g.StarvationPressure = 4.5
	members := makeMembers(10, 0)

	out := d.Step(g, StepInput{Tick: 50, Members: members, Params: params, Wave: Neutral()})
	if out.StarvationDeaths != 10 {
		t.Fatalf("starvation deaths = %d, want 10", out.StarvationDeaths)
	}
	if !g.InRelief(51) {
		t.Error("expected relief after a burst of starvation deaths")
	}
	if g.InRelief(50 + 400) {
		t.Error("relief should end after its duration")
	}
}

func TestStepDeterministicForSeed(t *testing.T) {
	run := func() []Outcome {
		d, params := newTestProcessor(t, 1)
		g := NewPopulationGroup(9, nil, 1234)
		g.StarvationPressure = 4
		g.FoodPool = 0
		members := makeMembers(30, 0)
		var outs []Outcome
		for tick := int64(1); tick < 30; tick++ {
			out := d.Step(g, StepInput{Tick: tick, Members: members, Params: params, Wave: Neutral()})
			outs = append(outs, out)
			members = removeDead(members, out.Deaths)
		}
		return outs
	}
	a, b := run(), run()
	for i := range a {
		if len(a[i].Deaths) != len(b[i].Deaths) {
			t.Fatalf("step %d: deaths differ %d vs %d", i, len(a[i].Deaths), len(b[i].Deaths))
		}
		for j := range a[i].Deaths {
			if a[i].Deaths[j] != b[i].Deaths[j] {
				t.Fatalf("step %d: death %d differs", i, j)
			}
		}
	}
}
