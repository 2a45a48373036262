package systems

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/homeostasis/config"
)

func testRegenParams() RegenParams {
	return NewRegenParams(config.MustDefaults().Resource)
}

func TestRenewableBootstrapFromNearEmpty(t *testing.T) {
	p := testRegenParams()
	s := &ResourceStock{Type: Plant, Capacity: 100, RegenRate: 0.02, Amount: 1}

	grown, err := p.Step(s, 1, 1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	// Logistic growth is 0.0198, below the 2% bootstrap floor of 2.0
	if math.Abs(s.Amount-3.0) > 1e-9 {
		t.Errorf("Amount = %v, want 3.0", s.Amount)
	}
	if math.Abs(grown-2.0) > 1e-9 {
		t.Errorf("grown = %v, want 2.0", grown)
	}
}

func TestRenewableLogisticGrowth(t *testing.T) {
	p := testRegenParams()
	s := &ResourceStock{Type: Animal, Capacity: 100, RegenRate: 0.02, Amount: 50}
	if _, err := p.Step(s, 1.5, 1); err != nil {
		t.Fatal(err)
	}
	want := 50 + 0.02*1.5*50*0.5
	if math.Abs(s.Amount-want) > 1e-9 {
		t.Errorf("Amount = %v, want %v", s.Amount, want)
	}
}

func TestStockNeverExceedsCapacity(t *testing.T) {
	p := testRegenParams()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 2000; i++ {
		capacity := rng.Float64() * 500
		s := &ResourceStock{
			Type:      ResourceTypes[rng.Intn(NumResourceTypes)],
			Capacity:  capacity,
			RegenRate: rng.Float64() * 2,
			Amount:    rng.Float64() * capacity,
		}
		season := rng.Float64() * 3
		wave := 0.2 + rng.Float64()*1.8
		for j := 0; j < 20; j++ {
			_, err := p.Step(s, season, wave)
			if err != nil && !errors.Is(err, ErrZeroCapacity) {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Amount < 0 || s.Amount > s.Capacity {
				t.Fatalf("amount %v outside [0, %v]", s.Amount, s.Capacity)
			}
			s.Draw(rng.Float64() * capacity * 0.3)
			if s.Amount < 0 {
				t.Fatalf("amount %v negative after draw", s.Amount)
			}
		}
	}
}

func TestZeroCapacityIsNoOp(t *testing.T) {
	p := testRegenParams()
	s := &ResourceStock{Type: Plant, Capacity: 0, RegenRate: 0.02, Amount: 0}
	grown, err := p.Step(s, 1, 1)
	if !errors.Is(err, ErrZeroCapacity) {
		t.Fatalf("err = %v, want ErrZeroCapacity", err)
	}
	if grown != 0 || s.Amount != 0 {
		t.Errorf("stock changed: grown=%v amount=%v", grown, s.Amount)
	}
}

func TestNonFiniteIsNoOp(t *testing.T) {
	p := testRegenParams()
	s := &ResourceStock{Type: Plant, Capacity: 100, RegenRate: math.Inf(1), Amount: 50}
	if _, err := p.Step(s, 1, 1); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("err = %v, want ErrNonFinite", err)
	}
	if s.Amount != 50 {
		t.Errorf("Amount = %v, want unchanged 50", s.Amount)
	}
}

func TestMineralRegen(t *testing.T) {
	p := testRegenParams()

	low := &ResourceStock{Type: Mineral, Capacity: 100, Amount: 5}
	if _, err := p.Step(low, 1, 1); err != nil {
		t.Fatal(err)
	}
	if math.Abs(low.Amount-(5+1.2)) > 1e-9 {
		t.Errorf("depleted mineral = %v, want 6.2", low.Amount)
	}

	high := &ResourceStock{Type: Mineral, Capacity: 100, Amount: 50}
	if _, err := p.Step(high, 1, 1); err != nil {
		t.Fatal(err)
	}
	if math.Abs(high.Amount-(50+0.3)) > 1e-9 {
		t.Errorf("trickle mineral = %v, want 50.3", high.Amount)
	}
}

func TestMonotoneGrowthWithoutWaves(t *testing.T) {
	cfg := config.MustDefaults()
	cfg.Wave.ResourceAmplitude = 0
	w := NewWaveModulator(cfg.Wave, 1)
	p := NewRegenParams(cfg.Resource)

	s := &ResourceStock{Type: Fish, Capacity: 300, RegenRate: 0.018, Amount: 3}
	prev := s.Amount
	for tick := int64(0); tick < 2000; tick++ {
		if _, err := p.Step(s, 1.0, w.ResourceMultiplier(tick)); err != nil {
			t.Fatal(err)
		}
		if s.Amount < prev {
			t.Fatalf("tick %d: amount decreased %v -> %v", tick, prev, s.Amount)
		}
		prev = s.Amount
	}
	if s.Amount < 0.99*s.Capacity {
		t.Errorf("amount %v did not approach capacity %v", s.Amount, s.Capacity)
	}
}

func TestDraw(t *testing.T) {
	s := &ResourceStock{Type: Plant, Capacity: 10, Amount: 4}
	if got := s.Draw(3); got != 3 {
		t.Errorf("Draw(3) = %v", got)
	}
	if got := s.Draw(3); got != 1 {
		t.Errorf("Draw(3) on 1 = %v, want 1", got)
	}
	if got := s.Draw(-2); got != 0 {
		t.Errorf("Draw(-2) = %v, want 0", got)
	}
	if s.Amount != 0 {
		t.Errorf("Amount = %v, want 0", s.Amount)
	}
}

func TestNewStocksFromTerrain(t *testing.T) {
	var intrinsic [NumResourceTypes]float64
	intrinsic[Plant] = 0.02
	intrinsic[Animal] = 0.015

	stocks := NewStocks(7, TerrainForest, 5.0, 1.0, intrinsic)
	if len(stocks) != 3 {
		t.Fatalf("forest stocks = %d, want 3", len(stocks))
	}
	byType := map[ResourceType]ResourceStock{}
	for _, s := range stocks {
		byType[s.Type] = s
		if s.Region != 7 {
			t.Errorf("stock region = %d, want 7", s.Region)
		}
		if s.Amount != s.Capacity {
			t.Errorf("%v: amount %v, want full %v", s.Type, s.Amount, s.Capacity)
		}
	}
	if byType[Plant].Capacity != 15 {
		t.Errorf("plant capacity = %v, want 15", byType[Plant].Capacity)
	}
	if byType[Plant].RegenRate != 0.02 {
		t.Errorf("plant r = %v, want 0.02", byType[Plant].RegenRate)
	}
	if _, ok := byType[Fish]; ok {
		t.Error("forest should carry no fish")
	}
}

func TestStepRegionCollectsErrors(t *testing.T) {
	pool := NewResourcePool(config.MustDefaults().Resource)
	stocks := []ResourceStock{
		{Type: Plant, Capacity: 0},
		{Type: Animal, Capacity: 100, RegenRate: 0.015, Amount: 50},
	}
	g := pool.StepRegion(1, stocks, Summer, 1.0)
	if len(g.Errs) != 1 {
		t.Fatalf("errors = %d, want 1", len(g.Errs))
	}
	if g.ByType[Animal] <= 0 {
		t.Errorf("animal growth = %v, want > 0", g.ByType[Animal])
	}
	if stocks[1].Amount <= 50 {
		t.Errorf("animal stock did not grow: %v", stocks[1].Amount)
	}
}
