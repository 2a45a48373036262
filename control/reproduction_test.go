package control

import (
	"errors"
	"maps"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/telemetry"
)

func TestReproductionRaisesBelowBand(t *testing.T) {
	cfg := config.MustDefaults()
	cfg.Parameters.ReproBaseChance.Max = 0.255
	cfg.Parameters.ReproCooldown.Min = 8.5
	reg := NewRegistry(cfg.Parameters)
	c := NewReproductionController(cfg.Control.Reproduction, reg)
	band := Band{Min: 30, Max: 120}

	prevChance := reg.Get(ReproBaseChance)
	prevCooldown := reg.Get(ReproCooldown)
	for i := 1; i <= 5; i++ {
		if _, err := c.Adjust(int64(i*240), 10, 800, band); err != nil {
			t.Fatalf("interval %d: %v", i, err)
		}
		chance := reg.Get(ReproBaseChance)
		cooldown := reg.Get(ReproCooldown)

		if !(chance > prevChance || chance == 0.255) {
			t.Errorf("interval %d: chance %v did not increase from %v", i, chance, prevChance)
		}
		if !(cooldown < prevCooldown || cooldown == 8.5) {
			t.Errorf("interval %d: cooldown %v did not decrease from %v", i, cooldown, prevCooldown)
		}
		if i == 1 && (chance == 0.255 || cooldown == 8.5) {
			t.Errorf("first interval should not reach the bounds yet: %v, %v", chance, cooldown)
		}
		prevChance, prevCooldown = chance, cooldown
	}
	if prevChance != 0.255 {
		t.Errorf("chance = %v, want clamped at 0.255", prevChance)
	}
	if prevCooldown != 8.5 {
		t.Errorf("cooldown = %v, want clamped at 8.5", prevCooldown)
	}
}

func TestReproductionFirstStepIsCappedAndSmoothed(t *testing.T) {
	cfg := config.MustDefaults()
	reg := NewRegistry(cfg.Parameters)
	c := NewReproductionController(cfg.Control.Reproduction, reg)

	adj, err := c.Adjust(240, 10, 800, Band{Min: 30, Max: 120})
	if err != nil {
		t.Fatal(err)
	}
	if len(adj) != 2 {
		t.Fatalf("got %d adjustments, want 2", len(adj))
	}
	// step capped at 0.004, then blended with alpha 0.55
	if got, want := reg.Get(ReproBaseChance), 0.25+0.55*0.004; math.Abs(got-want) > 1e-12 {
		t.Errorf("chance = %v, want %v", got, want)
	}
	if got, want := reg.Get(ReproCooldown), 10-0.55*1.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("cooldown = %v, want %v", got, want)
	}
	if c.State.LastAdjustedTick != 240 || len(c.State.History()) != 2 {
		t.Errorf("state not recorded: %+v", c.State)
	}
}

func TestReproductionTightensAboveBand(t *testing.T) {
	cfg := config.MustDefaults()
	reg := NewRegistry(cfg.Parameters)
	c := NewReproductionController(cfg.Control.Reproduction, reg)

	if _, err := c.Adjust(240, 200, 800, Band{Min: 30, Max: 120}); err != nil {
		t.Fatal(err)
	}
	if reg.Get(ReproBaseChance) >= 0.25 {
		t.Errorf("chance = %v, want below 0.25", reg.Get(ReproBaseChance))
	}
	if reg.Get(ReproCooldown) <= 10 {
		t.Errorf("cooldown = %v, want above 10", reg.Get(ReproCooldown))
	}
}

func TestReproductionDeadband(t *testing.T) {
	cfg := config.MustDefaults()
	reg := NewRegistry(cfg.Parameters)
	c := NewReproductionController(cfg.Control.Reproduction, reg)

	// deviation = 2/45, inside the 0.05 deadband
	adj, err := c.Adjust(240, 77, 800, Band{Min: 30, Max: 120})
	if err != nil || len(adj) != 0 {
		t.Errorf("Adjust inside deadband = %v, %v", adj, err)
	}
}

func TestReproductionNoOpBelowMinSamples(t *testing.T) {
	cfg := config.MustDefaults()
	reg := NewRegistry(cfg.Parameters)
	c := NewReproductionController(cfg.Control.Reproduction, reg)
	before := reg.Values()
	stateBefore := c.State.timing()

	_, err := c.Adjust(240, 10, cfg.Control.Reproduction.MinSamples-1, Band{Min: 30, Max: 120})
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
	if !maps.Equal(before, reg.Values()) {
		t.Error("parameters changed below min samples")
	}
	if c.State.timing() != stateBefore || len(c.State.History()) != 0 {
		t.Error("controller state changed below min samples")
	}
}

func TestReproductionUpdateInterval(t *testing.T) {
	cfg := config.MustDefaults()
	reg := NewRegistry(cfg.Parameters)
	c := NewReproductionController(cfg.Control.Reproduction, reg)
	ledger := telemetry.NewAuditLedger(cfg.Telemetry.AuditCapacity)
	for tick := int64(1); tick <= 10; tick++ {
		ledger.Append(telemetry.AuditSnapshot{Tick: tick, Population: 10})
	}
	band := Band{Min: 30, Max: 120}

	if _, err := c.Update(100, ledger, band); !errors.Is(err, ErrNotDue) {
		t.Errorf("tick 100: err = %v, want ErrNotDue", err)
	}
	if _, err := c.Update(240, ledger, band); !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("tick 240: err = %v, want ErrInsufficientHistory", err)
	}
	if c.State.LastEvaluatedTick != 0 {
		t.Errorf("LastEvaluatedTick = %d after a skipped cycle, want 0", c.State.LastEvaluatedTick)
	}
	// Still due: retried every tick until history suffices
	if _, err := c.Update(241, ledger, band); !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("tick 241: err = %v, want ErrInsufficientHistory", err)
	}

	for tick := int64(11); tick <= int64(cfg.Control.Reproduction.MinSamples); tick++ {
		ledger.Append(telemetry.AuditSnapshot{Tick: tick, Population: 10})
	}
	if _, err := c.Update(250, ledger, band); err != nil {
		t.Fatalf("tick 250: %v", err)
	}
	if c.State.LastEvaluatedTick != 250 {
		t.Errorf("LastEvaluatedTick = %d, want 250", c.State.LastEvaluatedTick)
	}
	if _, err := c.Update(251, ledger, band); !errors.Is(err, ErrNotDue) {
		t.Errorf("tick 251: err = %v, want ErrNotDue after an evaluation", err)
	}
	if !Deferred(ErrNotDue) || !Deferred(ErrInsufficientHistory) || Deferred(ErrUnknownParameter) {
		t.Error("Deferred misclassifies errors")
	}
}

func TestReproductionStaysInBoundsUnderAdversarialInput(t *testing.T) {
	cfg := config.MustDefaults()
	reg := NewRegistry(cfg.Parameters)
	c := NewReproductionController(cfg.Control.Reproduction, reg)
	chanceBounds := reg.Bounds(ReproBaseChance)
	cooldownBounds := reg.Bounds(ReproCooldown)

	extremes := []float64{-1e300, -1, 0, 1e-12, 1e300, math.MaxFloat64, math.NaN(), math.Inf(1), math.Inf(-1)}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		var avg float64
		if i%3 == 0 {
			avg = extremes[rng.Intn(len(extremes))]
		} else {
			avg = rng.Float64() * 1e6
		}
		lo := rng.Float64()*200 - 50
		band := Band{Min: lo, Max: lo + rng.Float64()*300 - 20}
		_, _ = c.Adjust(int64(i), avg, 800, band)

		if v := reg.Get(ReproBaseChance); v < chanceBounds.Min || v > chanceBounds.Max || math.IsNaN(v) {
			t.Fatalf("iteration %d: REPRO_BASE_CHANCE = %v outside %v", i, v, chanceBounds)
		}
		if v := reg.Get(ReproCooldown); v < cooldownBounds.Min || v > cooldownBounds.Max || math.IsNaN(v) {
			t.Fatalf("iteration %d: REPRO_COOLDOWN = %v outside %v", i, v, cooldownBounds)
		}
	}
}
