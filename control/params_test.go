package control

import (
	"errors"
	"maps"
	"math"
	"testing"

	"github.com/pthm-cable/homeostasis/config"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(config.MustDefaults().Parameters)
}

func TestRegistryLoadsEveryParameter(t *testing.T) {
	cfg := config.MustDefaults()
	reg := NewRegistry(cfg.Parameters)

	all := cfg.Parameters.All()
	if len(all) != int(numParams) {
		t.Fatalf("config exposes %d parameters, registry has %d", len(all), numParams)
	}
	for _, p := range Params() {
		b := reg.Bounds(p)
		if b.Min > b.Max {
			t.Errorf("%s: bounds %v inverted", p, b)
		}
		if v := reg.Get(p); v < b.Min || v > b.Max {
			t.Errorf("%s = %v outside %v", p, v, b)
		}
	}
	if got := reg.Get(ReproBaseChance); got != cfg.Parameters.ReproBaseChance.Value {
		t.Errorf("REPRO_BASE_CHANCE = %v, want %v", got, cfg.Parameters.ReproBaseChance.Value)
	}
	if got := reg.Tunables().StarvThreshold; got != cfg.Parameters.StarvThreshold.Value {
		t.Errorf("Tunables().StarvThreshold = %v", got)
	}
}

func TestCommitClampsToBounds(t *testing.T) {
	reg := newTestRegistry(t)
	b := reg.Bounds(ReproBaseChance)

	ch, err := reg.Commit(ReproBaseChance, 10)
	if err != nil {
		t.Fatal(err)
	}
	if ch.New != b.Max || reg.Get(ReproBaseChance) != b.Max {
		t.Errorf("commit above max stored %v, want %v", ch.New, b.Max)
	}
	if _, err := reg.Commit(ReproBaseChance, -10); err != nil {
		t.Fatal(err)
	}
	if reg.Get(ReproBaseChance) != b.Min {
		t.Errorf("commit below min stored %v, want %v", reg.Get(ReproBaseChance), b.Min)
	}
}

func TestCommitRejectsNonFinite(t *testing.T) {
	reg := newTestRegistry(t)
	before := reg.Get(StarvDeathRate)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := reg.Commit(StarvDeathRate, v); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Commit(%v) err = %v, want ErrInvalidValue", v, err)
		}
	}
	if reg.Get(StarvDeathRate) != before {
		t.Errorf("value changed to %v", reg.Get(StarvDeathRate))
	}
}

func TestOverrideIsAllOrNothing(t *testing.T) {
	reg := newTestRegistry(t)
	before := reg.Values()

	_, err := reg.Override(map[string]float64{
		"REPRO_BASE_CHANCE": 0.3,
		"NOT_A_PARAM":       1,
	})
	if !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("err = %v, want ErrUnknownParameter", err)
	}
	if !maps.Equal(before, reg.Values()) {
		t.Error("rejected batch modified the registry")
	}

	_, err = reg.Override(map[string]float64{"repro_base_chance": math.NaN()})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}

	changes, err := reg.Override(map[string]float64{
		"repro_base_chance": 0.3,
		"STARV_THRESHOLD":   100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := changes["REPRO_BASE_CHANCE"]; got.Old != 0.25 || got.New != 0.3 {
		t.Errorf("REPRO_BASE_CHANCE change = %+v", got)
	}
	if got := changes["STARV_THRESHOLD"]; got.New != reg.Bounds(StarvThreshold).Max {
		t.Errorf("STARV_THRESHOLD not clamped: %+v", got)
	}
}

func TestParamTextRoundTrip(t *testing.T) {
	for _, p := range Params() {
		b, err := p.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Param
		if err := back.UnmarshalText(b); err != nil || back != p {
			t.Errorf("%s round-tripped to %v (%v)", p, back, err)
		}
	}
	if _, err := ParseParam("starv_decay"); err != nil {
		t.Errorf("lowercase name rejected: %v", err)
	}
}

func TestRegistryRestore(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Restore(map[string]float64{
		"REPRO_COOLDOWN": 12,
		"RETIRED_PARAM":  3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if reg.Get(ReproCooldown) != 12 {
		t.Errorf("REPRO_COOLDOWN = %v, want 12", reg.Get(ReproCooldown))
	}
}
