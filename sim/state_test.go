package sim

import (
	"errors"
	"maps"
	"reflect"
	"testing"

	"github.com/pthm-cable/homeostasis/control"
)

func TestStateRestoreRoundTrip(t *testing.T) {
	s := newTestSim(t, testConfig())
	for i := 0; i < 250; i++ {
		s.Step()
	}
	if _, err := s.AdjustParameters(map[string]float64{"starv_threshold": 3.5}); err != nil {
		t.Fatalf("AdjustParameters: %v", err)
	}
	st := s.State()

	r, err := Restore(testConfig(), st, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	defer r.Close()

	if r.Tick() != s.Tick() {
		t.Errorf("tick: got %d, want %d", r.Tick(), s.Tick())
	}
	if r.Population() != s.Population() {
		t.Errorf("population: got %d, want %d", r.Population(), s.Population())
	}
	if !reflect.DeepEqual(r.Groups(), s.Groups()) {
		t.Errorf("groups: got %v, want %v", r.Groups(), s.Groups())
	}
	if !maps.Equal(r.Parameters(), s.Parameters()) {
		t.Errorf("parameters differ after restore")
	}
	if r.Band() != s.Band() {
		t.Errorf("band: got %v, want %v", r.Band(), s.Band())
	}
	if r.controls.Timings() != s.controls.Timings() {
		t.Errorf("timings: got %+v, want %+v", r.controls.Timings(), s.controls.Timings())
	}
	if !reflect.DeepEqual(r.Snapshots(250), s.Snapshots(250)) {
		t.Error("ledger differs after restore")
	}
	if !reflect.DeepEqual(r.world.Stocks(), s.world.Stocks()) {
		t.Error("stocks differ after restore")
	}
	for _, id := range s.Groups() {
		if !reflect.DeepEqual(r.world.Territory(id), s.world.Territory(id)) {
			t.Errorf("group %d territory differs", id)
		}
		if !reflect.DeepEqual(r.roster.Members(id), s.roster.Members(id)) {
			t.Errorf("group %d members differ", id)
		}
	}

	// The restored run continues where the original left off.
	r.Step()
	snap, _ := r.Latest()
	if snap.Tick != st.Tick+1 {
		t.Errorf("next tick: got %d, want %d", snap.Tick, st.Tick+1)
	}
	prev := st.History[len(st.History)-1]
	if snap.CumBirths < prev.CumBirths {
		t.Errorf("cumulative births went backwards: %d < %d", snap.CumBirths, prev.CumBirths)
	}
}

func TestRestoreIsDeterministic(t *testing.T) {
	s := newTestSim(t, testConfig())
	for i := 0; i < 120; i++ {
		s.Step()
	}
	st := s.State()

	a, err := Restore(testConfig(), st, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	defer a.Close()
	b, err := Restore(testConfig(), st, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	defer b.Close()

	for i := 0; i < 100; i++ {
		a.Step()
		b.Step()
	}
	if !reflect.DeepEqual(a.Snapshots(100), b.Snapshots(100)) {
		t.Error("restores of the same state diverged")
	}
}

func TestRestoreRejectsOtherVersion(t *testing.T) {
	s := newTestSim(t, testConfig())
	st := s.State()
	st.Version = StateVersion + 1

	if _, err := Restore(testConfig(), st, Options{}); !errors.Is(err, ErrStateVersion) {
		t.Fatalf("got %v, want ErrStateVersion", err)
	}
}

func TestRestoreUsesStateSeed(t *testing.T) {
	cfg := testConfig()
	cfg.Seed = 99
	s := newTestSim(t, cfg)
	st := s.State()

	other := testConfig()
	r, err := Restore(other, st, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	defer r.Close()
	if r.Config().Seed != 99 {
		t.Errorf("got seed %d, want 99", r.Config().Seed)
	}
}

func TestStateCarriesManualOverride(t *testing.T) {
	s := newTestSim(t, testConfig())
	if _, err := s.AdjustParameters(map[string]float64{"repro_cooldown": 12}); err != nil {
		t.Fatalf("AdjustParameters: %v", err)
	}
	st := s.State()
	if got := st.Parameters[control.ReproCooldown.String()]; got != 12 {
		t.Errorf("got %v, want 12", got)
	}
}
