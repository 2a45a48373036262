package persist

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/sim"
	"github.com/pthm-cable/homeostasis/telemetry"
)

func testConfig() *config.Config {
	cfg := config.MustDefaults()
	cfg.World.Width = 8
	cfg.World.Height = 8
	cfg.World.Groups = 2
	cfg.World.RegionsPerGroup = 4
	cfg.World.InitialMembers = 8
	return cfg
}

func runSim(t *testing.T, cfg *config.Config, opts sim.Options, ticks int) *sim.Simulation {
	t.Helper()
	s, err := sim.New(cfg, opts)
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	for i := 0; i < ticks; i++ {
		s.Step()
	}
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := runSim(t, testConfig(), sim.Options{}, 150)
	st := s.State()
	path := filepath.Join(t.TempDir(), "nested", "state.zst")

	if err := WriteSnapshot(path, "run-1", st); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}

	h, got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if h.RunID != "run-1" || h.Tick != 150 || h.Seed != st.Seed || h.Version != FormatVersion {
		t.Errorf("unexpected header %+v", h)
	}
	if got.Tick != st.Tick || got.NextGroupID != st.NextGroupID {
		t.Errorf("got tick %d next %d, want %d %d", got.Tick, got.NextGroupID, st.Tick, st.NextGroupID)
	}
	if !maps.Equal(got.Parameters, st.Parameters) {
		t.Error("parameters differ")
	}
	if got.Band != st.Band {
		t.Errorf("band: got %v, want %v", got.Band, st.Band)
	}
	if !reflect.DeepEqual(got.Stocks, st.Stocks) {
		t.Error("stocks differ")
	}
	if !reflect.DeepEqual(got.History, st.History) {
		t.Error("history differs")
	}
	if len(got.Groups) != len(st.Groups) {
		t.Fatalf("got %d groups, want %d", len(got.Groups), len(st.Groups))
	}
	for i := range st.Groups {
		a, b := got.Groups[i].Members, st.Groups[i].Members
		if len(a) != len(b) || (len(a) > 0 && !reflect.DeepEqual(a, b)) {
			t.Errorf("group %d members differ", st.Groups[i].ID)
		}
	}

	// A restored simulation picks up from the snapshot.
	r, err := sim.Restore(testConfig(), got, sim.Options{})
	if err != nil {
		t.Fatalf("sim.Restore: %v", err)
	}
	defer r.Close()
	if r.Population() != s.Population() {
		t.Errorf("population: got %d, want %d", r.Population(), s.Population())
	}
}

func TestReadHeaderOnly(t *testing.T) {
	s := runSim(t, testConfig(), sim.Options{}, 10)
	path := filepath.Join(t.TempDir(), "state.zst")
	if err := WriteSnapshot(path, "abc", s.State()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.RunID != "abc" || h.Tick != 10 {
		t.Errorf("unexpected header %+v", h)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEncodeSnapshotReportsWriteFailure(t *testing.T) {
	s := runSim(t, testConfig(), sim.Options{}, 5)
	st := s.State()
	if err := encodeSnapshot(failingWriter{}, "abc", &st); err == nil {
		t.Fatal("expected error from a failing writer")
	}
}

func TestWriteSnapshotLeavesNoTempFile(t *testing.T) {
	s := runSim(t, testConfig(), sim.Options{}, 5)
	dir := t.TempDir()
	if err := WriteSnapshot(filepath.Join(dir, "state.zst"), "abc", s.State()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.zst" {
		t.Errorf("directory holds %v, want only state.zst", entries)
	}
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zst")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadSnapshot(path); err == nil {
		t.Fatal("expected error for garbage file")
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	_, _, err := ReadSnapshot(filepath.Join(t.TempDir(), "missing.zst"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want not-exist", err)
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStoreRuns(t *testing.T) {
	st := openStore(t)
	cfg := testConfig()

	id, err := st.BeginRun(cfg)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := st.EnsureRun(id, cfg); err != nil {
		t.Fatalf("EnsureRun existing: %v", err)
	}
	if err := st.EnsureRun("resumed", cfg); err != nil {
		t.Fatalf("EnsureRun new: %v", err)
	}

	runs, err := st.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Seed != cfg.Seed || r.Config == "" {
			t.Errorf("unexpected run %+v", r)
		}
	}
}

func TestStoreAuditReplacesTicks(t *testing.T) {
	st := openStore(t)
	snaps := []telemetry.AuditSnapshot{
		{Tick: 1, Population: 10, Groups: 2, BandMin: 60, BandMax: 200},
		{Tick: 2, Population: 11, Groups: 2, Births: 1, BandMin: 60, BandMax: 200},
	}
	if err := st.SaveAudit("r", snaps); err != nil {
		t.Fatalf("SaveAudit: %v", err)
	}
	snaps[1].Population = 12
	if err := st.SaveAudit("r", snaps[1:]); err != nil {
		t.Fatalf("SaveAudit again: %v", err)
	}

	rows, err := st.Audit("r", 0)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1].Population != 12 || rows[1].Births != 1 || rows[1].Groups != 2 {
		t.Errorf("unexpected row %+v", rows[1])
	}
	rows, err = st.Audit("r", 2)
	if err != nil || len(rows) != 1 {
		t.Fatalf("Audit from tick 2: %d rows, err %v", len(rows), err)
	}
}

func TestRecorderPersistsRun(t *testing.T) {
	store := openStore(t)
	cfg := testConfig()
	cfg.Control.Reproduction.Interval = 20
	cfg.Control.Reproduction.MinSamples = 10
	cfg.Control.Band.Interval = 50
	cfg.Control.Band.MinWindow = 50

	id, err := store.BeginRun(cfg)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	rec := NewRecorder(store, id, 25)
	var opts sim.Options
	rec.Attach(&opts)

	s := runSim(t, cfg, opts, 110)
	if err := rec.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rows, err := store.Audit(id, 0)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(rows) != 110 {
		t.Fatalf("got %d audit rows, want 110", len(rows))
	}
	last, _ := s.Latest()
	if rows[109].Tick != 110 || rows[109].Population != last.Population {
		t.Errorf("last row %+v, want tick 110 population %d", rows[109], last.Population)
	}

	n, err := rec.StoredAdjustments()
	if err != nil {
		t.Fatalf("StoredAdjustments: %v", err)
	}
	if n != len(s.Adjustments()) {
		t.Errorf("stored %d adjustments, simulation reports %d", n, len(s.Adjustments()))
	}
	bands, err := store.Bands(id)
	if err != nil {
		t.Fatalf("Bands: %v", err)
	}
	if len(bands) != len(s.Recalibrations()) {
		t.Errorf("stored %d bands, simulation reports %d", len(bands), len(s.Recalibrations()))
	}
}
