package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/persist"
	"github.com/pthm-cable/homeostasis/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for bookmark reports")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config seed, -1 = time-based)")
	maxTicks := flag.Int64("max-ticks", 0, "Stop after N ticks (0 = until interrupted)")
	dbPath := flag.String("db", "", "SQLite database for run history (empty = disabled)")
	statePath := flag.String("state", "", "Write a resumable state file here on exit")
	saveEvery := flag.Int64("save-every", 0, "Also write the state file every N ticks (0 = only on exit)")
	resume := flag.String("resume", "", "Resume from a state file")
	overrides := flag.String("set", "", "Parameter overrides, e.g. repro_base_chance=0.3,starv_threshold=3.5")
	diagnostics := flag.Bool("diagnostics", false, "Print diagnostics as JSON on exit")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	switch {
	case *seed > 0:
		cfg.Seed = *seed
	case *seed < 0:
		cfg.Seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner{
		cfg:         cfg,
		outputDir:   *outputDir,
		snapshotDir: *snapshotDir,
		logStats:    *logStats,
		dbPath:      *dbPath,
		statePath:   *statePath,
		saveEvery:   *saveEvery,
		resume:      *resume,
		overrides:   *overrides,
		diagnostics: *diagnostics,
	}
	if err := r.run(ctx, *maxTicks); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

// runner wires the simulation to the optional persistence sinks.
type runner struct {
	cfg         *config.Config
	outputDir   string
	snapshotDir string
	logStats    bool
	dbPath      string
	statePath   string
	saveEvery   int64
	resume      string
	overrides   string
	diagnostics bool

	runID    string
	recorder *persist.Recorder
}

func (r *runner) run(ctx context.Context, maxTicks int64) error {
	opts := sim.Options{
		OutputDir:   r.outputDir,
		SnapshotDir: r.snapshotDir,
		LogStats:    r.logStats,
	}

	var (
		state   *sim.State
		resumed persist.Header
	)
	if r.resume != "" {
		h, st, err := persist.ReadSnapshot(r.resume)
		if err != nil {
			return fmt.Errorf("read state %s: %w", r.resume, err)
		}
		resumed, state = h, &st
		r.runID = h.RunID
	}

	if r.dbPath != "" {
		store, err := persist.Open(r.dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if r.runID != "" {
			err = store.EnsureRun(r.runID, r.cfg)
		} else {
			r.runID, err = store.BeginRun(r.cfg)
		}
		if err != nil {
			return err
		}
		r.recorder = persist.NewRecorder(store, r.runID, 500)
		r.recorder.Attach(&opts)
	}

	var (
		s   *sim.Simulation
		err error
	)
	if state != nil {
		s, err = sim.Restore(r.cfg, *state, opts)
		slog.Info("resuming", "path", r.resume, "run_id", resumed.RunID, "tick", resumed.Tick)
	} else {
		s, err = sim.New(r.cfg, opts)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	if r.overrides != "" {
		values, err := parseOverrides(r.overrides)
		if err != nil {
			return err
		}
		if _, err := s.AdjustParameters(values); err != nil {
			return err
		}
	}

	slog.Info("starting simulation",
		"seed", r.cfg.Seed,
		"run_id", r.runID,
		"tick", s.Tick(),
		"max_ticks", maxTicks,
	)
	runErr := r.loop(ctx, s, maxTicks)
	slog.Info("simulation stopped", "tick", s.Tick(), "population", s.Population(), "reason", reason(runErr))

	if r.recorder != nil {
		if err := r.recorder.Flush(); err != nil {
			slog.Error("failed to flush run history", "error", err)
		} else if n, err := r.recorder.StoredAdjustments(); err == nil {
			slog.Info("run history saved", "run_id", r.runID, "adjustments", n)
		}
	}
	if err := r.saveState(s); err != nil {
		slog.Error("failed to save state", "error", err)
	}
	if r.diagnostics {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s.Diagnostics()); err != nil {
			slog.Error("failed to print diagnostics", "error", err)
		}
	}
	return runErr
}

// loop runs in chunks so the state file can be refreshed periodically.
func (r *runner) loop(ctx context.Context, s *sim.Simulation, maxTicks int64) error {
	if r.saveEvery <= 0 || r.statePath == "" {
		return s.Run(ctx, maxTicks)
	}
	for done := int64(0); maxTicks <= 0 || done < maxTicks; {
		n := r.saveEvery
		if maxTicks > 0 {
			n = min(n, maxTicks-done)
		}
		if err := s.Run(ctx, n); err != nil {
			return err
		}
		done += n
		if err := r.saveState(s); err != nil {
			slog.Error("failed to save state", "error", err)
		}
	}
	return nil
}

func (r *runner) saveState(s *sim.Simulation) error {
	if r.statePath == "" {
		return nil
	}
	if err := persist.WriteSnapshot(r.statePath, r.runID, s.State()); err != nil {
		return err
	}
	slog.Info("state saved", "path", r.statePath, "tick", s.Tick())
	return nil
}

func reason(err error) string {
	switch {
	case err == nil:
		return "max ticks reached"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return err.Error()
	}
}

// parseOverrides parses "name=value" pairs separated by commas.
func parseOverrides(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("override %q: want name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", pair, err)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}
