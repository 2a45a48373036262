// Package sim owns the whole simulation: world, population, controllers,
// ledger and telemetry, stepped one tick at a time.
package sim

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/control"
	"github.com/pthm-cable/homeostasis/roster"
	"github.com/pthm-cable/homeostasis/systems"
	"github.com/pthm-cable/homeostasis/telemetry"
	"github.com/pthm-cable/homeostasis/world"
)

// Options configures a Simulation beyond what the config file holds.
type Options struct {
	Roster        roster.Roster // nil = ark-backed roster
	OutputDir     string        // CSV output, disabled when empty
	SnapshotDir   string        // bookmark reports, disabled when empty
	LogStats      bool          // log window stats via slog
	StatsCallback func(telemetry.WindowStats)
	AuditCallback func(telemetry.AuditSnapshot)

	// Called with every committed parameter change and band update.
	AdjustmentCallback func([]telemetry.AdjustmentRow)
	BandCallback       func(telemetry.BandRow)
}

// Simulation is the single owner of all mutable simulation state. Nothing is
// global; two simulations never share anything.
type Simulation struct {
	cfg  *config.Config
	tick int64
	rng  *rand.Rand // founding and recovery draws

	wave  *systems.WaveModulator
	pool  *systems.ResourcePool
	demo  *systems.DemographicProcessor
	world *world.World

	roster      roster.Roster
	groups      []*systems.PopulationGroup // ordered by ID
	nextGroupID int

	controls *control.Set
	ledger   *telemetry.AuditLedger
	util     *telemetry.Utilization
	lastWave systems.Wave // multipliers of the last completed tick
	lastPop  int
	recovery RecoveryState

	// Telemetry
	collector     *telemetry.Collector
	perf          *telemetry.PerfCollector
	bookmarks     *telemetry.BookmarkDetector
	output        *telemetry.OutputManager
	snapshotDir   string
	logStats      bool
	statsCallback func(telemetry.WindowStats)
	auditCallback func(telemetry.AuditSnapshot)
	adjCallback   func([]telemetry.AdjustmentRow)
	bandCallback  func(telemetry.BandRow)

	workers *workerPool

	// Per-tick scratch, indexed like groups / active regions
	regionIDs []int
	growth    []systems.RegionGrowth
	inputs    []systems.StepInput
	outcomes  []systems.Outcome
}

// New builds a simulation from a validated config and founds the initial
// groups.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Refresh()

	s := newEmpty(cfg, opts)
	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	s.output = output
	if err := s.output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	for i := 0; i < cfg.World.Groups; i++ {
		if _, err := s.FoundGroup(cfg.World.InitialMembers); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.lastPop = s.roster.Total()

	terrain := make(map[string]int)
	for t, n := range s.world.TerrainCounts() {
		terrain[t.String()] = n
	}
	slog.Info("simulation created",
		"seed", cfg.Seed,
		"regions", s.world.Len(),
		"terrain", terrain,
		"groups", len(s.groups),
		"population", s.lastPop,
		"band", s.controls.Band.Band().String(),
	)
	return s, nil
}

func newEmpty(cfg *config.Config, opts Options) *Simulation {
	r := opts.Roster
	if r == nil {
		r = roster.NewECS()
	}
	return &Simulation{
		cfg:           cfg,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		wave:          systems.NewWaveModulator(cfg.Wave, cfg.Clock.TicksPerDay),
		pool:          systems.NewResourcePool(cfg.Resource),
		demo:          systems.NewDemographicProcessor(cfg),
		world:         world.Generate(cfg.World, cfg.Resource, cfg.Seed),
		roster:        r,
		controls:      control.NewSet(cfg),
		ledger:        telemetry.NewAuditLedger(cfg.Telemetry.AuditCapacity),
		util:          telemetry.NewUtilization(cfg.Resource.UtilizationWindow),
		lastWave:      systems.Neutral(),
		collector:     telemetry.NewCollector(cfg.Telemetry.WindowTicks),
		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		bookmarks:     telemetry.NewBookmarkDetector(cfg.Bookmarks, cfg.Telemetry.BookmarkHistorySize),
		snapshotDir:   opts.SnapshotDir,
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
		auditCallback: opts.AuditCallback,
		adjCallback:   opts.AdjustmentCallback,
		bandCallback:  opts.BandCallback,
		workers:       newWorkerPool(cfg.Parallel.Workers, cfg.Parallel.Threshold),
	}
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int64 { return s.tick }

// Config returns the configuration the simulation runs with.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Run steps up to ticks ticks (0 = until cancelled). Cancellation is only
// observed between ticks, so a tick always completes.
func (s *Simulation) Run(ctx context.Context, ticks int64) error {
	for n := int64(0); ticks <= 0 || n < ticks; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Step()
	}
	return nil
}

// Step advances the simulation by one tick.
func (s *Simulation) Step() {
	s.tick++
	tick := s.tick
	s.perf.StartTick()

	wave := s.wave.At(tick, s.lastPop)
	season := systems.SeasonAt(tick, s.cfg.Derived.TicksPerSeason)

	s.perf.StartPhase(telemetry.PhaseResources)
	regenerated := s.stepResources(season, wave)

	s.perf.StartPhase(telemetry.PhaseDemographics)
	s.stepGroups(tick, season, wave)

	s.perf.StartPhase(telemetry.PhaseCommit)
	births, starv, natural, consumed := s.commit(tick)
	s.util.AddRegenerated(regenerated)
	s.util.AddConsumed(consumed)
	s.util.Update()

	s.perf.StartPhase(telemetry.PhaseAudit)
	snap := s.audit(tick, wave, births, starv, natural)

	s.perf.StartPhase(telemetry.PhaseControl)
	s.runControllers(tick)

	s.perf.StartPhase(telemetry.PhaseRecovery)
	s.checkRecovery(tick, snap.Population)

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.collector.Record(snap)
	s.flushTelemetry(snap, season)

	s.perf.EndTick()
}

// stepResources regenerates every active region in parallel and returns the
// total growth per resource type.
func (s *Simulation) stepResources(season systems.Season, wave systems.Wave) telemetry.Amounts {
	s.regionIDs = s.world.ActiveIDs()
	n := len(s.regionIDs)
	s.growth = resize(s.growth, n)

	s.workers.forEach(n, func(start, end int) {
		for i := start; i < end; i++ {
			r, err := s.world.Region(s.regionIDs[i])
			if err != nil {
				s.growth[i] = systems.RegionGrowth{Region: s.regionIDs[i], Errs: []error{err}}
				continue
			}
			s.growth[i] = s.pool.StepRegion(r.ID, r.Stocks, season, wave.Resource)
		}
	})

	var total telemetry.Amounts
	for _, g := range s.growth {
		for _, err := range g.Errs {
			slog.Debug("region regeneration skipped", "region", g.Region, "error", err)
		}
		for t, v := range g.ByType {
			total[t] += v
		}
	}
	return total
}

// stepGroups runs the demographic step of every group in parallel.
// Territories are disjoint, so no two workers touch the same stock.
func (s *Simulation) stepGroups(tick int64, season systems.Season, wave systems.Wave) {
	params := s.controls.Registry.Tunables()
	n := len(s.groups)
	s.inputs = resize(s.inputs, n)
	s.outcomes = resize(s.outcomes, n)

	members := s.membersByGroup()
	for i, g := range s.groups {
		s.inputs[i] = systems.StepInput{
			Tick:    tick,
			Members: members(g.ID),
			Stocks:  s.world.StockRefs(g.Territory),
			Params:  params,
			Wave:    wave,
			Season:  season,
		}
	}

	s.workers.forEach(n, func(start, end int) {
		for i := start; i < end; i++ {
			s.outcomes[i] = s.demo.Step(s.groups[i], s.inputs[i])
		}
	})
}

// membersByGroup returns a lookup of group members, listing the roster in
// one pass when it supports that.
func (s *Simulation) membersByGroup() func(group int) []systems.Member {
	if bg, ok := s.roster.(interface {
		ByGroup() map[int][]systems.Member
	}); ok {
		all := bg.ByGroup()
		return func(group int) []systems.Member { return all[group] }
	}
	return s.roster.Members
}

// commit applies outcomes to the roster in group order.
func (s *Simulation) commit(tick int64) (births, starv, natural int, consumed telemetry.Amounts) {
	for i := range s.outcomes {
		out := &s.outcomes[i]
		s.roster.Remove(out.Deaths)
		for b := 0; b < out.Births; b++ {
			s.roster.Spawn(out.Group, tick)
		}
		births += out.Births
		starv += out.StarvationDeaths
		natural += out.NaturalDeaths
		for t, v := range out.Harvested {
			consumed[t] += v
		}
		s.inputs[i] = systems.StepInput{}
	}
	return births, starv, natural, consumed
}

// audit appends the tick's snapshot to the ledger.
func (s *Simulation) audit(tick int64, wave systems.Wave, births, starv, natural int) telemetry.AuditSnapshot {
	pressures := make([]float64, len(s.groups))
	for i, g := range s.groups {
		pressures[i] = g.StarvationPressure
	}
	band := s.controls.Band.Band()
	pop := s.roster.Total()

	snap := s.ledger.Append(telemetry.AuditSnapshot{
		Tick:             tick,
		Population:       pop,
		Groups:           len(s.groups),
		ResourceTotals:   telemetry.Amounts(s.world.Totals()),
		Births:           births,
		StarvationDeaths: starv,
		NaturalDeaths:    natural,
		Pressure:         telemetry.ComputePressureStats(pressures),
		Wave:             wave,
		BandMin:          band.Min,
		BandMax:          band.Max,
	})
	s.lastWave = wave
	s.lastPop = pop

	if s.auditCallback != nil {
		s.auditCallback(snap)
	}
	return snap
}

// runControllers applies due controller cycles and records what changed.
func (s *Simulation) runControllers(tick int64) {
	res := s.controls.Update(tick, s.ledger)
	for _, err := range res.Errs {
		slog.Debug("controller cycle skipped", "tick", tick, "error", err)
	}
	if !res.Changed() {
		return
	}
	if len(res.Adjustments) > 0 {
		rows := make([]telemetry.AdjustmentRow, len(res.Adjustments))
		for i, adj := range res.Adjustments {
			slog.Info("parameter adjusted", "adjustment", adj)
			rows[i] = adj.Row()
		}
		s.recordAdjustments(rows)
	}
	if res.Recalibration != nil {
		row := res.Recalibration.Row()
		if err := s.output.WriteBand(row); err != nil {
			slog.Error("failed to write band", "error", err)
		}
		if s.bandCallback != nil {
			s.bandCallback(row)
		}
	}
}

func (s *Simulation) recordAdjustments(rows []telemetry.AdjustmentRow) {
	if err := s.output.WriteAdjustments(rows); err != nil {
		slog.Error("failed to write adjustments", "error", err)
	}
	if s.adjCallback != nil {
		s.adjCallback(rows)
	}
}

// Close stops workers and flushes output files.
func (s *Simulation) Close() error {
	s.workers.stop()
	return s.output.Close()
}

func resize[T any](buf []T, n int) []T {
	if cap(buf) < n {
		return make([]T, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}
