package sim

import (
	"log/slog"

	"github.com/pthm-cable/homeostasis/systems"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (s *Simulation) flushTelemetry(last telemetry.AuditSnapshot, season systems.Season) {
	if !s.collector.ShouldFlush(s.tick) {
		return
	}

	stats := s.collector.Flush(last, season, s.util.FoodRatio())
	perfStats := s.perf.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := s.output.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := s.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarks.Check(stats) {
		if s.logStats {
			bm.LogBookmark()
		}
		if err := s.output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
		if s.cfg.Telemetry.SnapshotOnBookmark && s.snapshotDir != "" {
			s.saveReport(&bm)
		}
	}
}

// SaveReport writes a JSON report of the current controller state to dir.
func (s *Simulation) SaveReport(dir string) (string, error) {
	return telemetry.SaveSnapshot(s.createReport(nil), dir)
}

func (s *Simulation) saveReport(bookmark *telemetry.Bookmark) {
	path, err := telemetry.SaveSnapshot(s.createReport(bookmark), s.snapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "tick", s.tick)
}

// createReport builds a report from the current state.
func (s *Simulation) createReport(bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	band := s.controls.Band.Band()
	report := &telemetry.Snapshot{
		Version:    telemetry.SnapshotVersion,
		RNGSeed:    s.cfg.Seed,
		Tick:       s.tick,
		BandMin:    band.Min,
		BandMax:    band.Max,
		Parameters: s.controls.Registry.Values(),
		Recent:     s.ledger.Recent(s.cfg.Telemetry.SnapshotRecent),
		Bookmark:   bookmark,
	}
	for _, adj := range s.Adjustments() {
		report.Adjustments = append(report.Adjustments, adj.Row())
	}
	for _, rc := range s.controls.Band.History() {
		report.Bands = append(report.Bands, rc.Row())
	}
	return report
}
