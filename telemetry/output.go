package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pthm-cable/homeostasis/config"
)

// AdjustmentRow is one committed parameter change, flattened for CSV.
type AdjustmentRow struct {
	Tick       int64   `csv:"tick" json:"tick"`
	Controller string  `csv:"controller" json:"controller"`
	Param      string  `csv:"param" json:"param"`
	Old        float64 `csv:"old" json:"old"`
	New        float64 `csv:"new" json:"new"`
	Reason     string  `csv:"reason" json:"reason"`
}

// BandRow is one band recalibration, flattened for CSV.
type BandRow struct {
	Tick        int64   `csv:"tick" json:"tick" db:"tick"`
	Mean        float64 `csv:"mean" json:"mean" db:"mean"`
	Std         float64 `csv:"std" json:"std" db:"std"`
	OldMin      float64 `csv:"old_min" json:"old_min" db:"old_min"`
	OldMax      float64 `csv:"old_max" json:"old_max" db:"old_max"`
	ProposedMin float64 `csv:"proposed_min" json:"proposed_min" db:"proposed_min"`
	ProposedMax float64 `csv:"proposed_max" json:"proposed_max" db:"proposed_max"`
	NewMin      float64 `csv:"new_min" json:"new_min" db:"new_min"`
	NewMax      float64 `csv:"new_max" json:"new_max" db:"new_max"`
}

// csvFile is an output file that writes its header with the first record.
type csvFile struct {
	name          string
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.f); err != nil {
			return fmt.Errorf("writing %s: %w", c.name, err)
		}
		c.headerWritten = true
		return nil
	}
	// Subsequent writes skip headers
	if err := gocsv.MarshalWithoutHeaders(records, c.f); err != nil {
		return fmt.Errorf("writing %s: %w", c.name, err)
	}
	return nil
}

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir string

	telemetry  *csvFile
	perf       *csvFile
	bookmarks  *csvFile
	adaptation *csvFile
	band       *csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	targets := []struct {
		dst  **csvFile
		name string
	}{
		{&om.telemetry, "telemetry.csv"},
		{&om.perf, "perf.csv"},
		{&om.bookmarks, "bookmarks.csv"},
		{&om.adaptation, "adaptation.csv"},
		{&om.band, "band.csv"},
	}
	for _, t := range targets {
		f, err := os.Create(filepath.Join(dir, t.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", t.name, err)
		}
		*t.dst = &csvFile{name: t.name, f: f}
	}

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry writes a window stats record to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.telemetry.write([]WindowStats{stats})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int64) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfStatsCSV{stats.ToCSV(windowEnd)})
}

// WriteBookmark writes a bookmark record to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return om.bookmarks.write([]Bookmark{b})
}

// WriteAdjustments writes committed parameter changes to adaptation.csv.
func (om *OutputManager) WriteAdjustments(rows []AdjustmentRow) error {
	if om == nil || len(rows) == 0 {
		return nil
	}
	return om.adaptation.write(rows)
}

// WriteBand writes a band recalibration to band.csv.
func (om *OutputManager) WriteBand(row BandRow) error {
	if om == nil {
		return nil
	}
	return om.band.write([]BandRow{row})
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, c := range []*csvFile{om.telemetry, om.perf, om.bookmarks, om.adaptation, om.band} {
		if c == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
