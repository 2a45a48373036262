package persist

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/homeostasis/sim"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// Recorder buffers what a running simulation reports and writes it to a
// Store in batches. It is not safe for concurrent use; the simulation calls
// it from its own goroutine.
type Recorder struct {
	store *Store
	runID string
	batch int

	audit       []telemetry.AuditSnapshot
	adjustments []telemetry.AdjustmentRow
	bands       []telemetry.BandRow
}

// NewRecorder creates a recorder flushing every batch audit snapshots.
func NewRecorder(store *Store, runID string, batch int) *Recorder {
	if batch < 1 {
		batch = 1
	}
	return &Recorder{store: store, runID: runID, batch: batch}
}

// StoredAdjustments returns how many adjustments the store holds for the run.
func (r *Recorder) StoredAdjustments() (int, error) {
	return r.store.AdjustmentCount(r.runID)
}

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// Attach wires the recorder into simulation options.
func (r *Recorder) Attach(opts *sim.Options) {
	opts.AuditCallback = r.Audit
	opts.AdjustmentCallback = r.Adjustments
	opts.BandCallback = r.Band
}

// Audit buffers one snapshot.
func (r *Recorder) Audit(snap telemetry.AuditSnapshot) {
	r.audit = append(r.audit, snap)
	if len(r.audit) >= r.batch {
		if err := r.Flush(); err != nil {
			slog.Error("failed to flush run history", "run_id", r.runID, "error", err)
		}
	}
}

// Adjustments buffers committed parameter changes.
func (r *Recorder) Adjustments(rows []telemetry.AdjustmentRow) {
	r.adjustments = append(r.adjustments, rows...)
}

// Band buffers one band recalibration.
func (r *Recorder) Band(row telemetry.BandRow) {
	r.bands = append(r.bands, row)
}

// Flush writes everything buffered. Buffers are kept on failure so a later
// flush can retry.
func (r *Recorder) Flush() error {
	var errs []error
	if err := r.store.SaveAudit(r.runID, r.audit); err != nil {
		errs = append(errs, fmt.Errorf("audit: %w", err))
	} else {
		r.audit = r.audit[:0]
	}
	if err := r.store.SaveAdjustments(r.runID, r.adjustments); err != nil {
		errs = append(errs, fmt.Errorf("adjustments: %w", err))
	} else {
		r.adjustments = r.adjustments[:0]
	}
	kept := r.bands[:0]
	for _, row := range r.bands {
		if err := r.store.SaveBand(r.runID, row); err != nil {
			errs = append(errs, fmt.Errorf("band %d: %w", row.Tick, err))
			kept = append(kept, row)
		}
	}
	r.bands = kept
	return errors.Join(errs...)
}
