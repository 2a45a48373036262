package persist

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/systems"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// Store records runs and their audit history in SQLite.
type Store struct {
	conn *sqlx.DB
}

// Run is one recorded simulation run.
type Run struct {
	ID        string `db:"id"`
	Seed      int64  `db:"seed"`
	StartedAt string `db:"started_at"`
	Config    string `db:"config_yaml"`
}

// AuditRow is the stored form of an audit snapshot.
type AuditRow struct {
	Tick             int64   `db:"tick"`
	Population       int     `db:"population"`
	Groups           int     `db:"group_count"`
	Births           int     `db:"births"`
	StarvationDeaths int     `db:"starvation_deaths"`
	NaturalDeaths    int     `db:"natural_deaths"`
	Food             float64 `db:"food"`
	Ore              float64 `db:"ore"`
	PressureMax      float64 `db:"pressure_max"`
	PressureAvg      float64 `db:"pressure_avg"`
	BandMin          float64 `db:"band_min"`
	BandMax          float64 `db:"band_max"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		config_yaml TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		population INTEGER NOT NULL,
		group_count INTEGER NOT NULL,
		births INTEGER NOT NULL,
		starvation_deaths INTEGER NOT NULL,
		natural_deaths INTEGER NOT NULL,
		food REAL NOT NULL,
		ore REAL NOT NULL,
		pressure_max REAL NOT NULL,
		pressure_avg REAL NOT NULL,
		band_min REAL NOT NULL,
		band_max REAL NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS adjustments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		controller TEXT NOT NULL,
		param TEXT NOT NULL,
		old_value REAL NOT NULL,
		new_value REAL NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS band_history (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		mean REAL NOT NULL,
		std REAL NOT NULL,
		old_min REAL NOT NULL,
		old_max REAL NOT NULL,
		proposed_min REAL NOT NULL,
		proposed_max REAL NOT NULL,
		new_min REAL NOT NULL,
		new_max REAL NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_run ON adjustments(run_id, tick);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// BeginRun records a new run and returns its ID.
func (s *Store) BeginRun(cfg *config.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	id := uuid.NewString()
	_, err = s.conn.Exec(
		"INSERT INTO runs (id, seed, started_at, config_yaml) VALUES (?, ?, ?, ?)",
		id, cfg.Seed, time.Now().UTC().Format(time.RFC3339), string(data),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	slog.Info("run recorded", "run_id", id, "seed", cfg.Seed)
	return id, nil
}

// EnsureRun records runID if it is not known yet, for resumed runs whose
// snapshot came from another database.
func (s *Store) EnsureRun(runID string, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.conn.Exec(
		"INSERT OR IGNORE INTO runs (id, seed, started_at, config_yaml) VALUES (?, ?, ?, ?)",
		runID, cfg.Seed, time.Now().UTC().Format(time.RFC3339), string(data),
	)
	return err
}

// SaveAudit writes audit snapshots, replacing rows for ticks already stored.
func (s *Store) SaveAudit(runID string, snaps []telemetry.AuditSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO audit
		(run_id, tick, population, group_count, births, starvation_deaths, natural_deaths,
		 food, ore, pressure_max, pressure_avg, band_min, band_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range snaps {
		_, err := stmt.Exec(runID, a.Tick, a.Population, a.Groups, a.Births,
			a.StarvationDeaths, a.NaturalDeaths, a.ResourceTotals.Food(),
			a.ResourceTotals[systems.Mineral], a.Pressure.Max, a.Pressure.Avg,
			a.BandMin, a.BandMax)
		if err != nil {
			return fmt.Errorf("insert audit %d: %w", a.Tick, err)
		}
	}
	return tx.Commit()
}

// SaveAdjustments appends controller adjustments.
func (s *Store) SaveAdjustments(runID string, rows []telemetry.AdjustmentRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO adjustments
		(run_id, tick, controller, param, old_value, new_value, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(runID, r.Tick, r.Controller, r.Param, r.Old, r.New, r.Reason); err != nil {
			return fmt.Errorf("insert adjustment: %w", err)
		}
	}
	return tx.Commit()
}

// SaveBand writes one band recalibration.
func (s *Store) SaveBand(runID string, row telemetry.BandRow) error {
	_, err := s.conn.Exec(`INSERT OR REPLACE INTO band_history
		(run_id, tick, mean, std, old_min, old_max, proposed_min, proposed_max, new_min, new_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, row.Tick, row.Mean, row.Std, row.OldMin, row.OldMax,
		row.ProposedMin, row.ProposedMax, row.NewMin, row.NewMax)
	return err
}

// Runs returns every recorded run, newest first.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.conn.Select(&runs,
		"SELECT id, seed, started_at, config_yaml FROM runs ORDER BY started_at DESC, id")
	return runs, err
}

// Audit returns the stored audit rows of a run from tick onward.
func (s *Store) Audit(runID string, fromTick int64) ([]AuditRow, error) {
	var rows []AuditRow
	err := s.conn.Select(&rows, `SELECT tick, population, group_count, births,
		starvation_deaths, natural_deaths, food, ore, pressure_max, pressure_avg,
		band_min, band_max
		FROM audit WHERE run_id = ? AND tick >= ? ORDER BY tick`,
		runID, fromTick)
	return rows, err
}

// AdjustmentCount returns the number of adjustments stored for a run.
func (s *Store) AdjustmentCount(runID string) (int, error) {
	var n int
	err := s.conn.Get(&n, "SELECT COUNT(*) FROM adjustments WHERE run_id = ?", runID)
	return n, err
}

// Bands returns the stored band history of a run, oldest first.
func (s *Store) Bands(runID string) ([]telemetry.BandRow, error) {
	var rows []telemetry.BandRow
	err := s.conn.Select(&rows, `SELECT tick, mean, std, old_min, old_max,
		proposed_min, proposed_max, new_min, new_max
		FROM band_history WHERE run_id = ? ORDER BY tick`, runID)
	return rows, err
}
