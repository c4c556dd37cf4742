package recorder

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder keeps the run history in a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *slog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Debug("sqlite recorder opened", "path", dbPath)
	return r, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		source      TEXT,
		start_date  TEXT NOT NULL,
		end_date    TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		finished_at INTEGER,
		status      TEXT NOT NULL,
		error       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

	`CREATE TABLE IF NOT EXISTS days (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id       TEXT NOT NULL REFERENCES runs(id),
		date         TEXT NOT NULL,
		state        TEXT NOT NULL,
		profile_path TEXT,
		error        TEXT,
		recorded_at  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_days_run ON days(run_id)`,
}

func (r *SQLiteRecorder) migrate() error {
	return r.execAll(schema)
}

func (r *SQLiteRecorder) execAll(stmts []string) error {
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %.30q: %w", s, err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRunStart(run *RunStart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO runs
		(id, source, start_date, end_date, started_at, status)
		VALUES (?,?,?,?,?,?)`,
		run.ID, run.Source, run.StartDate, run.EndDate, run.StartedAt.Unix(), StatusRunning,
	)
	return err
}

func (r *SQLiteRecorder) RecordDay(day *DayOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO days
		(run_id, date, state, profile_path, error, recorded_at)
		VALUES (?,?,?,?,?,?)`,
		day.RunID, day.Date, day.State, day.ProfilePath, day.Err, time.Now().Unix(),
	)
	return err
}

func (r *SQLiteRecorder) RecordRunEnd(run *RunEnd) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		run.FinishedAt.Unix(), run.Status, run.Err, run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s was never started", run.ID)
	}
	return nil
}

// Runs returns the most recent runs first. A limit of zero or less returns
// every run.
func (r *SQLiteRecorder) Runs(limit int) ([]Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(`SELECT
			r.id, r.source, r.start_date, r.end_date, r.started_at,
			COALESCE(r.finished_at, 0), r.status, COALESCE(r.error, ''),
			(SELECT COUNT(*) FROM days d WHERE d.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt, finishedAt int64
		if err := rows.Scan(&run.ID, &run.Source, &run.StartDate, &run.EndDate, &startedAt,
			&finishedAt, &run.Status, &run.Err, &run.Days); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = time.Unix(startedAt, 0).UTC()
		if finishedAt != 0 {
			run.FinishedAt = time.Unix(finishedAt, 0).UTC()
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Debug("closing sqlite recorder")
	return r.db.Close()
}
