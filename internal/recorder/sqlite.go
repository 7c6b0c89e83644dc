package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"RefreshSentinel/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while runs write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			status      TEXT NOT NULL,
			health      TEXT,
			reason      TEXT,
			evaluated   INTEGER,
			admitted    INTEGER,
			deferred    INTEGER,
			skipped     INTEGER,
			aborted     INTEGER,
			symbols     TEXT,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id             TEXT NOT NULL,
			symbol             TEXT NOT NULL,
			action             TEXT NOT NULL,
			effective_priority INTEGER,
			reason_code        TEXT,
			reason             TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			recorded_at   INTEGER NOT NULL,
			symbol        TEXT NOT NULL,
			outcome       TEXT NOT NULL,
			message       TEXT,
			failure_count INTEGER,
			status        TEXT,
			recovered     INTEGER,
			lost_update   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_symbol ON outcomes(symbol)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(sum *model.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO runs
		(run_id, started_at, finished_at, status, health, reason,
		 evaluated, admitted, deferred, skipped, aborted, symbols, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sum.RunID, sum.StartedAt.Unix(), sum.FinishedAt.Unix(),
		string(sum.Status), string(sum.Health), sum.Reason,
		sum.Evaluated, sum.Admitted, sum.Deferred, sum.Skipped, sum.Aborted,
		strings.Join(sum.Symbols, ","), sum.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordDecisions(runID string, decisions []model.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO decisions
		(run_id, symbol, action, effective_priority, reason_code, reason)
		VALUES (?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range decisions {
		if _, err := stmt.Exec(runID, d.Symbol, string(d.Action), d.EffectivePriority,
			d.Reason.Code.Name(), d.Reason.String()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert decision %s: %w", d.Symbol, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordOutcome(evt *OutcomeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO outcomes
		(timestamp, recorded_at, symbol, outcome, message, failure_count, status, recovered, lost_update)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.Outcome.Timestamp.Unix(), at.Unix(), evt.Outcome.Symbol, string(evt.Outcome.Outcome),
		evt.Outcome.Message, evt.FailureCount, string(evt.Status), evt.Recovered, evt.LostUpdate,
	)
	return err
}

// RunCount returns how many runs have been recorded.
func (r *SQLiteRecorder) RunCount() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

// DecisionReasons returns symbol -> reason code for one run.
func (r *SQLiteRecorder) DecisionReasons(runID string) (map[string]string, error) {
	rows, err := r.db.Query(`SELECT symbol, reason_code FROM decisions WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var sym, code string
		if err := rows.Scan(&sym, &code); err != nil {
			return nil, err
		}
		out[sym] = code
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
