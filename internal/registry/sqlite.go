package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"RefreshSentinel/internal/model"
)

// SQLiteStore persists the registry in a single SQLite table. The version
// column makes compare-and-swap a conditional UPDATE.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps pragmas and writers consistent across the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite registry opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			symbol          TEXT PRIMARY KEY,
			version         INTEGER NOT NULL,
			base_priority   INTEGER NOT NULL,
			status          TEXT NOT NULL,
			last_attempt    TEXT,
			last_refreshed  TEXT,
			failure_count   INTEGER NOT NULL DEFAULT 0,
			boosts          TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_status ON symbols(status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

const selectColumns = `symbol, version, base_priority, status, last_attempt, last_refreshed, failure_count, boosts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e             Entry
		status        string
		lastAttempt   sql.NullString
		lastRefreshed sql.NullString
		boosts        string
	)
	if err := row.Scan(&e.State.Symbol, &e.Version, &e.State.BasePriority, &status,
		&lastAttempt, &lastRefreshed, &e.State.FailureCount, &boosts); err != nil {
		return Entry{}, err
	}
	e.State.Status = model.Status(status)
	var err error
	if e.State.LastAttempt, err = parseTime(lastAttempt); err != nil {
		return Entry{}, fmt.Errorf("%s last_attempt: %w", e.State.Symbol, err)
	}
	if e.State.LastRefreshed, err = parseTime(lastRefreshed); err != nil {
		return Entry{}, fmt.Errorf("%s last_refreshed: %w", e.State.Symbol, err)
	}
	if err := json.Unmarshal([]byte(boosts), &e.State.Boosts); err != nil {
		return Entry{}, fmt.Errorf("%s boosts: %w", e.State.Symbol, err)
	}
	if e.State.Boosts == nil {
		e.State.Boosts = []model.Boost{}
	}
	return e, nil
}

func (s *SQLiteStore) Get(ctx context.Context, symbol string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM symbols WHERE symbol = ?`,
		model.NormalizeSymbol(symbol))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get %s: %w", symbol, err)
	}
	return e, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM symbols ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CompareAndSwap(ctx context.Context, symbol string, expectedVersion uint64, next model.SymbolState) (bool, error) {
	boosts, err := encodeBoosts(next.Boosts)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE symbols SET
			version = version + 1,
			base_priority = ?, status = ?, last_attempt = ?, last_refreshed = ?,
			failure_count = ?, boosts = ?
		WHERE symbol = ? AND version = ?`,
		next.BasePriority, string(next.Status), formatTime(next.LastAttempt), formatTime(next.LastRefreshed),
		next.FailureCount, boosts,
		model.NormalizeSymbol(symbol), expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// Distinguish a lost race from a missing row.
	if _, err := s.Get(ctx, symbol); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLiteStore) Create(ctx context.Context, state model.SymbolState) error {
	boosts, err := encodeBoosts(state.Boosts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO symbols
		(symbol, version, base_priority, status, last_attempt, last_refreshed, failure_count, boosts)
		VALUES (?,1,?,?,?,?,?,?)`,
		model.NormalizeSymbol(state.Symbol), state.BasePriority, string(state.Status),
		formatTime(state.LastAttempt), formatTime(state.LastRefreshed), state.FailureCount, boosts,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("insert %s: %w", state.Symbol, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	log.Info().Msg("closing sqlite registry")
	return s.db.Close()
}

func encodeBoosts(b []model.Boost) (string, error) {
	if b == nil {
		b = []model.Boost{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode boosts: %w", err)
	}
	return string(data), nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
