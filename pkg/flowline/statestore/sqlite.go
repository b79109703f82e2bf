package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists flow states to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite state store.
// The path should be a file path (e.g., "./flowline.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_states (
			flow TEXT NOT NULL PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, flow string, state State) error {
	if err := validate(state); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_states (flow, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(flow) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, flow, string(state), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save flow state: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, flow string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM flow_states WHERE flow = ?
	`, flow).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load flow state: %w", err)
	}
	return State(state), nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) (map[string]State, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]State, len(records))
	for _, r := range records {
		out[r.Flow] = r.State
	}
	return out, nil
}

// Records returns every stored record ordered by flow name.
func (s *SQLiteStore) Records(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT flow, state, updated_at
		FROM flow_states
		ORDER BY flow
	`)
	if err != nil {
		return nil, fmt.Errorf("list flow states: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var state, updated string
		if err := rows.Scan(&r.Flow, &state, &updated); err != nil {
			return nil, fmt.Errorf("scan flow state: %w", err)
		}
		r.State = State(state)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow states: %w", err)
	}
	return records, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, flow string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM flow_states WHERE flow = ?`, flow); err != nil {
		return fmt.Errorf("delete flow state: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
