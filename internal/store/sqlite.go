package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is the durable Backend. Entries survive process restart.
//
// The connection pool is capped at a single connection: SQLite allows one
// writer at a time, and funneling every operation through one connection
// makes each Put/Get/Delete atomic and totally ordered per key without any
// locking in this package.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the store database at path.
// Applies pragmas and the schema automatically; safe to call on an existing
// database.
//
// Configuration:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Put implements Backend. Last write wins via upsert.
func (s *SQLite) Put(ctx context.Context, sel Selector, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (scope, owner, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, owner, key) DO UPDATE SET value = excluded.value
	`, string(sel.Scope), sel.Owner, key, string(data))
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// Get implements Backend.
func (s *SQLite) Get(ctx context.Context, sel Selector, key string) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM entries
		WHERE scope = ? AND owner = ? AND key = ?
	`, string(sel.Scope), sel.Owner, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get entry: %w", err)
	}
	return []byte(data), true, nil
}

// Delete implements Backend. Deleting an absent key is a no-op.
func (s *SQLite) Delete(ctx context.Context, sel Selector, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM entries
		WHERE scope = ? AND owner = ? AND key = ?
	`, string(sel.Scope), sel.Owner, key)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Keys implements Backend. Ordered for deterministic output.
func (s *SQLite) Keys(ctx context.Context, sel Selector) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM entries
		WHERE scope = ? AND owner = ?
		ORDER BY key COLLATE BINARY ASC
	`, string(sel.Scope), sel.Owner)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// All implements Backend. A single SELECT, so the snapshot is consistent at
// one point in time even with concurrent writers.
func (s *SQLite) All(ctx context.Context, sel Selector) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM entries
		WHERE scope = ? AND owner = ?
		ORDER BY key COLLATE BINARY ASC
	`, string(sel.Scope), sel.Owner)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out[k] = []byte(v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
