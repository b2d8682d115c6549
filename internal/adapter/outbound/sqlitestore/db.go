// Package sqlitestore is the durable backend for the control plane's
// persisted state: trace ledger, approval store, intent cache, HITL
// queue, and the semantic router's candidate-score log. It uses
// modernc.org/sqlite, a pure-Go (cgo-free) driver,
// wired here for the first time into real tables and statements.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS traces (
	id TEXT PRIMARY KEY,
	parent_id TEXT,
	created_at TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trace_steps (
	trace_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	step_type TEXT NOT NULL,
	created_at TEXT NOT NULL,
	sanitized_payload TEXT NOT NULL,
	event_hash TEXT NOT NULL,
	chain_hash TEXT NOT NULL,
	PRIMARY KEY (trace_id, position)
);

CREATE TABLE IF NOT EXISTS tool_approvals (
	id TEXT PRIMARY KEY,
	tool_name TEXT NOT NULL,
	args_hash TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS policy_cache (
	policy_hash TEXT NOT NULL,
	signature TEXT NOT NULL,
	tool TEXT NOT NULL,
	params TEXT NOT NULL,
	confidence REAL NOT NULL,
	gap REAL NOT NULL,
	reason TEXT NOT NULL,
	created_at TEXT NOT NULL,
	ttl_seconds INTEGER NOT NULL,
	PRIMARY KEY (policy_hash, signature)
);

CREATE TABLE IF NOT EXISTS hitl_queue (
	id TEXT PRIMARY KEY,
	input TEXT NOT NULL,
	policy_hash TEXT NOT NULL,
	candidates TEXT NOT NULL,
	guard_reason TEXT NOT NULL,
	state TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_candidates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at TEXT NOT NULL
);
`

// DB wraps a *sql.DB opened against a single SQLite file, with the
// control-plane schema applied.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Open creates (or reuses) the SQLite database at path and applies the
// schema. path may be ":memory:" for tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", path, err)
	}
	// modernc.org/sqlite serializes writers internally; a single
	// connection avoids SQLITE_BUSY under concurrent writers without
	// reaching for WAL-mode tuning the control plane doesn't need.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{DB: sqlDB, logger: logger}, nil
}
