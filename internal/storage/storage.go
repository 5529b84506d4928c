// Package storage persists the normalized ledger in SQLite. The same
// database file also backs the embedding index, so a single Open call
// prepares both schemas.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint     TEXT NOT NULL UNIQUE,
	date            TEXT NOT NULL,
	merchant        TEXT NOT NULL,
	amount_cents    INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	issuer          TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	note            TEXT NOT NULL DEFAULT '',
	low_confidence  INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);

CREATE TABLE IF NOT EXISTS embeddings (
	namespace  TEXT NOT NULL,
	id         TEXT NOT NULL,
	vector     BLOB NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	merchant   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (namespace, id)
);
`

// Open opens (creating if needed) the ledger database and applies the
// schema. The returned handle is safe for concurrent use and is shared by
// the transaction repository and the embedding index.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}
