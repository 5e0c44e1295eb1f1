package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS memories (
	id              TEXT PRIMARY KEY,
	content         TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT '',
	timestamp       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	version         INTEGER NOT NULL DEFAULT 1,
	tags            TEXT NOT NULL DEFAULT '[]',
	inferred_tags   TEXT NOT NULL DEFAULT '[]',
	metadata        TEXT NOT NULL DEFAULT '{}',
	content_type    TEXT NOT NULL DEFAULT 'note',
	conversation_id TEXT NOT NULL DEFAULT '',
	participant     TEXT NOT NULL DEFAULT '',
	context         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id);
CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(source);
`

// DB wraps a sql.DB with memory-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
