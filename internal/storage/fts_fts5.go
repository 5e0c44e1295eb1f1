//go:build sqlite_fts5

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yorbuachi72/valora/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			id UNINDEXED,
			content,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id, content string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM memories_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO memories_fts (id, content, tags) VALUES (?, ?, ?)`,
		id, content, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("storage: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM memories_fts WHERE id = ?`, id)
}

// SearchMemories performs an FTS5 full-text search ranked by relevance.
func (db *DB) SearchMemories(ctx context.Context, query string, limit int) ([]models.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE id IN (SELECT id FROM memories_fts WHERE memories_fts MATCH ? ORDER BY rank LIMIT ?)
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: search: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}
