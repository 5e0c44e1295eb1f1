//go:build !sqlite_fts5

package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yorbuachi72/valora/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search uses the LIKE fallback on the memories
	// table directly.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _ string, _ []string) error {
	// Content is already stored in the memories table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

// SearchMemories performs a LIKE-based search (fallback when FTS5 is not
// compiled in).
func (db *DB) SearchMemories(ctx context.Context, query string, limit int) ([]models.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE content LIKE ? OR tags LIKE ? OR source LIKE ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: search: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}
