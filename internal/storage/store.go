package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yorbuachi72/valora/internal/apperr"
	"github.com/yorbuachi72/valora/internal/models"
)

const memoryColumns = `id, content, source, timestamp, version, tags, inferred_tags,
	metadata, content_type, conversation_id, participant, context`

// SaveMemory inserts a new memory row together with its FTS entry.
func (db *DB) SaveMemory(ctx context.Context, m *models.Memory) error {
	tags, _ := json.Marshal(emptyIfNil(m.Tags))
	inferred, _ := json.Marshal(emptyIfNil(m.InferredTags))
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal metadata: %w", err)
	}
	if m.Metadata == nil {
		meta = []byte("{}")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, m.Source, m.Timestamp, m.Version, string(tags), string(inferred),
		string(meta), string(m.ContentType), m.ConversationID, m.Participant, m.Context)
	if err != nil {
		return fmt.Errorf("storage: insert memory: %w", err)
	}
	if err := ftsUpsert(tx, m.ID, m.Content, m.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMemory returns a single memory by id.
func (db *DB) GetMemory(ctx context.Context, id string) (*models.Memory, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get memory: %w", err)
	}
	return m, nil
}

// UpdateMemory applies a patch to an existing memory. A content change bumps
// the version counter.
func (db *DB) UpdateMemory(ctx context.Context, id string, patch Patch) (*models.Memory, error) {
	m, err := db.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		m.Content = *patch.Content
		m.Version++
	}
	if patch.Tags != nil {
		m.Tags = patch.Tags
	}
	if patch.Context != nil {
		m.Context = *patch.Context
	}

	tags, _ := json.Marshal(emptyIfNil(m.Tags))

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET content = ?, version = ?, tags = ?, context = ?
		WHERE id = ?
	`, m.Content, m.Version, string(tags), m.Context, id)
	if err != nil {
		return nil, fmt.Errorf("storage: update memory: %w", err)
	}
	if err := ftsUpsert(tx, m.ID, m.Content, m.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMemory removes a memory row and its FTS entry. Deletion is a hard
// remove; there is no soft-delete.
func (db *DB) DeleteMemory(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	ftsDelete(tx, id)
	return tx.Commit()
}

// ConversationMemories returns every memory sharing conversationID.
// Rows come back in messageIndex order when present, insertion order
// otherwise.
func (db *DB) ConversationMemories(ctx context.Context, conversationID string) ([]models.Memory, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE conversation_id = ?
		ORDER BY CAST(json_extract(metadata, '$.messageIndex') AS INTEGER), rowid
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("storage: conversation memories: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// ListMemories returns a page of memories plus the total count, optionally
// filtered by tag.
func (db *DB) ListMemories(ctx context.Context, limit, offset int, tag string) ([]models.Memory, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []any{}
	if tag != "" {
		// Tags are stored as a JSON array; match the quoted element.
		where = ` WHERE tags LIKE ?`
		args = append(args, `%"`+tag+`"%`)
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count memories: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories`+where+`
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list memories: %w", err)
	}
	defer rows.Close()

	out, err := collectMemories(rows)
	return out, total, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*models.Memory, error) {
	var (
		m                    models.Memory
		tags, inferred, meta string
		ctype                string
	)
	if err := row.Scan(&m.ID, &m.Content, &m.Source, &m.Timestamp, &m.Version,
		&tags, &inferred, &meta, &ctype, &m.ConversationID, &m.Participant, &m.Context); err != nil {
		return nil, err
	}
	m.ContentType = models.ContentType(ctype)
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("storage: decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(inferred), &m.InferredTags); err != nil {
		return nil, fmt.Errorf("storage: decode inferred tags: %w", err)
	}
	if strings.TrimSpace(meta) != "" {
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("storage: decode metadata: %w", err)
		}
	}
	if len(m.Metadata) == 0 {
		m.Metadata = nil
	}
	return &m, nil
}

func collectMemories(rows *sql.Rows) ([]models.Memory, error) {
	var out []models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
