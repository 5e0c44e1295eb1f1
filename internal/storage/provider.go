// Package storage provides the memory persistence collaborator backed by
// SQLite, with optional FTS5 full-text search.
package storage

import (
	"context"

	"github.com/yorbuachi72/valora/internal/models"
)

// Patch describes a partial memory update. Nil fields are left untouched.
// A non-nil Content bumps the memory version.
type Patch struct {
	Content *string
	Tags    []string
	Context *string
}

// Provider is the interface for memory persistence operations.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with fakes.
type Provider interface {
	// SaveMemory inserts a new memory record.
	SaveMemory(ctx context.Context, m *models.Memory) error
	// GetMemory returns the memory with the given id, or apperr.ErrNotFound.
	GetMemory(ctx context.Context, id string) (*models.Memory, error)
	// SearchMemories returns memories matching the query string.
	SearchMemories(ctx context.Context, query string, limit int) ([]models.Memory, error)
	// UpdateMemory applies a patch and returns the updated record.
	UpdateMemory(ctx context.Context, id string, patch Patch) (*models.Memory, error)
	// DeleteMemory removes the memory with the given id.
	DeleteMemory(ctx context.Context, id string) error
	// ConversationMemories returns every memory sharing a conversation id.
	// Ordering follows metadata.messageIndex.
	ConversationMemories(ctx context.Context, conversationID string) ([]models.Memory, error)
	// ListMemories returns a page of memories plus the total count.
	ListMemories(ctx context.Context, limit, offset int, tag string) ([]models.Memory, int, error)
	// Close releases the underlying database handle.
	Close() error
}

// Verify *DB satisfies Provider at compile time.
var _ Provider = (*DB)(nil)
