// Package memoryservice coordinates memory CRUD, search, and export
// operations against the storage provider, emitting domain events for each.
package memoryservice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yorbuachi72/valora/internal/event"
	"github.com/yorbuachi72/valora/internal/export"
	"github.com/yorbuachi72/valora/internal/models"
	"github.com/yorbuachi72/valora/internal/storage"
)

// Service owns the memory lifecycle.
type Service struct {
	store    storage.Provider
	notifier event.Dispatcher
}

// New creates a memory service. notifier may be nil.
func New(store storage.Provider, notifier event.Dispatcher) *Service {
	return &Service{store: store, notifier: notifier}
}

// CreateParams describes a new memory.
type CreateParams struct {
	Content     string
	Source      string
	Timestamp   time.Time
	Tags        []string
	Metadata    map[string]any
	ContentType models.ContentType
	Context     string
}

// Create persists a new memory at version 1 and emits memory.created.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Memory, error) {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ctype := p.ContentType
	if ctype == "" {
		ctype = models.ContentNote
	}
	if p.Source == "" {
		p.Source = "manual"
	}

	m := &models.Memory{
		ID:          uuid.NewString(),
		Content:     p.Content,
		Source:      p.Source,
		Timestamp:   ts,
		Version:     1,
		Tags:        p.Tags,
		Metadata:    p.Metadata,
		ContentType: ctype,
		Context:     p.Context,
	}
	if err := s.store.SaveMemory(ctx, m); err != nil {
		return nil, err
	}
	s.dispatch(ctx, event.MemoryCreated, m)
	return m, nil
}

// Get returns a single memory by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Memory, error) {
	return s.store.GetMemory(ctx, id)
}

// Update applies a patch and emits memory.updated.
func (s *Service) Update(ctx context.Context, id string, patch storage.Patch) (*models.Memory, error) {
	m, err := s.store.UpdateMemory(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, event.MemoryUpdated, m)
	return m, nil
}

// Delete hard-removes a memory and emits memory.deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteMemory(ctx, id); err != nil {
		return err
	}
	s.dispatch(ctx, event.MemoryDeleted, map[string]string{"id": id})
	return nil
}

// Search queries the store and emits search.performed with the query and
// its results.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.Memory, error) {
	results, err := s.store.SearchMemories(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, event.SearchPerformed, map[string]any{
		"query":   query,
		"results": results,
	})
	return results, nil
}

// List returns a page of memories plus the total count.
func (s *Service) List(ctx context.Context, limit, offset int, tag string) ([]models.Memory, int, error) {
	return s.store.ListMemories(ctx, limit, offset, tag)
}

// Export fetches the requested memories, renders them in the given format,
// and emits export.completed. A single missing id fails the whole export
// with apperr.ErrNotFound; no partial bundle is produced.
func (s *Service) Export(ctx context.Context, memoryIDs []string, format export.Format) (string, error) {
	if format == "" {
		format = export.DefaultFormat
	}
	memories := make([]models.Memory, 0, len(memoryIDs))
	for _, id := range memoryIDs {
		m, err := s.store.GetMemory(ctx, id)
		if err != nil {
			return "", fmt.Errorf("memory %s: %w", id, err)
		}
		memories = append(memories, *m)
	}

	result, err := export.Render(memories, format)
	if err != nil {
		return "", err
	}

	s.dispatch(ctx, event.ExportCompleted, map[string]any{
		"memoryIds": memoryIDs,
		"format":    string(format),
		"result":    result,
	})
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, t event.Type, data any) {
	if s.notifier != nil {
		s.notifier.Dispatch(ctx, t, data)
	}
}
