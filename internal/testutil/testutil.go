// Package testutil provides shared test helpers for setting up stores and
// dispatchers.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/yorbuachi72/valora/internal/event"
	"github.com/yorbuachi72/valora/internal/storage"
)

// TestStore creates a temporary SQLite-backed store that is automatically
// cleaned up.
func TestStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "valora-test.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// EventRecorder is an event.Dispatcher that records dispatched events
// synchronously for assertions.
type EventRecorder struct {
	mu     sync.Mutex
	events []event.Type
}

// Dispatch records the event type.
func (r *EventRecorder) Dispatch(_ context.Context, t event.Type, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

// Events returns a copy of the recorded event types.
func (r *EventRecorder) Events() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Type(nil), r.events...)
}
