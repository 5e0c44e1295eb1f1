// Package event defines the domain event vocabulary and the observer
// contract shared by every fan-out sink (webhooks, plugins, SSE).
package event

import (
	"context"
	"time"
)

// Type identifies a domain event. The set is fixed: webhook subscription
// filters and internal dispatch calls must use exactly these names.
type Type string

// The six domain events.
const (
	MemoryCreated   Type = "memory.created"
	MemoryUpdated   Type = "memory.updated"
	MemoryDeleted   Type = "memory.deleted"
	ChatImported    Type = "chat.imported"
	SearchPerformed Type = "search.performed"
	ExportCompleted Type = "export.completed"
)

// All returns every known event type, in a stable order.
func All() []Type {
	return []Type{
		MemoryCreated,
		MemoryUpdated,
		MemoryDeleted,
		ChatImported,
		SearchPerformed,
		ExportCompleted,
	}
}

// Valid reports whether t is a member of the fixed enumeration.
func Valid(t Type) bool {
	switch t {
	case MemoryCreated, MemoryUpdated, MemoryDeleted,
		ChatImported, SearchPerformed, ExportCompleted:
		return true
	}
	return false
}

// Envelope wraps event data for transit to a subscriber.
type Envelope struct {
	Event     Type      `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Source    string    `json:"source"`
	WebhookID string    `json:"webhookId,omitempty"`
}

// EnvelopeSource is the fixed Source value stamped on every envelope.
const EnvelopeSource = "valora"

// Dispatcher fans a domain event out to registered sinks. Dispatch must
// not block on delivery: from the emitting operation's point of view
// notification is fire-and-forget.
type Dispatcher interface {
	Dispatch(ctx context.Context, t Type, data any)
}

// Observer is an in-process event sink. Observers declare the event types
// they want; the dispatcher filters before invoking, exactly like the
// webhook subscription filter.
type Observer interface {
	// Name identifies the observer in logs.
	Name() string
	// Events returns the event types the observer wants. An empty slice
	// means all events.
	Events() []Type
	// Handle processes one event. Errors are logged, never propagated to
	// the operation that emitted the event.
	Handle(ctx context.Context, t Type, data any) error
}
