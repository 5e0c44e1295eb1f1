// Package webhook owns the subscriber registry and turns domain events into
// best-effort HTTP deliveries with bounded retries.
//
// The registry is volatile: a restart loses all subscriptions. Callers that
// need durability must persist their subscriptions externally and
// re-register on startup.
package webhook

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yorbuachi72/valora/internal/apperr"
	"github.com/yorbuachi72/valora/internal/event"
)

// RetryPolicy bounds delivery attempts for one subscription.
type RetryPolicy struct {
	MaxRetries int `json:"maxRetries"`
	BackoffMs  int `json:"backoffMs"`
	TimeoutMs  int `json:"timeoutMs"`
}

// DefaultRetryPolicy is applied when a registration omits the policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BackoffMs: 1000, TimeoutMs: 10000}
}

// Subscription is one registered webhook endpoint.
type Subscription struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Events      []event.Type      `json:"events"`
	Headers     map[string]string `json:"headers,omitempty"`
	RetryPolicy RetryPolicy       `json:"retryPolicy"`
	Enabled     bool              `json:"enabled"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func (s *Subscription) wants(t event.Type) bool {
	for _, e := range s.Events {
		if e == t {
			return true
		}
	}
	return false
}

// UpdateParams is a partial subscription update. Nil fields are untouched.
type UpdateParams struct {
	URL         *string
	Events      []event.Type
	Headers     map[string]string
	RetryPolicy *RetryPolicy
	Enabled     *bool
}

// Manager holds the in-memory subscription registry plus the in-process
// observer list, and fans domain events out to both through one filter.
//
// Unlike the registry's single-threaded ancestors, Go handlers mutate it
// from parallel goroutines, so a mutex guards the map. Dispatch snapshots
// matching subscriptions once per notify cycle; an enable/disable racing a
// delivery affects the next cycle, not the in-flight one.
type Manager struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	observers []event.Observer

	client *http.Client
}

// NewManager creates a webhook manager. client may be nil, in which case a
// default HTTP client is used (per-attempt timeouts come from each
// subscription's retry policy, not the client).
func NewManager(client *http.Client) *Manager {
	if client == nil {
		client = &http.Client{}
	}
	return &Manager{
		subs:   make(map[string]*Subscription),
		client: client,
	}
}

// Register adds a subscription and returns it with generated id and
// bookkeeping timestamps. Zero-valued retry policy fields fall back to the
// defaults.
func (m *Manager) Register(sub Subscription) *Subscription {
	now := time.Now()
	sub.ID = newSubscriptionID(now)
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.RetryPolicy == (RetryPolicy{}) {
		sub.RetryPolicy = DefaultRetryPolicy()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = &sub
	return snapshot(&sub)
}

// Get returns a copy of the subscription with the given id.
func (m *Manager) Get(id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return snapshot(sub), nil
}

// List returns copies of all subscriptions, registration order not
// guaranteed.
func (m *Manager) List() []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, *snapshot(sub))
	}
	return out
}

// Update applies a partial update and bumps UpdatedAt.
func (m *Manager) Update(id string, params UpdateParams) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if params.URL != nil {
		sub.URL = *params.URL
	}
	if params.Events != nil {
		sub.Events = params.Events
	}
	if params.Headers != nil {
		sub.Headers = params.Headers
	}
	if params.RetryPolicy != nil {
		sub.RetryPolicy = *params.RetryPolicy
	}
	if params.Enabled != nil {
		sub.Enabled = *params.Enabled
	}
	sub.UpdatedAt = time.Now()
	return snapshot(sub), nil
}

// Delete removes a subscription from the registry.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

// SetEnabled flips delivery on or off without dropping the registration.
func (m *Manager) SetEnabled(id string, enabled bool) (*Subscription, error) {
	return m.Update(id, UpdateParams{Enabled: &enabled})
}

// RegisterObserver adds an in-process event sink. Observers share the
// webhook filter semantics: they receive an event iff they declare it (an
// empty declaration means all events).
func (m *Manager) RegisterObserver(o event.Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Status aggregates registry counts for the integrations endpoint.
type Status struct {
	Total    int `json:"total"`
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
}

// WebhookStatus returns aggregate subscription counts.
func (m *Manager) WebhookStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Status{Total: len(m.subs)}
	for _, sub := range m.subs {
		if sub.Enabled {
			s.Enabled++
		} else {
			s.Disabled++
		}
	}
	return s
}

// ObserverStatus returns aggregate observer counts. Observers cannot be
// disabled; Total and Enabled always match.
func (m *Manager) ObserverStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{Total: len(m.observers), Enabled: len(m.observers)}
}

// snapshot returns a defensive copy so callers never share registry memory.
func snapshot(sub *Subscription) *Subscription {
	cp := *sub
	cp.Events = append([]event.Type(nil), sub.Events...)
	if sub.Headers != nil {
		cp.Headers = make(map[string]string, len(sub.Headers))
		for k, v := range sub.Headers {
			cp.Headers[k] = v
		}
	}
	return &cp
}

// newSubscriptionID generates ids of the webhook_<timestamp>_<random>
// shape. Uniqueness only needs to hold within process lifetime.
func newSubscriptionID(now time.Time) string {
	return fmt.Sprintf("webhook_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
