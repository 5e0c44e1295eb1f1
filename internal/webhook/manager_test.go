package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yorbuachi72/valora/internal/apperr"
	"github.com/yorbuachi72/valora/internal/event"
)

// countingServer records delivery attempts and answers with a fixed status.
type countingServer struct {
	*httptest.Server
	mu       sync.Mutex
	calls    int
	at       []time.Time
	lastBody []byte
}

func newCountingServer(t *testing.T, status int) *countingServer {
	t.Helper()
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.calls++
		cs.at = append(cs.at, time.Now())
		cs.lastBody = body
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *countingServer) callCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.calls
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, BackoffMs: 10, TimeoutMs: 1000}
}

func TestRegister_DefaultsAndIDShape(t *testing.T) {
	m := NewManager(nil)
	sub := m.Register(Subscription{
		URL:     "http://example.com/hook",
		Events:  []event.Type{event.MemoryCreated},
		Enabled: true,
	})

	if sub.ID == "" || sub.ID[:8] != "webhook_" {
		t.Errorf("id = %q", sub.ID)
	}
	if sub.RetryPolicy != DefaultRetryPolicy() {
		t.Errorf("retryPolicy = %+v", sub.RetryPolicy)
	}
	if sub.CreatedAt.IsZero() || !sub.UpdatedAt.Equal(sub.CreatedAt) {
		t.Errorf("timestamps = %v/%v", sub.CreatedAt, sub.UpdatedAt)
	}
}

func TestUpdate_BumpsUpdatedAt(t *testing.T) {
	m := NewManager(nil)
	sub := m.Register(Subscription{URL: "http://example.com", Events: []event.Type{event.MemoryCreated}, Enabled: true})

	time.Sleep(5 * time.Millisecond)
	updated, err := m.SetEnabled(sub.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Enabled {
		t.Error("still enabled")
	}
	if !updated.UpdatedAt.After(sub.UpdatedAt) {
		t.Errorf("updatedAt not bumped: %v vs %v", updated.UpdatedAt, sub.UpdatedAt)
	}
}

func TestGetUpdateDelete_UnknownID(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.Get("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get err = %v", err)
	}
	if _, err := m.Update("nope", UpdateParams{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Update err = %v", err)
	}
	if err := m.Delete("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete err = %v", err)
	}
}

func TestNotify_FilterCorrectness(t *testing.T) {
	matching := newCountingServer(t, http.StatusOK)
	otherEvent := newCountingServer(t, http.StatusOK)
	disabled := newCountingServer(t, http.StatusOK)

	m := NewManager(nil)
	m.Register(Subscription{URL: matching.URL, Events: []event.Type{event.MemoryCreated}, Enabled: true, RetryPolicy: fastPolicy(0)})
	m.Register(Subscription{URL: otherEvent.URL, Events: []event.Type{event.MemoryUpdated}, Enabled: true, RetryPolicy: fastPolicy(0)})
	m.Register(Subscription{URL: disabled.URL, Events: []event.Type{event.MemoryCreated}, Enabled: false, RetryPolicy: fastPolicy(0)})

	m.Notify(context.Background(), event.MemoryCreated, map[string]string{"id": "m1"})

	if got := matching.callCount(); got != 1 {
		t.Errorf("matching subscriber calls = %d, want 1", got)
	}
	if got := otherEvent.callCount(); got != 0 {
		t.Errorf("non-matching subscriber calls = %d, want 0", got)
	}
	if got := disabled.callCount(); got != 0 {
		t.Errorf("disabled subscriber calls = %d, want 0", got)
	}
}

func TestNotify_EnvelopeShape(t *testing.T) {
	srv := newCountingServer(t, http.StatusOK)
	m := NewManager(nil)
	sub := m.Register(Subscription{URL: srv.URL, Events: []event.Type{event.ExportCompleted}, Enabled: true, RetryPolicy: fastPolicy(0)})

	m.Notify(context.Background(), event.ExportCompleted, map[string]string{"format": "json"})

	srv.mu.Lock()
	body := srv.lastBody
	srv.mu.Unlock()

	var env event.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("envelope not JSON: %v (%s)", err, body)
	}
	if env.Event != event.ExportCompleted || env.Source != "valora" || env.WebhookID != sub.ID {
		t.Errorf("envelope = %+v", env)
	}
	if env.Timestamp.IsZero() {
		t.Error("envelope timestamp missing")
	}
}

func TestNotify_RetryBound(t *testing.T) {
	srv := newCountingServer(t, http.StatusInternalServerError)
	m := NewManager(nil)
	m.Register(Subscription{URL: srv.URL, Events: []event.Type{event.MemoryCreated}, Enabled: true, RetryPolicy: fastPolicy(2)})

	m.Notify(context.Background(), event.MemoryCreated, nil)

	// maxRetries=2 means exactly 3 attempts.
	if got := srv.callCount(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestNotify_ExponentialBackoff(t *testing.T) {
	srv := newCountingServer(t, http.StatusServiceUnavailable)
	m := NewManager(nil)
	backoff := 40 * time.Millisecond
	m.Register(Subscription{
		URL:         srv.URL,
		Events:      []event.Type{event.MemoryCreated},
		Enabled:     true,
		RetryPolicy: RetryPolicy{MaxRetries: 2, BackoffMs: 40, TimeoutMs: 1000},
	})

	m.Notify(context.Background(), event.MemoryCreated, nil)

	srv.mu.Lock()
	at := srv.at
	srv.mu.Unlock()
	if len(at) != 3 {
		t.Fatalf("attempts = %d, want 3", len(at))
	}
	// Delay before retry n must be at least backoff * 2^(n-1).
	if d := at[1].Sub(at[0]); d < backoff {
		t.Errorf("first retry delay = %v, want >= %v", d, backoff)
	}
	if d := at[2].Sub(at[1]); d < 2*backoff {
		t.Errorf("second retry delay = %v, want >= %v", d, 2*backoff)
	}
}

func TestNotify_SubscribersIndependent(t *testing.T) {
	failing := newCountingServer(t, http.StatusInternalServerError)
	healthy := newCountingServer(t, http.StatusOK)

	m := NewManager(nil)
	m.Register(Subscription{URL: failing.URL, Events: []event.Type{event.MemoryCreated}, Enabled: true, RetryPolicy: fastPolicy(3)})
	m.Register(Subscription{URL: healthy.URL, Events: []event.Type{event.MemoryCreated}, Enabled: true, RetryPolicy: fastPolicy(0)})

	m.Notify(context.Background(), event.MemoryCreated, nil)

	// The failing subscriber burns through its retries without affecting
	// the healthy one.
	if got := healthy.callCount(); got != 1 {
		t.Errorf("healthy calls = %d, want 1", got)
	}
	if got := failing.callCount(); got != 4 {
		t.Errorf("failing calls = %d, want 4", got)
	}
}

func TestNotify_AttemptTimeout(t *testing.T) {
	var calls atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slow.Close)

	m := NewManager(nil)
	m.Register(Subscription{
		URL:         slow.URL,
		Events:      []event.Type{event.MemoryCreated},
		Enabled:     true,
		RetryPolicy: RetryPolicy{MaxRetries: 1, BackoffMs: 10, TimeoutMs: 50},
	})

	m.Notify(context.Background(), event.MemoryCreated, nil)

	// Both attempts time out; the timed-out attempt counts as failed.
	if got := calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestNotify_CustomHeaders(t *testing.T) {
	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Api-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	m := NewManager(nil)
	m.Register(Subscription{
		URL:         srv.URL,
		Events:      []event.Type{event.MemoryCreated},
		Enabled:     true,
		Headers:     map[string]string{"X-Api-Key": "secret"},
		RetryPolicy: fastPolicy(0),
	})

	m.Notify(context.Background(), event.MemoryCreated, nil)

	if got, _ := gotHeader.Load().(string); got != "secret" {
		t.Errorf("X-Api-Key = %q", got)
	}
}

// stubObserver records events it was handed.
type stubObserver struct {
	name   string
	wants  []event.Type
	mu     sync.Mutex
	events []event.Type
}

func (o *stubObserver) Name() string         { return o.name }
func (o *stubObserver) Events() []event.Type { return o.wants }

func (o *stubObserver) Handle(_ context.Context, t event.Type, _ any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, t)
	return nil
}

func TestNotify_ObserversShareFilter(t *testing.T) {
	m := NewManager(nil)
	narrow := &stubObserver{name: "narrow", wants: []event.Type{event.SearchPerformed}}
	wide := &stubObserver{name: "wide"} // empty declaration: all events
	m.RegisterObserver(narrow)
	m.RegisterObserver(wide)

	m.Notify(context.Background(), event.MemoryDeleted, nil)
	m.Notify(context.Background(), event.SearchPerformed, nil)

	if len(narrow.events) != 1 || narrow.events[0] != event.SearchPerformed {
		t.Errorf("narrow events = %v", narrow.events)
	}
	if len(wide.events) != 2 {
		t.Errorf("wide events = %v", wide.events)
	}
}

func TestWebhookStatus(t *testing.T) {
	m := NewManager(nil)
	m.Register(Subscription{URL: "http://a", Events: []event.Type{event.MemoryCreated}, Enabled: true})
	sub := m.Register(Subscription{URL: "http://b", Events: []event.Type{event.MemoryCreated}, Enabled: true})
	if _, err := m.SetEnabled(sub.ID, false); err != nil {
		t.Fatal(err)
	}

	s := m.WebhookStatus()
	if s.Total != 2 || s.Enabled != 1 || s.Disabled != 1 {
		t.Errorf("status = %+v", s)
	}
}
