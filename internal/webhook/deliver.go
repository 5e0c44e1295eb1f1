package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yorbuachi72/valora/internal/event"
)

// Notify fans the event out to every matching subscription and observer,
// concurrently and independently, and blocks until every delivery settles
// (success or exhausted retries). Individual failures are logged and
// dropped, never returned: from the emitting domain operation's point of
// view a dead subscriber is invisible.
func (m *Manager) Notify(ctx context.Context, t event.Type, data any) {
	m.mu.RLock()
	var targets []*Subscription
	for _, sub := range m.subs {
		if sub.Enabled && sub.wants(t) {
			targets = append(targets, snapshot(sub))
		}
	}
	var sinks []event.Observer
	for _, o := range m.observers {
		if observerWants(o, t) {
			sinks = append(sinks, o)
		}
	}
	m.mu.RUnlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, sub := range targets {
		g.Go(func() error {
			m.deliver(gCtx, sub, t, data)
			return nil
		})
	}
	for _, o := range sinks {
		g.Go(func() error {
			if err := o.Handle(gCtx, t, data); err != nil {
				slog.Error("observer failed",
					slog.String("observer", o.Name()),
					slog.String("event", string(t)),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Dispatch is the fire-and-forget form used on domain operation hot paths:
// delivery proceeds in the background so a slow or dead subscriber cannot
// block or fail the triggering request.
func (m *Manager) Dispatch(ctx context.Context, t event.Type, data any) {
	go m.Notify(context.WithoutCancel(ctx), t, data)
}

// deliver runs the per-subscriber attempt loop: send, then on a non-2xx
// response or transport error wait backoffMs * 2^attempt and try again, up
// to maxRetries retries. Attempt outcomes beyond the final failure are
// observable only through logs; there is no dead-letter store.
func (m *Manager) deliver(ctx context.Context, sub *Subscription, t event.Type, data any) {
	envelope := event.Envelope{
		Event:     t,
		Timestamp: time.Now(),
		Data:      data,
		Source:    event.EnvelopeSource,
		WebhookID: sub.ID,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		slog.Error("webhook payload marshal failed",
			slog.String("webhook", sub.ID),
			slog.String("error", err.Error()))
		return
	}

	policy := sub.RetryPolicy
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := m.attempt(ctx, sub, payload); err == nil {
			return
		} else if attempt < policy.MaxRetries {
			slog.Warn("webhook delivery failed, retrying",
				slog.String("webhook", sub.ID),
				slog.String("event", string(t)),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))

			backoff := time.Duration(policy.BackoffMs) * time.Millisecond << attempt
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		} else {
			slog.Error("webhook delivery failed permanently",
				slog.String("webhook", sub.ID),
				slog.String("event", string(t)),
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()))
		}
	}
}

// attempt performs one HTTP POST bounded by the subscription's per-attempt
// timeout. Any status outside 2xx counts as a failed attempt.
func (m *Manager) attempt(ctx context.Context, sub *Subscription, payload []byte) error {
	timeout := time.Duration(sub.RetryPolicy.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(DefaultRetryPolicy().TimeoutMs) * time.Millisecond
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func observerWants(o event.Observer, t event.Type) bool {
	wanted := o.Events()
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if w == t {
			return true
		}
	}
	return false
}
