package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yorbuachi72/valora/internal/apperr"
	"github.com/yorbuachi72/valora/internal/event"
)

// RegisterWebhook handles POST /webhooks.
func (h *Handler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req RegisterWebhookRequest
	if !decodeValid(w, r, &req) {
		return
	}
	sub := h.hooks.Register(req.Subscription())
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      sub.ID,
		"message": "webhook registered",
		"config":  sub,
	})
}

// ListWebhooks handles GET /webhooks.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"webhooks": h.hooks.List(),
	})
}

// GetWebhook handles GET /webhooks/{id}.
func (h *Handler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	sub, err := h.hooks.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// UpdateWebhook handles PUT /webhooks/{id}.
func (h *Handler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateWebhookRequest
	if !decodeValid(w, r, &req) {
		return
	}
	sub, err := h.hooks.Update(id, req.Params())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// DeleteWebhook handles DELETE /webhooks/{id}.
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.hooks.Delete(chi.URLParam(r, "id")); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnableWebhook handles POST /webhooks/{id}/enable.
func (h *Handler) EnableWebhook(w http.ResponseWriter, r *http.Request) {
	h.setWebhookEnabled(w, r, true)
}

// DisableWebhook handles POST /webhooks/{id}/disable.
func (h *Handler) DisableWebhook(w http.ResponseWriter, r *http.Request) {
	h.setWebhookEnabled(w, r, false)
}

func (h *Handler) setWebhookEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	sub, err := h.hooks.SetEnabled(chi.URLParam(r, "id"), enabled)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// IntegrationStatus handles GET /integrations/status.
func (h *Handler) IntegrationStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"webhooks": h.hooks.WebhookStatus(),
		"plugins":  h.hooks.ObserverStatus(),
		"events":   event.All(),
	})
}
