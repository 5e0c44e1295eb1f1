package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Memories CRUD + search.
	r.Get("/memories", h.ListMemories)
	r.Post("/memories", h.CreateMemory)
	r.Get("/memories/search", h.SearchMemories)
	r.Get("/memories/{id}", h.GetMemory)
	r.Put("/memories/{id}", h.UpdateMemory)
	r.Delete("/memories/{id}", h.DeleteMemory)

	// Chat import pipeline.
	r.Post("/chat/import", h.ImportChat)
	r.Post("/chat/import-format", h.ImportChatFormat)
	r.Get("/chat/context/{id}", h.ConversationContext)

	// Export bundles.
	r.Post("/export", h.Export)

	// Webhook registry.
	r.Post("/webhooks", h.RegisterWebhook)
	r.Get("/webhooks", h.ListWebhooks)
	r.Get("/webhooks/{id}", h.GetWebhook)
	r.Put("/webhooks/{id}", h.UpdateWebhook)
	r.Delete("/webhooks/{id}", h.DeleteWebhook)
	r.Post("/webhooks/{id}/enable", h.EnableWebhook)
	r.Post("/webhooks/{id}/disable", h.DisableWebhook)

	// Integration status.
	r.Get("/integrations/status", h.IntegrationStatus)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
