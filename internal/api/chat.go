package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yorbuachi72/valora/internal/apperr"
	"github.com/yorbuachi72/valora/internal/export"
	"github.com/yorbuachi72/valora/internal/models"
)

func memoryIDs(memories []models.Memory) []string {
	ids := make([]string, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	return ids
}

// ImportChat handles POST /chat/import.
func (h *Handler) ImportChat(w http.ResponseWriter, r *http.Request) {
	var req ImportChatRequest
	if !decodeValid(w, r, &req) {
		return
	}
	memories, err := h.imports.ImportChat(r.Context(), req.Conversation())
	if err != nil {
		slog.Error("chat import failed",
			slog.String("conversation_id", req.ConversationID),
			slog.Int("persisted", len(memories)),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	conversationID := req.ConversationID
	if len(memories) > 0 {
		conversationID = memories[0].ConversationID
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":        "chat imported",
		"conversationId": conversationID,
		"memoryIds":      memoryIDs(memories),
		"memories":       memories,
	})
}

// ImportChatFormat handles POST /chat/import-format.
func (h *Handler) ImportChatFormat(w http.ResponseWriter, r *http.Request) {
	var req ImportFormatRequest
	if !decodeValid(w, r, &req) {
		return
	}
	memories, err := h.imports.ImportFromFormat(r.Context(), req.Content, req.Format, req.Source, req.ConversationID)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalid) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		slog.Error("format import failed",
			slog.String("format", req.Format),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "chat imported",
		"memoryIds": memoryIDs(memories),
		"memories":  memories,
	})
}

// ConversationContext handles GET /chat/context/{id}.
func (h *Handler) ConversationContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	memories, err := h.imports.ConversationContext(r.Context(), id)
	if err != nil {
		slog.Error("conversation context failed", slog.String("conversation_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": id,
		"messageCount":   len(memories),
		"memories":       memories,
	})
}

// Export handles POST /export. The rendered bundle is returned as a
// plain text body, not JSON.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decodeValid(w, r, &req) {
		return
	}
	rendered, err := h.memories.Export(r.Context(), req.MemoryIDs, export.Format(req.Format))
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("export failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rendered))
}
