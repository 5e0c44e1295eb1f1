package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yorbuachi72/valora/internal/apperr"
	"github.com/yorbuachi72/valora/internal/chatimport"
	"github.com/yorbuachi72/valora/internal/memoryservice"
	"github.com/yorbuachi72/valora/internal/models"
	"github.com/yorbuachi72/valora/internal/storage"
	"github.com/yorbuachi72/valora/internal/webhook"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	memories *memoryservice.Service
	imports  *chatimport.Service
	hooks    *webhook.Manager
}

// NewHandler creates a new Handler.
func NewHandler(memories *memoryservice.Service, imports *chatimport.Service, hooks *webhook.Manager) *Handler {
	return &Handler{memories: memories, imports: imports, hooks: hooks}
}

// decodeValid decodes a JSON body into req and runs its validation.
// It writes the error response itself and reports whether the caller
// should proceed.
func decodeValid[T interface{ Validate() error }](w http.ResponseWriter, r *http.Request, req *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := (*req).Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, validationBody(err))
		return false
	}
	return true
}

// CreateMemory handles POST /memories.
func (h *Handler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoryRequest
	if !decodeValid(w, r, &req) {
		return
	}
	mem, err := h.memories.Create(r.Context(), memoryservice.CreateParams{
		Content:     req.Content,
		Source:      req.Source,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
		ContentType: models.ContentType(req.ContentType),
		Context:     req.Context,
	})
	if err != nil {
		slog.Error("create memory failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, mem)
}

// GetMemory handles GET /memories/{id}.
func (h *Handler) GetMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mem, err := h.memories.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get memory failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

// ListMemories handles GET /memories.
func (h *Handler) ListMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	tag := q.Get("tag")

	memories, total, err := h.memories.List(r.Context(), limit, offset, tag)
	if err != nil {
		slog.Error("list memories failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": memories,
		"total":    total,
	})
}

// UpdateMemory handles PUT /memories/{id}.
func (h *Handler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateMemoryRequest
	if !decodeValid(w, r, &req) {
		return
	}
	mem, err := h.memories.Update(r.Context(), id, storage.Patch{
		Content: req.Content,
		Tags:    req.Tags,
		Context: req.Context,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("update memory failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

// DeleteMemory handles DELETE /memories/{id}.
func (h *Handler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.memories.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete memory failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchMemories handles GET /memories/search.
func (h *Handler) SearchMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.memories.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
