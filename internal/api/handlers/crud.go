package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/gateway"
	"github.com/pgcrud/pgcrud/internal/request"
)

// Handler provides the REST handlers over the dispatch core.
type Handler struct {
	core      *gateway.Dispatcher
	version   string
	commit    string
	buildTime string
}

// Config holds handler build information.
type Config struct {
	Version   string
	Commit    string
	BuildTime string
}

// New creates a Handler.
func New(core *gateway.Dispatcher, cfg Config) *Handler {
	return &Handler{
		core:      core,
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildTime: cfg.BuildTime,
	}
}

func segment(r *http.Request) string {
	return chi.URLParam(r, "table")
}

func key(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// List handles GET /api/{table}
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := request.ParseListParams(r.URL.Query(), h.core.Config().Pagination.DefaultPageSize)
	result, err := h.core.List(r.Context(), auth.TokenFromContext(r.Context()), segment(r), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get handles GET /api/{table}/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	row, err := h.core.Get(r.Context(), auth.TokenFromContext(r.Context()), segment(r), key(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// Create handles POST /api/{table}. A JSON object creates one record; a
// JSON array bulk-creates.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	payload, err := request.DecodeWrite(r.Body, true, h.core.Config().Pagination.MaxBulkRows)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.core.Create(r.Context(), auth.TokenFromContext(r.Context()), segment(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Replace handles PUT /api/{table}/{id}
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "replace")
}

// Patch handles PATCH /api/{table}/{id}
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "patch")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, op string) {
	payload, err := request.DecodeWrite(r.Body, false, h.core.Config().Pagination.MaxBulkRows)
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := h.core.Update(r.Context(), auth.TokenFromContext(r.Context()), segment(r), key(r), payload.Single, op)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// Delete handles DELETE /api/{table}/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	result, err := h.core.Delete(r.Context(), auth.TokenFromContext(r.Context()), segment(r), key(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
