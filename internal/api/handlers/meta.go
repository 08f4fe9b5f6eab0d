package handlers

import (
	"net/http"

	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/surface"
)

// MetaTables handles GET /api/_meta/tables. The listing hides tables the
// credential cannot read.
func (h *Handler) MetaTables(w http.ResponseWriter, r *http.Request) {
	tok := auth.TokenFromContext(r.Context())
	writeJSON(w, http.StatusOK, surface.AccessibleTables(h.core.Model(), tok))
}

// MetaTable handles GET /api/_meta/tables/{table}.
func (h *Handler) MetaTable(w http.ResponseWriter, r *http.Request) {
	tok := auth.TokenFromContext(r.Context())
	desc, err := h.core.Describe(tok, segment(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// Schema handles GET /api/_schema: the canonical model dump plus the API
// capabilities envelope.
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	tok := auth.TokenFromContext(r.Context())
	writeJSON(w, http.StatusOK, surface.Dump(h.core.Model(), tok, h.core.Config()))
}

// SchemaTable handles GET /api/_schema/{table}.
func (h *Handler) SchemaTable(w http.ResponseWriter, r *http.Request) {
	h.MetaTable(w, r)
}
