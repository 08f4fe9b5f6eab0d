package handlers

import (
	"net/http"

	"github.com/pgcrud/pgcrud/internal/auth"
)

// HealthResponse is the health endpoint payload. The augmented fields are
// present only for authenticated callers (or when auth is disabled).
type HealthResponse struct {
	Status         string   `json:"status"`
	Version        string   `json:"version"`
	BuildGitHash   string   `json:"build_git_hash"`
	BuildTimestamp string   `json:"build_timestamp"`
	DatabaseHash   string   `json:"database_hash,omitempty"`
	Tables         int      `json:"tables,omitempty"`
	Namespaces     []string `json:"namespaces,omitempty"`
}

// Health handles GET /api/_health. The route is public; a valid credential
// augments the response with the model digest and counts. A failed database
// probe reports unhealthy with 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "healthy",
		Version:        h.version,
		BuildGitHash:   h.commit,
		BuildTimestamp: h.buildTime,
	}

	if err := h.core.Probe(r.Context()); err != nil {
		resp.Status = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	cfg := h.core.Config()
	authorized := !cfg.Auth.Enabled
	if !authorized {
		if cred := auth.CredentialFromRequest(r); cred != "" {
			if _, err := auth.Verify([]byte(cfg.Auth.Secret), cred); err == nil {
				authorized = true
			}
		}
	}
	if authorized {
		model := h.core.Model()
		resp.DatabaseHash = model.Hash()
		resp.Tables = len(model.Entities)
		resp.Namespaces = model.Namespaces
	}

	writeJSON(w, http.StatusOK, resp)
}
