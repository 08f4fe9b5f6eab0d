// Package handlers provides the REST request handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pgcrud/pgcrud/internal/dberr"
)

// ErrorResponse is the wire shape of every error.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	Detail     string   `json:"detail,omitempty"`
	Constraint string   `json:"constraint,omitempty"`
	Details    []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError serializes a pipeline error. Anything that is not a taxonomic
// error is treated as internal.
func writeError(w http.ResponseWriter, err error) {
	var e *dberr.Error
	if !errors.As(err, &e) {
		e = &dberr.Error{Kind: dberr.KindInternal, Message: "Internal error"}
	}
	writeJSON(w, dberr.HTTPStatus(e.Kind), ErrorResponse{
		Error:      string(e.Kind),
		Message:    e.Message,
		Detail:     e.Detail,
		Constraint: e.Constraint,
		Details:    e.Details,
	})
}
