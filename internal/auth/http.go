package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// tokenContextKey stores the verified token on the request context.
const tokenContextKey contextKey = "pgcrud_token"

// CredentialFromRequest extracts the presented token from the request
// headers. Authorization: Bearer wins over X-API-Key; first match applies.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// WithToken attaches a verified token to the context.
func WithToken(ctx context.Context, t *Token) context.Context {
	return context.WithValue(ctx, tokenContextKey, t)
}

// TokenFromContext returns the verified token, or nil when auth is disabled
// (nil means full access).
func TokenFromContext(ctx context.Context) *Token {
	if t, ok := ctx.Value(tokenContextKey).(*Token); ok {
		return t
	}
	return nil
}
