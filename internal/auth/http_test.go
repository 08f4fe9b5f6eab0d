package auth

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestCredentialFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/users", nil)
	if got := CredentialFromRequest(r); got != "" {
		t.Errorf("no headers should yield empty credential, got %q", got)
	}

	r.Header.Set("X-API-Key", "pgcrud_key")
	if got := CredentialFromRequest(r); got != "pgcrud_key" {
		t.Errorf("got %q", got)
	}

	// Bearer wins over X-API-Key.
	r.Header.Set("Authorization", "Bearer pgcrud_bearer")
	if got := CredentialFromRequest(r); got != "pgcrud_bearer" {
		t.Errorf("got %q", got)
	}

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := CredentialFromRequest(r); got != "pgcrud_key" {
		t.Errorf("non-bearer authorization should fall through to X-API-Key, got %q", got)
	}
}

func TestTokenContext(t *testing.T) {
	if tok := TokenFromContext(context.Background()); tok != nil {
		t.Error("empty context should yield nil token")
	}

	want := &Token{Label: "x"}
	ctx := WithToken(context.Background(), want)
	if got := TokenFromContext(ctx); got != want {
		t.Error("token not round-tripped through context")
	}
}
