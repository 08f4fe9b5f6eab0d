// Package auth implements the stateless credential system. Tokens are
// derived from a master secret by keyed hashing; the per-namespace claims
// segment is covered by the MAC, so permissions cannot be stripped or
// augmented without re-signing.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TokenPrefix identifies gateway tokens.
const TokenPrefix = "pgcrud_"

// ErrInvalidToken is returned on any verification failure. No further
// detail is exposed.
var ErrInvalidToken = errors.New("invalid token")

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validModes are the permitted access modes of a claims entry.
var validModes = map[string]bool{"r": true, "w": true, "rw": true}

// Token is a verified credential: a label plus optional scoped claims.
// Nil Claims denotes the legacy full-access form.
type Token struct {
	Label  string
	Claims Claims
}

// FullAccess reports whether the token carries no claims segment and thus
// permits every operation.
func (t *Token) FullAccess() bool {
	return t == nil || t.Claims == nil
}

// Mint derives a token from the master secret. Claims may be nil for the
// legacy full-access form; a non-nil claims map must have at least one
// well-formed entry.
func Mint(secret []byte, label string, claims Claims) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("master secret is empty")
	}
	if !labelPattern.MatchString(label) {
		return "", fmt.Errorf("label %q must match [A-Za-z0-9_-]+", label)
	}

	data := label
	if claims != nil {
		if err := claims.validate(); err != nil {
			return "", err
		}
		data += ":" + base64.RawURLEncoding.EncodeToString(claims.canonicalJSON())
	}

	return TokenPrefix + data + "." + macHex(secret, data), nil
}

// Verify checks a presented token and returns its parsed form. The MAC is
// recomputed over the data segment and compared in constant time; any
// failure yields ErrInvalidToken.
func Verify(secret []byte, token string) (*Token, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidToken
	}
	data, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok {
		return nil, ErrInvalidToken
	}

	dot := strings.LastIndexByte(data, '.')
	if dot < 0 {
		return nil, ErrInvalidToken
	}
	data, macPart := data[:dot], data[dot+1:]

	presented, err := hex.DecodeString(macPart)
	if err != nil {
		return nil, ErrInvalidToken
	}
	expected := macSum(secret, data)
	if !hmac.Equal(presented, expected) {
		return nil, ErrInvalidToken
	}

	label, encoded, scoped := strings.Cut(data, ":")
	if !labelPattern.MatchString(label) {
		return nil, ErrInvalidToken
	}
	if !scoped {
		return &Token{Label: label}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, err := parseClaims(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Token{Label: label, Claims: claims}, nil
}

func macSum(secret []byte, data string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func macHex(secret []byte, data string) string {
	return hex.EncodeToString(macSum(secret, data))
}
