// Package dberr defines the gateway's taxonomic error kinds and classifies
// native database errors into them. Every error crossing the dispatch
// boundary is one of these kinds; the transport layers map kinds to status
// codes in exactly one place.
package dberr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lib/pq"
)

// Kind is a taxonomic error class with a fixed protocol status.
type Kind string

const (
	KindUnauthenticated  Kind = "unauthenticated"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindValidation       Kind = "validation_failed"
	KindConflict         Kind = "conflict"
	KindUnavailable      Kind = "service_unavailable"
	KindInternal         Kind = "internal_error"
)

// Error is the domain error carried through the dispatch pipeline.
type Error struct {
	Kind    Kind
	Message string
	// Detail and Constraint come from the native database error. They are
	// surfaced to clients only when expose_db_errors is enabled.
	Detail     string
	Constraint string
	// Details carries supplementary validation context, e.g. known columns.
	Details []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a ValidationFailed error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// NotFound builds a NotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// HTTPStatus returns the fixed protocol status for a kind.
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SQLSTATE class and code constants used by the classifier.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	classDataException      = "22"
	classIntegrity          = "23"
)

// Classify maps a native database error to its taxonomic kind. Errors that
// are already *Error pass through unchanged.
func Classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		out := &Error{
			Detail:     pqErr.Detail,
			Constraint: pqErr.Constraint,
		}
		code := string(pqErr.Code)
		switch {
		case code == codeUniqueViolation:
			out.Kind = KindConflict
			out.Message = "Unique constraint violation"
		case code == codeForeignKeyViolation:
			out.Kind = KindValidation
			out.Message = "Foreign key constraint violation"
		case code == codeNotNullViolation:
			out.Kind = KindValidation
			col := pqErr.Column
			if col != "" {
				out.Message = fmt.Sprintf("Column %q must not be null", col)
			} else {
				out.Message = "Null value in non-nullable column"
			}
		case strings.HasPrefix(code, classDataException), strings.HasPrefix(code, classIntegrity):
			out.Kind = KindValidation
			out.Message = "Invalid value: " + pqErr.Message
		default:
			out.Kind = KindInternal
			out.Message = "Database error"
		}
		return out
	}

	return &Error{Kind: KindInternal, Message: "Internal error"}
}
