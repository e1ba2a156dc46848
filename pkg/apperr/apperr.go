package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the API boundary
type Kind string

const (
	KindBadRequest    Kind = "bad_request"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindDuplicate     Kind = "duplicate"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindTransient     Kind = "transient"
	KindInternal      Kind = "internal"
)

// Error is a classified error. Field carries the offending field for
// duplicate and validation errors.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E creates a classified error.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef creates a classified error with a formatted message.
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Duplicate builds a Duplicate error naming the colliding field.
func Duplicate(field string) *Error {
	return &Error{Kind: KindDuplicate, Field: field, Msg: fmt.Sprintf("duplicate value for %s", field)}
}

// NotFound builds a NotFound error for an entity.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Msg: entity + " not found"}
}

// KindOf extracts the kind of err; unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicate, KindQuotaExceeded:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
