// Package apperr holds the error kinds shared by the tips services and the
// HTTP layer. Services wrap one of the sentinels with context:
//
//	fmt.Errorf("%w: waiter %s has no payment account", apperr.ErrNotFound, id)
//
// and handlers map them to status codes with Status.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrProvider    = errors.New("payment provider error")
	ErrNotReady    = errors.New("payment account not ready")
	ErrRateLimited = errors.New("rate limited")
	// ErrConflict is returned when a concurrent write won a compare-and-swap.
	ErrConflict = errors.New("conflict")
)

// Status maps an error to the HTTP status the API answers with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrProvider):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code is a short machine-readable name for the error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrProvider):
		return "provider_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// Message is the text shown to API callers. Unexpected errors are hidden;
// known kinds keep their wrapped context (provider text included).
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal error"
	}
	msg := err.Error()
	// "validation error: amount must be ..." reads better without the kind prefix
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrProvider, ErrNotReady, ErrRateLimited, ErrConflict} {
		if p := kind.Error() + ": "; strings.HasPrefix(msg, p) {
			return strings.TrimPrefix(msg, p)
		}
	}
	return msg
}
