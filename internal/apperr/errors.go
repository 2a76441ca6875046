// Package apperr defines the error kinds shared by the catalog core.
// Callers wrap one of the sentinels with context and match with errors.Is.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)

// Validation returns an ErrValidation carrying a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound for the given kind and identifier.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// Forbidden returns an ErrForbidden for the given artifact.
func Forbidden(artifactID string) error {
	return fmt.Errorf("%w: artifact %q", ErrForbidden, artifactID)
}

// Conflict returns an ErrConflict carrying a formatted message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Unavailable wraps a storage failure so callers can retry with backoff.
// A context deadline is reported the same way.
func Unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out", ErrUnavailable, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Status maps an error to the HTTP status used by the API.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
