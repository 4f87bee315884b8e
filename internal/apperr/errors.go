// Package apperr defines the sentinel errors shared across contextpad.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrStorage marks a local draft failure (quota exceeded, serialization).
	ErrStorage = errors.New("local storage failure")
	// ErrNetwork marks a failed call to the backend or the analysis service.
	ErrNetwork = errors.New("network failure")
	// ErrQuotaExceeded is returned when the analysis service refuses more searches.
	ErrQuotaExceeded   = errors.New("search quota exceeded")
	ErrInvalidDocument = errors.New("invalid document")
	ErrClosed          = errors.New("session closed")
)
