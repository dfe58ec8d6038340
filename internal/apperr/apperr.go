// Package apperr defines the error taxonomy shared by the project setup
// components. Callers wrap these sentinels with eris and classify with errors.Is.
package apperr

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrLocationNotFound means every geocoding source was exhausted.
	ErrLocationNotFound = eris.New("location not found")

	// ErrProviderUnavailable covers missing credentials, quota errors and non-2xx replies.
	ErrProviderUnavailable = eris.New("provider unavailable")

	// ErrParcelFetchFailed means the spatial parcel source could not answer a bbox query.
	ErrParcelFetchFailed = eris.New("parcel fetch failed")

	// ErrValidationFailed blocks a single user action, e.g. confirming an empty selection.
	ErrValidationFailed = eris.New("validation failed")

	// ErrPersistenceFailed means the boundary could not be saved or loaded.
	ErrPersistenceFailed = eris.New("persistence failed")

	// ErrSuperseded marks a parcel response for a viewport that is no longer current.
	ErrSuperseded = eris.New("superseded by a newer viewport")

	// ErrMissingBusinessKey marks parcel data without an assessor parcel number.
	ErrMissingBusinessKey = eris.New("parcel has no business key")
)

// ValidationError blocks one action with a human-readable reason. It matches
// ErrValidationFailed under errors.Is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Validation returns a ValidationError carrying reason.
func Validation(reason string) error {
	return &ValidationError{Reason: reason}
}

// Reason returns the human-readable message for err. Validation failures yield
// their bare reason; other errors their full message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return err.Error()
}

