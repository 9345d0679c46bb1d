package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means a required artefact (usually a schema) has not
	// been computed yet.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidInput is returned for empty vectors, non-finite data and
	// zero-row tables handed to a statistical routine.
	ErrInvalidInput = errors.New("invalid input")
	// ErrOverflow marks statistics that leave the float64 range. It is
	// always wrapped together with ErrInvalidInput.
	ErrOverflow = errors.New("numeric overflow")
	// ErrMalformedState marks unreadable persisted state.
	ErrMalformedState = errors.New("malformed persisted state")
	ErrCoercion       = errors.New("coercion failed")
	ErrNoFit          = errors.New("no distribution fitted")
	ErrNotFound       = errors.New("not found")
)

// CoercionError describes the first value a probe could not reinterpret.
// Probes return it as an expected outcome; callers drop the column from the
// probe's candidate set and move on.
type CoercionError struct {
	Probe  string
	Column string
	Row    int
	Value  any
	Reason string
}

func (e *CoercionError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("%s probe: column %q: %s", e.Probe, e.Column, e.Reason)
	}
	return fmt.Sprintf("%s probe: column %q row %d (%v): %s", e.Probe, e.Column, e.Row, e.Value, e.Reason)
}

func (e *CoercionError) Is(target error) bool {
	return target == ErrCoercion
}
