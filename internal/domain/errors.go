package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNonFinite marks a NaN or infinite coordinate, magnitude or metric.
	ErrNonFinite = errors.New("non-finite value")

	// ErrDuplicateCity marks a city whose name already appeared in the run.
	ErrDuplicateCity = errors.New("duplicate city name")
)

// MissingFieldError reports a required attribute with no safe default.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Row kinds used in RowError.
const (
	KindQuake = "quake"
	KindCity  = "city"
)

// RowError is a per-row failure collected during a batch. It never aborts
// processing of the remaining rows.
type RowError struct {
	Kind string
	Key  string
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Key, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Reason returns a short machine-readable label for metrics and logs.
func (e RowError) Reason() string {
	var missing *MissingFieldError
	switch {
	case errors.As(e.Err, &missing):
		return "missing_" + missing.Field
	case errors.Is(e.Err, ErrNonFinite):
		return "non_finite"
	case errors.Is(e.Err, ErrDuplicateCity):
		return "duplicate"
	default:
		return "invalid"
	}
}
