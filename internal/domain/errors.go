package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad matches every LoadError via errors.Is.
	ErrLoad = errors.New("dataset load failed")

	// ErrSchema matches every SchemaError via errors.Is.
	ErrSchema = errors.New("dataset schema mismatch")

	// ErrInvalidSelection reports a user selection outside the accepted domain,
	// e.g. an insurance-zone code outside 0–14.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrNotFound reports an unknown variant, category or zone.
	ErrNotFound = errors.New("not found")
)

// LoadError is returned when a static input file is missing or malformed.
// It is a configuration problem for the operator and is never retried.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// SchemaError is returned when a loaded table lacks a column the pipeline
// depends on.
type SchemaError struct {
	Path   string
	Column string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("missing column %q", e.Column)
	}
	return fmt.Sprintf("%s: missing column %q", e.Path, e.Column)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }
