package paretodb

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when the ledger is missing or has invalid setup.
	ErrConfiguration = errors.New("invalid ledger configuration")

	// ErrConfigurationLocked is returned by Configure once the schema exists.
	ErrConfigurationLocked = errors.New("configuration is locked")

	// ErrSchemaAlreadyExists is returned when the table was already created.
	ErrSchemaAlreadyExists = errors.New("schema already exists")

	// ErrNotActive is returned by data operations before the ledger is active.
	ErrNotActive = errors.New("ledger is not active")

	// ErrClosed is returned after Quit.
	ErrClosed = errors.New("ledger is closed")

	// ErrInterrupted is returned when an operation was cancelled between sections.
	ErrInterrupted = errors.New("operation interrupted")

	// ErrRowNotFound is returned for row ids that do not exist.
	ErrRowNotFound = errors.New("row not found")

	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrMissingObjective is returned when an update carries missing objective values.
	ErrMissingObjective = errors.New("missing objective value")

	// ErrNoCollaborator is returned when an optimizer, predictor or evaluator is required but not set.
	ErrNoCollaborator = errors.New("collaborator not configured")
)

// ConfigurationError describes a rejected configuration value.
type ConfigurationError struct {
	Field  string
	Reason string
	cause  error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrConfiguration, e.cause}
	}
	return []error{ErrConfiguration}
}

// DimensionMismatchError indicates a vector of the wrong length.
type DimensionMismatchError struct {
	Field    string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s: expected %d, got %d", e.Field, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// InterruptedError is returned when a worker operation observed cancellation.
// Status and counters have been corrected by the time it is returned.
//
// It matches ErrInterrupted and the context error that caused it.
type InterruptedError struct {
	Op    string
	Cause error // ctx.Err()
	Err   error // error of the interrupted step, if any
}

func (e *InterruptedError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, e.Cause) {
		return fmt.Sprintf("%s interrupted: %v: %v", e.Op, e.Cause, e.Err)
	}
	return fmt.Sprintf("%s interrupted: %v", e.Op, e.Cause)
}

func (e *InterruptedError) Unwrap() []error {
	errs := []error{ErrInterrupted, e.Cause}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsInterrupted reports whether err is an interruption or a context cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}
