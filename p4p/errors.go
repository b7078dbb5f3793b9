/*
errors.go - Centralized error types for the pay engine

ERROR CATEGORIES:
  1. Configuration errors - no active config, or more than one. Fatal to the
     job's calculation; nothing is written.
  2. Not-found errors - job, assignment, employee missing. Fatal to the
     calculation; nothing is written.
  3. Validation errors - malformed records rejected at the boundary.

  Data-integrity problems (zero jobsite hours on a completed job, zero total
  hours at reconciliation) are NOT errors. They come back as Result.Warnings
  with a skipped outcome so bulk recalculation keeps going.

USAGE:
  if errors.Is(err, p4p.ErrConfigNotFound) { ... }

  var cfgErr *p4p.ConfigError
  if errors.As(err, &cfgErr) { log(cfgErr.JobType) }
*/
package p4p

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfigNotFound: no active configuration for the job type.
	ErrConfigNotFound = errors.New("no active p4p configuration")

	// ErrAmbiguousConfig: more than one active configuration for the job type.
	ErrAmbiguousConfig = errors.New("multiple active p4p configurations")

	ErrJobNotFound        = errors.New("job not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrIncidentNotFound   = errors.New("incident not found")

	// ErrDuplicateAssignment: the employee already has an assignment on the job.
	ErrDuplicateAssignment = errors.New("employee already assigned to job")

	// ErrAlreadyCompleted: CompletedAt is set exactly once.
	ErrAlreadyCompleted = errors.New("job already completed")

	// ErrInvalid is the parent of every ValidationError.
	ErrInvalid = errors.New("invalid record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigError names the job type whose configuration lookup failed.
type ConfigError struct {
	JobType string
	Active  int // number of active configurations found
}

func (e *ConfigError) Error() string {
	if e.Active == 0 {
		return fmt.Sprintf("no active p4p configuration for job type %q", e.JobType)
	}
	return fmt.Sprintf("%d active p4p configurations for job type %q, expected exactly one", e.Active, e.JobType)
}

func (e *ConfigError) Unwrap() error {
	if e.Active == 0 {
		return ErrConfigNotFound
	}
	return ErrAmbiguousConfig
}

// FieldError is one failed field check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field problem of one record.
type ValidationError struct {
	Entity string
	ID     string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	if e.ID != "" {
		return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.ID, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrIncidentNotFound)
}

// IsConfigError returns true for missing or ambiguous configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfigNotFound) || errors.Is(err, ErrAmbiguousConfig)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrDuplicateAssignment) ||
		errors.Is(err, ErrAlreadyCompleted)
}
