/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these with additional context; the HTTP layer maps
  them to status codes through the helpers at the bottom of this file.

ERROR CATEGORIES:
  1. Lookup errors - unknown or cross-tenant entities
  2. Validation errors - malformed input or rules
  3. Configuration errors - rule sets that cannot be evaluated
  4. Concurrency errors - lock contention, busy database

SEE ALSO:
  - store.go: Uses these errors
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned for missing entities and for entities that
	// belong to another tenant. The two cases are indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a request or rule is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration is returned when rules exist but cannot be evaluated,
	// e.g. a slot-mode service with no slot duration anywhere.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotSlotMode is returned when slots are requested for a time-range service.
	ErrNotSlotMode = errors.New("service does not use slot booking")

	// ErrCapacityExhausted is returned when a booking cannot be admitted.
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrAssignmentRejected is returned when a shift fails validation.
	ErrAssignmentRejected = errors.New("shift assignment rejected")

	// ErrConcurrencyConflict is returned when a lock cannot be acquired in
	// time or the database reports contention. Safe to retry.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrDuplicateID is returned when creating an entity whose ID exists.
	ErrDuplicateID = errors.New("duplicate id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the entity that could not be resolved.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// ValidationError reports a malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports a rule set that cannot be evaluated.
type ConfigurationError struct {
	ServiceID ServiceID
	Setting   string
	Message   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("service %s: %s: %s", e.ServiceID, e.Setting, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotSlotMode) ||
		errors.Is(err, ErrDuplicateID)
}

// IsConflict returns true if the request was well-formed but the current
// schedule does not admit it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCapacityExhausted) ||
		errors.Is(err, ErrAssignmentRejected)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfiguration returns true if the error comes from unusable rules.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
