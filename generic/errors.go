/*
errors.go - Centralized error types for the dues engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores return these; the calculator passes them through untouched;
  the API maps them to HTTP status codes.

ERROR CATEGORIES:
  1. Not found - A keyed record is missing (club settings, member, ...)
  2. Validation - Bad input rejected at the data-entry boundary
  3. Upstream - Database/network failures, wrapped once by the store

USAGE:
    entries, err := calc.DueYears(ctx, memberID)
    if generic.IsNotFound(err) {
        // 404
    }

SEE ALSO:
  - store.go: Interfaces that return these errors
  - factory/settings.go: Produces ValidationError and InvalidPeriodError
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
	// ErrClubSettingsNotFound means the singleton settings row was never
	// written. The liability table cannot be computed without it.
	ErrClubSettingsNotFound = errors.New("club settings not found")

	// ErrMemberNotFound is returned when a referenced member doesn't exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrFeeSettingsNotFound is returned when a member has no fee overrides.
	// Callers that can fall back to the member record treat it as "absent".
	ErrFeeSettingsNotFound = errors.New("member fee settings not found")

	// ErrPaymentNotFound is returned when no payment exists for (member, year).
	ErrPaymentNotFound = errors.New("fee payment not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrValidation is returned when input fails field validation.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StoreError wraps a driver or network failure with the store operation
// that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ValidationError reports one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidPeriodError carries the rejected period.
type InvalidPeriodError struct {
	Period Period
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %s: start and end are required and end must not precede start", e.Period)
}

func (e *InvalidPeriodError) Unwrap() error {
	return ErrInvalidPeriod
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClubSettingsNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrFeeSettingsNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsUpstream returns true if the error came from the storage layer.
func IsUpstream(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
