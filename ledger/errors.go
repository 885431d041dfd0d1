/*
errors.go - Centralized error taxonomy for the ledger engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Domain packages (invest, funding) wrap these with additional context.

ERROR CATEGORIES:
  1. Validation errors - amount out of bounds, missing fields. Recoverable,
     surfaced to the caller for correction, never retried automatically.
  2. InsufficientFunds - a debit would drive the balance negative. Hard
     error, never silently clamped.
  3. InvalidStateTransition - acting on a non-pending deposit/withdrawal or
     a non-eligible investment. A race or stale client view; surfaced as a
     conflict.
  4. NotFound - referenced plan/investment/deposit/withdrawal absent.
  5. UpstreamUnavailable - pricing collaborator failure. Blocks the
     operation that needed the rate.

USAGE:
  Domain packages wrap these errors:

    if errors.Is(err, ledger.ErrInsufficientFunds) {
        // settle failed, whole operation rolls back
    }

SEE ALSO:
  - balance.go: Raises ErrInsufficientFunds
  - funding/deposit.go, funding/withdrawal.go: Raise state-transition errors
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientFunds is returned when a debit would drive a balance
	// negative. Never clamped to zero: a negative balance is an accounting
	// bug, not a state to paper over.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrValidation is the root of all input-validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidStateTransition is returned when acting on a record that is
	// not in the required state (e.g. confirming an already-confirmed
	// deposit). Indicates a race or a stale client view.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable is returned when a collaborator (pricing) fails
	// or returns an unusable value.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrDuplicateIdempotencyKey is returned when a ledger entry with the
	// same idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrStoreRequired is returned when an operation needs an extended store
	// interface the configured store does not provide.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	UserID    UserID
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: available %s, requested %s",
		e.UserID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// ValidationError names the violated rule so the caller can correct it.
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

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateTransitionError records which transition was attempted on what.
type StateTransitionError struct {
	Entity    string // "deposit", "withdrawal", "investment"
	ID        string
	From      string
	Attempted string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s %s is %s, cannot %s", e.Entity, e.ID, e.From, e.Attempted)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsConflict returns true for stale-view errors: the caller should refresh
// and retry manually, not auto-retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUpstream returns true if a collaborator failed; callers should surface
// "try again shortly".
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
