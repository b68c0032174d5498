/*
errors.go - Centralized error types for the entitlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Business rule violations - surfaced to the end user, never retried
     (duplicate grant, insufficient balance, invalid granularity)
  2. Transient conflicts - the caller retries the whole operation with
     fresh reads (concurrent modification)
  3. Invariant violations - data corruption or programming bugs; the
     operation aborts, nothing is clamped silently (overconsumption)

SEE ALSO:
  - engine.go: where these errors originate
  - store.go: store implementations return the same sentinels
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
	// ErrDuplicateGrant is returned when a lot already exists for the same
	// employee, fiscal year and grant date. A caller decision, not retried.
	ErrDuplicateGrant = errors.New("duplicate grant")

	// ErrInsufficientBalance is returned when a deduction exceeds the total
	// remainder of all eligible lots. Nothing is committed.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidGranularity is returned when a quantity is not a positive
	// multiple of half a day.
	ErrInvalidGranularity = errors.New("quantity must be a positive multiple of 0.5 days")

	// ErrOverconsumption is returned when a mutation would push a lot past
	// its granted quantity or below zero. This indicates a bug or corrupted
	// data; it is never clamped.
	ErrOverconsumption = errors.New("overconsumption: lot invariant violated")

	// ErrConcurrentModification is returned when optimistic locking detects
	// a version conflict. Transient: retry with fresh reads.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLotNotFound is returned when a referenced lot doesn't exist.
	ErrLotNotFound = errors.New("grant lot not found")

	// ErrUsageEventNotFound is returned when a referenced usage event
	// doesn't exist.
	ErrUsageEventNotFound = errors.New("usage event not found")

	// ErrAlreadyReverted is returned when reverting a usage event that
	// already has a compensating event.
	ErrAlreadyReverted = errors.New("usage event already reverted")

	// ErrNotReversible is returned when trying to revert a reversal.
	ErrNotReversible = errors.New("reversal events cannot be reverted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateGrantError reports which composite key collided.
type DuplicateGrantError struct {
	EmployeeID EmployeeID
	FiscalYear int
	GrantDate  Date
}

func (e *DuplicateGrantError) Error() string {
	return fmt.Sprintf("duplicate grant: %s already has a lot for fiscal year %d granted %s",
		e.EmployeeID, e.FiscalYear, e.GrantDate)
}

func (e *DuplicateGrantError) Unwrap() error { return ErrDuplicateGrant }

// InsufficientBalanceError details a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Available  Days
	Requested  Days
	Shortfall  Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %s, requested %s, shortfall %s",
		e.EmployeeID, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// OverconsumptionError details a lot invariant violation.
type OverconsumptionError struct {
	LotID     LotID
	Granted   Days
	Consumed  Days
	Requested Days
}

func (e *OverconsumptionError) Error() string {
	return fmt.Sprintf("overconsumption on lot %s: granted %s, consumed %s, requested %s",
		e.LotID, e.Granted, e.Consumed, e.Requested)
}

func (e *OverconsumptionError) Unwrap() error { return ErrOverconsumption }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateGrant) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidGranularity) ||
		errors.Is(err, ErrAlreadyReverted) ||
		errors.Is(err, ErrNotReversible)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLotNotFound) ||
		errors.Is(err, ErrUsageEventNotFound)
}
