/*
store.go - Persistence interfaces for lots, usage events and audit events

PURPOSE:
  Defines the contract between the engine and the database. Grant facts are
  written once; counters move only through version-guarded mutations; the
  audit trail is append-only. Implementations live in store/memory (tests,
  dev) and store/sqlite (production).

OPTIMISTIC CONCURRENCY:
  Every lot mutation presents the version the caller last read. A mismatch
  fails with ErrConcurrentModification and commits nothing. This lets
  deductions against different employees run fully in parallel while a
  sweep and a deduction racing on the same lot resolve to exactly one
  winner.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional view of the whole
  store. The engine uses it to commit the lot mutation, the usage event and
  the audit append together - an audit failure rolls the mutation back,
  never the other way around.

SEE ALSO:
  - engine.go: the only caller of the mutation methods
  - ../store/memory, ../store/sqlite: implementations
*/
package ledger

import (
	"context"

	"github.com/jokken79/yukyu-ledger/audit"
)

// =============================================================================
// LOT STORE
// =============================================================================

// LotStore persists grant lots, keyed by employee x fiscal year x grant
// date. Lots are created once and never deleted.
type LotStore interface {
	// CreateLot persists a new lot. Fails with DuplicateGrantError if a lot
	// already exists for the same employee, fiscal year and grant date.
	CreateLot(ctx context.Context, lot GrantLot) error

	// GetLot returns a lot by ID, or ErrLotNotFound.
	GetLot(ctx context.Context, id LotID) (GrantLot, error)

	// ListLots returns all lots for an employee, ordered by grant date then
	// lot ID.
	ListLots(ctx context.Context, employeeID EmployeeID) ([]GrantLot, error)

	// ListActiveLots returns the employee's lots eligible for deduction as
	// of the given date: active, unexpired, remaining > 0. Same ordering as
	// ListLots.
	ListActiveLots(ctx context.Context, employeeID EmployeeID, asOf Date) ([]GrantLot, error)

	// ListLotsByFiscalYear returns every employee's lots for a fiscal year,
	// ordered by employee ID then grant date. Read path for compliance.
	ListLotsByFiscalYear(ctx context.Context, fiscalYear int) ([]GrantLot, error)

	// ListExpirableLots returns active lots with expiry date <= asOf and
	// remaining > 0, across all employees.
	ListExpirableLots(ctx context.Context, asOf Date) ([]GrantLot, error)

	// ApplyConsumption adds amount to the lot's consumed counter. Fails
	// with OverconsumptionError if consumed would exceed granted, and with
	// ErrConcurrentModification if version doesn't match the stored lot.
	// Transitions status to fully_consumed when consumed reaches granted.
	ApplyConsumption(ctx context.Context, id LotID, amount Days, version int) error

	// ApplyReversal subtracts amount from the consumed counter. Fails with
	// OverconsumptionError if consumed would go below zero. Re-activates a
	// fully consumed lot. Same version semantics as ApplyConsumption.
	ApplyReversal(ctx context.Context, id LotID, amount Days, version int) error

	// ApplyExpiry sets the expired counter (exactly once) and transitions
	// the lot to expired. Fails if the lot is not active.
	ApplyExpiry(ctx context.Context, id LotID, amount Days, version int) error
}

// =============================================================================
// USAGE STORE
// =============================================================================

// UsageStore persists usage events. Events are created and linked, never
// deleted.
type UsageStore interface {
	// CreateUsageEvent persists a new usage event.
	CreateUsageEvent(ctx context.Context, e UsageEvent) error

	// GetUsageEvent returns an event by ID, or ErrUsageEventNotFound.
	GetUsageEvent(ctx context.Context, id UsageEventID) (UsageEvent, error)

	// ListUsageEvents returns all events for an employee, ordered by date
	// then creation.
	ListUsageEvents(ctx context.Context, employeeID EmployeeID) ([]UsageEvent, error)

	// MarkReverted links the original event to its compensating event.
	// Fails with ErrAlreadyReverted if already linked.
	MarkReverted(ctx context.Context, id UsageEventID, revertedBy UsageEventID) error
}

// =============================================================================
// COMPOSED STORE
// =============================================================================

// Store is the full persistence surface the engine operates on.
type Store interface {
	LotStore
	UsageStore
	audit.Store
}

// TxStore adds transactional execution. If fn returns an error the
// transaction is rolled back; otherwise it commits.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
