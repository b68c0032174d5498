/*
engine.go - Public operations of the entitlement ledger

PURPOSE:
  The single entry point callers (the HTTP layer, schedulers) use. Every
  mutating operation commits its store mutation, its usage record and its
  audit event in one transaction: an unaudited mutation never survives.

CONCURRENCY DISCIPLINE:
  - Operations for the same employee serialize on a striped mutex so two
    concurrent deductions cannot both read the same remainder and
    double-spend it.
  - Cross-employee operations share nothing but the audit sequence and run
    in parallel.
  - Lot mutations additionally carry optimistic versions; a sweep and a
    deduction racing on one lot resolve to exactly one winner.

  The stripe array is fixed at 64 entries, hashed by employee ID - a
  bounded structure rather than a growing per-employee map.

SEE ALSO:
  - sweep.go: SweepExpirations
  - report.go, compliance.go: the read-only views the engine exposes
*/
package ledger

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"github.com/jokken79/yukyu-ledger/audit"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config carries the tunable policy knobs. Zero values fall back to the
// statutory defaults in statutory.go.
type Config struct {
	RetentionYears      int
	ExpiryWarningDays   int
	ComplianceThreshold Days
	ObligationFloor     Days
	DefaultPolicy       DeductionPolicy
}

func (c Config) withDefaults() Config {
	if c.RetentionYears <= 0 {
		c.RetentionYears = DefaultRetentionYears
	}
	if c.ExpiryWarningDays <= 0 {
		c.ExpiryWarningDays = DefaultExpiryWarningDays
	}
	if c.ComplianceThreshold.IsZero() {
		c.ComplianceThreshold = DefaultComplianceThreshold()
	}
	if c.ObligationFloor.IsZero() {
		c.ObligationFloor = DefaultObligationFloor()
	}
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = OldestFirst
	}
	return c
}

// =============================================================================
// ENGINE
// =============================================================================

const lockStripes = 64

type lockStripe = sync.Mutex

// Engine exposes the ledger operations over a transactional store.
type Engine struct {
	store    TxStore
	clock    Clock
	cfg      Config
	reporter *Reporter
	monitor  *Monitor

	locks [lockStripes]lockStripe
}

func NewEngine(store TxStore, clock Clock, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		store:    store,
		clock:    clock,
		cfg:      cfg,
		reporter: NewReporter(store, clock, cfg.ExpiryWarningDays),
		monitor:  NewMonitor(store, clock, cfg.ComplianceThreshold, cfg.ObligationFloor),
	}
}

func (e *Engine) employeeLock(id EmployeeID) *lockStripe {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &e.locks[h.Sum32()%lockStripes]
}

// =============================================================================
// GRANT
// =============================================================================

// Grant awards a new lot of days to an employee. The lot's expiry date is
// the grant date plus the retention window. Exactly one lot may exist per
// employee x fiscal year x grant date.
func (e *Engine) Grant(ctx context.Context, employeeID EmployeeID, fiscalYear int, grantDate Date, days Days) (*GrantLot, error) {
	if err := ValidateQuantity(days); err != nil {
		return nil, err
	}

	lot := GrantLot{
		ID:         LotID(uuid.NewString()),
		EmployeeID: employeeID,
		FiscalYear: fiscalYear,
		GrantDate:  grantDate,
		ExpiryDate: grantDate.AddYears(e.cfg.RetentionYears),
		Granted:    days,
		Consumed:   ZeroDays(),
		Expired:    ZeroDays(),
		Status:     LotActive,
		Version:    1,
		CreatedAt:  Today(e.clock),
	}

	err := e.store.WithTx(ctx, func(s Store) error {
		if err := s.CreateLot(ctx, lot); err != nil {
			return err
		}
		trail := audit.NewTrail(s)
		_, err := trail.Append(ctx, audit.Event{
			Timestamp:  e.clock.Now(),
			Type:       audit.EventGrant,
			EmployeeID: string(employeeID),
			Payload: audit.Payload{
				LotID:      string(lot.ID),
				FiscalYear: fiscalYear,
				Date:       grantDate.String(),
				Quantity:   days.String(),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// =============================================================================
// DEDUCT
// =============================================================================

// Deduct takes leave days against the employee's eligible lots in the
// policy's order. All-or-nothing: if the lots cannot cover the full
// quantity, nothing commits.
func (e *Engine) Deduct(ctx context.Context, employeeID EmployeeID, date Date, quantity Days, policy DeductionPolicy) (*UsageEvent, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = e.cfg.DefaultPolicy
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown deduction policy %q", policy)
	}

	mu := e.employeeLock(employeeID)
	mu.Lock()
	defer mu.Unlock()

	lots, err := e.store.ListActiveLots(ctx, employeeID, date)
	if err != nil {
		return nil, err
	}
	plan, err := planAllocations(employeeID, lots, quantity, policy)
	if err != nil {
		return nil, err
	}

	event := UsageEvent{
		ID:         UsageEventID(uuid.NewString()),
		EmployeeID: employeeID,
		Date:       date,
		Quantity:   quantity,
		CreatedAt:  Today(e.clock),
	}
	deltas := make([]audit.AllocationDelta, len(plan))
	for i, pa := range plan {
		event.Allocations = append(event.Allocations, Allocation{LotID: pa.Lot.ID, Amount: pa.Amount})
		deltas[i] = audit.AllocationDelta{LotID: string(pa.Lot.ID), Amount: pa.Amount.String()}
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		for _, pa := range plan {
			if err := s.ApplyConsumption(ctx, pa.Lot.ID, pa.Amount, pa.Lot.Version); err != nil {
				return err
			}
		}
		if err := s.CreateUsageEvent(ctx, event); err != nil {
			return err
		}
		trail := audit.NewTrail(s)
		_, err := trail.Append(ctx, audit.Event{
			Timestamp:  e.clock.Now(),
			Type:       audit.EventDeduct,
			EmployeeID: string(employeeID),
			Payload: audit.Payload{
				UsageEventID: string(event.ID),
				Date:         date.String(),
				Quantity:     quantity.String(),
				Allocations:  deltas,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// =============================================================================
// REVERT
// =============================================================================

// Revert re-credits every lot the usage event touched and records a
// compensating event with negative quantity. The original is marked
// reverted, never deleted - reversal is itself an auditable action.
// Re-credits against a lot that was already swept count as forfeited:
// the retention window has lapsed, so they never become available again.
func (e *Engine) Revert(ctx context.Context, usageEventID UsageEventID) (*UsageEvent, error) {
	original, err := e.store.GetUsageEvent(ctx, usageEventID)
	if err != nil {
		return nil, err
	}

	mu := e.employeeLock(original.EmployeeID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: a concurrent revert may have won.
	original, err = e.store.GetUsageEvent(ctx, usageEventID)
	if err != nil {
		return nil, err
	}
	if original.IsReversal() {
		return nil, ErrNotReversible
	}
	if original.IsReverted() {
		return nil, ErrAlreadyReverted
	}

	reversal := UsageEvent{
		ID:          UsageEventID(uuid.NewString()),
		EmployeeID:  original.EmployeeID,
		Date:        original.Date,
		Quantity:    original.Quantity.Neg(),
		ReferenceID: original.ID,
		CreatedAt:   Today(e.clock),
	}

	deltas := make([]audit.AllocationDelta, 0, len(original.Allocations))
	type credit struct {
		lot    GrantLot
		amount Days
	}
	credits := make([]credit, 0, len(original.Allocations))
	for _, alloc := range original.Allocations {
		lot, err := e.store.GetLot(ctx, alloc.LotID)
		if err != nil {
			return nil, err
		}
		// Bounded re-credit: consumed never goes below zero.
		amount := alloc.Amount.Min(lot.Consumed)
		credits = append(credits, credit{lot: lot, amount: amount})
		reversal.Allocations = append(reversal.Allocations, Allocation{LotID: lot.ID, Amount: amount.Neg()})
		deltas = append(deltas, audit.AllocationDelta{LotID: string(lot.ID), Amount: amount.Neg().String()})
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		for _, c := range credits {
			if !c.amount.IsPositive() {
				continue
			}
			if err := s.ApplyReversal(ctx, c.lot.ID, c.amount, c.lot.Version); err != nil {
				return err
			}
		}
		if err := s.CreateUsageEvent(ctx, reversal); err != nil {
			return err
		}
		if err := s.MarkReverted(ctx, original.ID, reversal.ID); err != nil {
			return err
		}
		trail := audit.NewTrail(s)
		_, err := trail.Append(ctx, audit.Event{
			Timestamp:  e.clock.Now(),
			Type:       audit.EventRevert,
			EmployeeID: string(original.EmployeeID),
			Payload: audit.Payload{
				UsageEventID: string(reversal.ID),
				ReferenceID:  string(original.ID),
				Date:         original.Date.String(),
				Quantity:     reversal.Quantity.String(),
				Allocations:  deltas,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &reversal, nil
}

// =============================================================================
// READ-ONLY VIEWS
// =============================================================================

// Balance returns the pooled summary for one employee and fiscal year.
func (e *Engine) Balance(ctx context.Context, employeeID EmployeeID, fiscalYear int) (BalanceSummary, error) {
	return e.reporter.Balance(ctx, employeeID, fiscalYear)
}

// BalanceBreakdown returns the employee's lots individually, ordered by
// grant date, with expiring-soon flags.
func (e *Engine) BalanceBreakdown(ctx context.Context, employeeID EmployeeID) ([]LotBalance, error) {
	return e.reporter.Breakdown(ctx, employeeID)
}

// CohortBalance pools a fiscal year's entitlement across a set of
// employees.
func (e *Engine) CohortBalance(ctx context.Context, employeeIDs []EmployeeID, fiscalYear int) (BalanceSummary, error) {
	return e.reporter.CohortBalance(ctx, employeeIDs, fiscalYear)
}

// CheckCompliance classifies obligated employees for a fiscal year
// against the configured threshold.
func (e *Engine) CheckCompliance(ctx context.Context, fiscalYear int) ([]ComplianceRecord, error) {
	return e.monitor.CheckCompliance(ctx, fiscalYear)
}

// CheckComplianceWithThreshold classifies against a caller-supplied
// threshold.
func (e *Engine) CheckComplianceWithThreshold(ctx context.Context, fiscalYear int, threshold Days) ([]ComplianceRecord, error) {
	return e.monitor.CheckComplianceWithThreshold(ctx, fiscalYear, threshold)
}

// Recommendation computes the minimum additional usage an employee needs
// this fiscal year.
func (e *Engine) Recommendation(ctx context.Context, employeeID EmployeeID) (Recommendation, error) {
	return e.monitor.Recommend(ctx, employeeID)
}

// VerifyAuditTrail recomputes the audit chain over [fromSeq, toSeq].
func (e *Engine) VerifyAuditTrail(ctx context.Context, fromSeq, toSeq int64) (bool, int64, error) {
	return audit.NewTrail(e.store).Verify(ctx, fromSeq, toSeq)
}

// AuditEvents returns stored audit events for provenance display.
func (e *Engine) AuditEvents(ctx context.Context, fromSeq, toSeq int64) ([]audit.Event, error) {
	return audit.NewTrail(e.store).Events(ctx, fromSeq, toSeq)
}

// UsageHistory returns an employee's usage events, reversals included.
func (e *Engine) UsageHistory(ctx context.Context, employeeID EmployeeID) ([]UsageEvent, error) {
	return e.store.ListUsageEvents(ctx, employeeID)
}
