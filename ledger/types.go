/*
Package ledger implements the fiscal-year paid-leave entitlement engine.

PURPOSE:
  Tracks discrete grant lots of paid-leave days per employee, deducts usage
  against those lots in a deterministic order, forfeits unused remainder
  after the statutory retention window, and reports balances and legal
  compliance. Every mutation is recorded in a hash-chained audit trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: a decimal day quantity with half-day granularity
  - GrantLot: one batch of days awarded on one date, expiring independently
  - UsageEvent: one deduction (or its reversal) with per-lot allocations
  - LotStatus: the lot lifecycle (active -> expired / fully consumed)

DESIGN PRINCIPLES:
  1. Immutability: grant facts never change; usage is reversed, not edited
  2. Precision: decimal.Decimal everywhere, no floating-point drift
  3. Type safety: distinct ID types prevent mixing employees and lots
  4. Auditability: every mutation carries provenance into the audit trail

SEE ALSO:
  - engine.go: public operations (Grant, Deduct, Revert, ...)
  - store.go: persistence interfaces
  - ../audit: hash-chained audit trail
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Decimal day quantity (half-day granularity)
// =============================================================================

// Days is a quantity of leave days. All arithmetic stays in decimal to keep
// the conservation invariant exact: granted == used + expired + available.
type Days struct {
	Value decimal.Decimal
}

func NewDays(v float64) Days      { return Days{Value: decimal.NewFromFloat(v)} }
func NewDaysFromInt(v int) Days   { return Days{Value: decimal.NewFromInt(int64(v))} }
func ZeroDays() Days              { return Days{Value: decimal.Zero} }

// ParseDays parses a decimal day quantity from its string form.
func ParseDays(s string) (Days, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Days{}, err
	}
	return Days{Value: d}, nil
}

func (d Days) Add(o Days) Days          { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days          { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) Neg() Days                { return Days{Value: d.Value.Neg()} }
func (d Days) IsZero() bool             { return d.Value.IsZero() }
func (d Days) IsNegative() bool         { return d.Value.IsNegative() }
func (d Days) IsPositive() bool         { return d.Value.IsPositive() }
func (d Days) Equal(o Days) bool        { return d.Value.Equal(o.Value) }
func (d Days) GreaterThan(o Days) bool  { return d.Value.GreaterThan(o.Value) }
func (d Days) LessThan(o Days) bool     { return d.Value.LessThan(o.Value) }
func (d Days) GreaterOrEqual(o Days) bool { return d.Value.GreaterThanOrEqual(o.Value) }

func (d Days) Min(o Days) Days {
	if d.LessThan(o) {
		return d
	}
	return o
}

// HalfDayAligned reports whether the quantity is a multiple of 0.5.
func (d Days) HalfDayAligned() bool {
	return d.Value.Mul(decimal.NewFromInt(2)).IsInteger()
}

func (d Days) String() string { return d.Value.String() }

// Float64 is for display layers only; the engine never computes on floats.
func (d Days) Float64() float64 {
	f, _ := d.Value.Float64()
	return f
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LotID string
type UsageEventID string

// =============================================================================
// GRANT LOT - One batch of days awarded on one date
// =============================================================================

type LotStatus string

const (
	// LotActive: the lot still holds usable days.
	LotActive LotStatus = "active"

	// LotExpired: the retention window elapsed; the unused remainder was
	// forfeited by the sweep. Terminal.
	LotExpired LotStatus = "expired"

	// LotFullyConsumed: every granted day was used. Terminal unless a
	// reversal re-credits the lot.
	LotFullyConsumed LotStatus = "fully_consumed"
)

// GrantLot is a single batch of paid-leave days awarded to an employee.
// Each lot expires independently, RetentionYears after its grant date.
//
// Grant facts (EmployeeID, FiscalYear, GrantDate, ExpiryDate, GrantedDays)
// are immutable. ConsumedDays moves only through Deduct/Revert, ExpiredDays
// is written exactly once by the expiration sweep. Lots are never deleted;
// terminal lots are retained indefinitely for audit.
type GrantLot struct {
	ID         LotID
	EmployeeID EmployeeID
	FiscalYear int
	GrantDate  Date
	ExpiryDate Date
	Granted    Days
	Consumed   Days
	Expired    Days
	Status     LotStatus

	// Version is the optimistic concurrency counter. Every mutation must
	// present the version it read; a mismatch fails with
	// ErrConcurrentModification.
	Version int

	CreatedAt Date
}

// Remaining returns the usable balance of the lot.
func (l *GrantLot) Remaining() Days {
	return l.Granted.Sub(l.Consumed).Sub(l.Expired)
}

// EligibleAt reports whether the lot can absorb a deduction as of a date:
// active, unexpired, with a positive remainder.
func (l *GrantLot) EligibleAt(asOf Date) bool {
	return l.Status == LotActive &&
		asOf.Before(l.ExpiryDate) &&
		l.Remaining().IsPositive()
}

// ExpiringSoon reports whether the lot expires within the horizon and still
// holds unused days. Derived, never persisted.
func (l *GrantLot) ExpiringSoon(asOf Date, horizonDays int) bool {
	if l.Status != LotActive || !l.Remaining().IsPositive() {
		return false
	}
	return l.ExpiryDate.BeforeOrEqual(asOf.AddDays(horizonDays)) && asOf.Before(l.ExpiryDate)
}

// =============================================================================
// USAGE EVENT - One deduction, or its compensating reversal
// =============================================================================

// Allocation records how much of a usage event one lot absorbed.
type Allocation struct {
	LotID  LotID
	Amount Days
}

// UsageEvent records a single leave deduction. Allocations sum exactly to
// Quantity. A reversal is a new UsageEvent with negated quantity and
// ReferenceID pointing at the original; the original is marked via
// RevertedBy, never deleted.
type UsageEvent struct {
	ID          UsageEventID
	EmployeeID  EmployeeID
	Date        Date
	Quantity    Days
	Allocations []Allocation

	// ReferenceID links a reversal back to the event it compensates.
	ReferenceID UsageEventID

	// RevertedBy is set on the original when a reversal is recorded.
	RevertedBy UsageEventID

	CreatedAt Date
}

// IsReversal reports whether this event compensates another.
func (e *UsageEvent) IsReversal() bool { return e.ReferenceID != "" }

// IsReverted reports whether this event has been compensated.
func (e *UsageEvent) IsReverted() bool { return e.RevertedBy != "" }
