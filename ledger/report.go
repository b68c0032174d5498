/*
report.go - Read-only balance aggregation

PURPOSE:
  Aggregates grant lots into granted/used/expired/available views: pooled
  per employee and fiscal year, per lot (the basis for "expiring soon"
  warnings), and pooled across a cohort of employees. Everything here is a
  pure fold over store reads; nothing mutates.

INVARIANT:
  granted == used + expired + available, exactly, at all times.
*/
package ledger

import "context"

// =============================================================================
// BALANCE SUMMARY - Pooled view
// =============================================================================

// BalanceSummary is the pooled entitlement view for one scope (an
// employee-year, or a cohort-year).
type BalanceSummary struct {
	Granted   Days
	Used      Days
	Expired   Days
	Available Days
}

func (b BalanceSummary) add(lot GrantLot) BalanceSummary {
	b.Granted = b.Granted.Add(lot.Granted)
	b.Used = b.Used.Add(lot.Consumed)
	b.Expired = b.Expired.Add(lot.Expired)
	b.Available = b.Granted.Sub(b.Used).Sub(b.Expired)
	return b
}

func emptySummary() BalanceSummary {
	return BalanceSummary{
		Granted:   ZeroDays(),
		Used:      ZeroDays(),
		Expired:   ZeroDays(),
		Available: ZeroDays(),
	}
}

// =============================================================================
// LOT BALANCE - Per-lot breakdown
// =============================================================================

// LotBalance is one row of a per-lot breakdown, ordered by grant date so
// callers can see exactly which lot expires next and how much of it is
// unused.
type LotBalance struct {
	Lot          GrantLot
	Remaining    Days
	ExpiringSoon bool
}

// =============================================================================
// REPORTER
// =============================================================================

// Reporter serves balance views over the lot store.
type Reporter struct {
	store       LotStore
	clock       Clock
	warningDays int
}

func NewReporter(store LotStore, clock Clock, warningDays int) *Reporter {
	if warningDays <= 0 {
		warningDays = DefaultExpiryWarningDays
	}
	return &Reporter{store: store, clock: clock, warningDays: warningDays}
}

// Balance returns the pooled summary for an employee's lots of one fiscal
// year.
func (r *Reporter) Balance(ctx context.Context, employeeID EmployeeID, fiscalYear int) (BalanceSummary, error) {
	lots, err := r.store.ListLots(ctx, employeeID)
	if err != nil {
		return BalanceSummary{}, err
	}

	summary := emptySummary()
	for _, lot := range lots {
		if lot.FiscalYear == fiscalYear {
			summary = summary.add(lot)
		}
	}
	return summary, nil
}

// Breakdown returns the employee's lots individually, ordered by grant
// date, with expiring-soon flags against the reporter's warning horizon.
func (r *Reporter) Breakdown(ctx context.Context, employeeID EmployeeID) ([]LotBalance, error) {
	lots, err := r.store.ListLots(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	today := Today(r.clock)
	rows := make([]LotBalance, len(lots))
	for i, lot := range lots {
		rows[i] = LotBalance{
			Lot:          lot,
			Remaining:    lot.Remaining(),
			ExpiringSoon: lot.ExpiringSoon(today, r.warningDays),
		}
	}
	return rows, nil
}

// CohortBalance pools one fiscal year's lots across a set of employees
// (a factory, a department - membership is the caller's concern).
func (r *Reporter) CohortBalance(ctx context.Context, employeeIDs []EmployeeID, fiscalYear int) (BalanceSummary, error) {
	summary := emptySummary()
	for _, id := range employeeIDs {
		lots, err := r.store.ListLots(ctx, id)
		if err != nil {
			return BalanceSummary{}, err
		}
		for _, lot := range lots {
			if lot.FiscalYear == fiscalYear {
				summary = summary.add(lot)
			}
		}
	}
	return summary, nil
}
