/*
deduction.go - Allocation planning for deductions

PURPOSE:
  Given the eligible lots and a requested quantity, produce the ordered
  list of (lot, amount) allocations that cover it, or fail without side
  effects. The plan is pure: committing it is the engine's job.

ALGORITHM:
  Iterate lots in policy order; at each lot take
  min(lot remaining, outstanding); stop when outstanding reaches zero.
  If the lots cannot cover the full quantity the whole plan fails -
  no partial deduction is ever committed.
*/
package ledger

// plannedAllocation pairs an allocation with the lot version it was
// planned against, so the commit can use CAS semantics.
type plannedAllocation struct {
	Lot    GrantLot
	Amount Days
}

// ValidateQuantity checks the half-day granularity rule shared by grants
// and deductions.
func ValidateQuantity(q Days) error {
	if !q.IsPositive() || !q.HalfDayAligned() {
		return ErrInvalidGranularity
	}
	return nil
}

// planAllocations selects lots to cover quantity in policy order. Returns
// InsufficientBalanceError if the eligible lots cannot cover it.
func planAllocations(employeeID EmployeeID, lots []GrantLot, quantity Days, policy DeductionPolicy) ([]plannedAllocation, error) {
	outstanding := quantity
	var plan []plannedAllocation

	for _, lot := range policy.OrderLots(lots) {
		if outstanding.IsZero() {
			break
		}
		take := lot.Remaining().Min(outstanding)
		if !take.IsPositive() {
			continue
		}
		plan = append(plan, plannedAllocation{Lot: lot, Amount: take})
		outstanding = outstanding.Sub(take)
	}

	if !outstanding.IsZero() {
		available := quantity.Sub(outstanding)
		return nil, &InsufficientBalanceError{
			EmployeeID: employeeID,
			Available:  available,
			Requested:  quantity,
			Shortfall:  outstanding,
		}
	}
	return plan, nil
}
