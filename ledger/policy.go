/*
policy.go - Deduction ordering policies

PURPOSE:
  Decides which lots absorb a deduction first when several overlap. The
  conservative statutory reading uses the oldest (soonest-to-expire) lot
  first to minimize forfeiture; some employers prefer newest-first to
  preserve older balances for carry-over reporting. The order is a policy,
  not a hardcoded assumption.
*/
package ledger

import "sort"

// =============================================================================
// DEDUCTION POLICY
// =============================================================================

type DeductionPolicy string

const (
	// OldestFirst consumes lots FIFO by grant date. Default: uses the
	// soonest-to-expire days first, minimizing forfeiture.
	OldestFirst DeductionPolicy = "oldest_first"

	// NewestFirst consumes lots LIFO by grant date.
	NewestFirst DeductionPolicy = "newest_first"
)

// Valid reports whether the policy is one the engine supports.
func (p DeductionPolicy) Valid() bool {
	return p == OldestFirst || p == NewestFirst
}

// OrderLots sorts lots into the policy's consumption order. Ties on grant
// date break on lot ID so repeated runs over the same lots allocate
// identically.
func (p DeductionPolicy) OrderLots(lots []GrantLot) []GrantLot {
	ordered := make([]GrantLot, len(lots))
	copy(ordered, lots)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.GrantDate.Equal(b.GrantDate) {
			if p == NewestFirst {
				return a.GrantDate.After(b.GrantDate)
			}
			return a.GrantDate.Before(b.GrantDate)
		}
		return a.ID < b.ID
	})
	return ordered
}
