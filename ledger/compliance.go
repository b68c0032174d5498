/*
compliance.go - Minimum-usage compliance monitoring

PURPOSE:
  Evaluates the statutory usage obligation per employee per fiscal year:
  employees granted at least the obligation floor (default 10 days) must
  use at least the threshold (default 5 days) within the year. Reports a
  deterministic, sorted classification and per-employee recommendations.
  Read-only; never mutates state.

CLASSIFICATION:
  Compliant     used >= threshold
  AtRisk        0.6*threshold <= used < threshold (soft warning band)
  NonCompliant  used < 0.6*threshold
*/
package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

type ComplianceStatus string

const (
	Compliant    ComplianceStatus = "compliant"
	AtRisk       ComplianceStatus = "at_risk"
	NonCompliant ComplianceStatus = "non_compliant"
)

// ComplianceRecord is one employee's standing for a fiscal year.
type ComplianceRecord struct {
	EmployeeID EmployeeID
	FiscalYear int
	Granted    Days
	Used       Days
	Threshold  Days
	Status     ComplianceStatus
}

// atRiskFloor is the lower bound of the warning band: 60% of the threshold.
func atRiskFloor(threshold Days) Days {
	return Days{Value: threshold.Value.Mul(decimal.NewFromFloat(0.6))}
}

func classify(used, threshold Days) ComplianceStatus {
	switch {
	case used.GreaterOrEqual(threshold):
		return Compliant
	case used.GreaterOrEqual(atRiskFloor(threshold)):
		return AtRisk
	default:
		return NonCompliant
	}
}

// =============================================================================
// MONITOR
// =============================================================================

// Monitor evaluates the usage obligation over the lot store.
type Monitor struct {
	store           LotStore
	clock           Clock
	threshold       Days
	obligationFloor Days
}

func NewMonitor(store LotStore, clock Clock, threshold, obligationFloor Days) *Monitor {
	if threshold.IsZero() {
		threshold = DefaultComplianceThreshold()
	}
	if obligationFloor.IsZero() {
		obligationFloor = DefaultObligationFloor()
	}
	return &Monitor{store: store, clock: clock, threshold: threshold, obligationFloor: obligationFloor}
}

// CheckCompliance classifies every employee whose total grant for the
// fiscal year meets the obligation floor. Employees below the floor are
// excluded entirely. The result is sorted by used days ascending (worst
// first), then employee ID, so reports are reproducible.
func (m *Monitor) CheckCompliance(ctx context.Context, fiscalYear int) ([]ComplianceRecord, error) {
	return m.CheckComplianceWithThreshold(ctx, fiscalYear, m.threshold)
}

// CheckComplianceWithThreshold classifies against a caller-supplied
// threshold instead of the configured one, for what-if reports against a
// stricter internal target. A zero threshold falls back to the configured
// default.
func (m *Monitor) CheckComplianceWithThreshold(ctx context.Context, fiscalYear int, threshold Days) ([]ComplianceRecord, error) {
	if threshold.IsZero() {
		threshold = m.threshold
	}

	lots, err := m.store.ListLotsByFiscalYear(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}

	type tally struct {
		granted Days
		used    Days
	}
	perEmployee := make(map[EmployeeID]tally)
	for _, lot := range lots {
		t, ok := perEmployee[lot.EmployeeID]
		if !ok {
			t = tally{granted: ZeroDays(), used: ZeroDays()}
		}
		t.granted = t.granted.Add(lot.Granted)
		t.used = t.used.Add(lot.Consumed)
		perEmployee[lot.EmployeeID] = t
	}

	var records []ComplianceRecord
	for id, t := range perEmployee {
		if t.granted.LessThan(m.obligationFloor) {
			continue
		}
		records = append(records, ComplianceRecord{
			EmployeeID: id,
			FiscalYear: fiscalYear,
			Granted:    t.granted,
			Used:       t.used,
			Threshold:  threshold,
			Status:     classify(t.used, threshold),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Used.Equal(records[j].Used) {
			return records[i].Used.LessThan(records[j].Used)
		}
		return records[i].EmployeeID < records[j].EmployeeID
	})
	return records, nil
}

// =============================================================================
// RECOMMENDATION
// =============================================================================

// Recommendation tells an employee how many more days they must take this
// fiscal year to meet the obligation, and whether their active lots can
// still cover that.
type Recommendation struct {
	EmployeeID EmployeeID
	FiscalYear int
	Used       Days
	Threshold  Days

	// Needed is the minimum additional days to reach the threshold.
	// Zero when already compliant or not obligated.
	Needed Days

	// Available is the remainder across currently active, unexpired lots.
	Available Days

	// Achievable is false when the active lots cannot cover Needed - the
	// employee will miss the obligation no matter what they book.
	Achievable bool

	// Obligated is false when this year's grants are below the floor.
	Obligated bool
}

// Recommend computes the recommendation for the clock's current fiscal
// year, counting only currently active, unexpired lots toward coverage.
func (m *Monitor) Recommend(ctx context.Context, employeeID EmployeeID) (Recommendation, error) {
	today := Today(m.clock)
	fiscalYear := FiscalYearOf(today)

	lots, err := m.store.ListLots(ctx, employeeID)
	if err != nil {
		return Recommendation{}, err
	}

	granted, used := ZeroDays(), ZeroDays()
	for _, lot := range lots {
		if lot.FiscalYear == fiscalYear {
			granted = granted.Add(lot.Granted)
			used = used.Add(lot.Consumed)
		}
	}

	available := ZeroDays()
	for _, lot := range lots {
		if lot.EligibleAt(today) {
			available = available.Add(lot.Remaining())
		}
	}

	rec := Recommendation{
		EmployeeID: employeeID,
		FiscalYear: fiscalYear,
		Used:       used,
		Threshold:  m.threshold,
		Needed:     ZeroDays(),
		Available:  available,
		Achievable: true,
		Obligated:  granted.GreaterOrEqual(m.obligationFloor),
	}
	if !rec.Obligated || used.GreaterOrEqual(m.threshold) {
		return rec, nil
	}

	rec.Needed = m.threshold.Sub(used)
	rec.Achievable = available.GreaterOrEqual(rec.Needed)
	return rec, nil
}
