/*
statutory.go - Statutory defaults (Labor Standards Act, art. 39)

PURPOSE:
  The constants Japanese labor law fixes for annual paid leave: the grant
  table by length of service, the two-year retention window, and the
  five-day usage obligation for employees granted ten or more days.
  Employers may grant more than the table; never less.
*/
package ledger

// Statutory defaults. All of them are overridable through Config.
const (
	// DefaultRetentionYears is the carry-over window: unused days forfeit
	// two years after their grant date.
	DefaultRetentionYears = 2

	// DefaultExpiryWarningDays is the horizon for "expiring soon" flags.
	DefaultExpiryWarningDays = 90
)

// DefaultComplianceThreshold is the minimum days an obligated employee
// must use per fiscal year (the 5-day obligation).
func DefaultComplianceThreshold() Days { return NewDaysFromInt(5) }

// DefaultObligationFloor is the minimum annual grant that triggers the
// usage obligation.
func DefaultObligationFloor() Days { return NewDaysFromInt(10) }

// statutoryGrantSteps maps completed months of service to the statutory
// grant. Steps run 6 months, then every 12 months after that, capping at
// 20 days from 6.5 years on.
var statutoryGrantSteps = []struct {
	serviceMonths int
	days          int
}{
	{78, 20}, // 6.5 years
	{66, 18}, // 5.5 years
	{54, 16}, // 4.5 years
	{42, 14}, // 3.5 years
	{30, 12}, // 2.5 years
	{18, 11}, // 1.5 years
	{6, 10},  // 6 months
}

// StatutoryGrantDays returns the statutory annual grant for an employee
// with the given completed months of service. Zero before six months.
func StatutoryGrantDays(serviceMonths int) Days {
	for _, step := range statutoryGrantSteps {
		if serviceMonths >= step.serviceMonths {
			return NewDaysFromInt(step.days)
		}
	}
	return ZeroDays()
}

// ServiceMonths returns completed months of service between hire date and
// asOf.
func ServiceMonths(hireDate, asOf Date) int {
	if asOf.Before(hireDate) {
		return 0
	}
	months := (asOf.Year()-hireDate.Year())*12 + int(asOf.Month()) - int(hireDate.Month())
	if asOf.Day() < hireDate.Day() {
		months--
	}
	return months
}
