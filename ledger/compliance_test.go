package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jokken79/yukyu-ledger/ledger"
)

// =============================================================================
// COMPLIANCE CLASSIFICATION TESTS
// =============================================================================

func TestCompliance_Bands(t *testing.T) {
	// GIVEN: Three obligated employees with 5, 3 and 1 days used
	// THEN: They classify compliant, at_risk and non_compliant, sorted
	//       worst-first

	engine, _ := newTestEngine(t, time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	usage := map[ledger.EmployeeID]int{"emp-good": 5, "emp-risky": 3, "emp-bad": 1}
	for id, used := range usage {
		_, err := engine.Grant(ctx, id, 2024, april(2024, 1), ledger.NewDaysFromInt(10))
		require.NoError(t, err)
		_, err = engine.Deduct(ctx, id, ledger.NewDate(2024, time.July, 1), ledger.NewDaysFromInt(used), "")
		require.NoError(t, err)
	}

	records, err := engine.CheckCompliance(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, ledger.EmployeeID("emp-bad"), records[0].EmployeeID)
	assert.Equal(t, ledger.NonCompliant, records[0].Status)
	assert.Equal(t, ledger.EmployeeID("emp-risky"), records[1].EmployeeID)
	assert.Equal(t, ledger.AtRisk, records[1].Status)
	assert.Equal(t, ledger.EmployeeID("emp-good"), records[2].EmployeeID)
	assert.Equal(t, ledger.Compliant, records[2].Status)
}

func TestCompliance_AtRiskBoundary(t *testing.T) {
	// 3 days is exactly 60% of the 5-day threshold: at_risk, not
	// non_compliant. 5 days exactly is compliant.

	engine, _ := newTestEngine(t, time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.July, 1), ledger.NewDaysFromInt(3), "")
	require.NoError(t, err)

	records, err := engine.CheckCompliance(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.AtRisk, records[0].Status)
}

func TestCompliance_ThresholdOverride(t *testing.T) {
	// 4 days used is at_risk against the default 5-day threshold, but a
	// per-call threshold reclassifies without touching engine config.

	engine, _ := newTestEngine(t, time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.July, 1), ledger.NewDaysFromInt(4), "")
	require.NoError(t, err)

	records, err := engine.CheckCompliance(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.AtRisk, records[0].Status)

	records, err = engine.CheckComplianceWithThreshold(ctx, 2024, ledger.NewDaysFromInt(4))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.Compliant, records[0].Status)
	assert.Equal(t, "4", records[0].Threshold.String())

	records, err = engine.CheckComplianceWithThreshold(ctx, 2024, ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.NonCompliant, records[0].Status)
}

func TestCompliance_BelowFloorExcluded(t *testing.T) {
	// An employee granted fewer than 10 days this year carries no
	// obligation and never appears in the report.

	engine, _ := newTestEngine(t, time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-part-time", 2024, april(2024, 1), ledger.NewDaysFromInt(7))
	require.NoError(t, err)
	_, err = engine.Grant(ctx, "emp-full-time", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	records, err := engine.CheckCompliance(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.EmployeeID("emp-full-time"), records[0].EmployeeID)
}

func TestCompliance_FloorSumsAcrossLots(t *testing.T) {
	// Two grants of 5 days in the same fiscal year together cross the
	// 10-day floor.

	engine, _ := newTestEngine(t, time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(5))
	require.NoError(t, err)
	_, err = engine.Grant(ctx, "emp-1", 2024, ledger.NewDate(2024, time.October, 1), ledger.NewDaysFromInt(5))
	require.NoError(t, err)

	records, err := engine.CheckCompliance(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

// =============================================================================
// RECOMMENDATION TESTS
// =============================================================================

func TestRecommendation_NeededAndAchievable(t *testing.T) {
	// GIVEN: 10 granted, 2 used, in the current fiscal year
	// THEN: 3 more days needed, achievable from the 8 remaining

	engine, _ := newTestEngine(t, time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.July, 1), ledger.NewDaysFromInt(2), "")
	require.NoError(t, err)

	rec, err := engine.Recommendation(ctx, "emp-1")
	require.NoError(t, err)

	assert.True(t, rec.Obligated)
	assert.Equal(t, 2024, rec.FiscalYear)
	assert.Equal(t, "3", rec.Needed.String())
	assert.Equal(t, "8", rec.Available.String())
	assert.True(t, rec.Achievable)
}

func TestRecommendation_AlreadyCompliant(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.July, 1), ledger.NewDaysFromInt(5), "")
	require.NoError(t, err)

	rec, err := engine.Recommendation(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, rec.Needed.IsZero())
	assert.True(t, rec.Achievable)
}

func TestRecommendation_NotObligated(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(7))
	require.NoError(t, err)

	rec, err := engine.Recommendation(ctx, "emp-1")
	require.NoError(t, err)
	assert.False(t, rec.Obligated)
	assert.True(t, rec.Needed.IsZero())
}

func TestRecommendation_Unachievable(t *testing.T) {
	// GIVEN: 10 granted, 1 used, but the lot's remaining 9 days lapse
	//        before the clock's date
	// THEN: The shortfall cannot be covered

	engine, _ := newTestEngine(t, time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// Grant in the current fiscal year (FY2026) but already expired is
	// impossible with the 2-year window, so model it with a swept lot:
	// grant in FY2026 via a backdated grant date whose window has lapsed.
	_, err := engine.Grant(ctx, "emp-1", 2026, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	_, err = engine.SweepExpirations(ctx, ledger.NewDate(2026, time.June, 1))
	require.NoError(t, err)

	rec, err := engine.Recommendation(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, rec.Obligated)
	assert.Equal(t, "5", rec.Needed.String())
	assert.True(t, rec.Available.IsZero())
	assert.False(t, rec.Achievable)
}

// =============================================================================
// REPORTING TESTS
// =============================================================================

func TestBreakdown_FlagsExpiringSoon(t *testing.T) {
	// A lot inside the 90-day warning horizon is flagged; one far out is
	// not.

	engine, _ := newTestEngine(t, time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// Expires 2026-04-01, 59 days out: flagged.
	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	// Expires 2027-04-01: not flagged.
	_, err = engine.Grant(ctx, "emp-1", 2025, april(2025, 1), ledger.NewDaysFromInt(11))
	require.NoError(t, err)

	rows, err := engine.BalanceBreakdown(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].ExpiringSoon)
	assert.False(t, rows[1].ExpiringSoon)
}

func TestCohortBalance_PoolsAcrossEmployees(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	_, err = engine.Grant(ctx, "emp-2", 2024, april(2024, 1), ledger.NewDaysFromInt(12))
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, "emp-2", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(2), "")
	require.NoError(t, err)

	summary, err := engine.CohortBalance(ctx, []ledger.EmployeeID{"emp-1", "emp-2"}, 2024)
	require.NoError(t, err)

	assert.Equal(t, "22", summary.Granted.String())
	assert.Equal(t, "2", summary.Used.String())
	assert.Equal(t, "20", summary.Available.String())
}
