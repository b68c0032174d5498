package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jokken79/yukyu-ledger/audit"
	"github.com/jokken79/yukyu-ledger/ledger"
	"github.com/jokken79/yukyu-ledger/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T, now time.Time) (*ledger.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	clock := ledger.FixedClock{Instant: now}
	engine := ledger.NewEngine(store, clock, ledger.Config{})
	return engine, store
}

func april(year, day int) ledger.Date {
	return ledger.NewDate(year, time.April, day)
}

// =============================================================================
// GRANT TESTS
// =============================================================================

func TestEngine_Grant_CreatesLotWithRetentionExpiry(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: Granting 10 days on 2024-04-01
	// THEN: The lot is active with expiry exactly two years out

	engine, _ := newTestEngine(t, time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	lot, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	assert.Equal(t, ledger.LotActive, lot.Status)
	assert.Equal(t, "2026-04-01", lot.ExpiryDate.String())
	assert.True(t, lot.Remaining().Equal(ledger.NewDaysFromInt(10)))
	assert.Equal(t, 1, lot.Version)
}

func TestEngine_Grant_DuplicateRejected(t *testing.T) {
	// GIVEN: A lot already granted for employee x year x date
	// WHEN: Granting again with the same key
	// THEN: Rejected with ErrDuplicateGrant and no second lot exists

	engine, _ := newTestEngine(t, time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	_, err = engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(12))
	assert.ErrorIs(t, err, ledger.ErrDuplicateGrant)

	breakdown, err := engine.BalanceBreakdown(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, breakdown, 1)
}

func TestEngine_Grant_DuplicateLeavesNoAuditEvent(t *testing.T) {
	// GIVEN: One successful grant
	// WHEN: A duplicate grant fails
	// THEN: The audit chain holds exactly one event; the failed attempt
	//       left nothing behind

	engine, _ := newTestEngine(t, time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	_, err = engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.Error(t, err)

	events, err := engine.AuditEvents(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventGrant, events[0].Type)
}

func TestEngine_Grant_RejectsQuarterDay(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC))

	_, err := engine.Grant(context.Background(), "emp-1", 2024, april(2024, 1), ledger.NewDays(10.25))
	assert.ErrorIs(t, err, ledger.ErrInvalidGranularity)
}

// =============================================================================
// DEDUCTION TESTS
// =============================================================================

func TestEngine_Deduct_OldestFirstAcrossLots(t *testing.T) {
	// GIVEN: A 2023 lot with 3 days left and a 2024 lot with 10 days
	// WHEN: Deducting 5 days with the default policy
	// THEN: The 2023 lot is drained first, the remainder hits 2024

	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	old, err := engine.Grant(ctx, "emp-1", 2023, april(2023, 1), ledger.NewDaysFromInt(3))
	require.NoError(t, err)
	newer, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(5), "")
	require.NoError(t, err)

	require.Len(t, event.Allocations, 2)
	assert.Equal(t, old.ID, event.Allocations[0].LotID)
	assert.True(t, event.Allocations[0].Amount.Equal(ledger.NewDaysFromInt(3)))
	assert.Equal(t, newer.ID, event.Allocations[1].LotID)
	assert.True(t, event.Allocations[1].Amount.Equal(ledger.NewDaysFromInt(2)))
}

func TestEngine_Deduct_NewestFirst(t *testing.T) {
	// GIVEN: Two lots from different years
	// WHEN: Deducting 1 day with the newest_first policy
	// THEN: The newer lot is consumed, the older untouched

	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2023, april(2023, 1), ledger.NewDaysFromInt(3))
	require.NoError(t, err)
	newer, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(1), ledger.NewestFirst)
	require.NoError(t, err)

	require.Len(t, event.Allocations, 1)
	assert.Equal(t, newer.ID, event.Allocations[0].LotID)
}

func TestEngine_Deduct_HalfDay(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDays(0.5), "")
	require.NoError(t, err)

	balance, err := engine.Balance(ctx, "emp-1", 2024)
	require.NoError(t, err)
	assert.Equal(t, "9.5", balance.Available.String())
}

func TestEngine_Deduct_RejectsQuarterDay(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDays(0.25), "")
	assert.ErrorIs(t, err, ledger.ErrInvalidGranularity)
}

func TestEngine_Deduct_InsufficientBalance_NothingCommits(t *testing.T) {
	// GIVEN: 3 days available across two small lots
	// WHEN: Deducting 5 days
	// THEN: The whole request fails; neither lot is partially consumed
	//       and no usage or audit record appears

	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2023, april(2023, 1), ledger.NewDaysFromInt(1))
	require.NoError(t, err)
	_, err = engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(2))
	require.NoError(t, err)

	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(5), "")
	require.Error(t, err)

	var insufficientErr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, "2", insufficientErr.Shortfall.String())

	breakdown, err := engine.BalanceBreakdown(ctx, "emp-1")
	require.NoError(t, err)
	for _, row := range breakdown {
		assert.True(t, row.Lot.Consumed.IsZero(), "lot %s should be untouched", row.Lot.ID)
	}

	history, err := engine.UsageHistory(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	events, err := engine.AuditEvents(ctx, 1, 100)
	require.NoError(t, err)
	assert.Len(t, events, 2, "only the two grants should be on the chain")
}

func TestEngine_Deduct_SkipsExpiredLots(t *testing.T) {
	// GIVEN: A lot whose expiry date equals the usage date
	// WHEN: Deducting on that date
	// THEN: The lot is no longer eligible (exclusive upper bound)

	engine, _ := newTestEngine(t, time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	_, err = engine.Deduct(ctx, "emp-1", april(2026, 1), ledger.NewDaysFromInt(1), "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2026, time.March, 31), ledger.NewDaysFromInt(1), "")
	assert.NoError(t, err, "the day before expiry is still usable")
}

func TestEngine_Deduct_Deterministic(t *testing.T) {
	// GIVEN: Two identical ledgers
	// WHEN: Running the same deduction against both
	// THEN: The allocations match exactly

	run := func() []ledger.Allocation {
		engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
		ctx := context.Background()
		_, err := engine.Grant(ctx, "emp-1", 2023, april(2023, 1), ledger.NewDaysFromInt(4))
		require.NoError(t, err)
		_, err = engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
		require.NoError(t, err)
		event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(6), "")
		require.NoError(t, err)
		return event.Allocations
	}

	first := run()
	second := run()
	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].Amount.Equal(second[i].Amount))
	}
}

func TestEngine_Deduct_ConcurrentNoDoubleSpend(t *testing.T) {
	// GIVEN: One lot with 10 days
	// WHEN: 20 goroutines each try to deduct 1 day
	// THEN: Exactly 10 succeed and the balance lands at zero

	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			date := ledger.NewDate(2024, time.June, 1).AddDays(day)
			_, err := engine.Deduct(ctx, "emp-1", date, ledger.NewDaysFromInt(1), "")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 10, succeeded)

	balance, err := engine.Balance(ctx, "emp-1", 2024)
	require.NoError(t, err)
	assert.True(t, balance.Available.IsZero())
	assert.Equal(t, "10", balance.Used.String())
}

// =============================================================================
// REVERT TESTS
// =============================================================================

func TestEngine_Revert_RestoresBalances(t *testing.T) {
	// GIVEN: A deduction spanning two lots
	// WHEN: Reverting it
	// THEN: Both lots return to their prior remainders and a compensating
	//       event with negative quantity is recorded

	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2023, april(2023, 1), ledger.NewDaysFromInt(3))
	require.NoError(t, err)
	_, err = engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)

	event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(5), "")
	require.NoError(t, err)

	reversal, err := engine.Revert(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "-5", reversal.Quantity.String())
	assert.Equal(t, event.ID, reversal.ReferenceID)

	breakdown, err := engine.BalanceBreakdown(ctx, "emp-1")
	require.NoError(t, err)
	for _, row := range breakdown {
		assert.True(t, row.Lot.Consumed.IsZero())
		assert.Equal(t, ledger.LotActive, row.Lot.Status)
	}
}

func TestEngine_Revert_Twice_Rejected(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(2), "")
	require.NoError(t, err)

	_, err = engine.Revert(ctx, event.ID)
	require.NoError(t, err)
	_, err = engine.Revert(ctx, event.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyReverted)
}

func TestEngine_Revert_OfReversal_Rejected(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(2), "")
	require.NoError(t, err)

	reversal, err := engine.Revert(ctx, event.ID)
	require.NoError(t, err)

	_, err = engine.Revert(ctx, reversal.ID)
	assert.ErrorIs(t, err, ledger.ErrNotReversible)
}

func TestEngine_Revert_AfterSweep_DaysStayForfeited(t *testing.T) {
	// GIVEN: 10 granted, 6 deducted, then the lot is swept (4 forfeited)
	// WHEN: Reverting the deduction
	// THEN: The 6 re-credited days join the forfeited total, the balance
	//       reports zero available and deducting still fails

	engine, _ := newTestEngine(t, time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(6), "")
	require.NoError(t, err)

	swept, err := engine.SweepExpirations(ctx, april(2026, 1))
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, "4", swept[0].ExpiredDays.String())

	_, err = engine.Revert(ctx, event.ID)
	require.NoError(t, err)

	balance, err := engine.Balance(ctx, "emp-1", 2024)
	require.NoError(t, err)
	assert.Equal(t, "10", balance.Granted.String())
	assert.Equal(t, "0", balance.Used.String())
	assert.Equal(t, "10", balance.Expired.String())
	assert.Equal(t, "0", balance.Available.String())

	_, err = engine.Deduct(ctx, "emp-1", ledger.NewDate(2026, time.May, 1), ledger.NewDaysFromInt(1), "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestEngine_Revert_UnknownEvent(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	_, err := engine.Revert(context.Background(), "no-such-event")
	assert.ErrorIs(t, err, ledger.ErrUsageEventNotFound)
}

// =============================================================================
// CONSERVATION
// =============================================================================

func TestEngine_Conservation_AcrossLifecycle(t *testing.T) {
	// GIVEN: Grants, deductions, a revert and an expiration sweep
	// THEN: granted == used + expired + available after every step

	engine, _ := newTestEngine(t, time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	checkConservation := func(label string) {
		for _, fy := range []int{2024, 2026} {
			b, err := engine.Balance(ctx, "emp-1", fy)
			require.NoError(t, err)
			sum := b.Used.Add(b.Expired).Add(b.Available)
			assert.True(t, b.Granted.Equal(sum),
				"%s: FY%d granted=%s used=%s expired=%s available=%s",
				label, fy, b.Granted, b.Used, b.Expired, b.Available)
		}
	}

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	_, err = engine.Grant(ctx, "emp-1", 2026, april(2026, 1), ledger.NewDaysFromInt(12))
	require.NoError(t, err)
	checkConservation("after grants")

	event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2026, time.March, 1), ledger.NewDaysFromInt(4), "")
	require.NoError(t, err)
	checkConservation("after deduct")

	_, err = engine.Revert(ctx, event.ID)
	require.NoError(t, err)
	checkConservation("after revert")

	// The 2024 lot expires 2026-04-01; sweep as of May 2026 forfeits it.
	swept, err := engine.SweepExpirations(ctx, ledger.NewDate(2026, time.May, 1))
	require.NoError(t, err)
	require.Len(t, swept, 1)
	checkConservation("after sweep")
}

// =============================================================================
// AUDIT INTEGRATION
// =============================================================================

func TestEngine_AuditTrail_ChainsEveryMutation(t *testing.T) {
	// GIVEN: A grant, a deduction and a revert
	// THEN: The chain verifies end to end and carries one event per
	//       mutation in order

	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", 2024, april(2024, 1), ledger.NewDaysFromInt(10))
	require.NoError(t, err)
	event, err := engine.Deduct(ctx, "emp-1", ledger.NewDate(2024, time.June, 10), ledger.NewDaysFromInt(2), "")
	require.NoError(t, err)
	_, err = engine.Revert(ctx, event.ID)
	require.NoError(t, err)

	events, err := engine.AuditEvents(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, audit.EventGrant, events[0].Type)
	assert.Equal(t, audit.EventDeduct, events[1].Type)
	assert.Equal(t, audit.EventRevert, events[2].Type)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}

	valid, _, err := engine.VerifyAuditTrail(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestEngine_AuditTrail_SequentialAcrossEmployees(t *testing.T) {
	// Mutations for different employees still share one global sequence.

	engine, _ := newTestEngine(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := ledger.EmployeeID(fmt.Sprintf("emp-%d", i))
		_, err := engine.Grant(ctx, id, 2024, april(2024, 1), ledger.NewDaysFromInt(10))
		require.NoError(t, err)
	}

	events, err := engine.AuditEvents(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}
