package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatutoryGrantDays_Table(t *testing.T) {
	cases := []struct {
		serviceMonths int
		want          int
	}{
		{0, 0},
		{5, 0},
		{6, 10},
		{17, 10},
		{18, 11},
		{30, 12},
		{42, 14},
		{54, 16},
		{66, 18},
		{78, 20},
		{120, 20}, // caps at 20
	}
	for _, tc := range cases {
		got := StatutoryGrantDays(tc.serviceMonths)
		assert.True(t, got.Equal(NewDaysFromInt(tc.want)),
			"serviceMonths=%d: want %d got %s", tc.serviceMonths, tc.want, got)
	}
}

func TestServiceMonths(t *testing.T) {
	hire := NewDate(2022, time.October, 1)

	assert.Equal(t, 0, ServiceMonths(hire, NewDate(2022, time.October, 15)))
	assert.Equal(t, 6, ServiceMonths(hire, NewDate(2023, time.April, 1)))
	assert.Equal(t, 5, ServiceMonths(hire, NewDate(2023, time.March, 31)), "day before the step")
	assert.Equal(t, 18, ServiceMonths(hire, NewDate(2024, time.April, 1)))
	assert.Equal(t, 0, ServiceMonths(hire, NewDate(2022, time.September, 1)), "before hire")
}

func TestFiscalYearOf_AprilBoundary(t *testing.T) {
	assert.Equal(t, 2024, FiscalYearOf(NewDate(2024, time.April, 1)))
	assert.Equal(t, 2023, FiscalYearOf(NewDate(2024, time.March, 31)))
	assert.Equal(t, 2024, FiscalYearOf(NewDate(2025, time.January, 15)))
}

func TestFiscalYearBounds(t *testing.T) {
	assert.Equal(t, "2024-04-01", FiscalYearStart(2024).String())
	assert.Equal(t, "2025-03-31", FiscalYearEnd(2024).String())
}
