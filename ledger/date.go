package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granular civil date
// =============================================================================
// Grants, deductions and expirations all happen on whole calendar days, so
// the engine works with a normalized day-granular date rather than raw
// time.Time values.

type Date struct {
	Time time.Time
}

// NewDate constructs a Date normalized to midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar day (UTC).
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses an ISO date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date  { return DateOf(d.Time.AddDate(0, 0, n)) }
func (d Date) AddYears(n int) Date { return DateOf(d.Time.AddDate(n, 0, 0)) }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// DaysUntil returns the number of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// =============================================================================
// FISCAL YEAR - April 1 to March 31
// =============================================================================
// The employer's accounting year follows the Japanese convention: fiscal
// year N covers April 1 of year N through March 31 of year N+1.

// FiscalYearOf returns the fiscal year a date falls in.
func FiscalYearOf(d Date) int {
	if d.Month() >= time.April {
		return d.Year()
	}
	return d.Year() - 1
}

// FiscalYearStart returns April 1 of the given fiscal year.
func FiscalYearStart(year int) Date { return NewDate(year, time.April, 1) }

// FiscalYearEnd returns March 31 closing the given fiscal year.
func FiscalYearEnd(year int) Date { return NewDate(year+1, time.March, 31) }

// =============================================================================
// CLOCK - Injected time source
// =============================================================================
// The engine never calls time.Now directly; expiration and compliance
// windows are tested with a fixed clock.

type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant. For tests.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }

// Today returns the clock's current calendar day.
func Today(c Clock) Date { return DateOf(c.Now()) }
