/*
Package calendar provides the pay-period calendar for crew payroll.

PURPOSE:
  Payroll runs on bimonthly periods that do not line up with calendar months:
    - Period A: 11th through 25th of a month
    - Period B: 26th of a month through the 10th of the next month

  Every calendar date belongs to exactly one period. Pay that lands in the
  wrong period is silently paid on the wrong check, so the boundary math here
  is the one place that decides membership. Nothing else in the repo should
  compare day-of-month numbers on its own.

KEY CONCEPTS:
  - Date: a calendar day with no time-of-day (UTC midnight internally)
  - PayPeriod: [Start, End] inclusive, typed A or B
  - Working days: Monday through Friday, holidays are not modeled

USAGE:
  p := calendar.PeriodContaining(calendar.NewDate(2024, time.February, 29))
  // p.Type == calendar.PeriodB, p.Start == 2024-02-26, p.End == 2024-03-10
  next := calendar.Next(p)
  days := calendar.WorkingDaysIn(p)

SEE ALSO:
  - period.go: Period boundaries and navigation
  - p4p/reconcile.go: Uses Spans() to detect period-crossing jobs
*/
package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day without time-of-day
// =============================================================================

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

// Date is a calendar day. The zero value is not a valid date.
type Date struct {
	Time time.Time
}

// NewDate builds a date. Out-of-range values normalize like time.Date
// (month 13 is January of the next year).
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime takes the calendar day of t in t's own location.
// 2024-03-10T23:30 in America/Chicago is 2024-03-10, not 2024-03-11.
func FromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// MustParseDate is ParseDate for literals in tests and presets.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return FromTime(d.Time.AddDate(0, 0, n)) }
func (d Date) AddMonths(n int) Date { return FromTime(d.Time.AddDate(0, n, 0)) }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) IsWorkday() bool { return !d.IsWeekend() }

// EndOfDay is the last representable instant of the day.
func (d Date) EndOfDay() time.Time {
	return d.Time.Add(24*time.Hour - time.Nanosecond)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// MarshalJSON writes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" or an RFC3339 timestamp.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = FromTime(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween counts whole days from -> to (negative when to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}
