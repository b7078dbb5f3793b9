package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// PAY PERIOD - Bimonthly payroll window
// =============================================================================

// PeriodType distinguishes the two halves of the payroll month.
type PeriodType string

const (
	PeriodA PeriodType = "A" // 11th - 25th
	PeriodB PeriodType = "B" // 26th - 10th of next month
)

const (
	periodAStartDay = 11
	periodAEndDay   = 25
	periodBStartDay = 26
	periodBEndDay   = 10
)

// PayPeriod is an inclusive [Start, End] range of calendar days.
//
// INVARIANTS:
//   - Start <= End
//   - Next(p).Start == p.End + 1 day (no gap, no overlap)
//   - Type B is labelled by the month it starts in
type PayPeriod struct {
	Start Date       `json:"start"`
	End   Date       `json:"end"`
	Type  PeriodType `json:"period_type"`
	Label string     `json:"label"`
}

// Contains reports whether d falls inside the period.
func (p PayPeriod) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// ContainsTime uses the calendar day of t in t's own location.
func (p PayPeriod) ContainsTime(t time.Time) bool {
	return p.Contains(FromTime(t))
}

// EndOfDay is the closing instant of the period (End at 23:59:59.999999999).
func (p PayPeriod) EndOfDay() time.Time {
	return p.End.EndOfDay()
}

// Days returns every calendar day in the period.
func (p PayPeriod) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Equal compares boundaries only.
func (p PayPeriod) Equal(other PayPeriod) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

func (p PayPeriod) String() string {
	return p.Label + " [" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// PERIOD CALCULATOR
// =============================================================================

// PeriodContaining returns the single pay period that contains d.
//
//	day <= 10       -> B that began on the 26th of the previous month
//	11 <= day <= 25 -> A of this month
//	day >= 26       -> B that ends on the 10th of next month
func PeriodContaining(d Date) PayPeriod {
	year, month, day := d.Year(), d.Month(), d.Day()

	switch {
	case day >= periodAStartDay && day <= periodAEndDay:
		return periodA(year, month)
	case day >= periodBStartDay:
		return periodB(year, month)
	default:
		prev := NewDate(year, month, 1).AddMonths(-1)
		return periodB(prev.Year(), prev.Month())
	}
}

// PeriodContainingTime is PeriodContaining for the calendar day of t.
func PeriodContainingTime(t time.Time) PayPeriod {
	return PeriodContaining(FromTime(t))
}

// Next returns the period that starts the day after p ends.
func Next(p PayPeriod) PayPeriod {
	if p.Type == PeriodA {
		return periodB(p.Start.Year(), p.Start.Month())
	}
	return periodA(p.End.Year(), p.End.Month())
}

// Previous returns the period that ends the day before p starts.
func Previous(p PayPeriod) PayPeriod {
	if p.Type == PeriodB {
		return periodA(p.Start.Year(), p.Start.Month())
	}
	prev := p.Start.AddMonths(-1)
	return periodB(prev.Year(), prev.Month())
}

// PeriodsForYear returns the 24 periods that start in year, in order.
// The December B period ends on January 10 of the following year, and
// January 1-10 of year belongs to the previous year's December B.
func PeriodsForYear(year int) []PayPeriod {
	periods := make([]PayPeriod, 0, 24)
	for month := time.January; month <= time.December; month++ {
		periods = append(periods, periodA(year, month), periodB(year, month))
	}
	return periods
}

// Spans reports whether start and end fall into different pay periods.
func Spans(start, end Date) bool {
	return !PeriodContaining(start).Equal(PeriodContaining(end))
}

func periodA(year int, month time.Month) PayPeriod {
	return PayPeriod{
		Start: NewDate(year, month, periodAStartDay),
		End:   NewDate(year, month, periodAEndDay),
		Type:  PeriodA,
		Label: label(year, month, PeriodA),
	}
}

func periodB(year int, month time.Month) PayPeriod {
	return PayPeriod{
		Start: NewDate(year, month, periodBStartDay),
		End:   NewDate(year, month+1, periodBEndDay),
		Type:  PeriodB,
		Label: label(year, month, PeriodB),
	}
}

func label(year int, month time.Month, t PeriodType) string {
	return fmt.Sprintf("%04d-%02d %s", year, int(month), t)
}

// =============================================================================
// WORKING DAYS
// =============================================================================

// WorkingDaysIn counts Monday-Friday days in the period, inclusive.
func WorkingDaysIn(p PayPeriod) int {
	return WorkingDaysBetween(p.Start, p.End)
}

// WorkingDaysBetween counts Monday-Friday days in [from, to]. Zero when to < from.
func WorkingDaysBetween(from, to Date) int {
	count := 0
	for current := from; current.BeforeOrEqual(to); current = current.AddDays(1) {
		if current.IsWorkday() {
			count++
		}
	}
	return count
}
