/*
engine.go - Per-assignment performance pay calculation

PURPOSE:
  Given a completed job, the size of its crew, the active configuration and
  the employee's incidents, compute the performance pay of one assignment.
  Calculate is pure: no I/O, no clock, no globals. Service does the reads
  and writes around it.

ALGORITHM:
  1. share         = revenueShare% (+ seasonal% inside the window, if eligible)
  2. basePay       = laborRevenue * share / teamSize      (even split)
  3. trainingBonus = isTraining ? jobsiteHours * trainingRate : 0
  4. largeJobBonus = isLarge ? budgetedHours * largeRate / teamSize : 0
  5. adjustment    = ApplyOutstandingIncidentAdjustments(...)
  6. total         = basePay + trainingBonus + largeJobBonus - adjustment
  7. minimumPay    = hoursWorked * floorRate
     shortfall     = max(0, minimumPay - total)

  PerformancePay is the total rounded to cents. The floor is NOT folded into
  it; the shortfall is a separate accounting line for payroll to top up.

OUTCOMES:
  calculated - normal result
  not_ready  - job is not completed; zero pay, safe to sum
  skipped    - data-integrity problem (no jobsite hours, empty crew); zero
               pay plus a warning

EXAMPLE:
  laborRevenue=2400, 33%, team of 2, not seasonal, not large
  basePay = 2400 * 0.33 / 2 = 396.00 per worker
*/
package p4p

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Outcome classifies a calculation for batch reporting.
type Outcome string

const (
	OutcomeCalculated Outcome = "calculated"
	OutcomeReconciled Outcome = "reconciled"
	OutcomeNotReady   Outcome = "not_ready"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// Paid reports whether the outcome wrote a pay figure.
func (o Outcome) Paid() bool {
	return o == OutcomeCalculated || o == OutcomeReconciled
}

// CalculationInput is everything Calculate needs for one assignment.
type CalculationInput struct {
	Job        Job
	Assignment Assignment
	TeamSize   int
	Config     Configuration
	Employee   Employee
	Incidents  []Incident
}

// Breakdown keeps the unrounded components of a calculation.
type Breakdown struct {
	RevenueShare       decimal.Decimal `json:"revenue_share"`
	Seasonal           bool            `json:"seasonal"`
	LargeJob           bool            `json:"large_job"`
	BasePay            Money           `json:"base_pay"`
	TrainingBonus      Money           `json:"training_bonus"`
	LargeJobBonus      Money           `json:"large_job_bonus"`
	IncidentAdjustment Money           `json:"incident_adjustment"`
	Total              Money           `json:"total"`
}

// Result is the outcome of one assignment's calculation or reconciliation.
type Result struct {
	AssignmentID AssignmentID `json:"assignment_id"`
	JobID        JobID        `json:"job_id"`
	EmployeeID   EmployeeID   `json:"employee_id"`
	Outcome      Outcome      `json:"outcome"`

	Breakdown        Breakdown `json:"breakdown"`
	PerformancePay   Money     `json:"performance_pay"`
	HourlyEquivalent Money     `json:"hourly_equivalent"`

	FloorRate        Money `json:"floor_rate"`
	MinimumPay       Money `json:"minimum_pay"`
	Shortfall        Money `json:"shortfall"`
	FloorDiscrepancy bool  `json:"floor_discrepancy"`

	// Reconciliation only.
	HourlyPortion     decimal.Decimal `json:"hourly_portion"`
	ProportionalShare Money           `json:"proportional_share"`
	PreviouslyPaid    Money           `json:"previously_paid"`
	Adjustment        Money           `json:"adjustment"`

	Warnings []string `json:"warnings,omitempty"`
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func newResult(in CalculationInput, outcome Outcome) Result {
	return Result{
		AssignmentID: in.Assignment.ID,
		JobID:        in.Job.ID,
		EmployeeID:   in.Assignment.EmployeeID,
		Outcome:      outcome,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes performance pay. The zero value uses the configuration floor.
type Engine struct {
	Floor WageFloor
}

func NewEngine(floor WageFloor) *Engine {
	return &Engine{Floor: floor}
}

// Calculate runs the per-assignment algorithm. It never fails: problems with
// the input come back as a skipped or not_ready Result.
func (e *Engine) Calculate(in CalculationInput) Result {
	if !in.Job.IsCompleted() {
		return newResult(in, OutcomeNotReady)
	}

	a := in.Assignment
	if !a.JobsiteHours.IsPositive() {
		r := newResult(in, OutcomeSkipped)
		r.warn("assignment %s on completed job %s has no jobsite hours", a.ID, in.Job.ID)
		return r
	}
	if in.TeamSize < 1 {
		r := newResult(in, OutcomeSkipped)
		r.warn("job %s has an empty crew", in.Job.ID)
		return r
	}

	r := newResult(in, OutcomeCalculated)
	team := decimal.NewFromInt(int64(in.TeamSize))
	cfg := in.Config

	b := Breakdown{
		RevenueShare:       cfg.RevenueShare(in.Job),
		Seasonal:           cfg.SeasonalEligible && in.Job.IsSeasonal(cfg),
		LargeJob:           in.Job.IsLargeJob(cfg),
		TrainingBonus:      ZeroMoney(),
		LargeJobBonus:      ZeroMoney(),
		IncidentAdjustment: ApplyOutstandingIncidentAdjustments(a.EmployeeID, in.Incidents),
	}
	b.BasePay = in.Job.LaborRevenue.Mul(b.RevenueShare).Div(team)
	if a.IsTraining {
		b.TrainingBonus = cfg.TrainingBonusPerHour.Mul(a.JobsiteHours)
	}
	if b.LargeJob {
		b.LargeJobBonus = cfg.LargeJobBonusPerHour.Mul(in.Job.BudgetedHours).Div(team)
	}
	b.Total = b.BasePay.Add(b.TrainingBonus).Add(b.LargeJobBonus).Sub(b.IncidentAdjustment)

	r.Breakdown = b
	r.PerformancePay = b.Total.Round()
	r.HourlyEquivalent = r.PerformancePay.Div(a.JobsiteHours).Round()
	e.applyFloor(&r, in)
	return r
}

// applyFloor fills the floor fields. Shortfall is never negative, even when
// incident deductions push the total below zero.
func (e *Engine) applyFloor(r *Result, in CalculationInput) {
	rate, discrepancy := e.Floor.Rate(in.Config, in.Employee)
	r.FloorRate = rate
	r.FloorDiscrepancy = discrepancy
	r.MinimumPay = rate.Mul(in.Assignment.HoursWorked).Round()
	r.Shortfall = r.MinimumPay.Sub(r.PerformancePay).Max(ZeroMoney())
}
