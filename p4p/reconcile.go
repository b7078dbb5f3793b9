/*
reconcile.go - Period-span reconciliation for multi-day jobs

PURPOSE:
  A multi-day job whose start and end dates fall in different pay periods
  cannot wait for completion to pay its crew. While it is open, each
  assignment is paid hours worked at the floor rate (interim hourly pay).
  When the job completes, the whole job is recomputed and the difference is
  reported as an adjustment for payroll to true up.

STATE MACHINE (per assignment):
  Hourly      --job completed-->  Reconciled
  (IsHourlyPayment=true)          (IsHourlyPayment=false, PerformancePay=final)

FINAL PAY:
  pool          = laborRevenue * share + (large ? budgetedHours * largeRate : 0)
  hourlyPortion = hoursWorked / totalHoursAllWorkers
  share_i       = pool * hourlyPortion
  final_i       = max(share_i + trainingBonus_i, hoursWorked_i * floorRate)
  adjustment_i  = final_i - interimPay_i

  Unlike the single-period engine the pool is split by hours, not evenly,
  and the floor IS applied to the final figure.

IDEMPOTENCY:
  InterimPay is kept on the assignment after reconciliation, so running
  Reconcile again on unchanged data yields the same final and adjustment.

SEE ALSO:
  - engine.go: Single-period calculation
  - calendar/period.go: Spans()
*/
package p4p

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Floor WageFloor
}

func NewReconciler(floor WageFloor) *Reconciler {
	return &Reconciler{Floor: floor}
}

// InterimPayment is the hourly amount issued for an open period-spanning job.
type InterimPayment struct {
	AssignmentID     AssignmentID `json:"assignment_id"`
	JobID            JobID        `json:"job_id"`
	Applies          bool         `json:"applies"`
	Amount           Money        `json:"amount"`
	FloorRate        Money        `json:"floor_rate"`
	FloorDiscrepancy bool         `json:"floor_discrepancy"`
}

// InterimPay computes hoursWorked * floorRate for assignments on multi-day
// jobs that cross a period boundary. Applies=false for every other job.
func (r *Reconciler) InterimPay(job Job, a Assignment, cfg Configuration, emp Employee) InterimPayment {
	p := InterimPayment{AssignmentID: a.ID, JobID: job.ID, Amount: ZeroMoney()}
	if !job.CrossesPayPeriods() {
		return p
	}
	rate, discrepancy := r.Floor.Rate(cfg, emp)
	p.Applies = true
	p.FloorRate = rate
	p.FloorDiscrepancy = discrepancy
	p.Amount = rate.Mul(a.HoursWorked).Round()
	return p
}

// ReconcileInput is the whole roster of one completed job.
type ReconcileInput struct {
	Job         Job
	Config      Configuration
	Assignments []Assignment
	Employees   map[EmployeeID]Employee
}

// ReconcileResult holds one line per assignment.
type ReconcileResult struct {
	JobID      JobID           `json:"job_id"`
	Pool       Money           `json:"pool"`
	TotalHours decimal.Decimal `json:"total_hours"`
	Skipped    bool            `json:"skipped"`
	Lines      []Result        `json:"lines"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// TotalFinal sums the final pay of every reconciled line.
func (rr ReconcileResult) TotalFinal() Money {
	total := ZeroMoney()
	for _, l := range rr.Lines {
		total = total.Add(l.PerformancePay)
	}
	return total
}

// Reconcile recomputes final P4P for a completed period-spanning job.
// Jobs that are not completed yield not_ready lines; a roster with zero
// total hours is skipped with a warning.
func (r *Reconciler) Reconcile(in ReconcileInput) ReconcileResult {
	out := ReconcileResult{JobID: in.Job.ID, Pool: ZeroMoney(), TotalHours: decimal.Zero}

	lineFor := func(a Assignment, outcome Outcome) Result {
		return Result{AssignmentID: a.ID, JobID: in.Job.ID, EmployeeID: a.EmployeeID, Outcome: outcome}
	}

	if !in.Job.IsCompleted() {
		for _, a := range in.Assignments {
			out.Lines = append(out.Lines, lineFor(a, OutcomeNotReady))
		}
		return out
	}

	for _, a := range in.Assignments {
		out.TotalHours = out.TotalHours.Add(a.HoursWorked)
	}
	if !out.TotalHours.IsPositive() {
		out.Skipped = true
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("completed job %s has zero total hours across %d assignments", in.Job.ID, len(in.Assignments)))
		for _, a := range in.Assignments {
			line := lineFor(a, OutcomeSkipped)
			line.Warnings = out.Warnings
			out.Lines = append(out.Lines, line)
		}
		return out
	}

	cfg := in.Config
	share := cfg.RevenueShare(in.Job)
	large := in.Job.IsLargeJob(cfg)
	out.Pool = in.Job.LaborRevenue.Mul(share)
	largePool := ZeroMoney()
	if large {
		largePool = cfg.LargeJobBonusPerHour.Mul(in.Job.BudgetedHours)
		out.Pool = out.Pool.Add(largePool)
	}

	for _, a := range in.Assignments {
		line := lineFor(a, OutcomeReconciled)
		emp := in.Employees[a.EmployeeID]

		line.HourlyPortion = a.HoursWorked.Div(out.TotalHours)
		line.ProportionalShare = out.Pool.Mul(line.HourlyPortion)

		training := ZeroMoney()
		if a.IsTraining {
			training = cfg.TrainingBonusPerHour.Mul(a.JobsiteHours)
		}

		line.Breakdown = Breakdown{
			RevenueShare:       share,
			Seasonal:           cfg.SeasonalEligible && in.Job.IsSeasonal(cfg),
			LargeJob:           large,
			BasePay:            in.Job.LaborRevenue.Mul(share).Mul(line.HourlyPortion),
			TrainingBonus:      training,
			LargeJobBonus:      largePool.Mul(line.HourlyPortion),
			IncidentAdjustment: ZeroMoney(),
			Total:              line.ProportionalShare.Add(training),
		}

		rate, discrepancy := r.Floor.Rate(cfg, emp)
		line.FloorRate = rate
		line.FloorDiscrepancy = discrepancy
		line.MinimumPay = rate.Mul(a.HoursWorked).Round()

		earned := line.Breakdown.Total.Round()
		line.PerformancePay = earned.Max(line.MinimumPay)
		line.Shortfall = line.MinimumPay.Sub(earned).Max(ZeroMoney())
		line.PreviouslyPaid = a.InterimPay
		line.Adjustment = line.PerformancePay.Sub(a.InterimPay)
		if a.JobsiteHours.IsPositive() {
			line.HourlyEquivalent = line.PerformancePay.Div(a.JobsiteHours).Round()
		}

		out.Lines = append(out.Lines, line)
	}
	return out
}
