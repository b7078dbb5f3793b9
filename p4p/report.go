package p4p

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fieldcrew/p4p-engine/calendar"
)

// =============================================================================
// PAYROLL REPORT - What payroll pays per employee for one period
// =============================================================================
//
// Attribution rules:
//   - P4P and floor supplement: single-period jobs completed in the period
//   - Interim hourly: period-spanning jobs whose start date is in the period
//   - Adjustment: reconciled jobs completed in the period
//
// Employees without work in the period still get a zero line.

type PayrollLine struct {
	EmployeeID      EmployeeID `json:"employee_id"`
	EmployeeName    string     `json:"employee_name"`
	Assignments     int        `json:"assignments"`
	PerformancePay  Money      `json:"performance_pay"`
	FloorSupplement Money      `json:"floor_supplement"`
	InterimHourly   Money      `json:"interim_hourly"`
	Adjustment      Money      `json:"adjustment"`
	Total           Money      `json:"total"`
}

func newPayrollLine(e Employee) PayrollLine {
	return PayrollLine{
		EmployeeID:      e.ID,
		EmployeeName:    e.Name,
		PerformancePay:  ZeroMoney(),
		FloorSupplement: ZeroMoney(),
		InterimHourly:   ZeroMoney(),
		Adjustment:      ZeroMoney(),
		Total:           ZeroMoney(),
	}
}

func (l *PayrollLine) total() {
	l.Total = l.PerformancePay.Add(l.FloorSupplement).Add(l.InterimHourly).Add(l.Adjustment)
}

type PayrollReport struct {
	Period      calendar.PayPeriod `json:"period"`
	Lines       []PayrollLine      `json:"lines"`
	Totals      PayrollLine        `json:"totals"`
	Warnings    []string           `json:"warnings,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// PayrollReport aggregates stored pay for every employee in period. It reads
// only; run recalculation first if stored figures may be stale.
func (s *Service) PayrollReport(ctx context.Context, period calendar.PayPeriod) (PayrollReport, error) {
	employees, err := s.repo.ListEmployees(ctx)
	if err != nil {
		return PayrollReport{}, fmt.Errorf("list employees: %w", err)
	}

	rep := PayrollReport{Period: period, GeneratedAt: s.now()}
	jobs := make(map[JobID]Job)
	configs := make(map[string]*Configuration)

	for _, emp := range employees {
		line := newPayrollLine(emp)
		assignments, err := s.repo.GetAssignmentsForEmployee(ctx, emp.ID)
		if err != nil {
			return PayrollReport{}, fmt.Errorf("load assignments of employee %s: %w", emp.ID, err)
		}

		for _, a := range assignments {
			job, ok := jobs[a.JobID]
			if !ok {
				job, err = s.repo.GetJob(ctx, a.JobID)
				if err != nil {
					return PayrollReport{}, fmt.Errorf("assignment %s: %w", a.ID, err)
				}
				jobs[a.JobID] = job
			}

			counted := false
			if job.NeedsReconciliation() {
				if job.StartDate != nil && period.Contains(*job.StartDate) && a.InterimPay.IsPositive() {
					line.InterimHourly = line.InterimHourly.Add(a.InterimPay)
					counted = true
				}
				if completedIn(job, period) && !a.IsHourlyPayment {
					line.Adjustment = line.Adjustment.Add(a.PerformancePay.Sub(a.InterimPay))
					counted = true
				}
			} else if completedIn(job, period) {
				line.PerformancePay = line.PerformancePay.Add(a.PerformancePay)
				counted = true

				cfg, ok := configs[job.JobType]
				if !ok {
					c, err := ActiveConfigFor(ctx, s.repo, job.JobType)
					if err != nil {
						rep.Warnings = append(rep.Warnings, fmt.Sprintf("no floor supplement for job %s: %v", job.ID, err))
						s.logger.Warn("payroll report floor lookup failed", zap.String("job_id", string(job.ID)), zap.Error(err))
					} else {
						cfg = &c
					}
					configs[job.JobType] = cfg
				}
				if cfg != nil {
					rate, _ := s.engine.Floor.Rate(*cfg, emp)
					minimum := rate.Mul(a.HoursWorked).Round()
					line.FloorSupplement = line.FloorSupplement.Add(minimum.Sub(a.PerformancePay).Max(ZeroMoney()))
				}
			}
			if counted {
				line.Assignments++
			}
		}

		line.total()
		rep.Lines = append(rep.Lines, line)
	}

	sort.Slice(rep.Lines, func(i, j int) bool {
		if rep.Lines[i].EmployeeName != rep.Lines[j].EmployeeName {
			return rep.Lines[i].EmployeeName < rep.Lines[j].EmployeeName
		}
		return rep.Lines[i].EmployeeID < rep.Lines[j].EmployeeID
	})

	rep.Totals = newPayrollLine(Employee{Name: "TOTAL"})
	for _, l := range rep.Lines {
		rep.Totals.Assignments += l.Assignments
		rep.Totals.PerformancePay = rep.Totals.PerformancePay.Add(l.PerformancePay)
		rep.Totals.FloorSupplement = rep.Totals.FloorSupplement.Add(l.FloorSupplement)
		rep.Totals.InterimHourly = rep.Totals.InterimHourly.Add(l.InterimHourly)
		rep.Totals.Adjustment = rep.Totals.Adjustment.Add(l.Adjustment)
	}
	rep.Totals.total()
	return rep, nil
}

func completedIn(job Job, period calendar.PayPeriod) bool {
	day, ok := job.CompletedDay()
	return job.IsCompleted() && ok && period.Contains(day)
}
