/*
Package p4p implements the crew pay-for-performance engine.

PURPOSE:
  Computes performance pay for field-service crews from job revenue, protects
  workers with a wage floor, and reconciles multi-day jobs that straddle a
  pay-period boundary (interim hourly pay now, final P4P when the job closes).

KEY CONCEPTS IN THIS FILE (types.go):
  - Configuration: per-job-type pay rules (revenue share, bonuses, floor)
  - Job: unit of revenue; P4P is only computed once it is completed
  - Assignment: one employee on one job, carries the computed pay
  - Incident: deductions (damage, quality) and flat bonuses (reviews)
  - Employee: worker with an individual base rate

DESIGN PRINCIPLES:
  1. Precision: Money and hours are decimal.Decimal, never float64
  2. Validation at the boundary: Validate() on construction, not nil-checks
     scattered through the calculation
  3. Typed IDs: a JobID cannot be passed where an EmployeeID is expected

SEE ALSO:
  - engine.go: Per-assignment calculation
  - reconcile.go: Period-span reconciliation
  - service.go: Entry points called by the API and CLI
*/
package p4p

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldcrew/p4p-engine/calendar"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type JobID string
type AssignmentID string
type EmployeeID string
type IncidentID string

// =============================================================================
// CONFIGURATION - Pay rules for one job type
// =============================================================================

// Configuration holds the P4P policy for a job type (mowing, landscaping...).
// Only one active configuration per job type is consulted; repositories
// enforce that when saving.
type Configuration struct {
	ID      string
	JobType string

	// Base share of labor revenue distributed to the crew, in percent (33 = 33%).
	RevenueSharePercent decimal.Decimal

	// Extra percent added inside the seasonal window when SeasonalEligible.
	SeasonalBonusPercent decimal.Decimal
	SeasonalStartMonth   time.Month
	SeasonalEndMonth     time.Month
	SeasonalEligible     bool

	// Config-level wage floor per hour worked.
	MinimumHourlyRate Money

	// Flat add-on per jobsite hour for training assignments.
	TrainingBonusPerHour Money

	// Jobs with BudgetedHours >= threshold get LargeJobBonusPerHour per budgeted
	// hour, pooled and split across the team.
	LargeJobHourThreshold decimal.Decimal
	LargeJobBonusPerHour  Money

	Active    bool
	UpdatedAt time.Time
}

// InSeasonalWindow reports whether month falls in [SeasonalStartMonth,
// SeasonalEndMonth]. A window like November-February wraps the year end.
func (c Configuration) InSeasonalWindow(month time.Month) bool {
	start, end := c.SeasonalStartMonth, c.SeasonalEndMonth
	if start == 0 || end == 0 {
		return false
	}
	if start <= end {
		return month >= start && month <= end
	}
	return month >= start || month <= end
}

// RevenueShare is the fraction of labor revenue paid to the crew for job.
func (c Configuration) RevenueShare(job Job) decimal.Decimal {
	share := c.RevenueSharePercent.Div(decimal.NewFromInt(100))
	if c.SeasonalEligible && job.IsSeasonal(c) {
		share = share.Add(c.SeasonalBonusPercent.Div(decimal.NewFromInt(100)))
	}
	return share
}

func (c Configuration) Validate() error {
	v := &ValidationError{Entity: "configuration", ID: c.ID}
	if c.JobType == "" {
		v.add("job_type", "is required")
	}
	if c.RevenueSharePercent.IsNegative() || c.RevenueSharePercent.GreaterThan(decimal.NewFromInt(100)) {
		v.add("revenue_share_percent", "must be between 0 and 100")
	}
	if c.SeasonalBonusPercent.IsNegative() {
		v.add("seasonal_bonus_percent", "must not be negative")
	}
	if c.SeasonalEligible && (c.SeasonalStartMonth < time.January || c.SeasonalStartMonth > time.December ||
		c.SeasonalEndMonth < time.January || c.SeasonalEndMonth > time.December) {
		v.add("seasonal_window", "months must be 1-12 when seasonal bonus is enabled")
	}
	if c.MinimumHourlyRate.IsNegative() {
		v.add("minimum_hourly_rate", "must not be negative")
	}
	if c.TrainingBonusPerHour.IsNegative() {
		v.add("training_bonus_per_hour", "must not be negative")
	}
	if c.LargeJobHourThreshold.IsNegative() {
		v.add("large_job_hour_threshold", "must not be negative")
	}
	if c.LargeJobBonusPerHour.IsNegative() {
		v.add("large_job_bonus_per_hour", "must not be negative")
	}
	return v.orNil()
}

// =============================================================================
// JOB
// =============================================================================

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFlagged    JobStatus = "flagged"
	JobOnHold     JobStatus = "on_hold"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobInProgress, JobCompleted, JobFlagged, JobOnHold:
		return true
	}
	return false
}

type JobCategory string

const (
	SingleDay JobCategory = "single_day"
	MultiDay  JobCategory = "multi_day"
)

// Job is a unit of billable field work.
type Job struct {
	ID            JobID
	JobType       string
	Category      JobCategory
	BudgetedHours decimal.Decimal
	ActualHours   *decimal.Decimal
	LaborRevenue  Money
	Status        JobStatus

	StartDate   *calendar.Date
	EndDate     *calendar.Date
	CompletedAt *time.Time

	// SpansPeriods is set once an interim hourly payment has been issued for
	// a period-crossing multi-day job.
	SpansPeriods bool

	CreatedAt time.Time
}

func (j Job) IsCompleted() bool { return j.Status == JobCompleted }

// IsLargeJob: budgeted hours meet or exceed the configured threshold.
func (j Job) IsLargeJob(c Configuration) bool {
	return j.BudgetedHours.GreaterThanOrEqual(c.LargeJobHourThreshold) && c.LargeJobHourThreshold.IsPositive()
}

// IsSeasonal: the completion month falls inside the configured window.
// Jobs that are not completed are never seasonal.
func (j Job) IsSeasonal(c Configuration) bool {
	day, ok := j.CompletedDay()
	if !ok {
		return false
	}
	return c.InSeasonalWindow(day.Month())
}

// CompletedDay is the payroll day of completion: the UTC calendar day of
// CompletedAt, whatever zone the instant was recorded in. Seasonality and
// period membership both read it.
func (j Job) CompletedDay() (calendar.Date, bool) {
	if j.CompletedAt == nil {
		return calendar.Date{}, false
	}
	return calendar.FromTime(j.CompletedAt.UTC()), true
}

// CrossesPayPeriods is true for multi-day jobs whose start and end dates are
// in different pay periods.
func (j Job) CrossesPayPeriods() bool {
	if j.Category != MultiDay || j.StartDate == nil || j.EndDate == nil {
		return false
	}
	return calendar.Spans(*j.StartDate, *j.EndDate)
}

// NeedsReconciliation routes completion through the reconciler instead of
// the per-assignment engine.
func (j Job) NeedsReconciliation() bool {
	return j.SpansPeriods || j.CrossesPayPeriods()
}

// Complete transitions the job to completed. CompletedAt is set exactly once
// and stored in UTC.
func (j *Job) Complete(at time.Time) error {
	if j.CompletedAt != nil {
		return ErrAlreadyCompleted
	}
	j.Status = JobCompleted
	completed := at.UTC()
	j.CompletedAt = &completed
	return nil
}

func (j Job) Validate() error {
	v := &ValidationError{Entity: "job", ID: string(j.ID)}
	if j.ID == "" {
		v.add("id", "is required")
	}
	if j.JobType == "" {
		v.add("job_type", "is required")
	}
	if j.Category != SingleDay && j.Category != MultiDay {
		v.add("category", "must be single_day or multi_day")
	}
	if !j.Status.Valid() {
		v.add("status", "is not a known status")
	}
	if j.BudgetedHours.IsNegative() {
		v.add("budgeted_hours", "must not be negative")
	}
	if j.ActualHours != nil && j.ActualHours.IsNegative() {
		v.add("actual_hours", "must not be negative")
	}
	if j.LaborRevenue.IsNegative() {
		v.add("labor_revenue", "must not be negative")
	}
	if j.StartDate != nil && j.EndDate != nil && j.EndDate.Before(*j.StartDate) {
		v.add("end_date", "must not be before start_date")
	}
	if j.Category == MultiDay && (j.StartDate == nil || j.EndDate == nil) {
		v.add("start_date", "multi_day jobs need start_date and end_date")
	}
	if j.Status == JobCompleted && j.CompletedAt == nil {
		v.add("completed_at", "is required for completed jobs")
	}
	return v.orNil()
}

// =============================================================================
// ASSIGNMENT - One employee on one job
// =============================================================================

type Assignment struct {
	ID         AssignmentID
	JobID      JobID
	EmployeeID EmployeeID

	// HoursWorked includes travel and breaks; it is the wage-floor baseline.
	HoursWorked decimal.Decimal
	// JobsiteHours is productive on-site time; it is the P4P rate basis.
	JobsiteHours decimal.Decimal

	IsLeader   bool
	IsTraining bool

	// Derived outputs, owned by the engine.
	PerformancePay  Money
	IsHourlyPayment bool
	InterimPay      Money

	PayPeriodType calendar.PeriodType
}

func (a Assignment) Validate() error {
	v := &ValidationError{Entity: "assignment", ID: string(a.ID)}
	if a.ID == "" {
		v.add("id", "is required")
	}
	if a.JobID == "" {
		v.add("job_id", "is required")
	}
	if a.EmployeeID == "" {
		v.add("employee_id", "is required")
	}
	if a.HoursWorked.IsNegative() {
		v.add("hours_worked", "must not be negative")
	}
	if a.JobsiteHours.IsNegative() {
		v.add("jobsite_hours", "must not be negative")
	}
	if a.JobsiteHours.GreaterThan(a.HoursWorked) {
		v.add("jobsite_hours", "must not exceed hours_worked")
	}
	return v.orNil()
}

// =============================================================================
// INCIDENT
// =============================================================================

type IncidentType string

const (
	IncidentQualityIssue      IncidentType = "quality_issue"
	IncidentPropertyDamage    IncidentType = "property_damage"
	IncidentEquipmentDamage   IncidentType = "equipment_damage"
	IncidentCustomerReview    IncidentType = "customer_review"
	IncidentEstimateCompleted IncidentType = "estimate_completed"
)

// IsDeduction: the incident's cost comes out of performance pay.
func (t IncidentType) IsDeduction() bool {
	return t == IncidentQualityIssue || t == IncidentPropertyDamage || t == IncidentEquipmentDamage
}

// IsBonus: the incident pays a flat bonus.
func (t IncidentType) IsBonus() bool {
	return t == IncidentCustomerReview || t == IncidentEstimateCompleted
}

type Incident struct {
	ID         IncidentID
	EmployeeID EmployeeID
	JobID      *JobID
	Type       IncidentType
	Cost       Money
	Resolved   bool
	OccurredAt time.Time
}

func (i Incident) Validate() error {
	v := &ValidationError{Entity: "incident", ID: string(i.ID)}
	if i.EmployeeID == "" {
		v.add("employee_id", "is required")
	}
	if !i.Type.IsDeduction() && !i.Type.IsBonus() {
		v.add("type", "is not a known incident type")
	}
	if i.Cost.IsNegative() {
		v.add("cost", "must not be negative")
	}
	return v.orNil()
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID             EmployeeID
	Name           string
	Position       string
	BaseHourlyRate Money
	Active         bool
}

func (e Employee) Validate() error {
	v := &ValidationError{Entity: "employee", ID: string(e.ID)}
	if e.ID == "" {
		v.add("id", "is required")
	}
	if e.Name == "" {
		v.add("name", "is required")
	}
	if e.BaseHourlyRate.IsNegative() {
		v.add("base_hourly_rate", "must not be negative")
	}
	return v.orNil()
}
