/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain records in p4p
  carry no JSON tags; these types are the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AND HOURS:
  Money is a two-decimal string ("396.00"). Hours are decimal strings.
  Requests accept either JSON numbers or strings for both.

VALIDATION:
  Validation is done by the domain types (Validate methods), not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/configuration.go: ConfigurationJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/p4p"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Position       string    `json:"position"`
	BaseHourlyRate p4p.Money `json:"base_hourly_rate"`
	Active         bool      `json:"active"`
}

// CreateEmployeeRequest: ID is generated when empty.
type CreateEmployeeRequest struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Position       string    `json:"position"`
	BaseHourlyRate p4p.Money `json:"base_hourly_rate"`
	Active         *bool     `json:"active"`
}

func toEmployeeDTO(e p4p.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:             string(e.ID),
		Name:           e.Name,
		Position:       e.Position,
		BaseHourlyRate: e.BaseHourlyRate,
		Active:         e.Active,
	}
}

// =============================================================================
// JOBS
// =============================================================================

type JobDTO struct {
	ID                string           `json:"id"`
	JobType           string           `json:"job_type"`
	Category          string           `json:"category"`
	BudgetedHours     decimal.Decimal  `json:"budgeted_hours"`
	ActualHours       *decimal.Decimal `json:"actual_hours,omitempty"`
	LaborRevenue      p4p.Money        `json:"labor_revenue"`
	Status            string           `json:"status"`
	StartDate         *calendar.Date   `json:"start_date,omitempty"`
	EndDate           *calendar.Date   `json:"end_date,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	SpansPeriods      bool             `json:"spans_periods"`
	CrossesPayPeriods bool             `json:"crosses_pay_periods"`
}

type CreateJobRequest struct {
	ID            string           `json:"id"`
	JobType       string           `json:"job_type"`
	Category      string           `json:"category"`
	BudgetedHours decimal.Decimal  `json:"budgeted_hours"`
	ActualHours   *decimal.Decimal `json:"actual_hours"`
	LaborRevenue  p4p.Money        `json:"labor_revenue"`
	Status        string           `json:"status"`
	StartDate     *calendar.Date   `json:"start_date"`
	EndDate       *calendar.Date   `json:"end_date"`
}

// CompleteJobRequest: CompletedAt defaults to the server clock.
type CompleteJobRequest struct {
	CompletedAt *time.Time `json:"completed_at"`
}

func toJobDTO(j p4p.Job) JobDTO {
	return JobDTO{
		ID:                string(j.ID),
		JobType:           j.JobType,
		Category:          string(j.Category),
		BudgetedHours:     j.BudgetedHours,
		ActualHours:       j.ActualHours,
		LaborRevenue:      j.LaborRevenue,
		Status:            string(j.Status),
		StartDate:         j.StartDate,
		EndDate:           j.EndDate,
		CompletedAt:       j.CompletedAt,
		SpansPeriods:      j.SpansPeriods,
		CrossesPayPeriods: j.CrossesPayPeriods(),
	}
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

type AssignmentDTO struct {
	ID              string          `json:"id"`
	JobID           string          `json:"job_id"`
	EmployeeID      string          `json:"employee_id"`
	HoursWorked     decimal.Decimal `json:"hours_worked"`
	JobsiteHours    decimal.Decimal `json:"jobsite_hours"`
	IsLeader        bool            `json:"is_leader"`
	IsTraining      bool            `json:"is_training"`
	PerformancePay  p4p.Money       `json:"performance_pay"`
	IsHourlyPayment bool            `json:"is_hourly_payment"`
	InterimPay      p4p.Money       `json:"interim_pay"`
	PayPeriodType   string          `json:"pay_period_type,omitempty"`
}

type CreateAssignmentRequest struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	EmployeeID   string          `json:"employee_id"`
	HoursWorked  decimal.Decimal `json:"hours_worked"`
	JobsiteHours decimal.Decimal `json:"jobsite_hours"`
	IsLeader     bool            `json:"is_leader"`
	IsTraining   bool            `json:"is_training"`
}

// CreateAssignmentResponse returns the stored assignment and, for open jobs
// that cross a pay-period boundary, the interim hourly payment issued.
type CreateAssignmentResponse struct {
	Assignment AssignmentDTO       `json:"assignment"`
	Interim    *p4p.InterimPayment `json:"interim,omitempty"`
}

func toAssignmentDTO(a p4p.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:              string(a.ID),
		JobID:           string(a.JobID),
		EmployeeID:      string(a.EmployeeID),
		HoursWorked:     a.HoursWorked,
		JobsiteHours:    a.JobsiteHours,
		IsLeader:        a.IsLeader,
		IsTraining:      a.IsTraining,
		PerformancePay:  a.PerformancePay,
		IsHourlyPayment: a.IsHourlyPayment,
		InterimPay:      a.InterimPay,
		PayPeriodType:   string(a.PayPeriodType),
	}
}

// =============================================================================
// INCIDENTS
// =============================================================================

type IncidentDTO struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	JobID      *string   `json:"job_id,omitempty"`
	Type       string    `json:"type"`
	Cost       p4p.Money `json:"cost"`
	Resolved   bool      `json:"resolved"`
	OccurredAt time.Time `json:"occurred_at"`
}

type CreateIncidentRequest struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employee_id"`
	JobID      *string    `json:"job_id"`
	Type       string     `json:"type"`
	Cost       p4p.Money  `json:"cost"`
	Resolved   bool       `json:"resolved"`
	OccurredAt *time.Time `json:"occurred_at"`
}

func toIncidentDTO(i p4p.Incident) IncidentDTO {
	dto := IncidentDTO{
		ID:         string(i.ID),
		EmployeeID: string(i.EmployeeID),
		Type:       string(i.Type),
		Cost:       i.Cost,
		Resolved:   i.Resolved,
		OccurredAt: i.OccurredAt,
	}
	if i.JobID != nil {
		id := string(*i.JobID)
		dto.JobID = &id
	}
	return dto
}

// =============================================================================
// CALCULATION AND RECALCULATION
// =============================================================================

// CalculationResponse wraps the results of one job or assignment.
type CalculationResponse struct {
	JobID   string       `json:"job_id"`
	Results []p4p.Result `json:"results"`
}

type RecalcRunDTO struct {
	ID          string     `json:"id"`
	Trigger     string     `json:"trigger"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RecalcResponse is returned by a manual recalculation.
type RecalcResponse struct {
	Run     RecalcRunDTO     `json:"run"`
	Summary p4p.BatchSummary `json:"summary"`
}

func toRecalcRunDTO(r p4p.RecalcRun) RecalcRunDTO {
	return RecalcRunDTO{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Status:      string(r.Status),
		Total:       r.Total,
		Succeeded:   r.Succeeded,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Details []p4p.FieldError `json:"details,omitempty"`
}
