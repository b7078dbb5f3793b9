/*
handlers.go - HTTP API handlers for the pay engine

PURPOSE:
  Exposes record maintenance, pay calculation, reconciliation, pay-period
  lookups and payroll reports via REST. Handlers parse and validate input,
  delegate to p4p.Service or the store, and serialize the result.

ENDPOINTS:
  Employees:
    GET    /api/employees                      List employees
    POST   /api/employees                      Create or update employee
    GET    /api/employees/{id}                 Get employee
    GET    /api/employees/{id}/assignments     Assignment history with pay
    GET    /api/employees/{id}/incidents       Incidents
    GET    /api/employees/{id}/analysis        Compliance and achievement findings

  Jobs:
    GET    /api/jobs?status=&completed_in=     List jobs
    POST   /api/jobs                           Create or update job
    GET    /api/jobs/{id}                      Get job
    GET    /api/jobs/{id}/assignments          Crew with pay
    POST   /api/jobs/{id}/complete             Complete and calculate
    POST   /api/jobs/{id}/calculate            Recalculate

  Assignments:
    POST   /api/assignments                    Create (issues interim pay when due)
    GET    /api/assignments/{id}               Get assignment
    POST   /api/assignments/{id}/calculate     Recalculate one assignment

  Incidents / Configurations:
    POST   /api/incidents                      Record incident
    GET    /api/configurations?job_type=       List configurations
    POST   /api/configurations                 Create from JSON
    GET    /api/configurations/presets         Preset configurations

  Periods / Reports / Recalculation:
    GET    /api/periods/current                Current period summary
    GET    /api/periods/{date}                 Period summary for a date
    GET    /api/periods?year=                  All periods of a year
    GET    /api/reports/payroll?date=          Payroll report (JSON)
    GET    /api/reports/payroll.pdf?date=      Payroll report (PDF)
    POST   /api/recalc                         Recalculate all completed jobs
    GET    /api/recalc/runs                    Recent recalculation runs

  Demo scenarios:
    GET    /api/scenarios                      Available scenarios
    GET    /api/scenarios/current              Last loaded scenario
    POST   /api/scenarios/load                 Load a scenario

ERROR HANDLING:
  Errors are returned as JSON {error, code, details}:
  - 400: Malformed request body or parameter
  - 404: Resource not found
  - 409: Conflict (duplicate assignment, job already completed)
  - 422: Validation failed, or missing/ambiguous configuration
  - 500: Internal errors (logged)

SECURITY NOTE:
  No authentication or authorization. Deploy behind an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Periodic recalculation
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/factory"
	"github.com/fieldcrew/p4p-engine/logging"
	"github.com/fieldcrew/p4p-engine/p4p"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   p4p.Store
	Service *p4p.Service
	Configs *factory.ConfigurationFactory
	Recalc  *RecalcScheduler

	scenarioMu      sync.Mutex
	currentScenario string

	now func() time.Time
}

// NewHandler wires a handler and its recalculation scheduler. The scheduler
// is not started; cmd/server decides that from configuration.
func NewHandler(store p4p.Store, svc *p4p.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Store:   store,
		Service: svc,
		Configs: factory.NewConfigurationFactory(),
		Recalc:  NewRecalcScheduler(store, svc, logger),
		now:     time.Now,
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.Store.GetEmployee(r.Context(), p4p.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(e))
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	e := p4p.Employee{
		ID:             p4p.EmployeeID(orNewID(req.ID, "emp")),
		Name:           req.Name,
		Position:       req.Position,
		BaseHourlyRate: req.BaseHourlyRate,
		Active:         req.Active == nil || *req.Active,
	}
	if err := h.Store.SaveEmployee(r.Context(), e); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}

func (h *Handler) GetEmployeeAssignments(w http.ResponseWriter, r *http.Request) {
	id := p4p.EmployeeID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetEmployee(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	assignments, err := h.Store.GetAssignmentsForEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTOs(assignments))
}

func (h *Handler) GetEmployeeIncidents(w http.ResponseWriter, r *http.Request) {
	id := p4p.EmployeeID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetEmployee(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	incidents, err := h.Store.GetIncidentsForEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]IncidentDTO, len(incidents))
	for i, inc := range incidents {
		dtos[i] = toIncidentDTO(inc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AnalyzeEmployee(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.Service.Analyze(r.Context(), p4p.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// =============================================================================
// JOB HANDLERS
// =============================================================================

// ListJobs filters by ?status= and ?completed_in=YYYY-MM-DD (the pay period
// containing that date).
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var filter p4p.JobFilter
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = p4p.JobStatus(s)
		if !filter.Status.Valid() {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, fmt.Sprintf("unknown status %q", s), nil)
			return
		}
	}
	if s := r.URL.Query().Get("completed_in"); s != "" {
		day, err := calendar.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "completed_in must be YYYY-MM-DD", nil)
			return
		}
		p := calendar.PeriodContaining(day)
		filter.CompletedIn = &p
	}

	jobs, err := h.Store.ListJobs(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]JobDTO, len(jobs))
	for i, j := range jobs {
		dtos[i] = toJobDTO(j)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Store.GetJob(r.Context(), p4p.JobID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDTO(job))
}

// CreateJob stores an open job. Completion goes through CompleteJob so the
// crew is calculated.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status := p4p.JobStatus(req.Status)
	if status == "" {
		status = p4p.JobPending
	}
	if status == p4p.JobCompleted {
		writeError(w, http.StatusBadRequest, CodeInvalidInput,
			"create the job open, then POST /api/jobs/{id}/complete", nil)
		return
	}
	job := p4p.Job{
		ID:            p4p.JobID(orNewID(req.ID, "job")),
		JobType:       req.JobType,
		Category:      p4p.JobCategory(req.Category),
		BudgetedHours: req.BudgetedHours,
		ActualHours:   req.ActualHours,
		LaborRevenue:  req.LaborRevenue,
		Status:        status,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		CreatedAt:     h.now(),
	}
	if job.Category == "" {
		job.Category = p4p.SingleDay
		if job.StartDate != nil && job.EndDate != nil && !job.StartDate.Equal(*job.EndDate) {
			job.Category = p4p.MultiDay
		}
	}
	if err := h.Store.SaveJob(r.Context(), job); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobDTO(job))
}

func (h *Handler) GetJobAssignments(w http.ResponseWriter, r *http.Request) {
	id := p4p.JobID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetJob(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	assignments, err := h.Store.GetAssignmentsForJob(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTOs(assignments))
}

func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	var req CompleteJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}
	at := h.now()
	if req.CompletedAt != nil {
		at = *req.CompletedAt
	}

	id := p4p.JobID(chi.URLParam(r, "id"))
	results, err := h.Service.CompleteJob(r.Context(), id, at)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CalculationResponse{JobID: string(id), Results: results})
}

func (h *Handler) CalculateJob(w http.ResponseWriter, r *http.Request) {
	id := p4p.JobID(chi.URLParam(r, "id"))
	results, err := h.Service.CalculateForJob(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CalculationResponse{JobID: string(id), Results: results})
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// CreateAssignment stores the assignment, then records it with the service:
// an open job crossing a pay-period boundary gets interim hourly pay now, a
// completed job is recalculated with the new crew.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()

	job, err := h.Store.GetJob(ctx, p4p.JobID(req.JobID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	stored, interim, err := h.assign(ctx, job, p4p.Assignment{
		ID:           p4p.AssignmentID(orNewID(req.ID, "asg")),
		EmployeeID:   p4p.EmployeeID(req.EmployeeID),
		HoursWorked:  req.HoursWorked,
		JobsiteHours: req.JobsiteHours,
		IsLeader:     req.IsLeader,
		IsTraining:   req.IsTraining,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := CreateAssignmentResponse{Assignment: toAssignmentDTO(stored)}
	if interim.Applies {
		resp.Interim = &interim
	}
	writeJSON(w, http.StatusCreated, resp)
}

// assign saves a onto job, tagging it with the pay period the job starts in,
// and issues interim pay when the job spans periods.
func (h *Handler) assign(ctx context.Context, job p4p.Job, a p4p.Assignment) (p4p.Assignment, p4p.InterimPayment, error) {
	a.JobID = job.ID
	if job.StartDate != nil {
		a.PayPeriodType = calendar.PeriodContaining(*job.StartDate).Type
	}
	if err := h.Store.SaveAssignment(ctx, a); err != nil {
		return p4p.Assignment{}, p4p.InterimPayment{}, err
	}
	interim, err := h.Service.RecordAssignment(ctx, a.ID)
	if err != nil {
		return p4p.Assignment{}, p4p.InterimPayment{}, err
	}
	stored, err := h.Store.GetAssignment(ctx, a.ID)
	if err != nil {
		return p4p.Assignment{}, p4p.InterimPayment{}, err
	}
	return stored, interim, nil
}

func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAssignment(r.Context(), p4p.AssignmentID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(a))
}

func (h *Handler) CalculateAssignment(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.CalculateForAssignment(r.Context(), p4p.AssignmentID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CalculationResponse{JobID: string(result.JobID), Results: []p4p.Result{result}})
}

// =============================================================================
// INCIDENT HANDLERS
// =============================================================================

func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	inc := p4p.Incident{
		ID:         p4p.IncidentID(orNewID(req.ID, "inc")),
		EmployeeID: p4p.EmployeeID(req.EmployeeID),
		Type:       p4p.IncidentType(req.Type),
		Cost:       req.Cost,
		Resolved:   req.Resolved,
		OccurredAt: h.now(),
	}
	if req.OccurredAt != nil {
		inc.OccurredAt = *req.OccurredAt
	}
	if req.JobID != nil {
		jobID := p4p.JobID(*req.JobID)
		if _, err := h.Store.GetJob(ctx, jobID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		inc.JobID = &jobID
	}
	if err := h.Store.SaveIncident(ctx, inc); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIncidentDTO(inc))
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

func (h *Handler) ListConfigurations(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Store.ListConfigurations(r.Context(), r.URL.Query().Get("job_type"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]factory.ConfigurationJSON, len(configs))
	for i, c := range configs {
		dtos[i] = h.Configs.ToJSON(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateConfiguration parses the JSON form, fills defaults and validates.
// Saving an active configuration deactivates the job type's others.
func (h *Handler) CreateConfiguration(w http.ResponseWriter, r *http.Request) {
	var req factory.ConfigurationJSON
	if !decodeBody(w, r, &req) {
		return
	}
	cfg, err := h.Configs.FromJSON(req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	cfg.UpdatedAt = h.now()
	if err := h.Store.SaveConfiguration(r.Context(), cfg); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Configs.ToJSON(cfg))
}

func (h *Handler) ListConfigurationPresets(w http.ResponseWriter, r *http.Request) {
	presets := factory.Presets()
	jobTypes := make([]string, 0, len(presets))
	for jt := range presets {
		jobTypes = append(jobTypes, jt)
	}
	sort.Strings(jobTypes)

	out := make([]json.RawMessage, 0, len(jobTypes))
	for _, jt := range jobTypes {
		out = append(out, json.RawMessage(presets[jt]("cfg-"+jt)))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

func (h *Handler) GetCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.CurrentPayPeriodSummary(h.now()))
}

func (h *Handler) GetPeriodForDate(w http.ResponseWriter, r *http.Request) {
	day, err := calendar.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "date must be YYYY-MM-DD", nil)
		return
	}
	writeJSON(w, http.StatusOK, p4p.PayPeriodSummary(day))
}

func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	year := h.now().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil || y < 1 || y > 9999 {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "year must be a number between 1 and 9999", nil)
			return
		}
		year = y
	}
	writeJSON(w, http.StatusOK, calendar.PeriodsForYear(year))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) GetPayrollReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.payrollReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) GetPayrollReportPDF(w http.ResponseWriter, r *http.Request) {
	report, ok := h.payrollReport(w, r)
	if !ok {
		return
	}
	pdf, err := RenderPayrollPDF(report)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="payroll-%s.pdf"`, report.Period.Start.String()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// payrollReport resolves ?date= (default today) to its pay period.
func (h *Handler) payrollReport(w http.ResponseWriter, r *http.Request) (p4p.PayrollReport, bool) {
	day := calendar.FromTime(h.now())
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := calendar.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "date must be YYYY-MM-DD", nil)
			return p4p.PayrollReport{}, false
		}
		day = d
	}
	report, err := h.Service.PayrollReport(r.Context(), calendar.PeriodContaining(day))
	if err != nil {
		writeDomainError(w, r, err)
		return p4p.PayrollReport{}, false
	}
	return report, true
}

// =============================================================================
// RECALCULATION HANDLERS
// =============================================================================

func (h *Handler) TriggerRecalc(w http.ResponseWriter, r *http.Request) {
	run, summary, err := h.Recalc.RunNow(r.Context(), TriggerManual)
	if errors.Is(err, ErrRecalcInProgress) {
		writeError(w, http.StatusConflict, CodeConflict, err.Error(), nil)
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecalcResponse{Run: toRecalcRunDTO(run), Summary: summary})
}

func (h *Handler) ListRecalcRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "limit must be a positive number", nil)
			return
		}
		limit = n
	}
	runs, err := h.Store.ListRecalcRuns(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]RecalcRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRecalcRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeConfigError  = "CONFIG_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details []p4p.FieldError) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeDomainError maps p4p errors to HTTP statuses. Unclassified errors are
// logged and reported as 500 without their text.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *p4p.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidInput, err.Error(), verr.Fields)
	case p4p.IsNotFound(err):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, p4p.ErrDuplicateAssignment), errors.Is(err, p4p.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, CodeConflict, err.Error(), nil)
	case p4p.IsConfigError(err):
		writeError(w, http.StatusUnprocessableEntity, CodeConfigError, err.Error(), nil)
	case p4p.IsClientError(err):
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidInput, err.Error(), nil)
	default:
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

// orNewID keeps a client-supplied ID or generates "<prefix>-<uuid>".
func orNewID(id, prefix string) string {
	if id != "" {
		return id
	}
	return prefix + "-" + uuid.NewString()
}

func toAssignmentDTOs(as []p4p.Assignment) []AssignmentDTO {
	dtos := make([]AssignmentDTO, len(as))
	for i, a := range as {
		dtos[i] = toAssignmentDTO(a)
	}
	return dtos
}
