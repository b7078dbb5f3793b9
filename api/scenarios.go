/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	crews, jobs and pay rules. Each scenario creates configurations,
	employees, jobs and assignments, then completes the jobs so every
	calculation path has data behind it.

AVAILABLE SCENARIOS:

	crew-single-day:     Leader, trainee and regular worker on one mowing job
	spanning-job:        Multi-day job across the A/B boundary, reconciled
	spring-seasonal:     Landscaping job finished inside the seasonal window
	floor-and-incidents: Under-budgeted maintenance job, floor and deductions

HOW SCENARIOS WORK:
 1. Save the configurations via the factory presets
 2. Save employees and open (in-progress) jobs
 3. Assign crews; period-spanning jobs get interim hourly pay
 4. Record incidents
 5. Complete the jobs, which calculates or reconciles pay

Records use fixed IDs, so loading a scenario again resets its jobs to
in-progress and replays the same steps. Other data is left alone.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "spanning-job"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and loader
 2. Write the loader: loadXxxScenario(ctx)

NOTE:

	Scenarios write to whatever store is configured. Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: assign, shared with CreateAssignment
  - factory/presets.go: Configuration presets
  - cmd/p4pctl: "scenario" command
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/factory"
	"github.com/fieldcrew/p4p-engine/p4p"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	JobType     string `json:"job_type"`
}

type scenario struct {
	ScenarioDTO
	load func(h *Handler, ctx context.Context) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "crew-single-day",
			Name:        "Single-Day Crew",
			Description: "Leader, trainee and regular worker splitting one mowing job",
			JobType:     "mowing",
		},
		load: (*Handler).loadCrewSingleDayScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "spanning-job",
			Name:        "Period-Spanning Job",
			Description: "Multi-day job crossing the 25th: interim hourly pay, then reconciliation",
			JobType:     "mowing",
		},
		load: (*Handler).loadSpanningJobScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "spring-seasonal",
			Name:        "Spring Seasonal Bonus",
			Description: "Large landscaping job completed in May, inside the seasonal window",
			JobType:     "landscaping",
		},
		load: (*Handler).loadSpringSeasonalScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "floor-and-incidents",
			Name:        "Wage Floor and Incidents",
			Description: "Under-budgeted maintenance job with a property damage deduction",
			JobType:     "maintenance",
		},
		load: (*Handler).loadFloorAndIncidentsScenario,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// Scenarios lists the available scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// GetCurrentScenario returns the last scenario loaded through this handler,
// or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}
	if _, ok := findScenario(req.ScenarioID); !ok {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, fmt.Sprintf("unknown scenario %q", req.ScenarioID), nil)
		return
	}

	if err := h.ApplyScenario(r.Context(), req.ScenarioID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ApplyScenario writes scenario id to the store. Loads are serialized.
func (h *Handler) ApplyScenario(ctx context.Context, id string) error {
	s, ok := findScenario(id)
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()
	if err := s.load(h, ctx); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadCrewSingleDayScenario(ctx context.Context) error {
	if err := h.saveConfiguration(ctx, factory.MowingJSON("cfg-mowing")); err != nil {
		return err
	}
	crew := []p4p.Employee{
		{ID: "emp-lead", Name: "Marta Reyes", Position: "crew lead", BaseHourlyRate: p4p.MustParseMoney("22"), Active: true},
		{ID: "emp-new", Name: "Sam Ortiz", Position: "trainee", BaseHourlyRate: p4p.MustParseMoney("17"), Active: true},
		{ID: "emp-crew", Name: "Lee Park", Position: "crew", BaseHourlyRate: p4p.MustParseMoney("19"), Active: true},
	}
	if err := h.saveEmployees(ctx, crew...); err != nil {
		return err
	}

	job, err := h.openJob(ctx, p4p.Job{
		ID:            "job-crew-0715",
		JobType:       "mowing",
		Category:      p4p.SingleDay,
		BudgetedHours: decimal.NewFromInt(20),
		LaborRevenue:  p4p.MustParseMoney("1450"),
		StartDate:     scenarioDate("2024-07-15"),
		EndDate:       scenarioDate("2024-07-15"),
	})
	if err != nil {
		return err
	}

	roster := []p4p.Assignment{
		{ID: "asg-crew-lead", EmployeeID: "emp-lead", HoursWorked: scenarioHours("7.5"), JobsiteHours: scenarioHours("6.5"), IsLeader: true},
		{ID: "asg-crew-new", EmployeeID: "emp-new", HoursWorked: scenarioHours("7.5"), JobsiteHours: scenarioHours("6.5"), IsTraining: true},
		{ID: "asg-crew-crew", EmployeeID: "emp-crew", HoursWorked: scenarioHours("7"), JobsiteHours: scenarioHours("6")},
	}
	if err := h.assignAll(ctx, job, roster); err != nil {
		return err
	}
	return h.completeJob(ctx, job.ID, "2024-07-15T16:30:00Z")
}

func (h *Handler) loadSpanningJobScenario(ctx context.Context) error {
	if err := h.saveConfiguration(ctx, factory.MowingJSON("cfg-mowing")); err != nil {
		return err
	}
	if err := h.saveEmployees(ctx, p4p.Employee{
		ID: "emp-ana", Name: "Ana Lima", Position: "crew", BaseHourlyRate: p4p.MustParseMoney("19.25"), Active: true,
	}); err != nil {
		return err
	}

	// Starts in 2024-07 A, finishes in 2024-07 B.
	job, err := h.openJob(ctx, p4p.Job{
		ID:            "job-span-0722",
		JobType:       "mowing",
		Category:      p4p.MultiDay,
		BudgetedHours: decimal.NewFromInt(30),
		LaborRevenue:  p4p.MustParseMoney("2400.10"),
		StartDate:     scenarioDate("2024-07-22"),
		EndDate:       scenarioDate("2024-07-29"),
	})
	if err != nil {
		return err
	}
	if err := h.assignAll(ctx, job, []p4p.Assignment{
		{ID: "asg-span-ana", EmployeeID: "emp-ana", HoursWorked: scenarioHours("10.5"), JobsiteHours: scenarioHours("9.25")},
	}); err != nil {
		return err
	}
	return h.completeJob(ctx, job.ID, "2024-07-29T17:00:00Z")
}

func (h *Handler) loadSpringSeasonalScenario(ctx context.Context) error {
	if err := h.saveConfiguration(ctx, factory.LandscapingJSON("cfg-landscaping")); err != nil {
		return err
	}
	crew := []p4p.Employee{
		{ID: "emp-jo", Name: "Jo Chen", Position: "crew lead", BaseHourlyRate: p4p.MustParseMoney("23"), Active: true},
		{ID: "emp-kai", Name: "Kai Moore", Position: "crew", BaseHourlyRate: p4p.MustParseMoney("19"), Active: true},
	}
	if err := h.saveEmployees(ctx, crew...); err != nil {
		return err
	}

	job, err := h.openJob(ctx, p4p.Job{
		ID:            "job-spring-0513",
		JobType:       "landscaping",
		Category:      p4p.MultiDay,
		BudgetedHours: decimal.NewFromInt(56),
		LaborRevenue:  p4p.MustParseMoney("5200"),
		StartDate:     scenarioDate("2024-05-13"),
		EndDate:       scenarioDate("2024-05-17"),
	})
	if err != nil {
		return err
	}
	if err := h.assignAll(ctx, job, []p4p.Assignment{
		{ID: "asg-spring-jo", EmployeeID: "emp-jo", HoursWorked: scenarioHours("30"), JobsiteHours: scenarioHours("27"), IsLeader: true},
		{ID: "asg-spring-kai", EmployeeID: "emp-kai", HoursWorked: scenarioHours("29"), JobsiteHours: scenarioHours("26")},
	}); err != nil {
		return err
	}
	return h.completeJob(ctx, job.ID, "2024-05-17T18:00:00Z")
}

func (h *Handler) loadFloorAndIncidentsScenario(ctx context.Context) error {
	if err := h.saveConfiguration(ctx, factory.MaintenanceJSON("cfg-maintenance")); err != nil {
		return err
	}
	if err := h.saveEmployees(ctx, p4p.Employee{
		ID: "emp-rio", Name: "Rio Santos", Position: "crew", BaseHourlyRate: p4p.MustParseMoney("18.50"), Active: true,
	}); err != nil {
		return err
	}

	// Revenue this low pays under the floor for the hours worked.
	job, err := h.openJob(ctx, p4p.Job{
		ID:            "job-maint-0812",
		JobType:       "maintenance",
		Category:      p4p.SingleDay,
		BudgetedHours: decimal.NewFromInt(4),
		LaborRevenue:  p4p.MustParseMoney("220"),
		StartDate:     scenarioDate("2024-08-12"),
		EndDate:       scenarioDate("2024-08-12"),
	})
	if err != nil {
		return err
	}
	if err := h.assignAll(ctx, job, []p4p.Assignment{
		{ID: "asg-maint-rio", EmployeeID: "emp-rio", HoursWorked: scenarioHours("6"), JobsiteHours: scenarioHours("5")},
	}); err != nil {
		return err
	}

	jobID := job.ID
	if err := h.Store.SaveIncident(ctx, p4p.Incident{
		ID:         "inc-maint-damage",
		EmployeeID: "emp-rio",
		JobID:      &jobID,
		Type:       p4p.IncidentPropertyDamage,
		Cost:       p4p.MustParseMoney("45"),
		OccurredAt: time.Date(2024, time.August, 12, 11, 0, 0, 0, time.UTC),
	}); err != nil {
		return err
	}
	return h.completeJob(ctx, job.ID, "2024-08-12T15:00:00Z")
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) saveConfiguration(ctx context.Context, jsonStr string) error {
	cfg, err := h.Configs.ParseConfiguration(jsonStr)
	if err != nil {
		return err
	}
	return h.Store.SaveConfiguration(ctx, cfg)
}

func (h *Handler) saveEmployees(ctx context.Context, employees ...p4p.Employee) error {
	for _, e := range employees {
		if err := h.Store.SaveEmployee(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// openJob saves job as in-progress, clearing any earlier completion.
func (h *Handler) openJob(ctx context.Context, job p4p.Job) (p4p.Job, error) {
	job.Status = p4p.JobInProgress
	job.CompletedAt = nil
	job.SpansPeriods = false
	if err := h.Store.SaveJob(ctx, job); err != nil {
		return p4p.Job{}, err
	}
	return h.Store.GetJob(ctx, job.ID)
}

func (h *Handler) assignAll(ctx context.Context, job p4p.Job, roster []p4p.Assignment) error {
	for _, a := range roster {
		if _, _, err := h.assign(ctx, job, a); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) completeJob(ctx context.Context, id p4p.JobID, at string) error {
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return err
	}
	_, err = h.Service.CompleteJob(ctx, id, t)
	return err
}

func scenarioDate(s string) *calendar.Date {
	d := calendar.MustParseDate(s)
	return &d
}

func scenarioHours(s string) decimal.Decimal { return decimal.RequireFromString(s) }
