/*
analyzer.go - Compliance and achievement findings per employee

PURPOSE:
  Rules look at an employee's history and return findings for supervisors:
  floor shortfalls, deductions left open too long, assignments that could
  not be paid. Achievement rules highlight crew leaders on large jobs.

KEY CONCEPTS:
  - History: everything a rule may look at, loaded once by Service.Analyze
  - Rule: one check; pure over History
  - RuleRegistry: ordered set of rules injected into Service (no globals)

ADDING A RULE:
  Implement Rule and register it on the registry passed to WithRules.
*/
package p4p

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type FindingKind string

const (
	FindingCompliance  FindingKind = "compliance"
	FindingAchievement FindingKind = "achievement"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Finding struct {
	Rule         string        `json:"rule"`
	Kind         FindingKind   `json:"kind"`
	Severity     Severity      `json:"severity"`
	Message      string        `json:"message"`
	JobID        *JobID        `json:"job_id,omitempty"`
	AssignmentID *AssignmentID `json:"assignment_id,omitempty"`
	IncidentID   *IncidentID   `json:"incident_id,omitempty"`
}

// History is an employee's record as seen by rules.
type History struct {
	Employee    Employee
	Assignments []Assignment
	Jobs        map[JobID]Job
	// Configs is keyed by job type. A job type with no usable active
	// configuration is absent.
	Configs   map[string]Configuration
	Incidents []Incident
	Floor     WageFloor
	AsOf      time.Time
}

// Rule evaluates one check over an employee history.
type Rule interface {
	Name() string
	Evaluate(h History) []Finding
}

// =============================================================================
// REGISTRY
// =============================================================================

type RuleRegistry struct {
	rules []Rule
}

func NewRuleRegistry(rules ...Rule) *RuleRegistry {
	return &RuleRegistry{rules: rules}
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *RuleRegistry {
	return NewRuleRegistry(
		FloorShortfallRule{},
		UnresolvedIncidentRule{MaxAge: 30 * 24 * time.Hour},
		ZeroJobsiteHoursRule{},
		LargeJobLeaderRule{MinJobs: 3},
	)
}

func (r *RuleRegistry) Register(rule Rule) {
	r.rules = append(r.rules, rule)
}

func (r *RuleRegistry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

func (r *RuleRegistry) Evaluate(h History) []Finding {
	var findings []Finding
	for _, rule := range r.rules {
		findings = append(findings, rule.Evaluate(h)...)
	}
	return findings
}

// =============================================================================
// SERVICE ENTRY POINT
// =============================================================================

// EmployeeAnalysis is returned by Service.Analyze.
type EmployeeAnalysis struct {
	EmployeeID EmployeeID `json:"employee_id"`
	Findings   []Finding  `json:"findings"`
	AsOf       time.Time  `json:"as_of"`
}

func (s *Service) Analyze(ctx context.Context, id EmployeeID) (EmployeeAnalysis, error) {
	emp, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		return EmployeeAnalysis{}, err
	}
	assignments, err := s.repo.GetAssignmentsForEmployee(ctx, id)
	if err != nil {
		return EmployeeAnalysis{}, fmt.Errorf("load assignments of employee %s: %w", id, err)
	}
	incidents, err := s.repo.GetIncidentsForEmployee(ctx, id)
	if err != nil {
		return EmployeeAnalysis{}, fmt.Errorf("load incidents of employee %s: %w", id, err)
	}

	h := History{
		Employee:    emp,
		Assignments: assignments,
		Jobs:        make(map[JobID]Job),
		Configs:     make(map[string]Configuration),
		Incidents:   incidents,
		Floor:       s.engine.Floor,
		AsOf:        s.now(),
	}
	tried := make(map[string]bool)
	for _, a := range assignments {
		if _, ok := h.Jobs[a.JobID]; ok {
			continue
		}
		job, err := s.repo.GetJob(ctx, a.JobID)
		if err != nil {
			return EmployeeAnalysis{}, fmt.Errorf("assignment %s: %w", a.ID, err)
		}
		h.Jobs[job.ID] = job
		if tried[job.JobType] {
			continue
		}
		tried[job.JobType] = true
		if cfg, err := ActiveConfigFor(ctx, s.repo, job.JobType); err == nil {
			h.Configs[job.JobType] = cfg
		} else if !IsConfigError(err) {
			return EmployeeAnalysis{}, err
		}
	}

	findings := s.rules.Evaluate(h)
	if findings == nil {
		findings = []Finding{}
	}
	return EmployeeAnalysis{EmployeeID: id, Findings: findings, AsOf: h.AsOf}, nil
}

// =============================================================================
// BUILT-IN RULES
// =============================================================================

// FloorShortfallRule flags single-period assignments whose stored P4P is below
// hours worked times the floor rate.
type FloorShortfallRule struct{}

func (FloorShortfallRule) Name() string { return "floor_shortfall" }

func (r FloorShortfallRule) Evaluate(h History) []Finding {
	var out []Finding
	for _, a := range h.Assignments {
		job, ok := h.Jobs[a.JobID]
		if !ok || !job.IsCompleted() || job.NeedsReconciliation() {
			continue
		}
		cfg, ok := h.Configs[job.JobType]
		if !ok {
			continue
		}
		rate, _ := h.Floor.Rate(cfg, h.Employee)
		minimum := rate.Mul(a.HoursWorked).Round()
		if !a.PerformancePay.LessThan(minimum) {
			continue
		}
		jobID, aID := job.ID, a.ID
		out = append(out, Finding{
			Rule:     r.Name(),
			Kind:     FindingCompliance,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("performance pay %s is below the floor of %s (%s h at %s); supplement %s",
				a.PerformancePay, minimum, a.HoursWorked.String(), rate, minimum.Sub(a.PerformancePay)),
			JobID:        &jobID,
			AssignmentID: &aID,
		})
	}
	return out
}

// UnresolvedIncidentRule flags deduction incidents left unresolved longer
// than MaxAge. They keep reducing every later P4P until resolved.
type UnresolvedIncidentRule struct {
	MaxAge time.Duration
}

func (UnresolvedIncidentRule) Name() string { return "unresolved_incident" }

func (r UnresolvedIncidentRule) Evaluate(h History) []Finding {
	var out []Finding
	for _, inc := range h.Incidents {
		if inc.Resolved || !inc.Type.IsDeduction() {
			continue
		}
		age := h.AsOf.Sub(inc.OccurredAt)
		if age < r.MaxAge {
			continue
		}
		id := inc.ID
		out = append(out, Finding{
			Rule:       r.Name(),
			Kind:       FindingCompliance,
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("%s of %s unresolved for %d days", inc.Type, inc.Cost, int(age.Hours()/24)),
			JobID:      inc.JobID,
			IncidentID: &id,
		})
	}
	return out
}

// ZeroJobsiteHoursRule flags completed assignments the engine skips.
type ZeroJobsiteHoursRule struct{}

func (ZeroJobsiteHoursRule) Name() string { return "zero_jobsite_hours" }

func (r ZeroJobsiteHoursRule) Evaluate(h History) []Finding {
	var out []Finding
	for _, a := range h.Assignments {
		job, ok := h.Jobs[a.JobID]
		if !ok || !job.IsCompleted() || a.JobsiteHours.IsPositive() {
			continue
		}
		jobID, aID := job.ID, a.ID
		out = append(out, Finding{
			Rule:         r.Name(),
			Kind:         FindingCompliance,
			Severity:     SeverityError,
			Message:      "completed assignment has no jobsite hours and cannot be paid P4P",
			JobID:        &jobID,
			AssignmentID: &aID,
		})
	}
	return out
}

// LargeJobLeaderRule recognizes employees who led at least MinJobs completed
// large jobs.
type LargeJobLeaderRule struct {
	MinJobs int
}

func (LargeJobLeaderRule) Name() string { return "large_job_leader" }

func (r LargeJobLeaderRule) Evaluate(h History) []Finding {
	led := 0
	hours := decimal.Zero
	for _, a := range h.Assignments {
		job, ok := h.Jobs[a.JobID]
		if !ok || !a.IsLeader || !job.IsCompleted() {
			continue
		}
		cfg, ok := h.Configs[job.JobType]
		if !ok || !job.IsLargeJob(cfg) {
			continue
		}
		led++
		hours = hours.Add(job.BudgetedHours)
	}
	if r.MinJobs <= 0 || led < r.MinJobs {
		return nil
	}
	return []Finding{{
		Rule:     r.Name(),
		Kind:     FindingAchievement,
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("led %d large jobs totalling %s budgeted hours", led, hours.String()),
	}}
}
