// Package store provides the in-memory p4p.Store used by tests, demos and the
// "memory" driver.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldcrew/p4p-engine/p4p"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	jobs        map[p4p.JobID]p4p.Job
	assignments map[p4p.AssignmentID]p4p.Assignment
	employees   map[p4p.EmployeeID]p4p.Employee
	incidents   map[p4p.IncidentID]p4p.Incident
	configs     map[string]p4p.Configuration
	runs        []p4p.RecalcRun

	// writes counts derived-field writes; tests use it to prove a failed
	// calculation wrote nothing.
	writes int
}

var _ p4p.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		jobs:        make(map[p4p.JobID]p4p.Job),
		assignments: make(map[p4p.AssignmentID]p4p.Assignment),
		employees:   make(map[p4p.EmployeeID]p4p.Employee),
		incidents:   make(map[p4p.IncidentID]p4p.Incident),
		configs:     make(map[string]p4p.Configuration),
	}
}

func (m *Memory) Close() error { return nil }

// Writes returns how many derived-field writes have been applied.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetJob(_ context.Context, id p4p.JobID) (p4p.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return p4p.Job{}, fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound)
	}
	return j, nil
}

func (m *Memory) GetAssignment(_ context.Context, id p4p.AssignmentID) (p4p.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return p4p.Assignment{}, fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound)
	}
	return a, nil
}

func (m *Memory) GetAssignmentsForJob(_ context.Context, jobID p4p.JobID) ([]p4p.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAssignments(func(a p4p.Assignment) bool { return a.JobID == jobID }), nil
}

func (m *Memory) GetAssignmentsForEmployee(_ context.Context, employeeID p4p.EmployeeID) ([]p4p.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAssignments(func(a p4p.Assignment) bool { return a.EmployeeID == employeeID }), nil
}

func (m *Memory) filterAssignments(keep func(p4p.Assignment) bool) []p4p.Assignment {
	var out []p4p.Assignment
	for _, a := range m.assignments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) ActiveConfigs(_ context.Context, jobType string) ([]p4p.Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []p4p.Configuration
	for _, c := range m.configs {
		if c.JobType == jobType && c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListConfigurations(_ context.Context, jobType string) ([]p4p.Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []p4p.Configuration
	for _, c := range m.configs {
		if jobType == "" || c.JobType == jobType {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetIncidentsForEmployee(_ context.Context, employeeID p4p.EmployeeID) ([]p4p.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []p4p.Incident
	for _, i := range m.incidents {
		if i.EmployeeID == employeeID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (m *Memory) GetEmployee(_ context.Context, id p4p.EmployeeID) (p4p.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return p4p.Employee{}, fmt.Errorf("employee %s: %w", id, p4p.ErrEmployeeNotFound)
	}
	return e, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]p4p.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]p4p.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListJobs(_ context.Context, filter p4p.JobFilter) ([]p4p.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []p4p.Job
	for _, j := range m.jobs {
		if filter.Matches(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// DERIVED-FIELD WRITES
// =============================================================================

func (m *Memory) updateAssignment(id p4p.AssignmentID, fn func(*p4p.Assignment)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound)
	}
	fn(&a)
	m.assignments[id] = a
	m.writes++
	return nil
}

func (m *Memory) SetAssignmentPerformancePay(_ context.Context, id p4p.AssignmentID, amount p4p.Money) error {
	return m.updateAssignment(id, func(a *p4p.Assignment) { a.PerformancePay = amount })
}

func (m *Memory) SetAssignmentHourlyFlag(_ context.Context, id p4p.AssignmentID, hourly bool) error {
	return m.updateAssignment(id, func(a *p4p.Assignment) { a.IsHourlyPayment = hourly })
}

func (m *Memory) SetAssignmentInterimPay(_ context.Context, id p4p.AssignmentID, amount p4p.Money) error {
	return m.updateAssignment(id, func(a *p4p.Assignment) { a.InterimPay = amount })
}

func (m *Memory) MarkJobSpansPeriods(_ context.Context, id p4p.JobID, spans bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound)
	}
	j.SpansPeriods = spans
	m.jobs[id] = j
	m.writes++
	return nil
}

func (m *Memory) SetJobCompleted(_ context.Context, id p4p.JobID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound)
	}
	j.Status = p4p.JobCompleted
	utc := at.UTC()
	j.CompletedAt = &utc
	m.jobs[id] = j
	m.writes++
	return nil
}

// =============================================================================
// ADMIN WRITES
// =============================================================================

func (m *Memory) SaveJob(_ context.Context, job p4p.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.CompletedAt != nil {
		utc := job.CompletedAt.UTC()
		job.CompletedAt = &utc
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

// SaveAssignment rejects a second assignment of the same employee on the
// same job.
func (m *Memory) SaveAssignment(_ context.Context, a p4p.Assignment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[a.JobID]; !ok {
		return fmt.Errorf("job %s: %w", a.JobID, p4p.ErrJobNotFound)
	}
	if _, ok := m.employees[a.EmployeeID]; !ok {
		return fmt.Errorf("employee %s: %w", a.EmployeeID, p4p.ErrEmployeeNotFound)
	}
	for _, other := range m.assignments {
		if other.ID != a.ID && other.JobID == a.JobID && other.EmployeeID == a.EmployeeID {
			return fmt.Errorf("employee %s on job %s: %w", a.EmployeeID, a.JobID, p4p.ErrDuplicateAssignment)
		}
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) SaveEmployee(_ context.Context, e p4p.Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) SaveIncident(_ context.Context, i p4p.Incident) error {
	if err := i.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[i.ID] = i
	return nil
}

// SaveConfiguration deactivates every other configuration of the job type
// when c is active.
func (m *Memory) SaveConfiguration(_ context.Context, c p4p.Configuration) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Active {
		for id, other := range m.configs {
			if id != c.ID && other.JobType == c.JobType && other.Active {
				other.Active = false
				m.configs[id] = other
			}
		}
	}
	m.configs[c.ID] = c
	return nil
}

// PutConfigurationRaw stores c without the single-active rule, to reproduce
// data written by other systems.
func (m *Memory) PutConfigurationRaw(c p4p.Configuration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[c.ID] = c
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

func (m *Memory) SaveRecalcRun(_ context.Context, run p4p.RecalcRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

// ListRecalcRuns returns the newest runs first.
func (m *Memory) ListRecalcRuns(_ context.Context, limit int) ([]p4p.RecalcRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]p4p.RecalcRun, len(m.runs))
	copy(out, m.runs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
