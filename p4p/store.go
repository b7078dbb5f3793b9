/*
store.go - Persistence interface between the engine and its environment

PURPOSE:
  The engine never talks to a database directly. It reads jobs, rosters,
  configuration, incidents and employees through Reader, and writes only the
  derived pay fields through Writer. Admin writes (creating jobs, saving
  configuration) live on AdminStore so the core's write surface stays small.

NOT-FOUND CONTRACT:
  Get* methods return the matching sentinel (ErrJobNotFound, ...) when the
  record does not exist. They never return a zero value with a nil error.

ACTIVE CONFIGURATION:
  SaveConfiguration with Active=true deactivates every other configuration
  of the same job type in the same write. ActiveConfigs still returns a
  slice so ActiveConfigFor can report data that bypassed that rule.

IMPLEMENTATIONS:
  - p4p/store/memory.go: In-memory, for tests and demos
  - store/sqlite: SQLite
  - store/postgres: PostgreSQL via pgx
*/
package p4p

import (
	"context"
	"time"

	"github.com/fieldcrew/p4p-engine/calendar"
)

// Reader is the read side the engine consumes.
type Reader interface {
	GetJob(ctx context.Context, id JobID) (Job, error)
	GetAssignment(ctx context.Context, id AssignmentID) (Assignment, error)
	GetAssignmentsForJob(ctx context.Context, jobID JobID) ([]Assignment, error)
	GetAssignmentsForEmployee(ctx context.Context, employeeID EmployeeID) ([]Assignment, error)
	ActiveConfigs(ctx context.Context, jobType string) ([]Configuration, error)
	GetIncidentsForEmployee(ctx context.Context, employeeID EmployeeID) ([]Incident, error)
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)
}

// Writer is the only write surface the engine uses.
type Writer interface {
	SetAssignmentPerformancePay(ctx context.Context, id AssignmentID, amount Money) error
	SetAssignmentHourlyFlag(ctx context.Context, id AssignmentID, hourly bool) error
	SetAssignmentInterimPay(ctx context.Context, id AssignmentID, amount Money) error
	MarkJobSpansPeriods(ctx context.Context, id JobID, spans bool) error
	SetJobCompleted(ctx context.Context, id JobID, at time.Time) error
}

// Repository is what Service needs.
type Repository interface {
	Reader
	Writer
}

// AdminStore holds record maintenance used by the API and CLI.
type AdminStore interface {
	SaveJob(ctx context.Context, job Job) error
	SaveAssignment(ctx context.Context, a Assignment) error
	SaveEmployee(ctx context.Context, e Employee) error
	SaveIncident(ctx context.Context, i Incident) error
	SaveConfiguration(ctx context.Context, c Configuration) error
	ListConfigurations(ctx context.Context, jobType string) ([]Configuration, error)
}

// RunStore records bulk recalculation runs.
type RunStore interface {
	SaveRecalcRun(ctx context.Context, run RecalcRun) error
	ListRecalcRuns(ctx context.Context, limit int) ([]RecalcRun, error)
}

// Store is the full persistence surface implemented by every backend.
type Store interface {
	Repository
	AdminStore
	RunStore
	Close() error
}

// JobFilter narrows ListJobs. Zero value matches every job.
type JobFilter struct {
	Status JobStatus
	// CompletedIn keeps only jobs whose CompletedAt falls in the period.
	CompletedIn *calendar.PayPeriod
}

// Matches applies the filter in memory. SQL backends push Status down and
// apply the rest here.
func (f JobFilter) Matches(j Job) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.CompletedIn != nil {
		day, ok := j.CompletedDay()
		if !ok || !f.CompletedIn.Contains(day) {
			return false
		}
	}
	return true
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RecalcRun is the audit row of one RecalculateAllCompletedJobs call.
type RecalcRun struct {
	ID          string
	Trigger     string // "scheduled", "manual", "cli"
	Status      RunStatus
	Total       int
	Succeeded   int
	Skipped     int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}
