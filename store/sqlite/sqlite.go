/*
Package sqlite provides a SQLite-backed implementation of p4p.Store.

PURPOSE:
  Persists jobs, assignments, employees, incidents, configurations and
  recalculation runs. The same schema shape is used by store/postgres; only
  the dialect differs.

KEY TABLES:
  configurations:  P4P rules per job type (one active per job type)
  jobs:            Revenue units, lifecycle status, period-span flag
  assignments:     Employee on job; derived pay columns written by the engine
  employees:       Workers with their base rate
  incidents:       Deductions and bonuses, open until resolved
  recalc_runs:     Audit rows of bulk recalculation

MONEY AND HOURS:
  Stored as TEXT holding the decimal string, never REAL. Dates are
  YYYY-MM-DD, instants RFC3339 UTC.

INDEXES:
  - idx_assignments_job_employee: one assignment per employee per job
  - idx_configurations_active: the active-config lookup (hot path)
  - idx_jobs_status_completed: bulk recalculation and period reports

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows a single writer; the
  mutex keeps the driver from returning SQLITE_BUSY under the bulk
  recalculation fan-out.

USAGE:
  store, err := sqlite.New("./data/p4p.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := p4p.NewService(store, floor)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - p4p/store.go: Interface definitions
  - p4p/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/p4p"
)

// Store implements p4p.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ p4p.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives as long as its single connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS configurations (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		revenue_share_percent TEXT NOT NULL,
		seasonal_bonus_percent TEXT NOT NULL DEFAULT '0',
		seasonal_start_month INTEGER NOT NULL DEFAULT 0,
		seasonal_end_month INTEGER NOT NULL DEFAULT 0,
		seasonal_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		minimum_hourly_rate TEXT NOT NULL,
		training_bonus_per_hour TEXT NOT NULL,
		large_job_hour_threshold TEXT NOT NULL,
		large_job_bonus_per_hour TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_configurations_active
		ON configurations(job_type, active);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		base_hourly_rate TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		category TEXT NOT NULL,
		budgeted_hours TEXT NOT NULL,
		actual_hours TEXT,
		labor_revenue TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		start_date TEXT,
		end_date TEXT,
		completed_at TEXT,
		spans_periods BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status_completed
		ON jobs(status, completed_at);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs(id),
		employee_id TEXT NOT NULL REFERENCES employees(id),
		hours_worked TEXT NOT NULL,
		jobsite_hours TEXT NOT NULL,
		is_leader BOOLEAN NOT NULL DEFAULT FALSE,
		is_training BOOLEAN NOT NULL DEFAULT FALSE,
		performance_pay TEXT NOT NULL DEFAULT '0',
		is_hourly_payment BOOLEAN NOT NULL DEFAULT FALSE,
		interim_pay TEXT NOT NULL DEFAULT '0',
		pay_period_type TEXT NOT NULL DEFAULT ''
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_job_employee
		ON assignments(job_id, employee_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_employee
		ON assignments(employee_id);

	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		job_id TEXT,
		incident_type TEXT NOT NULL,
		cost TEXT NOT NULL DEFAULT '0',
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_employee
		ON incidents(employee_id, resolved);

	CREATE TABLE IF NOT EXISTS recalc_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_recalc_runs_started
		ON recalc_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CONFIGURATIONS
// =============================================================================

const configColumns = `id, job_type, revenue_share_percent, seasonal_bonus_percent,
	seasonal_start_month, seasonal_end_month, seasonal_eligible, minimum_hourly_rate,
	training_bonus_per_hour, large_job_hour_threshold, large_job_bonus_per_hour,
	active, updated_at`

// SaveConfiguration upserts c. When c is active every other configuration of
// the job type is deactivated in the same transaction.
func (s *Store) SaveConfiguration(ctx context.Context, c p4p.Configuration) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if c.Active {
		if _, err := tx.ExecContext(ctx,
			"UPDATE configurations SET active = FALSE WHERE job_type = ? AND id <> ?",
			c.JobType, c.ID,
		); err != nil {
			return fmt.Errorf("failed to deactivate configurations: %w", err)
		}
	}

	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO configurations (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_type = excluded.job_type,
			revenue_share_percent = excluded.revenue_share_percent,
			seasonal_bonus_percent = excluded.seasonal_bonus_percent,
			seasonal_start_month = excluded.seasonal_start_month,
			seasonal_end_month = excluded.seasonal_end_month,
			seasonal_eligible = excluded.seasonal_eligible,
			minimum_hourly_rate = excluded.minimum_hourly_rate,
			training_bonus_per_hour = excluded.training_bonus_per_hour,
			large_job_hour_threshold = excluded.large_job_hour_threshold,
			large_job_bonus_per_hour = excluded.large_job_bonus_per_hour,
			active = excluded.active,
			updated_at = excluded.updated_at
	`,
		c.ID, c.JobType, c.RevenueSharePercent.String(), c.SeasonalBonusPercent.String(),
		int(c.SeasonalStartMonth), int(c.SeasonalEndMonth), c.SeasonalEligible,
		c.MinimumHourlyRate.Value.String(), c.TrainingBonusPerHour.Value.String(),
		c.LargeJobHourThreshold.String(), c.LargeJobBonusPerHour.Value.String(),
		c.Active, formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ActiveConfigs(ctx context.Context, jobType string) ([]p4p.Configuration, error) {
	return s.queryConfigs(ctx,
		"SELECT "+configColumns+" FROM configurations WHERE job_type = ? AND active = TRUE ORDER BY id",
		jobType)
}

func (s *Store) ListConfigurations(ctx context.Context, jobType string) ([]p4p.Configuration, error) {
	if jobType == "" {
		return s.queryConfigs(ctx, "SELECT "+configColumns+" FROM configurations ORDER BY job_type, id")
	}
	return s.queryConfigs(ctx,
		"SELECT "+configColumns+" FROM configurations WHERE job_type = ? ORDER BY id", jobType)
}

func (s *Store) queryConfigs(ctx context.Context, query string, args ...any) ([]p4p.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configurations: %w", err)
	}
	defer rows.Close()

	var configs []p4p.Configuration
	for rows.Next() {
		var c p4p.Configuration
		var share, seasonal, floor, training, threshold, bonus, updated string
		var start, end int
		if err := rows.Scan(&c.ID, &c.JobType, &share, &seasonal, &start, &end, &c.SeasonalEligible,
			&floor, &training, &threshold, &bonus, &c.Active, &updated); err != nil {
			return nil, err
		}
		c.RevenueSharePercent = parseDecimal(share)
		c.SeasonalBonusPercent = parseDecimal(seasonal)
		c.SeasonalStartMonth = time.Month(start)
		c.SeasonalEndMonth = time.Month(end)
		c.MinimumHourlyRate = parseMoney(floor)
		c.TrainingBonusPerHour = parseMoney(training)
		c.LargeJobHourThreshold = parseDecimal(threshold)
		c.LargeJobBonusPerHour = parseMoney(bonus)
		if c.UpdatedAt, err = parseTime("configurations.updated_at", updated); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e p4p.Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, position, base_hourly_rate, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			position = excluded.position,
			base_hourly_rate = excluded.base_hourly_rate,
			active = excluded.active
	`, e.ID, e.Name, e.Position, e.BaseHourlyRate.Value.String(), e.Active)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id p4p.EmployeeID) (p4p.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e p4p.Employee
	var rate string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, position, base_hourly_rate, active FROM employees WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.Position, &rate, &e.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return p4p.Employee{}, fmt.Errorf("employee %s: %w", id, p4p.ErrEmployeeNotFound)
	}
	if err != nil {
		return p4p.Employee{}, err
	}
	e.BaseHourlyRate = parseMoney(rate)
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]p4p.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, position, base_hourly_rate, active FROM employees ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []p4p.Employee
	for rows.Next() {
		var e p4p.Employee
		var rate string
		if err := rows.Scan(&e.ID, &e.Name, &e.Position, &rate, &e.Active); err != nil {
			return nil, err
		}
		e.BaseHourlyRate = parseMoney(rate)
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// =============================================================================
// JOBS
// =============================================================================

const jobColumns = `id, job_type, category, budgeted_hours, actual_hours, labor_revenue,
	status, start_date, end_date, completed_at, spans_periods, created_at`

func (s *Store) SaveJob(ctx context.Context, j p4p.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var actual sql.NullString
	if j.ActualHours != nil {
		actual = nullString(j.ActualHours.String())
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_type = excluded.job_type,
			category = excluded.category,
			budgeted_hours = excluded.budgeted_hours,
			actual_hours = excluded.actual_hours,
			labor_revenue = excluded.labor_revenue,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			completed_at = excluded.completed_at,
			spans_periods = excluded.spans_periods
	`,
		j.ID, j.JobType, string(j.Category), j.BudgetedHours.String(), actual,
		j.LaborRevenue.Value.String(), string(j.Status),
		formatDatePtr(j.StartDate), formatDatePtr(j.EndDate), formatTimePtr(j.CompletedAt),
		j.SpansPeriods, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id p4p.JobID) (p4p.Job, error) {
	jobs, err := s.queryJobs(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	if err != nil {
		return p4p.Job{}, err
	}
	if len(jobs) == 0 {
		return p4p.Job{}, fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound)
	}
	return jobs[0], nil
}

// ListJobs pushes the status filter into SQL and applies the period filter
// on the decoded rows (completed_at is compared by calendar day).
func (s *Store) ListJobs(ctx context.Context, filter p4p.JobFilter) ([]p4p.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY id"

	jobs, err := s.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []p4p.Job
	for _, j := range jobs {
		if filter.Matches(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]p4p.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []p4p.Job
	for rows.Next() {
		var j p4p.Job
		var category, status, budgeted, revenue, created string
		var actual, start, end, completed sql.NullString
		if err := rows.Scan(&j.ID, &j.JobType, &category, &budgeted, &actual, &revenue,
			&status, &start, &end, &completed, &j.SpansPeriods, &created); err != nil {
			return nil, err
		}
		j.Category = p4p.JobCategory(category)
		j.Status = p4p.JobStatus(status)
		j.BudgetedHours = parseDecimal(budgeted)
		j.LaborRevenue = parseMoney(revenue)
		if j.CreatedAt, err = parseTime("jobs.created_at", created); err != nil {
			return nil, err
		}
		if actual.Valid {
			h := parseDecimal(actual.String)
			j.ActualHours = &h
		}
		j.StartDate = parseDatePtr(start)
		j.EndDate = parseDatePtr(end)
		if completed.Valid {
			t, err := parseTime("jobs.completed_at", completed.String)
			if err != nil {
				return nil, fmt.Errorf("job %s: %w", j.ID, err)
			}
			j.CompletedAt = &t
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) MarkJobSpansPeriods(ctx context.Context, id p4p.JobID, spans bool) error {
	return s.exec(ctx, fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound),
		"UPDATE jobs SET spans_periods = ? WHERE id = ?", spans, id)
}

func (s *Store) SetJobCompleted(ctx context.Context, id p4p.JobID, at time.Time) error {
	return s.exec(ctx, fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound),
		"UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?", string(p4p.JobCompleted), formatTime(at), id)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

const assignmentColumns = `id, job_id, employee_id, hours_worked, jobsite_hours, is_leader,
	is_training, performance_pay, is_hourly_payment, interim_pay, pay_period_type`

// SaveAssignment upserts the assignment's inputs. Derived pay columns are
// only written through the Set* methods.
func (s *Store) SaveAssignment(ctx context.Context, a p4p.Assignment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireExists(ctx, "jobs", string(a.JobID), fmt.Errorf("job %s: %w", a.JobID, p4p.ErrJobNotFound)); err != nil {
		return err
	}
	if err := s.requireExists(ctx, "employees", string(a.EmployeeID), fmt.Errorf("employee %s: %w", a.EmployeeID, p4p.ErrEmployeeNotFound)); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hours_worked = excluded.hours_worked,
			jobsite_hours = excluded.jobsite_hours,
			is_leader = excluded.is_leader,
			is_training = excluded.is_training,
			pay_period_type = excluded.pay_period_type
	`,
		a.ID, a.JobID, a.EmployeeID, a.HoursWorked.String(), a.JobsiteHours.String(),
		a.IsLeader, a.IsTraining, a.PerformancePay.Value.String(), a.IsHourlyPayment,
		a.InterimPay.Value.String(), string(a.PayPeriodType),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("employee %s on job %s: %w", a.EmployeeID, a.JobID, p4p.ErrDuplicateAssignment)
	}
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, id p4p.AssignmentID) (p4p.Assignment, error) {
	as, err := s.queryAssignments(ctx, "SELECT "+assignmentColumns+" FROM assignments WHERE id = ?", id)
	if err != nil {
		return p4p.Assignment{}, err
	}
	if len(as) == 0 {
		return p4p.Assignment{}, fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound)
	}
	return as[0], nil
}

func (s *Store) GetAssignmentsForJob(ctx context.Context, jobID p4p.JobID) ([]p4p.Assignment, error) {
	return s.queryAssignments(ctx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE job_id = ? ORDER BY id", jobID)
}

func (s *Store) GetAssignmentsForEmployee(ctx context.Context, employeeID p4p.EmployeeID) ([]p4p.Assignment, error) {
	return s.queryAssignments(ctx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE employee_id = ? ORDER BY id", employeeID)
}

func (s *Store) queryAssignments(ctx context.Context, query string, args ...any) ([]p4p.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []p4p.Assignment
	for rows.Next() {
		var a p4p.Assignment
		var worked, jobsite, pay, interim, periodType string
		if err := rows.Scan(&a.ID, &a.JobID, &a.EmployeeID, &worked, &jobsite, &a.IsLeader,
			&a.IsTraining, &pay, &a.IsHourlyPayment, &interim, &periodType); err != nil {
			return nil, err
		}
		a.HoursWorked = parseDecimal(worked)
		a.JobsiteHours = parseDecimal(jobsite)
		a.PerformancePay = parseMoney(pay)
		a.InterimPay = parseMoney(interim)
		a.PayPeriodType = calendar.PeriodType(periodType)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SetAssignmentPerformancePay(ctx context.Context, id p4p.AssignmentID, amount p4p.Money) error {
	return s.exec(ctx, fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound),
		"UPDATE assignments SET performance_pay = ? WHERE id = ?", amount.Value.String(), id)
}

func (s *Store) SetAssignmentHourlyFlag(ctx context.Context, id p4p.AssignmentID, hourly bool) error {
	return s.exec(ctx, fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound),
		"UPDATE assignments SET is_hourly_payment = ? WHERE id = ?", hourly, id)
}

func (s *Store) SetAssignmentInterimPay(ctx context.Context, id p4p.AssignmentID, amount p4p.Money) error {
	return s.exec(ctx, fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound),
		"UPDATE assignments SET interim_pay = ? WHERE id = ?", amount.Value.String(), id)
}

// =============================================================================
// INCIDENTS
// =============================================================================

func (s *Store) SaveIncident(ctx context.Context, i p4p.Incident) error {
	if err := i.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireExists(ctx, "employees", string(i.EmployeeID), fmt.Errorf("employee %s: %w", i.EmployeeID, p4p.ErrEmployeeNotFound)); err != nil {
		return err
	}
	var jobID sql.NullString
	if i.JobID != nil {
		jobID = nullString(string(*i.JobID))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, employee_id, job_id, incident_type, cost, resolved, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_id = excluded.job_id,
			incident_type = excluded.incident_type,
			cost = excluded.cost,
			resolved = excluded.resolved,
			occurred_at = excluded.occurred_at
	`, i.ID, i.EmployeeID, jobID, string(i.Type), i.Cost.Value.String(), i.Resolved, formatTime(i.OccurredAt))
	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

func (s *Store) GetIncidentsForEmployee(ctx context.Context, employeeID p4p.EmployeeID) ([]p4p.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, job_id, incident_type, cost, resolved, occurred_at
		FROM incidents WHERE employee_id = ? ORDER BY occurred_at, id
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var out []p4p.Incident
	for rows.Next() {
		var i p4p.Incident
		var jobID sql.NullString
		var incType, cost, occurred string
		if err := rows.Scan(&i.ID, &i.EmployeeID, &jobID, &incType, &cost, &i.Resolved, &occurred); err != nil {
			return nil, err
		}
		if jobID.Valid {
			id := p4p.JobID(jobID.String)
			i.JobID = &id
		}
		i.Type = p4p.IncidentType(incType)
		i.Cost = parseMoney(cost)
		if i.OccurredAt, err = parseTime("incidents.occurred_at", occurred); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

func (s *Store) SaveRecalcRun(ctx context.Context, r p4p.RecalcRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recalc_runs (id, trigger_source, status, total, succeeded, skipped, failed,
			error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			succeeded = excluded.succeeded,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, r.ID, r.Trigger, string(r.Status), r.Total, r.Succeeded, r.Skipped, r.Failed,
		r.Error, formatTime(r.StartedAt), formatTimePtr(r.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save recalc run: %w", err)
	}
	return nil
}

func (s *Store) ListRecalcRuns(ctx context.Context, limit int) ([]p4p.RecalcRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_source, status, total, succeeded, skipped, failed, error, started_at, completed_at
		FROM recalc_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []p4p.RecalcRun
	for rows.Next() {
		var r p4p.RecalcRun
		var status, started string
		var completed sql.NullString
		if err := rows.Scan(&r.ID, &r.Trigger, &status, &r.Total, &r.Succeeded, &r.Skipped,
			&r.Failed, &r.Error, &started, &completed); err != nil {
			return nil, err
		}
		r.Status = p4p.RunStatus(status)
		if r.StartedAt, err = parseTime("recalc_runs.started_at", started); err != nil {
			return nil, err
		}
		if completed.Valid {
			t, err := parseTime("recalc_runs.completed_at", completed.String)
			if err != nil {
				return nil, err
			}
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// exec runs an UPDATE and returns notFound when no row matched.
func (s *Store) exec(ctx context.Context, notFound error, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// requireExists must be called with the write lock held.
func (s *Store) requireExists(ctx context.Context, table, id string, notFound error) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(formatTime(*t))
}

func formatDatePtr(d *calendar.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return nullString(d.String())
}

// parseTime reads a timestamp written by formatTime. A value that does not
// parse is reported rather than read back as the zero time.
func parseTime(column, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt %s %q: %w", column, s, err)
	}
	return t, nil
}

func parseDatePtr(s sql.NullString) *calendar.Date {
	if !s.Valid {
		return nil
	}
	d, err := calendar.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMoney(s string) p4p.Money {
	return p4p.MoneyFromDecimal(parseDecimal(s))
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
