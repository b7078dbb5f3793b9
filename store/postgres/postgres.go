/*
Package postgres provides a PostgreSQL implementation of p4p.Store on pgx.

PURPOSE:
  Production backend. Mirrors store/sqlite table by table; money and hours
  are NUMERIC columns, instants TIMESTAMPTZ, dates DATE.

DECIMALS:
  NUMERIC values are read back with ::text casts and parsed by
  shopspring/decimal, so no precision passes through float64.

TRANSACTIONS:
  WithTransaction runs fn in a pgx.Tx. Repositories call querier(ctx) which
  returns the transaction carried in ctx, or the pool.

USAGE:
  store, err := postgres.New(ctx, "postgres://p4p@localhost/p4p?sslmode=disable")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/p4p"
)

// Querier is the subset of pgx shared by the pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type txKey struct{}

// Store implements p4p.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ p4p.Store = (*Store)(nil)

// New connects, pings and migrates.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTransaction executes fn inside a database transaction. Store methods
// called with the ctx passed to fn join the transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback error: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS configurations (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		revenue_share_percent NUMERIC(7,4) NOT NULL,
		seasonal_bonus_percent NUMERIC(7,4) NOT NULL DEFAULT 0,
		seasonal_start_month SMALLINT NOT NULL DEFAULT 0,
		seasonal_end_month SMALLINT NOT NULL DEFAULT 0,
		seasonal_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		minimum_hourly_rate NUMERIC(12,4) NOT NULL,
		training_bonus_per_hour NUMERIC(12,4) NOT NULL,
		large_job_hour_threshold NUMERIC(10,2) NOT NULL,
		large_job_bonus_per_hour NUMERIC(12,4) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_configurations_active ON configurations(job_type) WHERE active;

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		base_hourly_rate NUMERIC(12,4) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		category TEXT NOT NULL,
		budgeted_hours NUMERIC(10,2) NOT NULL,
		actual_hours NUMERIC(10,2),
		labor_revenue NUMERIC(14,4) NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		start_date DATE,
		end_date DATE,
		completed_at TIMESTAMPTZ,
		spans_periods BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status_completed ON jobs(status, completed_at);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs(id),
		employee_id TEXT NOT NULL REFERENCES employees(id),
		hours_worked NUMERIC(10,2) NOT NULL,
		jobsite_hours NUMERIC(10,2) NOT NULL,
		is_leader BOOLEAN NOT NULL DEFAULT FALSE,
		is_training BOOLEAN NOT NULL DEFAULT FALSE,
		performance_pay NUMERIC(14,4) NOT NULL DEFAULT 0,
		is_hourly_payment BOOLEAN NOT NULL DEFAULT FALSE,
		interim_pay NUMERIC(14,4) NOT NULL DEFAULT 0,
		pay_period_type TEXT NOT NULL DEFAULT '',
		CONSTRAINT uk_assignments_job_employee UNIQUE (job_id, employee_id)
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_employee ON assignments(employee_id);

	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		job_id TEXT,
		incident_type TEXT NOT NULL,
		cost NUMERIC(14,4) NOT NULL DEFAULT 0,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		occurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_employee ON incidents(employee_id, resolved);

	CREATE TABLE IF NOT EXISTS recalc_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);
	`)
	return err
}

// ========== CONFIGURATIONS ==========

const configColumns = `id, job_type, revenue_share_percent::text, seasonal_bonus_percent::text,
	seasonal_start_month, seasonal_end_month, seasonal_eligible, minimum_hourly_rate::text,
	training_bonus_per_hour::text, large_job_hour_threshold::text, large_job_bonus_per_hour::text,
	active, updated_at`

func (s *Store) SaveConfiguration(ctx context.Context, c p4p.Configuration) error {
	if err := c.Validate(); err != nil {
		return err
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		q := s.querier(ctx)
		if c.Active {
			if _, err := q.Exec(ctx,
				`UPDATE configurations SET active = FALSE WHERE job_type = $1 AND id <> $2`,
				c.JobType, c.ID); err != nil {
				return fmt.Errorf("failed to deactivate configurations: %w", err)
			}
		}
		_, err := q.Exec(ctx, `
			INSERT INTO configurations (id, job_type, revenue_share_percent, seasonal_bonus_percent,
				seasonal_start_month, seasonal_end_month, seasonal_eligible, minimum_hourly_rate,
				training_bonus_per_hour, large_job_hour_threshold, large_job_bonus_per_hour,
				active, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				job_type = EXCLUDED.job_type,
				revenue_share_percent = EXCLUDED.revenue_share_percent,
				seasonal_bonus_percent = EXCLUDED.seasonal_bonus_percent,
				seasonal_start_month = EXCLUDED.seasonal_start_month,
				seasonal_end_month = EXCLUDED.seasonal_end_month,
				seasonal_eligible = EXCLUDED.seasonal_eligible,
				minimum_hourly_rate = EXCLUDED.minimum_hourly_rate,
				training_bonus_per_hour = EXCLUDED.training_bonus_per_hour,
				large_job_hour_threshold = EXCLUDED.large_job_hour_threshold,
				large_job_bonus_per_hour = EXCLUDED.large_job_bonus_per_hour,
				active = EXCLUDED.active,
				updated_at = EXCLUDED.updated_at
		`,
			c.ID, c.JobType, c.RevenueSharePercent.String(), c.SeasonalBonusPercent.String(),
			int(c.SeasonalStartMonth), int(c.SeasonalEndMonth), c.SeasonalEligible,
			c.MinimumHourlyRate.Value.String(), c.TrainingBonusPerHour.Value.String(),
			c.LargeJobHourThreshold.String(), c.LargeJobBonusPerHour.Value.String(),
			c.Active, updated,
		)
		if err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		return nil
	})
}

func (s *Store) ActiveConfigs(ctx context.Context, jobType string) ([]p4p.Configuration, error) {
	return s.queryConfigs(ctx,
		`SELECT `+configColumns+` FROM configurations WHERE job_type = $1 AND active ORDER BY id`, jobType)
}

func (s *Store) ListConfigurations(ctx context.Context, jobType string) ([]p4p.Configuration, error) {
	if jobType == "" {
		return s.queryConfigs(ctx, `SELECT `+configColumns+` FROM configurations ORDER BY job_type, id`)
	}
	return s.queryConfigs(ctx,
		`SELECT `+configColumns+` FROM configurations WHERE job_type = $1 ORDER BY id`, jobType)
}

func (s *Store) queryConfigs(ctx context.Context, query string, args ...any) ([]p4p.Configuration, error) {
	rows, err := s.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configurations: %w", err)
	}
	defer rows.Close()

	var configs []p4p.Configuration
	for rows.Next() {
		var c p4p.Configuration
		var share, seasonal, floor, training, threshold, bonus string
		var start, end int16
		if err := rows.Scan(&c.ID, &c.JobType, &share, &seasonal, &start, &end, &c.SeasonalEligible,
			&floor, &training, &threshold, &bonus, &c.Active, &c.UpdatedAt); err != nil {
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
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// ========== EMPLOYEES ==========

func (s *Store) SaveEmployee(ctx context.Context, e p4p.Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO employees (id, name, position, base_hourly_rate, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			position = EXCLUDED.position,
			base_hourly_rate = EXCLUDED.base_hourly_rate,
			active = EXCLUDED.active
	`, string(e.ID), e.Name, e.Position, e.BaseHourlyRate.Value.String(), e.Active)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id p4p.EmployeeID) (p4p.Employee, error) {
	var e p4p.Employee
	var rate string
	err := s.querier(ctx).QueryRow(ctx,
		`SELECT id, name, position, base_hourly_rate::text, active FROM employees WHERE id = $1`, string(id),
	).Scan(&e.ID, &e.Name, &e.Position, &rate, &e.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return p4p.Employee{}, fmt.Errorf("employee %s: %w", id, p4p.ErrEmployeeNotFound)
	}
	if err != nil {
		return p4p.Employee{}, fmt.Errorf("failed to get employee: %w", err)
	}
	e.BaseHourlyRate = parseMoney(rate)
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]p4p.Employee, error) {
	rows, err := s.querier(ctx).Query(ctx,
		`SELECT id, name, position, base_hourly_rate::text, active FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var out []p4p.Employee
	for rows.Next() {
		var e p4p.Employee
		var rate string
		if err := rows.Scan(&e.ID, &e.Name, &e.Position, &rate, &e.Active); err != nil {
			return nil, err
		}
		e.BaseHourlyRate = parseMoney(rate)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ========== JOBS ==========

const jobColumns = `id, job_type, category, budgeted_hours::text, actual_hours::text, labor_revenue::text,
	status, start_date, end_date, completed_at, spans_periods, created_at`

func (s *Store) SaveJob(ctx context.Context, j p4p.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	var actual *string
	if j.ActualHours != nil {
		v := j.ActualHours.String()
		actual = &v
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO jobs (id, job_type, category, budgeted_hours, actual_hours, labor_revenue,
			status, start_date, end_date, completed_at, spans_periods, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			job_type = EXCLUDED.job_type,
			category = EXCLUDED.category,
			budgeted_hours = EXCLUDED.budgeted_hours,
			actual_hours = EXCLUDED.actual_hours,
			labor_revenue = EXCLUDED.labor_revenue,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			completed_at = EXCLUDED.completed_at,
			spans_periods = EXCLUDED.spans_periods
	`,
		string(j.ID), j.JobType, string(j.Category), j.BudgetedHours.String(), actual,
		j.LaborRevenue.Value.String(), string(j.Status),
		datePtr(j.StartDate), datePtr(j.EndDate), j.CompletedAt, j.SpansPeriods, created,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id p4p.JobID) (p4p.Job, error) {
	jobs, err := s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, string(id))
	if err != nil {
		return p4p.Job{}, err
	}
	if len(jobs) == 0 {
		return p4p.Job{}, fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound)
	}
	return jobs[0], nil
}

// ListJobs filters status in SQL; the period filter compares calendar days
// of completed_at and runs on the decoded rows.
func (s *Store) ListJobs(ctx context.Context, filter p4p.JobFilter) ([]p4p.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY id`

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
	rows, err := s.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []p4p.Job
	for rows.Next() {
		var j p4p.Job
		var category, status, budgeted, revenue string
		var actual *string
		var start, end *time.Time
		if err := rows.Scan(&j.ID, &j.JobType, &category, &budgeted, &actual, &revenue,
			&status, &start, &end, &j.CompletedAt, &j.SpansPeriods, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.Category = p4p.JobCategory(category)
		j.Status = p4p.JobStatus(status)
		j.BudgetedHours = parseDecimal(budgeted)
		j.LaborRevenue = parseMoney(revenue)
		if actual != nil {
			h := parseDecimal(*actual)
			j.ActualHours = &h
		}
		j.StartDate = toDate(start)
		j.EndDate = toDate(end)
		if j.CompletedAt != nil {
			// Same calendar-day basis as store/sqlite.
			utc := j.CompletedAt.UTC()
			j.CompletedAt = &utc
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) MarkJobSpansPeriods(ctx context.Context, id p4p.JobID, spans bool) error {
	return s.update(ctx, fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound),
		`UPDATE jobs SET spans_periods = $1 WHERE id = $2`, spans, string(id))
}

func (s *Store) SetJobCompleted(ctx context.Context, id p4p.JobID, at time.Time) error {
	return s.update(ctx, fmt.Errorf("job %s: %w", id, p4p.ErrJobNotFound),
		`UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3`, string(p4p.JobCompleted), at, string(id))
}

// ========== ASSIGNMENTS ==========

const assignmentColumns = `id, job_id, employee_id, hours_worked::text, jobsite_hours::text, is_leader,
	is_training, performance_pay::text, is_hourly_payment, interim_pay::text, pay_period_type`

func (s *Store) SaveAssignment(ctx context.Context, a p4p.Assignment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO assignments (id, job_id, employee_id, hours_worked, jobsite_hours, is_leader,
			is_training, performance_pay, is_hourly_payment, interim_pay, pay_period_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			hours_worked = EXCLUDED.hours_worked,
			jobsite_hours = EXCLUDED.jobsite_hours,
			is_leader = EXCLUDED.is_leader,
			is_training = EXCLUDED.is_training,
			pay_period_type = EXCLUDED.pay_period_type
	`,
		string(a.ID), string(a.JobID), string(a.EmployeeID), a.HoursWorked.String(), a.JobsiteHours.String(),
		a.IsLeader, a.IsTraining, a.PerformancePay.Value.String(), a.IsHourlyPayment,
		a.InterimPay.Value.String(), string(a.PayPeriodType),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == "uk_assignments_job_employee":
			return fmt.Errorf("employee %s on job %s: %w", a.EmployeeID, a.JobID, p4p.ErrDuplicateAssignment)
		case pgErr.Code == "23503" && pgErr.ConstraintName == "assignments_job_id_fkey":
			return fmt.Errorf("job %s: %w", a.JobID, p4p.ErrJobNotFound)
		case pgErr.Code == "23503":
			return fmt.Errorf("employee %s: %w", a.EmployeeID, p4p.ErrEmployeeNotFound)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, id p4p.AssignmentID) (p4p.Assignment, error) {
	as, err := s.queryAssignments(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, string(id))
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
		`SELECT `+assignmentColumns+` FROM assignments WHERE job_id = $1 ORDER BY id`, string(jobID))
}

func (s *Store) GetAssignmentsForEmployee(ctx context.Context, employeeID p4p.EmployeeID) ([]p4p.Assignment, error) {
	return s.queryAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE employee_id = $1 ORDER BY id`, string(employeeID))
}

func (s *Store) queryAssignments(ctx context.Context, query string, args ...any) ([]p4p.Assignment, error) {
	rows, err := s.querier(ctx).Query(ctx, query, args...)
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
	return s.update(ctx, fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound),
		`UPDATE assignments SET performance_pay = $1 WHERE id = $2`, amount.Value.String(), string(id))
}

func (s *Store) SetAssignmentHourlyFlag(ctx context.Context, id p4p.AssignmentID, hourly bool) error {
	return s.update(ctx, fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound),
		`UPDATE assignments SET is_hourly_payment = $1 WHERE id = $2`, hourly, string(id))
}

func (s *Store) SetAssignmentInterimPay(ctx context.Context, id p4p.AssignmentID, amount p4p.Money) error {
	return s.update(ctx, fmt.Errorf("assignment %s: %w", id, p4p.ErrAssignmentNotFound),
		`UPDATE assignments SET interim_pay = $1 WHERE id = $2`, amount.Value.String(), string(id))
}

// ========== INCIDENTS ==========

func (s *Store) SaveIncident(ctx context.Context, i p4p.Incident) error {
	if err := i.Validate(); err != nil {
		return err
	}
	var jobID *string
	if i.JobID != nil {
		v := string(*i.JobID)
		jobID = &v
	}
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO incidents (id, employee_id, job_id, incident_type, cost, resolved, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			incident_type = EXCLUDED.incident_type,
			cost = EXCLUDED.cost,
			resolved = EXCLUDED.resolved,
			occurred_at = EXCLUDED.occurred_at
	`, string(i.ID), string(i.EmployeeID), jobID, string(i.Type), i.Cost.Value.String(), i.Resolved, i.OccurredAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("employee %s: %w", i.EmployeeID, p4p.ErrEmployeeNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

func (s *Store) GetIncidentsForEmployee(ctx context.Context, employeeID p4p.EmployeeID) ([]p4p.Incident, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, employee_id, job_id, incident_type, cost::text, resolved, occurred_at
		FROM incidents WHERE employee_id = $1 ORDER BY occurred_at, id
	`, string(employeeID))
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var out []p4p.Incident
	for rows.Next() {
		var i p4p.Incident
		var jobID *string
		var incType, cost string
		if err := rows.Scan(&i.ID, &i.EmployeeID, &jobID, &incType, &cost, &i.Resolved, &i.OccurredAt); err != nil {
			return nil, err
		}
		if jobID != nil {
			id := p4p.JobID(*jobID)
			i.JobID = &id
		}
		i.Type = p4p.IncidentType(incType)
		i.Cost = parseMoney(cost)
		out = append(out, i)
	}
	return out, rows.Err()
}

// ========== RECALCULATION RUNS ==========

func (s *Store) SaveRecalcRun(ctx context.Context, r p4p.RecalcRun) error {
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO recalc_runs (id, trigger_source, status, total, succeeded, skipped, failed,
			error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			succeeded = EXCLUDED.succeeded,
			skipped = EXCLUDED.skipped,
			failed = EXCLUDED.failed,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`, r.ID, r.Trigger, string(r.Status), r.Total, r.Succeeded, r.Skipped, r.Failed, r.Error, r.StartedAt, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save recalc run: %w", err)
	}
	return nil
}

func (s *Store) ListRecalcRuns(ctx context.Context, limit int) ([]p4p.RecalcRun, error) {
	query := `SELECT id, trigger_source, status, total, succeeded, skipped, failed, error, started_at, completed_at
		FROM recalc_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recalc runs: %w", err)
	}
	defer rows.Close()

	var runs []p4p.RecalcRun
	for rows.Next() {
		var r p4p.RecalcRun
		var status string
		if err := rows.Scan(&r.ID, &r.Trigger, &status, &r.Total, &r.Succeeded, &r.Skipped,
			&r.Failed, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.Status = p4p.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ========== HELPERS ==========

func (s *Store) update(ctx context.Context, notFound error, query string, args ...any) error {
	tag, err := s.querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func datePtr(d *calendar.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func toDate(t *time.Time) *calendar.Date {
	if t == nil {
		return nil
	}
	d := calendar.FromTime(*t)
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
