/*
service.go - Entry points called by the HTTP API, CLI and scheduler

PURPOSE:
  Wraps the pure Engine and Reconciler with the reads and writes they need.
  Every entry point loads all inputs first and writes only after every
  calculation of the unit of work succeeded, so a missing employee or
  configuration leaves the stored pay untouched.

ENTRY POINTS:
  CalculateForAssignment(id)     one assignment (whole job if it spans periods)
  CalculateForJob(id)            every assignment of one job
  RecalculateAllCompletedJobs()  bulk maintenance, per-job outcomes
  CurrentPayPeriodSummary(today) period progress for dashboards
  RecordAssignment(id)           issue interim hourly pay when needed
  CompleteJob(id, at)            status transition + calculation

CONCURRENCY:
  Jobs are independent units of work: a calculation reads one job's roster
  and writes only that job's assignments, so different jobs may be
  recalculated in parallel. Two concurrent recalculations of the SAME job
  race (last writer wins on the assignment rows). Callers must serialize
  per job; the service does not lock because lock ownership belongs to the
  persistence layer. RecalculateAllCompletedJobs never hands the same job to
  two workers.
*/
package p4p

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fieldcrew/p4p-engine/calendar"
)

// Recorder receives calculation outcomes for metrics.
type Recorder interface {
	ObserveCalculation(outcome Outcome)
	ObserveBatch(summary BatchSummary)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCalculation(Outcome) {}
func (nopRecorder) ObserveBatch(BatchSummary)  {}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	repo        Repository
	engine      *Engine
	reconciler  *Reconciler
	rules       *RuleRegistry
	logger      *zap.Logger
	recorder    Recorder
	concurrency int
	now         func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithRules injects the analyzer rule registry.
func WithRules(r *RuleRegistry) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.rules = r
		}
	}
}

// WithConcurrency bounds how many jobs RecalculateAllCompletedJobs runs at once.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a service. The same WageFloor drives the engine's
// shortfall and the reconciler's interim and final floor.
func NewService(repo Repository, floor WageFloor, opts ...ServiceOption) *Service {
	s := &Service{
		repo:        repo,
		engine:      NewEngine(floor),
		reconciler:  NewReconciler(floor),
		rules:       DefaultRules(),
		logger:      zap.NewNop(),
		recorder:    nopRecorder{},
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Engine() *Engine         { return s.engine }
func (s *Service) Reconciler() *Reconciler { return s.reconciler }

// =============================================================================
// CALCULATE FOR ASSIGNMENT
// =============================================================================

// CalculateForAssignment computes and persists one assignment's pay.
// For a period-spanning job the whole roster is reconciled (shares depend on
// every worker's hours) and the line of this assignment is returned.
func (s *Service) CalculateForAssignment(ctx context.Context, id AssignmentID) (Result, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return Result{}, err
	}
	job, err := s.repo.GetJob(ctx, a.JobID)
	if err != nil {
		return Result{}, err
	}

	if job.NeedsReconciliation() && job.IsCompleted() {
		results, err := s.reconcileJob(ctx, job)
		if err != nil {
			return Result{}, err
		}
		for _, r := range results {
			if r.AssignmentID == id {
				return r, nil
			}
		}
		return Result{}, fmt.Errorf("assignment %s missing from job %s roster: %w", id, job.ID, ErrAssignmentNotFound)
	}

	if !job.IsCompleted() {
		r := Result{AssignmentID: a.ID, JobID: job.ID, EmployeeID: a.EmployeeID, Outcome: OutcomeNotReady}
		s.recorder.ObserveCalculation(r.Outcome)
		return r, nil
	}

	cfg, err := ActiveConfigFor(ctx, s.repo, job.JobType)
	if err != nil {
		return Result{}, err
	}
	roster, err := s.repo.GetAssignmentsForJob(ctx, job.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load roster of job %s: %w", job.ID, err)
	}
	in, err := s.loadInput(ctx, job, a, len(roster), cfg)
	if err != nil {
		return Result{}, err
	}

	r := s.engine.Calculate(in)
	if err := s.persist(ctx, []Result{r}); err != nil {
		return Result{}, err
	}
	s.report(r)
	return r, nil
}

// =============================================================================
// CALCULATE FOR JOB
// =============================================================================

// CalculateForJob computes every assignment of the job. All inputs are loaded
// and all results computed before anything is written.
func (s *Service) CalculateForJob(ctx context.Context, id JobID) ([]Result, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	roster, err := s.repo.GetAssignmentsForJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load roster of job %s: %w", id, err)
	}

	if !job.IsCompleted() {
		results := make([]Result, len(roster))
		for i, a := range roster {
			results[i] = Result{AssignmentID: a.ID, JobID: job.ID, EmployeeID: a.EmployeeID, Outcome: OutcomeNotReady}
			s.recorder.ObserveCalculation(OutcomeNotReady)
		}
		return results, nil
	}

	if job.NeedsReconciliation() {
		return s.reconcileJob(ctx, job)
	}

	cfg, err := ActiveConfigFor(ctx, s.repo, job.JobType)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		s.logger.Warn("completed job has no assignments", zap.String("job_id", string(job.ID)))
		return nil, nil
	}

	results := make([]Result, 0, len(roster))
	for _, a := range roster {
		in, err := s.loadInput(ctx, job, a, len(roster), cfg)
		if err != nil {
			return nil, err
		}
		results = append(results, s.engine.Calculate(in))
	}

	if err := s.persist(ctx, results); err != nil {
		return nil, err
	}
	for _, r := range results {
		s.report(r)
	}
	return results, nil
}

func (s *Service) loadInput(ctx context.Context, job Job, a Assignment, teamSize int, cfg Configuration) (CalculationInput, error) {
	emp, err := s.repo.GetEmployee(ctx, a.EmployeeID)
	if err != nil {
		return CalculationInput{}, fmt.Errorf("assignment %s: %w", a.ID, err)
	}
	incidents, err := s.repo.GetIncidentsForEmployee(ctx, a.EmployeeID)
	if err != nil {
		return CalculationInput{}, fmt.Errorf("load incidents of employee %s: %w", a.EmployeeID, err)
	}
	return CalculationInput{
		Job:        job,
		Assignment: a,
		TeamSize:   teamSize,
		Config:     cfg,
		Employee:   emp,
		Incidents:  incidents,
	}, nil
}

// persist writes only paid outcomes. not_ready and skipped leave rows alone.
func (s *Service) persist(ctx context.Context, results []Result) error {
	for _, r := range results {
		if !r.Outcome.Paid() {
			continue
		}
		if err := s.repo.SetAssignmentPerformancePay(ctx, r.AssignmentID, r.PerformancePay); err != nil {
			return fmt.Errorf("persist pay of assignment %s: %w", r.AssignmentID, err)
		}
		if r.Outcome == OutcomeReconciled {
			if err := s.repo.SetAssignmentHourlyFlag(ctx, r.AssignmentID, false); err != nil {
				return fmt.Errorf("clear hourly flag of assignment %s: %w", r.AssignmentID, err)
			}
		}
	}
	return nil
}

func (s *Service) report(r Result) {
	s.recorder.ObserveCalculation(r.Outcome)
	for _, w := range r.Warnings {
		s.logger.Warn("data integrity", zap.String("job_id", string(r.JobID)),
			zap.String("assignment_id", string(r.AssignmentID)), zap.String("warning", w))
	}
	if r.FloorDiscrepancy {
		s.logger.Info("wage floor discrepancy",
			zap.String("employee_id", string(r.EmployeeID)),
			zap.String("floor_rate", r.FloorRate.String()))
	}
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func (s *Service) reconcileJob(ctx context.Context, job Job) ([]Result, error) {
	cfg, err := ActiveConfigFor(ctx, s.repo, job.JobType)
	if err != nil {
		return nil, err
	}
	roster, err := s.repo.GetAssignmentsForJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load roster of job %s: %w", job.ID, err)
	}
	employees := make(map[EmployeeID]Employee, len(roster))
	for _, a := range roster {
		emp, err := s.repo.GetEmployee(ctx, a.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("assignment %s: %w", a.ID, err)
		}
		employees[a.EmployeeID] = emp
	}

	out := s.reconciler.Reconcile(ReconcileInput{Job: job, Config: cfg, Assignments: roster, Employees: employees})
	for _, w := range out.Warnings {
		s.logger.Warn("reconciliation skipped", zap.String("job_id", string(job.ID)), zap.String("warning", w))
	}
	if err := s.persist(ctx, out.Lines); err != nil {
		return nil, err
	}
	for _, line := range out.Lines {
		s.report(line)
	}
	if !out.Skipped {
		s.logger.Info("job reconciled",
			zap.String("job_id", string(job.ID)),
			zap.String("pool", out.Pool.String()),
			zap.String("total_final", out.TotalFinal().String()))
	}
	return out.Lines, nil
}

// RecordAssignment issues interim hourly pay for an assignment on an open
// multi-day job that crosses a period boundary, and marks the job as
// spanning. Completed jobs are recalculated instead.
func (s *Service) RecordAssignment(ctx context.Context, id AssignmentID) (InterimPayment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return InterimPayment{}, err
	}
	job, err := s.repo.GetJob(ctx, a.JobID)
	if err != nil {
		return InterimPayment{}, err
	}
	if job.IsCompleted() {
		if _, err := s.CalculateForJob(ctx, job.ID); err != nil {
			return InterimPayment{}, err
		}
		return InterimPayment{AssignmentID: a.ID, JobID: job.ID, Amount: ZeroMoney()}, nil
	}
	if !job.CrossesPayPeriods() {
		return InterimPayment{AssignmentID: a.ID, JobID: job.ID, Amount: ZeroMoney()}, nil
	}

	cfg, err := ActiveConfigFor(ctx, s.repo, job.JobType)
	if err != nil {
		return InterimPayment{}, err
	}
	emp, err := s.repo.GetEmployee(ctx, a.EmployeeID)
	if err != nil {
		return InterimPayment{}, fmt.Errorf("assignment %s: %w", a.ID, err)
	}

	p := s.reconciler.InterimPay(job, a, cfg, emp)
	if err := s.repo.SetAssignmentInterimPay(ctx, a.ID, p.Amount); err != nil {
		return InterimPayment{}, err
	}
	if err := s.repo.SetAssignmentPerformancePay(ctx, a.ID, p.Amount); err != nil {
		return InterimPayment{}, err
	}
	if err := s.repo.SetAssignmentHourlyFlag(ctx, a.ID, true); err != nil {
		return InterimPayment{}, err
	}
	if !job.SpansPeriods {
		if err := s.repo.MarkJobSpansPeriods(ctx, job.ID, true); err != nil {
			return InterimPayment{}, err
		}
	}

	s.logger.Info("interim hourly pay issued",
		zap.String("job_id", string(job.ID)),
		zap.String("assignment_id", string(a.ID)),
		zap.String("amount", p.Amount.String()))
	return p, nil
}

// CompleteJob transitions the job to completed and calculates its crew.
// CompletedAt is set once; completing an already completed job fails with
// ErrAlreadyCompleted.
func (s *Service) CompleteJob(ctx context.Context, id JobID, at time.Time) ([]Result, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.Complete(at); err != nil {
		return nil, fmt.Errorf("complete job %s: %w", id, err)
	}
	if err := s.repo.SetJobCompleted(ctx, id, *job.CompletedAt); err != nil {
		return nil, fmt.Errorf("save completed job %s: %w", id, err)
	}
	s.logger.Info("job completed", zap.String("job_id", string(id)), zap.Time("completed_at", *job.CompletedAt))
	return s.CalculateForJob(ctx, id)
}

// =============================================================================
// BULK RECALCULATION
// =============================================================================

type JobStatusOutcome string

const (
	JobSucceeded JobStatusOutcome = "succeeded"
	JobSkipped   JobStatusOutcome = "skipped"
	JobFailed    JobStatusOutcome = "failed"
)

// JobOutcome is one job's line in a batch summary.
type JobOutcome struct {
	JobID       JobID            `json:"job_id"`
	Status      JobStatusOutcome `json:"status"`
	Assignments int              `json:"assignments"`
	Error       string           `json:"error,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// BatchSummary aggregates a bulk run so operators can see which jobs need
// attention.
type BatchSummary struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Jobs      []JobOutcome `json:"jobs"`
	StartedAt time.Time    `json:"started_at"`
	Duration  string       `json:"duration"`
}

// RecalculateAllCompletedJobs recalculates every completed job. One job's
// failure never aborts the batch; the returned error is only for failing to
// list jobs.
func (s *Service) RecalculateAllCompletedJobs(ctx context.Context) (BatchSummary, error) {
	started := s.now()
	jobs, err := s.repo.ListJobs(ctx, JobFilter{Status: JobCompleted})
	if err != nil {
		return BatchSummary{}, fmt.Errorf("list completed jobs: %w", err)
	}

	outcomes := make([]JobOutcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = s.recalculateOne(gctx, job.ID)
			return nil
		})
	}
	_ = g.Wait()

	summary := BatchSummary{Total: len(jobs), Jobs: outcomes, StartedAt: started}
	for _, o := range outcomes {
		switch o.Status {
		case JobSucceeded:
			summary.Succeeded++
		case JobSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	summary.Duration = s.now().Sub(started).String()

	s.recorder.ObserveBatch(summary)
	s.logger.Info("bulk recalculation finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (s *Service) recalculateOne(ctx context.Context, id JobID) JobOutcome {
	o := JobOutcome{JobID: id}
	if err := ctx.Err(); err != nil {
		o.Status, o.Error = JobFailed, err.Error()
		return o
	}

	results, err := s.CalculateForJob(ctx, id)
	if err != nil {
		o.Status, o.Error = JobFailed, err.Error()
		s.logger.Error("job recalculation failed", zap.String("job_id", string(id)), zap.Error(err))
		return o
	}

	o.Assignments = len(results)
	o.Status = JobSkipped
	for _, r := range results {
		o.Warnings = append(o.Warnings, r.Warnings...)
		if r.Outcome.Paid() {
			o.Status = JobSucceeded
		}
	}
	return o
}

// =============================================================================
// PERIOD SUMMARY
// =============================================================================

// PeriodSummary describes how far into its pay period a day is.
type PeriodSummary struct {
	Period               calendar.PayPeriod `json:"period"`
	ProgressPercent      decimal.Decimal    `json:"progress_percent"`
	WorkingDaysTotal     int                `json:"working_days_total"`
	WorkingDaysElapsed   int                `json:"working_days_elapsed"`
	WorkingDaysRemaining int                `json:"working_days_remaining"`
}

// CurrentPayPeriodSummary is pure. Progress counts working days through today
// inclusive over the period's working days; remaining counts those after today.
func (s *Service) CurrentPayPeriodSummary(today time.Time) PeriodSummary {
	return PayPeriodSummary(calendar.FromTime(today))
}

// PayPeriodSummary computes the summary for an arbitrary day.
func PayPeriodSummary(day calendar.Date) PeriodSummary {
	p := calendar.PeriodContaining(day)
	total := calendar.WorkingDaysIn(p)
	elapsed := calendar.WorkingDaysBetween(p.Start, day)

	progress := decimal.Zero
	if total > 0 {
		progress = decimal.NewFromInt(int64(elapsed)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(total))).
			Round(1)
	}
	return PeriodSummary{
		Period:               p,
		ProgressPercent:      progress,
		WorkingDaysTotal:     total,
		WorkingDaysElapsed:   elapsed,
		WorkingDaysRemaining: total - elapsed,
	}
}
