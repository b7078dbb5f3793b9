package p4p_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/p4p"
	"github.com/fieldcrew/p4p-engine/p4p/store"
)

func newService(t *testing.T, m *store.Memory, opts ...p4p.ServiceOption) *p4p.Service {
	t.Helper()
	opts = append([]p4p.ServiceOption{p4p.WithLogger(zaptest.NewLogger(t))}, opts...)
	return p4p.NewService(m, p4p.WageFloor{}, opts...)
}

func twoPersonJob() seed {
	return seed{
		jobs:      []p4p.Job{completedJob("job-1", "2400", "16")},
		employees: []p4p.Employee{employee("emp-1", "18"), employee("emp-2", "18")},
		assignments: []p4p.Assignment{
			assignment("a-1", "job-1", "emp-1", "8", "8"),
			assignment("a-2", "job-1", "emp-2", "8", "8"),
		},
	}
}

// =============================================================================
// CALCULATE FOR JOB / ASSIGNMENT
// =============================================================================

func TestService_CalculateForJob_PersistsPay(t *testing.T) {
	// GIVEN: Completed $2400 job, crew of 2
	// WHEN: CalculateForJob
	// THEN: Both assignments store 396.00

	ctx := context.Background()
	m := newSeededStore(t, twoPersonJob())
	svc := newService(t, m)

	results, err := svc.CalculateForJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, id := range []p4p.AssignmentID{"a-1", "a-2"} {
		a, err := m.GetAssignment(ctx, id)
		require.NoError(t, err)
		requireMoney(t, "396.00", a.PerformancePay)
	}
}

func TestService_CalculateForAssignment_UsesWholeCrewAsTeamSize(t *testing.T) {
	ctx := context.Background()
	m := newSeededStore(t, twoPersonJob())
	svc := newService(t, m)

	r, err := svc.CalculateForAssignment(ctx, "a-2")
	require.NoError(t, err)

	requireMoney(t, "396.00", r.PerformancePay)
	a, _ := m.GetAssignment(ctx, "a-1")
	assert.True(t, a.PerformancePay.IsZero(), "other assignments are not written")
}

func TestService_RecalculationIsIdempotent(t *testing.T) {
	// GIVEN: A job calculated once
	// WHEN: Calculating again without input changes
	// THEN: Stored pay is identical

	ctx := context.Background()
	m := newSeededStore(t, twoPersonJob())
	svc := newService(t, m)

	first, err := svc.CalculateForJob(ctx, "job-1")
	require.NoError(t, err)
	second, err := svc.CalculateForJob(ctx, "job-1")
	require.NoError(t, err)

	for i := range first {
		assert.True(t, first[i].PerformancePay.Equal(second[i].PerformancePay))
	}
}

func TestService_MissingConfigWritesNothing(t *testing.T) {
	// GIVEN: No active configuration for the job type
	// WHEN: CalculateForJob
	// THEN: ErrConfigNotFound and no derived field changed

	ctx := context.Background()
	s := twoPersonJob()
	inactive := mowingConfig()
	inactive.Active = false
	s.configs = []p4p.Configuration{inactive}
	m := newSeededStore(t, s)
	svc := newService(t, m)

	_, err := svc.CalculateForJob(ctx, "job-1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, p4p.ErrConfigNotFound))
	assert.True(t, p4p.IsConfigError(err))
	assert.Zero(t, m.Writes())
}

func TestService_AmbiguousConfigIsAnError(t *testing.T) {
	ctx := context.Background()
	m := newSeededStore(t, twoPersonJob())
	dup := mowingConfig()
	dup.ID = "cfg-mowing-2"
	m.PutConfigurationRaw(dup)
	svc := newService(t, m)

	_, err := svc.CalculateForJob(ctx, "job-1")

	var cfgErr *p4p.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 2, cfgErr.Active)
	assert.ErrorIs(t, err, p4p.ErrAmbiguousConfig)
	assert.Zero(t, m.Writes())
}

func TestService_MissingEmployeeWritesNothing(t *testing.T) {
	// GIVEN: Second assignment's employee lookup fails mid-roster
	// THEN: The first assignment's pay is not written either

	ctx := context.Background()
	m := newSeededStore(t, twoPersonJob())
	svc := newServiceOn(t, &missingEmployee{Memory: m, id: "emp-2"})

	_, err := svc.CalculateForJob(ctx, "job-1")

	assert.ErrorIs(t, err, p4p.ErrEmployeeNotFound)
	assert.Zero(t, m.Writes())
}

type missingEmployee struct {
	*store.Memory
	id p4p.EmployeeID
}

func (m *missingEmployee) GetEmployee(ctx context.Context, id p4p.EmployeeID) (p4p.Employee, error) {
	if id == m.id {
		return p4p.Employee{}, p4p.ErrEmployeeNotFound
	}
	return m.Memory.GetEmployee(ctx, id)
}

func newServiceOn(t *testing.T, repo p4p.Repository) *p4p.Service {
	return p4p.NewService(repo, p4p.WageFloor{}, p4p.WithLogger(zaptest.NewLogger(t)))
}

func TestService_OpenJobIsNotReady(t *testing.T) {
	ctx := context.Background()
	s := twoPersonJob()
	s.jobs[0].Status = p4p.JobInProgress
	s.jobs[0].CompletedAt = nil
	m := newSeededStore(t, s)
	svc := newService(t, m)

	results, err := svc.CalculateForJob(ctx, "job-1")
	require.NoError(t, err)

	for _, r := range results {
		assert.Equal(t, p4p.OutcomeNotReady, r.Outcome)
	}
	assert.Zero(t, m.Writes())
}

func TestService_UnknownJob(t *testing.T) {
	svc := newService(t, store.NewMemory())
	_, err := svc.CalculateForJob(context.Background(), "nope")
	assert.True(t, p4p.IsNotFound(err))
}

// =============================================================================
// PERIOD-SPANNING LIFECYCLE
// =============================================================================

func TestService_SpanningJobLifecycle(t *testing.T) {
	// GIVEN: A multi-day job from 07-22 (A) to 07-29 (B)
	// WHEN: Recording assignments, then completing the job
	// THEN: Interim hourly pay first, then reconciled final with the hourly flag cleared

	ctx := context.Background()
	roster, _ := reconcileRoster()
	for i := range roster {
		roster[i].InterimPay = p4p.ZeroMoney()
		roster[i].IsHourlyPayment = false
	}
	m := newSeededStore(t, seed{
		jobs:        []p4p.Job{spanningJob("job-span", "3000")},
		employees:   []p4p.Employee{employee("emp-1", "18"), employee("emp-2", "18")},
		assignments: roster,
	})
	svc := newService(t, m)

	p, err := svc.RecordAssignment(ctx, "a-1")
	require.NoError(t, err)
	assert.True(t, p.Applies)
	requireMoney(t, "180.00", p.Amount)
	_, err = svc.RecordAssignment(ctx, "a-2")
	require.NoError(t, err)

	job, _ := m.GetJob(ctx, "job-span")
	assert.True(t, job.SpansPeriods)
	a1, _ := m.GetAssignment(ctx, "a-1")
	assert.True(t, a1.IsHourlyPayment)
	requireMoney(t, "180.00", a1.PerformancePay)

	results, err := svc.CompleteJob(ctx, "job-span", at("2024-07-29T17:00:00Z"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, p4p.OutcomeReconciled, results[0].Outcome)
	requireMoney(t, "150.00", results[0].Adjustment)

	a1, _ = m.GetAssignment(ctx, "a-1")
	assert.False(t, a1.IsHourlyPayment)
	requireMoney(t, "330.00", a1.PerformancePay)
	requireMoney(t, "180.00", a1.InterimPay)

	// Completing twice is rejected.
	_, err = svc.CompleteJob(ctx, "job-span", at("2024-07-30T17:00:00Z"))
	assert.ErrorIs(t, err, p4p.ErrAlreadyCompleted)

	// Rerunning keeps the same adjustment.
	again, err := svc.CalculateForAssignment(ctx, "a-1")
	require.NoError(t, err)
	requireMoney(t, "150.00", again.Adjustment)
}

// =============================================================================
// BULK RECALCULATION
// =============================================================================

func TestService_RecalculateAllCompletedJobs_AggregatesOutcomes(t *testing.T) {
	// GIVEN: One good job, one job with an unknown job type, one skipped job,
	//        one open job (not listed)
	// THEN: 3 total: 1 succeeded, 1 failed, 1 skipped; the failure does not abort

	ctx := context.Background()
	s := twoPersonJob()
	broken := completedJob("job-2", "500", "4")
	broken.JobType = "snow"
	skipped := completedJob("job-3", "500", "4")
	open := completedJob("job-4", "500", "4")
	open.Status = p4p.JobPending
	open.CompletedAt = nil
	s.jobs = append(s.jobs, broken, skipped, open)
	s.assignments = append(s.assignments,
		assignment("a-3", "job-2", "emp-1", "4", "4"),
		assignment("a-4", "job-3", "emp-1", "4", "0"),
		assignment("a-5", "job-4", "emp-1", "4", "4"),
	)
	m := newSeededStore(t, s)
	svc := newService(t, m, p4p.WithConcurrency(2))

	summary, err := svc.RecalculateAllCompletedJobs(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)

	byJob := map[p4p.JobID]p4p.JobOutcome{}
	for _, o := range summary.Jobs {
		byJob[o.JobID] = o
	}
	assert.Equal(t, p4p.JobFailed, byJob["job-2"].Status)
	assert.Contains(t, byJob["job-2"].Error, "snow")
	assert.Equal(t, p4p.JobSkipped, byJob["job-3"].Status)
	assert.NotEmpty(t, byJob["job-3"].Warnings)

	a, _ := m.GetAssignment(ctx, "a-1")
	requireMoney(t, "396.00", a.PerformancePay)
}

type countingRecorder struct {
	outcomes map[p4p.Outcome]int
	batches  int
}

func (c *countingRecorder) ObserveCalculation(o p4p.Outcome) { c.outcomes[o]++ }
func (c *countingRecorder) ObserveBatch(p4p.BatchSummary)    { c.batches++ }

func TestService_RecorderSeesOutcomes(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{outcomes: map[p4p.Outcome]int{}}
	svc := newService(t, newSeededStore(t, twoPersonJob()), p4p.WithRecorder(rec), p4p.WithConcurrency(1))

	_, err := svc.RecalculateAllCompletedJobs(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.outcomes[p4p.OutcomeCalculated])
	assert.Equal(t, 1, rec.batches)
}

// =============================================================================
// PERIOD SUMMARY
// =============================================================================

func TestService_CurrentPayPeriodSummary(t *testing.T) {
	// GIVEN: Wednesday 2024-07-17 in period A 07-11..07-25 (11 working days)
	// THEN: 5 working days elapsed (11, 12, 15, 16, 17), 6 remaining

	svc := newService(t, store.NewMemory())
	sum := svc.CurrentPayPeriodSummary(time.Date(2024, time.July, 17, 9, 0, 0, 0, time.UTC))

	assert.Equal(t, calendar.PeriodA, sum.Period.Type)
	assert.Equal(t, 11, sum.WorkingDaysTotal)
	assert.Equal(t, 5, sum.WorkingDaysElapsed)
	assert.Equal(t, 6, sum.WorkingDaysRemaining)
	assert.True(t, sum.ProgressPercent.Equal(dec("45.5")), "got %s", sum.ProgressPercent)
}
