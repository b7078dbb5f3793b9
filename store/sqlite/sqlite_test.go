package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/factory"
	"github.com/fieldcrew/p4p-engine/p4p"
	"github.com/fieldcrew/p4p-engine/p4p/store"
	"github.com/fieldcrew/p4p-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedJob(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	start := calendar.MustParseDate("2024-07-22")
	end := calendar.MustParseDate("2024-07-29")
	actual := decimal.RequireFromString("31.5")

	require.NoError(t, s.SaveConfiguration(ctx, factory.DefaultConfiguration("mowing")))
	require.NoError(t, s.SaveEmployee(ctx, p4p.Employee{ID: "emp-1", Name: "Ana", BaseHourlyRate: p4p.MustParseMoney("19.25"), Active: true}))
	require.NoError(t, s.SaveJob(ctx, p4p.Job{
		ID:            "job-1",
		JobType:       "mowing",
		Category:      p4p.MultiDay,
		BudgetedHours: decimal.RequireFromString("30"),
		ActualHours:   &actual,
		LaborRevenue:  p4p.MustParseMoney("2400.10"),
		Status:        p4p.JobInProgress,
		StartDate:     &start,
		EndDate:       &end,
	}))
	require.NoError(t, s.SaveAssignment(ctx, p4p.Assignment{
		ID:           "a-1",
		JobID:        "job-1",
		EmployeeID:   "emp-1",
		HoursWorked:  decimal.RequireFromString("10.5"),
		JobsiteHours: decimal.RequireFromString("9.25"),
		IsLeader:     true,
	}))
}

func TestStore_JobRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedJob(t, s)

	job, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)

	assert.Equal(t, p4p.MultiDay, job.Category)
	assert.Equal(t, "2400.10", job.LaborRevenue.String())
	assert.Equal(t, "31.5", job.ActualHours.String())
	assert.Equal(t, "2024-07-22", job.StartDate.String())
	assert.True(t, job.CrossesPayPeriods())
	assert.Nil(t, job.CompletedAt)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, p4p.ErrJobNotFound)
	_, err = s.GetAssignment(ctx, "nope")
	assert.ErrorIs(t, err, p4p.ErrAssignmentNotFound)
	_, err = s.GetEmployee(ctx, "nope")
	assert.ErrorIs(t, err, p4p.ErrEmployeeNotFound)
	assert.ErrorIs(t, s.SetAssignmentPerformancePay(ctx, "nope", p4p.ZeroMoney()), p4p.ErrAssignmentNotFound)
}

func TestStore_DerivedWrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedJob(t, s)

	require.NoError(t, s.SetAssignmentInterimPay(ctx, "a-1", p4p.MustParseMoney("202.13")))
	require.NoError(t, s.SetAssignmentPerformancePay(ctx, "a-1", p4p.MustParseMoney("202.13")))
	require.NoError(t, s.SetAssignmentHourlyFlag(ctx, "a-1", true))
	require.NoError(t, s.MarkJobSpansPeriods(ctx, "job-1", true))

	a, err := s.GetAssignment(ctx, "a-1")
	require.NoError(t, err)
	assert.True(t, a.IsHourlyPayment)
	assert.True(t, a.IsLeader)
	assert.Equal(t, "202.13", a.InterimPay.String())
	assert.Equal(t, "9.25", a.JobsiteHours.String())

	// Re-saving the assignment's inputs keeps derived pay.
	a.HoursWorked = decimal.RequireFromString("11")
	require.NoError(t, s.SaveAssignment(ctx, a))
	a, _ = s.GetAssignment(ctx, "a-1")
	assert.Equal(t, "202.13", a.PerformancePay.String())

	done := time.Date(2024, time.July, 29, 17, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetJobCompleted(ctx, "job-1", done))
	job, _ := s.GetJob(ctx, "job-1")
	assert.True(t, job.SpansPeriods)
	assert.True(t, job.IsCompleted())
	assert.True(t, job.CompletedAt.Equal(done))
}

func TestStore_DuplicateAssignment(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedJob(t, s)

	err := s.SaveAssignment(ctx, p4p.Assignment{
		ID: "a-2", JobID: "job-1", EmployeeID: "emp-1",
		HoursWorked: decimal.NewFromInt(1), JobsiteHours: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, p4p.ErrDuplicateAssignment)

	err = s.SaveAssignment(ctx, p4p.Assignment{
		ID: "a-3", JobID: "job-1", EmployeeID: "ghost",
		HoursWorked: decimal.NewFromInt(1), JobsiteHours: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, p4p.ErrEmployeeNotFound)
}

func TestStore_OneActiveConfigurationPerJobType(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveConfiguration(ctx, factory.DefaultConfiguration("mowing")))

	next, err := factory.NewConfigurationFactory().ParseConfiguration(factory.MowingJSON("cfg-mowing-2025"))
	require.NoError(t, err)
	require.NoError(t, s.SaveConfiguration(ctx, next))

	active, err := s.ActiveConfigs(ctx, "mowing")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "cfg-mowing-2025", active[0].ID)
	assert.True(t, active[0].SeasonalEligible)
	assert.Equal(t, time.March, active[0].SeasonalStartMonth)
	assert.Equal(t, "1.50", active[0].LargeJobBonusPerHour.String())

	all, err := s.ListConfigurations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_ListJobsByStatusAndPeriod(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedJob(t, s)
	require.NoError(t, s.SetJobCompleted(ctx, "job-1", time.Date(2024, time.July, 29, 17, 0, 0, 0, time.UTC)))

	completed, err := s.ListJobs(ctx, p4p.JobFilter{Status: p4p.JobCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	periodA := calendar.PeriodContaining(calendar.MustParseDate("2024-07-15"))
	inA, err := s.ListJobs(ctx, p4p.JobFilter{CompletedIn: &periodA})
	require.NoError(t, err)
	assert.Empty(t, inA)

	periodB := calendar.Next(periodA)
	inB, err := s.ListJobs(ctx, p4p.JobFilter{CompletedIn: &periodB})
	require.NoError(t, err)
	assert.Len(t, inB, 1)
}

func TestStore_IncidentsAndRuns(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedJob(t, s)

	jobID := p4p.JobID("job-1")
	require.NoError(t, s.SaveIncident(ctx, p4p.Incident{
		ID: "inc-1", EmployeeID: "emp-1", JobID: &jobID, Type: p4p.IncidentPropertyDamage,
		Cost: p4p.MustParseMoney("75.50"), OccurredAt: time.Date(2024, time.July, 23, 0, 0, 0, 0, time.UTC),
	}))
	incidents, err := s.GetIncidentsForEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "75.50", incidents[0].Cost.String())
	assert.Equal(t, jobID, *incidents[0].JobID)

	started := time.Date(2024, time.August, 1, 2, 0, 0, 0, time.UTC)
	run := p4p.RecalcRun{ID: "run-1", Trigger: "scheduled", Status: p4p.RunRunning, StartedAt: started}
	require.NoError(t, s.SaveRecalcRun(ctx, run))
	finished := started.Add(time.Minute)
	run.Status, run.Total, run.Succeeded, run.CompletedAt = p4p.RunCompleted, 3, 3, &finished
	require.NoError(t, s.SaveRecalcRun(ctx, run))

	runs, err := s.ListRecalcRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, p4p.RunCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].Succeeded)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestStore_ServiceEndToEnd(t *testing.T) {
	// GIVEN: The SQLite store behind the service
	// WHEN: Recording interim pay, completing, reconciling
	// THEN: The stored figures match the in-memory behavior

	ctx := context.Background()
	s := newStore(t)
	seedJob(t, s)
	svc := p4p.NewService(s, p4p.WageFloor{})

	p, err := svc.RecordAssignment(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "189.00", p.Amount.String(), "10.5h at the $18 configuration floor")

	results, err := svc.CompleteJob(ctx, "job-1", time.Date(2024, time.July, 29, 17, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, results, 1)

	// 2400.10 * 33% = 792.033 for the only worker
	a, err := s.GetAssignment(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "792.03", a.PerformancePay.String())
	assert.Equal(t, "603.03", results[0].Adjustment.String())
	assert.False(t, a.IsHourlyPayment)
}

func TestStore_CompletionDayMatchesMemoryStore(t *testing.T) {
	// GIVEN: The same seasonal mowing job in the memory and SQLite stores
	// WHEN: Completing it at 20:00 on May 31 in UTC-5 (June 1 in UTC)
	// THEN: Both stores judge the same day and pay the same amount

	central := time.FixedZone("CDT", -5*60*60)
	doneAt := time.Date(2024, time.May, 31, 20, 0, 0, 0, central)
	mowing, err := factory.NewConfigurationFactory().ParseConfiguration(factory.MowingJSON("cfg-mowing"))
	require.NoError(t, err)

	backends := map[string]p4p.Store{
		"memory": store.NewMemory(),
		"sqlite": newStore(t),
	}
	pay := map[string]string{}
	for name, st := range backends {
		ctx := context.Background()
		day := calendar.MustParseDate("2024-05-31")
		require.NoError(t, st.SaveConfiguration(ctx, mowing), name)
		require.NoError(t, st.SaveEmployee(ctx, p4p.Employee{ID: "emp-1", Name: "Ana", BaseHourlyRate: p4p.MustParseMoney("19"), Active: true}), name)
		require.NoError(t, st.SaveJob(ctx, p4p.Job{
			ID:            "job-1",
			JobType:       "mowing",
			Category:      p4p.SingleDay,
			BudgetedHours: decimal.RequireFromString("8"),
			LaborRevenue:  p4p.MustParseMoney("1000"),
			Status:        p4p.JobInProgress,
			StartDate:     &day,
			EndDate:       &day,
		}), name)
		require.NoError(t, st.SaveAssignment(ctx, p4p.Assignment{
			ID:           "a-1",
			JobID:        "job-1",
			EmployeeID:   "emp-1",
			HoursWorked:  decimal.RequireFromString("8"),
			JobsiteHours: decimal.RequireFromString("8"),
		}), name)

		results, err := p4p.NewService(st, p4p.WageFloor{}).CompleteJob(ctx, "job-1", doneAt)
		require.NoError(t, err, name)
		require.Len(t, results, 1, name)
		assert.False(t, results[0].Breakdown.Seasonal, name)

		job, err := st.GetJob(ctx, "job-1")
		require.NoError(t, err, name)
		completedDay, ok := job.CompletedDay()
		require.True(t, ok, name)
		assert.Equal(t, "2024-06-01", completedDay.String(), name)
		assert.True(t, job.CompletedAt.Equal(doneAt), name)

		a, err := st.GetAssignment(ctx, "a-1")
		require.NoError(t, err, name)
		pay[name] = a.PerformancePay.String()
	}

	assert.Equal(t, "330.00", pay["memory"], "1000 * 33%, June is outside the window")
	assert.Equal(t, pay["memory"], pay["sqlite"])
}

func TestStore_CorruptCompletedAtIsReported(t *testing.T) {
	// GIVEN: A completed job whose completed_at was overwritten with garbage
	// THEN: Reading it fails instead of returning a year-1 completion

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "p4p.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedJob(t, s)
	require.NoError(t, s.SetJobCompleted(ctx, "job-1", time.Date(2024, time.July, 29, 17, 0, 0, 0, time.UTC)))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, "UPDATE jobs SET completed_at = 'yesterday' WHERE id = 'job-1'")
	require.NoError(t, err)

	_, err = s.GetJob(ctx, "job-1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "jobs.completed_at")

	_, err = s.ListJobs(ctx, p4p.JobFilter{Status: p4p.JobCompleted})
	assert.Error(t, err)
}
