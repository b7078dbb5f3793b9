package p4p_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/p4p"
	"github.com/fieldcrew/p4p-engine/p4p/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func money(s string) p4p.Money { return p4p.MustParseMoney(s) }

func date(s string) *calendar.Date {
	d := calendar.MustParseDate(s)
	return &d
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// mowingConfig: 33% share, +7% March-May, $18 floor, $4 training, 49h/$1.50 large job.
func mowingConfig() p4p.Configuration {
	return p4p.Configuration{
		ID:                    "cfg-mowing",
		JobType:               "mowing",
		RevenueSharePercent:   dec("33"),
		SeasonalBonusPercent:  dec("7"),
		SeasonalStartMonth:    time.March,
		SeasonalEndMonth:      time.May,
		SeasonalEligible:      true,
		MinimumHourlyRate:     money("18"),
		TrainingBonusPerHour:  money("4"),
		LargeJobHourThreshold: dec("49"),
		LargeJobBonusPerHour:  money("1.50"),
		Active:                true,
	}
}

// completedJob finishes in July so it is outside the seasonal window.
func completedJob(id p4p.JobID, revenue string, budgeted string) p4p.Job {
	done := at("2024-07-15T16:00:00Z")
	return p4p.Job{
		ID:            id,
		JobType:       "mowing",
		Category:      p4p.SingleDay,
		BudgetedHours: dec(budgeted),
		LaborRevenue:  money(revenue),
		Status:        p4p.JobCompleted,
		StartDate:     date("2024-07-15"),
		EndDate:       date("2024-07-15"),
		CompletedAt:   &done,
	}
}

// spanningJob runs 2024-07-22 (period A) to 2024-07-29 (period B).
func spanningJob(id p4p.JobID, revenue string) p4p.Job {
	return p4p.Job{
		ID:            id,
		JobType:       "mowing",
		Category:      p4p.MultiDay,
		BudgetedHours: dec("30"),
		LaborRevenue:  money(revenue),
		Status:        p4p.JobInProgress,
		StartDate:     date("2024-07-22"),
		EndDate:       date("2024-07-29"),
	}
}

func assignment(id p4p.AssignmentID, job p4p.JobID, emp p4p.EmployeeID, worked, jobsite string) p4p.Assignment {
	return p4p.Assignment{
		ID:           id,
		JobID:        job,
		EmployeeID:   emp,
		HoursWorked:  dec(worked),
		JobsiteHours: dec(jobsite),
	}
}

func employee(id p4p.EmployeeID, rate string) p4p.Employee {
	return p4p.Employee{ID: id, Name: "Worker " + string(id), Position: "crew", BaseHourlyRate: money(rate), Active: true}
}

func requireMoney(t *testing.T, want string, got p4p.Money, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, money(want).Equal(got), "expected %s, got %s %v", want, got, msgAndArgs)
}

// seed builds a memory store with the mowing config and the given records.
type seed struct {
	jobs        []p4p.Job
	employees   []p4p.Employee
	assignments []p4p.Assignment
	incidents   []p4p.Incident
	configs     []p4p.Configuration
}

func newSeededStore(t *testing.T, s seed) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	configs := s.configs
	if configs == nil {
		configs = []p4p.Configuration{mowingConfig()}
	}
	for _, c := range configs {
		require.NoError(t, m.SaveConfiguration(ctx, c))
	}
	for _, e := range s.employees {
		require.NoError(t, m.SaveEmployee(ctx, e))
	}
	for _, j := range s.jobs {
		require.NoError(t, m.SaveJob(ctx, j))
	}
	for _, a := range s.assignments {
		require.NoError(t, m.SaveAssignment(ctx, a))
	}
	for _, i := range s.incidents {
		require.NoError(t, m.SaveIncident(ctx, i))
	}
	return m
}
