package p4p_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/calendar"
	"github.com/fieldcrew/p4p-engine/p4p"
	"github.com/fieldcrew/p4p-engine/p4p/store"
)

func TestActiveConfigFor(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, err := p4p.ActiveConfigFor(ctx, m, "mowing")
	assert.ErrorIs(t, err, p4p.ErrConfigNotFound)

	require.NoError(t, m.SaveConfiguration(ctx, mowingConfig()))
	cfg, err := p4p.ActiveConfigFor(ctx, m, "mowing")
	require.NoError(t, err)
	assert.Equal(t, "cfg-mowing", cfg.ID)
}

func TestSaveConfiguration_KeepsOneActivePerJobType(t *testing.T) {
	// GIVEN: An active mowing configuration
	// WHEN: Saving a second active one
	// THEN: The first is deactivated; lookup stays unambiguous

	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.SaveConfiguration(ctx, mowingConfig()))

	next := mowingConfig()
	next.ID = "cfg-mowing-2025"
	next.RevenueSharePercent = dec("35")
	require.NoError(t, m.SaveConfiguration(ctx, next))

	cfg, err := p4p.ActiveConfigFor(ctx, m, "mowing")
	require.NoError(t, err)
	assert.Equal(t, "cfg-mowing-2025", cfg.ID)

	all, _ := m.ListConfigurations(ctx, "mowing")
	assert.Len(t, all, 2)
}

func TestParseFloorSource(t *testing.T) {
	src, err := p4p.ParseFloorSource("")
	require.NoError(t, err)
	assert.Equal(t, p4p.FloorConfiguration, src)

	src, err = p4p.ParseFloorSource("greater")
	require.NoError(t, err)
	assert.Equal(t, p4p.FloorGreater, src)

	_, err = p4p.ParseFloorSource("dashboard")
	assert.Error(t, err)
}

func TestWageFloor_NoDiscrepancyWhenRatesAgree(t *testing.T) {
	rate, discrepancy := p4p.WageFloor{}.Rate(mowingConfig(), employee("e", "18.00"))
	requireMoney(t, "18.00", rate)
	assert.False(t, discrepancy)
}

func TestConfiguration_SeasonalWindowWrapsYearEnd(t *testing.T) {
	cfg := mowingConfig()
	cfg.SeasonalStartMonth = time.November
	cfg.SeasonalEndMonth = time.February

	assert.True(t, cfg.InSeasonalWindow(time.December))
	assert.True(t, cfg.InSeasonalWindow(time.January))
	assert.True(t, cfg.InSeasonalWindow(time.February))
	assert.False(t, cfg.InSeasonalWindow(time.March))
	assert.False(t, cfg.InSeasonalWindow(time.October))
}

func TestValidation(t *testing.T) {
	cfg := mowingConfig()
	cfg.RevenueSharePercent = dec("120")
	cfg.JobType = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, p4p.ErrInvalid)
	assert.True(t, p4p.IsClientError(err))

	var verr *p4p.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	a := assignment("a-1", "job-1", "emp-1", "4", "6")
	assert.ErrorIs(t, a.Validate(), p4p.ErrInvalid, "jobsite hours above hours worked")

	job := spanningJob("job-1", "100")
	job.StartDate = nil
	assert.ErrorIs(t, job.Validate(), p4p.ErrInvalid)
}

func TestSaveAssignment_OnePerEmployeePerJob(t *testing.T) {
	ctx := context.Background()
	m := newSeededStore(t, twoPersonJob())

	err := m.SaveAssignment(ctx, assignment("a-dup", "job-1", "emp-1", "2", "2"))

	assert.ErrorIs(t, err, p4p.ErrDuplicateAssignment)
}

func TestJob_CompleteSetsCompletedAtOnce(t *testing.T) {
	job := spanningJob("job-1", "100")
	require.NoError(t, job.Complete(at("2024-07-29T10:00:00Z")))
	assert.True(t, job.IsCompleted())
	assert.ErrorIs(t, job.Complete(at("2024-07-30T10:00:00Z")), p4p.ErrAlreadyCompleted)
	assert.Equal(t, 29, job.CompletedAt.Day())
}

func TestJob_CompletedDayIsUTC(t *testing.T) {
	// GIVEN: Completion at 20:00 on May 31 in UTC-5, which is June 1 in UTC
	// THEN: The stored instant is UTC and the job is judged on June 1

	job := spanningJob("job-1", "100")
	central := time.FixedZone("CDT", -5*60*60)
	require.NoError(t, job.Complete(time.Date(2024, time.May, 31, 20, 0, 0, 0, central)))

	assert.Equal(t, time.UTC, job.CompletedAt.Location())
	day, ok := job.CompletedDay()
	require.True(t, ok)
	assert.Equal(t, "2024-06-01", day.String())
	assert.False(t, job.IsSeasonal(mowingConfig()), "June is outside March-May")

	// A job saved with a zoned instant is judged the same way
	local := time.Date(2024, time.May, 31, 20, 0, 0, 0, central)
	saved := completedJob("job-2", "100", "4")
	saved.CompletedAt = &local
	assert.False(t, saved.IsSeasonal(mowingConfig()))
	juneA := calendar.PeriodContaining(calendar.MustParseDate("2024-06-01"))
	assert.True(t, p4p.JobFilter{CompletedIn: &juneA}.Matches(saved))
}

func TestApplyOutstandingIncidentAdjustments_CanBeNegative(t *testing.T) {
	incidents := []p4p.Incident{
		{ID: "i1", EmployeeID: "e", Type: p4p.IncidentCustomerReview},
		{ID: "i2", EmployeeID: "e", Type: p4p.IncidentEstimateCompleted},
	}
	requireMoney(t, "-50.00", p4p.ApplyOutstandingIncidentAdjustments("e", incidents))
	requireMoney(t, "0", p4p.ApplyOutstandingIncidentAdjustments("other", incidents))
}
