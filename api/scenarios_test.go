/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state:
	- Configurations and employees are saved
	- Jobs end completed with pay on every assignment
	- The spanning scenario reconciles to the known figures
	- Loading twice replays rather than conflicts
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/p4p"
)

func TestScenarios_AllLoad(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Loading each scenario
	// THEN: Its job is completed and every assignment carries pay

	for _, sc := range Scenarios() {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)
			ctx := context.Background()

			require.NoError(t, s.handler.ApplyScenario(ctx, sc.ID))

			configs, err := s.store.ListConfigurations(ctx, sc.JobType)
			require.NoError(t, err)
			assert.Len(t, configs, 1)

			jobs, err := s.store.ListJobs(ctx, p4p.JobFilter{})
			require.NoError(t, err)
			require.Len(t, jobs, 1)
			assert.True(t, jobs[0].IsCompleted())

			crew, err := s.store.GetAssignmentsForJob(ctx, jobs[0].ID)
			require.NoError(t, err)
			require.NotEmpty(t, crew)
			for _, a := range crew {
				assert.False(t, a.PerformancePay.IsZero(), "assignment %s", a.ID)
				assert.False(t, a.IsHourlyPayment, "assignment %s", a.ID)
			}
		})
	}
}

func TestScenario_SpanningJob(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.handler.ApplyScenario(ctx, "spanning-job"))

	a, err := s.store.GetAssignment(ctx, "asg-span-ana")
	require.NoError(t, err)
	assert.Equal(t, "189.00", a.InterimPay.String())
	assert.Equal(t, "792.03", a.PerformancePay.String())

	job, err := s.store.GetJob(ctx, "job-span-0722")
	require.NoError(t, err)
	assert.True(t, job.SpansPeriods)
}

func TestScenario_ReloadReplays(t *testing.T) {
	// GIVEN: A loaded scenario
	// WHEN: Loading it again
	// THEN: No conflict, same figures

	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.handler.ApplyScenario(ctx, "spanning-job"))
	require.NoError(t, s.handler.ApplyScenario(ctx, "spanning-job"))

	a, err := s.store.GetAssignment(ctx, "asg-span-ana")
	require.NoError(t, err)
	assert.Equal(t, "189.00", a.InterimPay.String())
	assert.Equal(t, "792.03", a.PerformancePay.String())
}

func TestScenarioEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "crew-single-day"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "crew-single-day", decode[ScenarioDTO](t, rec).ID)

	rec = s.do(t, http.MethodGet, "/api/jobs/job-crew-0715/assignments", nil)
	assert.Len(t, decode[[]AssignmentDTO](t, rec), 3)
}
