package observability_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/observability"
	"github.com/fieldcrew/p4p-engine/p4p"
)

func TestMetrics_RecordsOutcomes(t *testing.T) {
	m := observability.NewMetrics()

	m.ObserveCalculation(p4p.OutcomeCalculated)
	m.ObserveCalculation(p4p.OutcomeCalculated)
	m.ObserveCalculation(p4p.OutcomeFailed)
	m.ObserveBatch(p4p.BatchSummary{
		Total: 3, Succeeded: 2, Failed: 1,
		StartedAt: time.Date(2024, time.August, 1, 2, 0, 0, 0, time.UTC),
		Duration:  "150ms",
	})
	m.ObserveRequest("/api/jobs/{id}", http.StatusNotFound)

	count, err := testutil.GatherAndCount(m.Registry(), "p4p_calculations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome label")

	expected := `
# HELP p4p_recalc_jobs_total Jobs processed by bulk recalculation, by status.
# TYPE p4p_recalc_jobs_total counter
p4p_recalc_jobs_total{status="failed"} 1
p4p_recalc_jobs_total{status="skipped"} 0
p4p_recalc_jobs_total{status="succeeded"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "p4p_recalc_jobs_total"))
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveCalculation(p4p.OutcomeReconciled)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `p4p_calculations_total{outcome="reconciled"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
