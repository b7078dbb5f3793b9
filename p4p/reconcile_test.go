package p4p_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/p4p"
)

func completedSpanningJob(t *testing.T, revenue string) p4p.Job {
	t.Helper()
	job := spanningJob("job-span", revenue)
	require.NoError(t, job.Complete(at("2024-07-29T17:00:00Z")))
	return job
}

func reconcileRoster() ([]p4p.Assignment, map[p4p.EmployeeID]p4p.Employee) {
	a := assignment("a-1", "job-span", "emp-1", "10", "8")
	a.InterimPay = money("180")
	a.IsHourlyPayment = true
	b := assignment("a-2", "job-span", "emp-2", "20", "18")
	b.InterimPay = money("360")
	b.IsHourlyPayment = true
	b.IsTraining = true
	return []p4p.Assignment{a, b}, map[p4p.EmployeeID]p4p.Employee{
		"emp-1": employee("emp-1", "18"),
		"emp-2": employee("emp-2", "18"),
	}
}

// =============================================================================
// INTERIM PAY
// =============================================================================

func TestInterimPay_SpanningJobPaysFloorTimesHours(t *testing.T) {
	// GIVEN: Multi-day job 07-22 (A) to 07-29 (B), 10 hours worked, $18 floor
	// THEN: interim = 180.00

	r := p4p.NewReconciler(p4p.WageFloor{})
	job := spanningJob("job-span", "3000")

	p := r.InterimPay(job, assignment("a-1", "job-span", "emp-1", "10", "8"), mowingConfig(), employee("emp-1", "18"))

	assert.True(t, p.Applies)
	requireMoney(t, "180.00", p.Amount)
	requireMoney(t, "18.00", p.FloorRate)
}

func TestInterimPay_DoesNotApplyInsideOnePeriod(t *testing.T) {
	r := p4p.NewReconciler(p4p.WageFloor{})
	job := spanningJob("job-span", "3000")
	job.EndDate = date("2024-07-25")

	p := r.InterimPay(job, assignment("a-1", "job-span", "emp-1", "10", "8"), mowingConfig(), employee("emp-1", "18"))

	assert.False(t, p.Applies)
	assert.True(t, p.Amount.IsZero())
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile_ProportionalShareAndAdjustment(t *testing.T) {
	// GIVEN: pool = 3000 * 33% = 990, hours 10 and 20, emp-2 in training
	// WHEN: Reconciling on completion
	// THEN: shares 330 / 660, emp-2 adds 18 * 4 = 72,
	//       adjustments = final - interim = 150 / 372

	r := p4p.NewReconciler(p4p.WageFloor{})
	roster, emps := reconcileRoster()

	out := r.Reconcile(p4p.ReconcileInput{
		Job:         completedSpanningJob(t, "3000"),
		Config:      mowingConfig(),
		Assignments: roster,
		Employees:   emps,
	})

	require.False(t, out.Skipped)
	requireMoney(t, "990.00", out.Pool)
	require.Len(t, out.Lines, 2)

	first, second := out.Lines[0], out.Lines[1]
	assert.Equal(t, p4p.OutcomeReconciled, first.Outcome)
	requireMoney(t, "330.00", first.ProportionalShare.Round())
	requireMoney(t, "330.00", first.PerformancePay)
	requireMoney(t, "180.00", first.PreviouslyPaid)
	requireMoney(t, "150.00", first.Adjustment)

	requireMoney(t, "660.00", second.ProportionalShare.Round())
	requireMoney(t, "72.00", second.Breakdown.TrainingBonus)
	requireMoney(t, "732.00", second.PerformancePay)
	requireMoney(t, "372.00", second.Adjustment)
}

func TestReconcile_SharesConservePool(t *testing.T) {
	// GIVEN: Three workers with awkward hours
	// THEN: Sum of proportional shares equals the pool (to the cent)

	r := p4p.NewReconciler(p4p.WageFloor{})
	job := completedSpanningJob(t, "1234.56")
	roster := []p4p.Assignment{
		assignment("a-1", "job-span", "e1", "7", "7"),
		assignment("a-2", "job-span", "e2", "11", "11"),
		assignment("a-3", "job-span", "e3", "13", "13"),
	}

	out := r.Reconcile(p4p.ReconcileInput{Job: job, Config: mowingConfig(), Assignments: roster})

	sum := p4p.ZeroMoney()
	for _, l := range out.Lines {
		sum = sum.Add(l.ProportionalShare)
	}
	requireMoney(t, out.Pool.Round().String(), sum.Round())
}

func TestReconcile_FloorAppliesToFinal(t *testing.T) {
	// GIVEN: pool = 300 * 33% = 99 over 10 + 20 hours
	// THEN: final is the floor (180 / 360), adjustment zero

	r := p4p.NewReconciler(p4p.WageFloor{})
	roster, emps := reconcileRoster()
	roster[1].IsTraining = false

	out := r.Reconcile(p4p.ReconcileInput{Job: completedSpanningJob(t, "300"), Config: mowingConfig(), Assignments: roster, Employees: emps})

	requireMoney(t, "180.00", out.Lines[0].PerformancePay)
	requireMoney(t, "147.00", out.Lines[0].Shortfall)
	requireMoney(t, "0.00", out.Lines[0].Adjustment)
	requireMoney(t, "360.00", out.Lines[1].PerformancePay)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	// GIVEN: A reconciled roster whose stored pay has been overwritten with final
	// WHEN: Reconciling again
	// THEN: Same final and same adjustment (InterimPay is kept)

	r := p4p.NewReconciler(p4p.WageFloor{})
	roster, emps := reconcileRoster()
	job := completedSpanningJob(t, "3000")
	in := p4p.ReconcileInput{Job: job, Config: mowingConfig(), Assignments: roster, Employees: emps}

	first := r.Reconcile(in)
	for i := range roster {
		roster[i].PerformancePay = first.Lines[i].PerformancePay
		roster[i].IsHourlyPayment = false
	}
	second := r.Reconcile(in)

	for i := range first.Lines {
		assert.True(t, first.Lines[i].PerformancePay.Equal(second.Lines[i].PerformancePay))
		assert.True(t, first.Lines[i].Adjustment.Equal(second.Lines[i].Adjustment))
	}
	assert.True(t, first.TotalFinal().Equal(second.TotalFinal()))
}

func TestReconcile_ZeroTotalHoursIsSkipped(t *testing.T) {
	r := p4p.NewReconciler(p4p.WageFloor{})
	roster := []p4p.Assignment{assignment("a-1", "job-span", "e1", "0", "0")}

	out := r.Reconcile(p4p.ReconcileInput{Job: completedSpanningJob(t, "3000"), Config: mowingConfig(), Assignments: roster})

	assert.True(t, out.Skipped)
	require.Len(t, out.Lines, 1)
	assert.Equal(t, p4p.OutcomeSkipped, out.Lines[0].Outcome)
	assert.NotEmpty(t, out.Warnings)
}

func TestReconcile_OpenJobIsNotReady(t *testing.T) {
	r := p4p.NewReconciler(p4p.WageFloor{})
	roster, emps := reconcileRoster()

	out := r.Reconcile(p4p.ReconcileInput{Job: spanningJob("job-span", "3000"), Config: mowingConfig(), Assignments: roster, Employees: emps})

	for _, l := range out.Lines {
		assert.Equal(t, p4p.OutcomeNotReady, l.Outcome)
		assert.True(t, l.PerformancePay.IsZero())
	}
}
