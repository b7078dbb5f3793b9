package p4p_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/p4p"
)

func findingsByRule(findings []p4p.Finding) map[string][]p4p.Finding {
	out := map[string][]p4p.Finding{}
	for _, f := range findings {
		out[f.Rule] = append(out[f.Rule], f)
	}
	return out
}

func TestAnalyze_ComplianceFindings(t *testing.T) {
	// GIVEN: emp-1 with a floor shortfall, a zero-jobsite assignment and a
	//        45-day-old unresolved damage incident
	// WHEN: Analyzing as of 2024-08-01
	// THEN: One finding per rule

	ctx := context.Background()
	low := completedJob("job-low", "100", "8")
	zero := completedJob("job-zero", "100", "8")
	m := newSeededStore(t, seed{
		jobs:      []p4p.Job{low, zero},
		employees: []p4p.Employee{employee("emp-1", "18")},
		assignments: []p4p.Assignment{
			assignment("a-low", "job-low", "emp-1", "8", "6"),
			assignment("a-zero", "job-zero", "emp-1", "8", "0"),
		},
		incidents: []p4p.Incident{
			{ID: "inc-1", EmployeeID: "emp-1", Type: p4p.IncidentPropertyDamage, Cost: money("40"), OccurredAt: at("2024-06-17T00:00:00Z")},
			{ID: "inc-2", EmployeeID: "emp-1", Type: p4p.IncidentQualityIssue, Cost: money("10"), OccurredAt: at("2024-07-28T00:00:00Z")},
		},
	})
	svc := newService(t, m, p4p.WithClock(func() time.Time { return at("2024-08-01T00:00:00Z") }))
	_, err := svc.CalculateForJob(ctx, "job-low")
	require.NoError(t, err)

	analysis, err := svc.Analyze(ctx, "emp-1")
	require.NoError(t, err)

	byRule := findingsByRule(analysis.Findings)
	require.Len(t, byRule["floor_shortfall"], 2, "stored pay of both jobs is below the floor")
	require.Len(t, byRule["zero_jobsite_hours"], 1)
	assert.Equal(t, p4p.AssignmentID("a-zero"), *byRule["zero_jobsite_hours"][0].AssignmentID)
	require.Len(t, byRule["unresolved_incident"], 1)
	assert.Equal(t, p4p.IncidentID("inc-1"), *byRule["unresolved_incident"][0].IncidentID)
	assert.Empty(t, byRule["large_job_leader"])
}

func TestAnalyze_LargeJobLeaderAchievement(t *testing.T) {
	ctx := context.Background()
	s := seed{employees: []p4p.Employee{employee("emp-1", "18")}}
	for i := 1; i <= 3; i++ {
		id := p4p.JobID(fmt.Sprintf("job-%d", i))
		s.jobs = append(s.jobs, completedJob(id, "5000", "60"))
		a := assignment(p4p.AssignmentID(fmt.Sprintf("a-%d", i)), id, "emp-1", "20", "20")
		a.IsLeader = true
		s.assignments = append(s.assignments, a)
	}
	svc := newService(t, newSeededStore(t, s))

	analysis, err := svc.Analyze(ctx, "emp-1")
	require.NoError(t, err)

	byRule := findingsByRule(analysis.Findings)
	require.Len(t, byRule["large_job_leader"], 1)
	assert.Equal(t, p4p.FindingAchievement, byRule["large_job_leader"][0].Kind)
	assert.Contains(t, byRule["large_job_leader"][0].Message, "led 3 large jobs")
}

type alwaysRule struct{}

func (alwaysRule) Name() string { return "always" }
func (alwaysRule) Evaluate(h p4p.History) []p4p.Finding {
	return []p4p.Finding{{Rule: "always", Kind: p4p.FindingCompliance, Severity: p4p.SeverityInfo, Message: string(h.Employee.ID)}}
}

func TestAnalyze_InjectedRegistry(t *testing.T) {
	svc := newService(t, newSeededStore(t, seed{employees: []p4p.Employee{employee("emp-1", "18")}}),
		p4p.WithRules(p4p.NewRuleRegistry(alwaysRule{})))

	analysis, err := svc.Analyze(context.Background(), "emp-1")
	require.NoError(t, err)
	require.Len(t, analysis.Findings, 1)
	assert.Equal(t, "emp-1", analysis.Findings[0].Message)

	_, err = svc.Analyze(context.Background(), "ghost")
	assert.ErrorIs(t, err, p4p.ErrEmployeeNotFound)
}
