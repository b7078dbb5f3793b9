package p4p

import (
	"context"
	"fmt"
)

// =============================================================================
// CONFIGURATION LOOKUP
// =============================================================================

// ActiveConfigFor returns the single active configuration for jobType.
// Zero or several active records is a *ConfigError; there is no default.
func ActiveConfigFor(ctx context.Context, r Reader, jobType string) (Configuration, error) {
	configs, err := r.ActiveConfigs(ctx, jobType)
	if err != nil {
		return Configuration{}, fmt.Errorf("load configuration for %q: %w", jobType, err)
	}
	if len(configs) != 1 {
		return Configuration{}, &ConfigError{JobType: jobType, Active: len(configs)}
	}
	return configs[0], nil
}

// =============================================================================
// WAGE FLOOR - The one place that decides the floor rate
// =============================================================================

// FloorSource selects which rate is the wage floor.
//
// Historic call sites disagreed (a $23 dashboard default, an $18 config
// default, the employee's own base rate). Every floor computation in this
// package goes through WageFloor.Rate so the choice is made once, in config.
type FloorSource string

const (
	// FloorConfiguration uses Configuration.MinimumHourlyRate.
	FloorConfiguration FloorSource = "configuration"
	// FloorEmployee uses Employee.BaseHourlyRate.
	FloorEmployee FloorSource = "employee"
	// FloorGreater uses the higher of the two.
	FloorGreater FloorSource = "greater"
)

func ParseFloorSource(s string) (FloorSource, error) {
	switch FloorSource(s) {
	case FloorConfiguration, FloorEmployee, FloorGreater:
		return FloorSource(s), nil
	case "":
		return FloorConfiguration, nil
	}
	return "", fmt.Errorf("unknown wage floor source %q", s)
}

// WageFloor resolves the floor rate for an employee on a job type.
type WageFloor struct {
	Source FloorSource
}

// Rate returns the floor rate and whether the two candidate rates disagree.
// A disagreement is surfaced for business sign-off, it does not change the rate.
func (w WageFloor) Rate(c Configuration, e Employee) (Money, bool) {
	discrepancy := !c.MinimumHourlyRate.Equal(e.BaseHourlyRate)
	switch w.Source {
	case FloorEmployee:
		return e.BaseHourlyRate, discrepancy
	case FloorGreater:
		return c.MinimumHourlyRate.Max(e.BaseHourlyRate), discrepancy
	default:
		return c.MinimumHourlyRate, discrepancy
	}
}
