/*
Package factory provides JSON to Go conversion for P4P configurations.

PURPOSE:
  Operations staff edit pay rules as JSON (admin UI, seed files, the CLI).
  The factory fills defaults, validates the result and produces a
  p4p.Configuration, and converts back for display.

JSON SCHEMA:
  {
    "id": "cfg-mowing",
    "job_type": "mowing",
    "revenue_share_percent": 33,
    "seasonal": {"bonus_percent": 7, "start_month": 3, "end_month": 5},
    "minimum_hourly_rate": 18,
    "training_bonus_per_hour": 4,
    "large_job": {"hour_threshold": 49, "bonus_per_hour": 1.50},
    "active": true
  }

DEFAULTS:
  Missing numbers take the company defaults below. "seasonal" omitted (or
  null) means the company window: +7% from March through May. A job type
  with no seasonal window opts out with "seasonal": {"enabled": false}.
  Money accepts JSON numbers or strings.

USAGE:
  f := factory.NewConfigurationFactory()
  cfg, err := f.ParseConfiguration(factory.MowingJSON("cfg-mowing"))

SEE ALSO:
  - p4p/types.go: Configuration
  - presets.go: Job-type presets
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldcrew/p4p-engine/p4p"
)

// Company defaults.
var (
	DefaultRevenueSharePercent   = decimal.NewFromInt(33)
	DefaultSeasonalBonusPercent  = decimal.NewFromInt(7)
	DefaultSeasonalStartMonth    = time.March
	DefaultSeasonalEndMonth      = time.May
	DefaultMinimumHourlyRate     = decimal.NewFromInt(18)
	DefaultTrainingBonusPerHour  = decimal.NewFromInt(4)
	DefaultLargeJobHourThreshold = decimal.NewFromInt(49)
	DefaultLargeJobBonusPerHour  = decimal.RequireFromString("1.50")
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type ConfigurationJSON struct {
	ID                   string           `json:"id"`
	JobType              string           `json:"job_type"`
	RevenueSharePercent  *decimal.Decimal `json:"revenue_share_percent,omitempty"`
	Seasonal             *SeasonalJSON    `json:"seasonal,omitempty"`
	MinimumHourlyRate    *decimal.Decimal `json:"minimum_hourly_rate,omitempty"`
	TrainingBonusPerHour *decimal.Decimal `json:"training_bonus_per_hour,omitempty"`
	LargeJob             *LargeJobJSON    `json:"large_job,omitempty"`
	Active               *bool            `json:"active,omitempty"`
}

// SeasonalJSON is the seasonal window. Months are 1-12; start > end wraps
// the year end. A zero month takes the company default.
type SeasonalJSON struct {
	Enabled      *bool            `json:"enabled,omitempty"`
	BonusPercent *decimal.Decimal `json:"bonus_percent,omitempty"`
	StartMonth   int              `json:"start_month,omitempty"`
	EndMonth     int              `json:"end_month,omitempty"`
}

type LargeJobJSON struct {
	HourThreshold *decimal.Decimal `json:"hour_threshold,omitempty"`
	BonusPerHour  *decimal.Decimal `json:"bonus_per_hour,omitempty"`
}

// =============================================================================
// CONFIGURATION FACTORY
// =============================================================================

type ConfigurationFactory struct {
	now func() time.Time
}

func NewConfigurationFactory() *ConfigurationFactory {
	return &ConfigurationFactory{now: time.Now}
}

// ParseConfiguration parses a JSON string into a validated Configuration.
func (f *ConfigurationFactory) ParseConfiguration(jsonStr string) (p4p.Configuration, error) {
	var cj ConfigurationJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return p4p.Configuration{}, fmt.Errorf("failed to parse configuration JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON fills defaults and validates.
func (f *ConfigurationFactory) FromJSON(cj ConfigurationJSON) (p4p.Configuration, error) {
	cfg := p4p.Configuration{
		ID:                    cj.ID,
		JobType:               cj.JobType,
		RevenueSharePercent:   orDefault(cj.RevenueSharePercent, DefaultRevenueSharePercent),
		MinimumHourlyRate:     p4p.MoneyFromDecimal(orDefault(cj.MinimumHourlyRate, DefaultMinimumHourlyRate)),
		TrainingBonusPerHour:  p4p.MoneyFromDecimal(orDefault(cj.TrainingBonusPerHour, DefaultTrainingBonusPerHour)),
		LargeJobHourThreshold: DefaultLargeJobHourThreshold,
		LargeJobBonusPerHour:  p4p.MoneyFromDecimal(DefaultLargeJobBonusPerHour),
		SeasonalEligible:      true,
		SeasonalBonusPercent:  DefaultSeasonalBonusPercent,
		SeasonalStartMonth:    DefaultSeasonalStartMonth,
		SeasonalEndMonth:      DefaultSeasonalEndMonth,
		Active:                true,
		UpdatedAt:             f.now().UTC(),
	}
	if cfg.ID == "" {
		cfg.ID = "cfg-" + cj.JobType
	}
	if cj.Active != nil {
		cfg.Active = *cj.Active
	}
	if sj := cj.Seasonal; sj != nil {
		switch {
		case sj.Enabled != nil && !*sj.Enabled:
			cfg.SeasonalEligible = false
			cfg.SeasonalBonusPercent = decimal.Zero
			cfg.SeasonalStartMonth = 0
			cfg.SeasonalEndMonth = 0
		default:
			cfg.SeasonalBonusPercent = orDefault(sj.BonusPercent, DefaultSeasonalBonusPercent)
			if sj.StartMonth != 0 {
				cfg.SeasonalStartMonth = time.Month(sj.StartMonth)
			}
			if sj.EndMonth != 0 {
				cfg.SeasonalEndMonth = time.Month(sj.EndMonth)
			}
		}
	}
	if cj.LargeJob != nil {
		cfg.LargeJobHourThreshold = orDefault(cj.LargeJob.HourThreshold, DefaultLargeJobHourThreshold)
		cfg.LargeJobBonusPerHour = p4p.MoneyFromDecimal(orDefault(cj.LargeJob.BonusPerHour, DefaultLargeJobBonusPerHour))
	}

	if err := cfg.Validate(); err != nil {
		return p4p.Configuration{}, err
	}
	return cfg, nil
}

// ToJSON converts a Configuration back to its JSON form.
func (f *ConfigurationFactory) ToJSON(cfg p4p.Configuration) ConfigurationJSON {
	share := cfg.RevenueSharePercent
	floor := cfg.MinimumHourlyRate.Value
	training := cfg.TrainingBonusPerHour.Value
	threshold := cfg.LargeJobHourThreshold
	bonus := cfg.LargeJobBonusPerHour.Value
	active := cfg.Active

	cj := ConfigurationJSON{
		ID:                   cfg.ID,
		JobType:              cfg.JobType,
		RevenueSharePercent:  &share,
		MinimumHourlyRate:    &floor,
		TrainingBonusPerHour: &training,
		LargeJob:             &LargeJobJSON{HourThreshold: &threshold, BonusPerHour: &bonus},
		Active:               &active,
	}
	if cfg.SeasonalEligible {
		pct := cfg.SeasonalBonusPercent
		cj.Seasonal = &SeasonalJSON{
			BonusPercent: &pct,
			StartMonth:   int(cfg.SeasonalStartMonth),
			EndMonth:     int(cfg.SeasonalEndMonth),
		}
	} else {
		off := false
		cj.Seasonal = &SeasonalJSON{Enabled: &off}
	}
	return cj
}

// DefaultConfiguration is the company default for a job type, seasonal
// window included. It panics when jobType is empty.
func DefaultConfiguration(jobType string) p4p.Configuration {
	cfg, err := NewConfigurationFactory().FromJSON(ConfigurationJSON{JobType: jobType})
	if err != nil {
		panic(err)
	}
	return cfg
}

func orDefault(v *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if v == nil {
		return def
	}
	return *v
}
