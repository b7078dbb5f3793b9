package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/factory"
	"github.com/fieldcrew/p4p-engine/p4p"
)

func TestParseConfiguration_Mowing(t *testing.T) {
	f := factory.NewConfigurationFactory()

	cfg, err := f.ParseConfiguration(factory.MowingJSON("cfg-mowing"))
	require.NoError(t, err)

	assert.Equal(t, "mowing", cfg.JobType)
	assert.True(t, cfg.Active)
	assert.True(t, cfg.SeasonalEligible)
	assert.Equal(t, time.March, cfg.SeasonalStartMonth)
	assert.Equal(t, time.May, cfg.SeasonalEndMonth)
	assert.Equal(t, "33", cfg.RevenueSharePercent.String())
	assert.Equal(t, "7", cfg.SeasonalBonusPercent.String())
	assert.Equal(t, "18.00", cfg.MinimumHourlyRate.String())
	assert.Equal(t, "4.00", cfg.TrainingBonusPerHour.String())
	assert.Equal(t, "49", cfg.LargeJobHourThreshold.String())
	assert.Equal(t, "1.50", cfg.LargeJobBonusPerHour.String())
}

func TestParseConfiguration_Presets(t *testing.T) {
	f := factory.NewConfigurationFactory()
	for jobType, build := range factory.Presets() {
		t.Run(jobType, func(t *testing.T) {
			cfg, err := f.ParseConfiguration(build("cfg-" + jobType))
			require.NoError(t, err)
			assert.Equal(t, jobType, cfg.JobType)
		})
	}

	maint, err := f.ParseConfiguration(factory.MaintenanceJSON("m"))
	require.NoError(t, err)
	assert.False(t, maint.SeasonalEligible)
	assert.Equal(t, "20.00", maint.MinimumHourlyRate.String())
}

func TestParseConfiguration_DefaultsAndStrings(t *testing.T) {
	// GIVEN: Only job type and a string-valued floor
	// THEN: Defaults fill the rest; ID derives from job type

	f := factory.NewConfigurationFactory()
	cfg, err := f.ParseConfiguration(`{"job_type": "snow", "minimum_hourly_rate": "23.00", "active": false}`)
	require.NoError(t, err)

	assert.Equal(t, "cfg-snow", cfg.ID)
	assert.False(t, cfg.Active)
	assert.Equal(t, "23.00", cfg.MinimumHourlyRate.String())
	assert.Equal(t, "33", cfg.RevenueSharePercent.String())
}

func TestParseConfiguration_SeasonalDefaults(t *testing.T) {
	// GIVEN: A configuration with no seasonal block
	// THEN: The company window applies: +7% from March through May

	f := factory.NewConfigurationFactory()
	for name, raw := range map[string]string{
		"omitted": `{"job_type": "mowing"}`,
		"null":    `{"job_type": "mowing", "seasonal": null}`,
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := f.ParseConfiguration(raw)
			require.NoError(t, err)

			assert.True(t, cfg.SeasonalEligible)
			assert.Equal(t, "7", cfg.SeasonalBonusPercent.String())
			assert.Equal(t, time.March, cfg.SeasonalStartMonth)
			assert.Equal(t, time.May, cfg.SeasonalEndMonth)
			assert.True(t, cfg.InSeasonalWindow(time.May))
			assert.False(t, cfg.InSeasonalWindow(time.June))
		})
	}
}

func TestParseConfiguration_SeasonalPartialAndOptOut(t *testing.T) {
	f := factory.NewConfigurationFactory()

	// Only the bonus given: months keep the company window
	cfg, err := f.ParseConfiguration(`{"job_type": "mowing", "seasonal": {"bonus_percent": 5}}`)
	require.NoError(t, err)
	assert.True(t, cfg.SeasonalEligible)
	assert.Equal(t, "5", cfg.SeasonalBonusPercent.String())
	assert.Equal(t, time.March, cfg.SeasonalStartMonth)
	assert.Equal(t, time.May, cfg.SeasonalEndMonth)

	// Explicit opt-out
	cfg, err = f.ParseConfiguration(`{"job_type": "snow", "seasonal": {"enabled": false}}`)
	require.NoError(t, err)
	assert.False(t, cfg.SeasonalEligible)
	assert.True(t, cfg.SeasonalBonusPercent.IsZero())

	// The opt-out survives a round trip through ToJSON
	back, err := f.FromJSON(f.ToJSON(cfg))
	require.NoError(t, err)
	assert.False(t, back.SeasonalEligible)
}

func TestParseConfiguration_Invalid(t *testing.T) {
	f := factory.NewConfigurationFactory()

	_, err := f.ParseConfiguration(`{"job_type": "mowing", "revenue_share_percent": 140}`)
	assert.ErrorIs(t, err, p4p.ErrInvalid)

	_, err = f.ParseConfiguration(`{"job_type": "mowing", "seasonal": {"start_month": 0, "end_month": 13}}`)
	assert.ErrorIs(t, err, p4p.ErrInvalid)

	_, err = f.ParseConfiguration(`{not json`)
	assert.Error(t, err)
}

func TestToJSON_RoundTripKeepsRules(t *testing.T) {
	f := factory.NewConfigurationFactory()
	cfg, err := f.ParseConfiguration(factory.LandscapingJSON("cfg-land"))
	require.NoError(t, err)

	back, err := f.FromJSON(f.ToJSON(cfg))
	require.NoError(t, err)

	assert.Equal(t, cfg.ID, back.ID)
	assert.True(t, cfg.RevenueSharePercent.Equal(back.RevenueSharePercent))
	assert.Equal(t, cfg.SeasonalStartMonth, back.SeasonalStartMonth)
	assert.True(t, cfg.LargeJobBonusPerHour.Equal(back.LargeJobBonusPerHour))
}

func TestDefaultConfiguration(t *testing.T) {
	cfg := factory.DefaultConfiguration("maintenance")
	assert.Equal(t, "maintenance", cfg.JobType)
	assert.True(t, cfg.Active)
	assert.Equal(t, "33", cfg.RevenueSharePercent.String())
	assert.True(t, cfg.SeasonalEligible)
	assert.Equal(t, "7", cfg.SeasonalBonusPercent.String())
	assert.Equal(t, time.March, cfg.SeasonalStartMonth)
	assert.Equal(t, time.May, cfg.SeasonalEndMonth)
	assert.Panics(t, func() { factory.DefaultConfiguration("") })
}
