package factory

import (
	"encoding/json"
)

// MowingJSON: 33% share, +7% March-May, standard floor and bonuses.
func MowingJSON(id string) string {
	return presetJSON(id, "mowing", map[string]interface{}{
		"revenue_share_percent": 33,
		"seasonal": map[string]interface{}{
			"bonus_percent": 7,
			"start_month":   3,
			"end_month":     5,
		},
	})
}

// LandscapingJSON: 33% share, +7% April-June, larger jobs before the bonus.
func LandscapingJSON(id string) string {
	return presetJSON(id, "landscaping", map[string]interface{}{
		"revenue_share_percent": 33,
		"seasonal": map[string]interface{}{
			"bonus_percent": 7,
			"start_month":   4,
			"end_month":     6,
		},
		"large_job": map[string]interface{}{
			"hour_threshold": 49,
			"bonus_per_hour": "1.50",
		},
	})
}

// MaintenanceJSON: year-round work, no seasonal window, $20 floor.
func MaintenanceJSON(id string) string {
	return presetJSON(id, "maintenance", map[string]interface{}{
		"revenue_share_percent": 30,
		"minimum_hourly_rate":   20,
		"seasonal":              map[string]interface{}{"enabled": false},
	})
}

func presetJSON(id, jobType string, fields map[string]interface{}) string {
	cj := map[string]interface{}{
		"id":       id,
		"job_type": jobType,
		"active":   true,
	}
	for k, v := range fields {
		cj[k] = v
	}
	b, _ := json.MarshalIndent(cj, "", "  ")
	return string(b)
}

// Presets maps job types to their preset JSON builders.
func Presets() map[string]func(id string) string {
	return map[string]func(id string) string{
		"mowing":      MowingJSON,
		"landscaping": LandscapingJSON,
		"maintenance": MaintenanceJSON,
	}
}
