package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCycleReport_MessageIsJSONString(t *testing.T) {
	dev := 4.0
	report := &CycleReport{
		CycleID:      "c-1",
		GeneratedAt:  time.Date(2024, 10, 21, 6, 0, 0, 0, time.UTC),
		Observations: []weather.Observation{{City: "Delhi", Temperature: 5}},
		Rollups: map[string]weather.DailyRollup{
			"Delhi": {City: "Delhi", Date: time.Date(2024, 10, 21, 0, 0, 0, 0, time.UTC), AvgTemp: 5},
		},
		Alerts: []weather.Alert{{Kind: weather.KindTemperature, City: "Delhi", Breach: weather.BreachBelow, ConsecutiveUpdates: 3, Deviation: &dev}},
	}

	data, err := EncodeCycleReport(report)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "weather", raw["type"])
	_, isString := raw["message"].(string)
	assert.True(t, isString)

	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	decoded, err := env.CycleReport()
	require.NoError(t, err)

	assert.Equal(t, "c-1", decoded.CycleID)
	assert.Equal(t, "2024-10-21", decoded.Rollups["Delhi"].Date.Format(weather.DateLayout))
	require.Len(t, decoded.Alerts, 1)
	assert.Equal(t, 4.0, *decoded.Alerts[0].Deviation)
}

func TestEnvelope_WrongType(t *testing.T) {
	env := &Envelope{Type: "alert", Message: "{}"}
	_, err := env.CycleReport()
	assert.Error(t, err)
}
