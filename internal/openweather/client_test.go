package openweather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var delhi = weather.City{Name: "Delhi", Latitude: 28.6667, Longitude: 77.2167}

const currentBody = `{
	"dt": 1729500000,
	"main": {"temp": 300.15, "feels_like": 302.15, "humidity": 40},
	"wind": {"speed": 3.5, "deg": 270},
	"clouds": {"all": 20},
	"weather": [{"main": "Haze"}, {"main": "Smoke"}]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "key", BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop())
}

func TestClient_Fetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, currentPath, r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("appid"))
		assert.Equal(t, "28.6667", r.URL.Query().Get("lat"))
		assert.Equal(t, "77.2167", r.URL.Query().Get("lon"))
		w.Write([]byte(currentBody))
	})

	obs, err := c.Fetch(context.Background(), delhi)
	require.NoError(t, err)

	assert.Equal(t, "Delhi", obs.City)
	assert.Equal(t, time.Unix(1729500000, 0).UTC(), obs.Timestamp)
	assert.InDelta(t, 27.0, obs.Temperature, 1e-9)
	assert.InDelta(t, 29.0, obs.FeelsLike, 1e-9)
	assert.Equal(t, 40.0, obs.Humidity)
	assert.Equal(t, 270.0, obs.WindDirection)
	assert.Equal(t, 20.0, obs.Clouds)
	assert.Equal(t, "Haze", obs.DominantCondition)
}

func TestClient_FetchOptionalFieldsDefault(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dt": 1, "main": {"temp": 273.15, "feels_like": 273.15, "humidity": 0},
			"wind": {"speed": 0}, "weather": [{"main": "Clear"}]}`))
	})

	obs, err := c.Fetch(context.Background(), delhi)
	require.NoError(t, err)
	assert.Equal(t, 0.0, obs.WindDirection)
	assert.Equal(t, 0.0, obs.Clouds)
	assert.Equal(t, 0.0, obs.Temperature)
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"unauthorized", http.StatusUnauthorized, `{"cod": 401}`},
		{"malformed", http.StatusOK, `not json`},
		{"missing temp", http.StatusOK, `{"dt": 1, "main": {"feels_like": 1, "humidity": 1}, "wind": {"speed": 1}, "weather": [{"main": "Rain"}]}`},
		{"missing condition", http.StatusOK, `{"dt": 1, "main": {"temp": 1, "feels_like": 1, "humidity": 1}, "wind": {"speed": 1}, "weather": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Fetch(context.Background(), delhi)
			var fetchErr *weather.FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, "Delhi", fetchErr.City)
		})
	}
}

func TestClient_MissingAPIKey(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zap.NewNop())

	_, err := c.Fetch(context.Background(), delhi)
	assert.ErrorIs(t, err, errNoAPIKey)
}

func TestClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < breakerFailures; i++ {
		_, err := c.Fetch(context.Background(), delhi)
		require.Error(t, err)
	}

	_, err := c.Fetch(context.Background(), delhi)
	assert.ErrorIs(t, err, errCircuitOpen)
	assert.Equal(t, int32(breakerFailures), calls.Load())
}

func TestClient_FetchForecast(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, forecastPath, r.URL.Path)
		w.Write([]byte(`{"list": [
			{"dt": 100, "main": {"temp": 283.15, "feels_like": 283.15, "humidity": 50}, "wind": {"speed": 1}, "weather": [{"main": "Rain"}]},
			{"dt": 200, "main": {"temp": 293.15, "feels_like": 293.15, "humidity": 60}, "wind": {"speed": 2, "deg": 90}, "clouds": {"all": 75}, "weather": [{"main": "Clouds"}]}
		]}`))
	})

	forecast, err := c.FetchForecast(context.Background(), delhi)
	require.NoError(t, err)
	require.Len(t, forecast, 2)
	assert.InDelta(t, 10.0, forecast[0].Temperature, 1e-9)
	assert.Equal(t, "Clouds", forecast[1].DominantCondition)
	assert.Equal(t, 75.0, forecast[1].Clouds)
}
