package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smukkama/weather-pipeline/internal/store"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func newTestAggregator(s *store.MemoryStore, now time.Time) *DailyAggregator {
	d := NewDailyAggregator(s, s, ist, zap.NewNop())
	d.now = func() time.Time { return now }
	return d
}

func appendObs(t *testing.T, s *store.MemoryStore, city string, ts time.Time, temp float64, cond string) {
	t.Helper()
	require.NoError(t, s.Append(context.Background(), &weather.Observation{
		City:              city,
		Timestamp:         ts,
		Temperature:       temp,
		FeelsLike:         temp + 1,
		Humidity:          50,
		WindSpeed:         2,
		WindDirection:     180,
		Clouds:            10,
		DominantCondition: cond,
	}))
}

func TestDominantCondition(t *testing.T) {
	tests := []struct {
		labels []string
		want   string
	}{
		{[]string{"Rain", "Clear", "Rain", "Clear"}, "Rain"},
		{[]string{"Clear", "Rain", "Rain", "Clear"}, "Clear"},
		{[]string{"Haze", "Smoke", "Smoke"}, "Smoke"},
		{[]string{"Mist"}, "Mist"},
		{nil, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DominantCondition(tt.labels), "labels %v", tt.labels)
	}
}

func TestSummarize(t *testing.T) {
	day := time.Date(2024, 10, 21, 0, 0, 0, 0, ist)
	observations := []weather.Observation{
		{Temperature: 20, FeelsLike: 19, Humidity: 40, WindSpeed: 1, WindDirection: 90, Clouds: 0, DominantCondition: "Clear"},
		{Temperature: 30, FeelsLike: 33, Humidity: 60, WindSpeed: 3, WindDirection: 270, Clouds: 50, DominantCondition: "Clouds"},
		{Temperature: 25, FeelsLike: 26, Humidity: 50, WindSpeed: 2, WindDirection: 180, Clouds: 100, DominantCondition: "Clouds"},
	}

	r := Summarize("Delhi", day, observations)

	assert.Equal(t, "Delhi", r.City)
	assert.Equal(t, day, r.Date)
	assert.Equal(t, 25.0, r.AvgTemp)
	assert.Equal(t, 30.0, r.MaxTemp)
	assert.Equal(t, 20.0, r.MinTemp)
	assert.Equal(t, 33.0, r.MaxFeelsLike)
	assert.Equal(t, 19.0, r.MinFeelsLike)
	assert.Equal(t, 50.0, r.AvgHumidity)
	assert.Equal(t, 2.0, r.AvgWindSpeed)
	assert.Equal(t, 180.0, r.AvgWindDeg)
	assert.Equal(t, 50.0, r.AvgClouds)
	assert.Equal(t, "Clouds", r.DominantCondition)
}

func TestRefreshToday(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	now := time.Date(2024, 10, 21, 15, 0, 0, 0, ist)
	d := newTestAggregator(s, now)

	t.Run("no observations", func(t *testing.T) {
		r, err := d.RefreshToday(ctx, "Delhi")
		require.NoError(t, err)
		assert.Nil(t, r)

		_, total, err := s.ListRollups(ctx, "Delhi", 6, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	// yesterday, excluded
	appendObs(t, s, "Delhi", time.Date(2024, 10, 20, 23, 0, 0, 0, ist), 5, "Mist")
	appendObs(t, s, "Delhi", time.Date(2024, 10, 21, 6, 0, 0, 0, ist), 20, "Rain")
	appendObs(t, s, "Delhi", time.Date(2024, 10, 21, 9, 0, 0, 0, ist), 22, "Clear")
	appendObs(t, s, "Delhi", time.Date(2024, 10, 21, 12, 0, 0, 0, ist), 24, "Rain")
	appendObs(t, s, "Delhi", time.Date(2024, 10, 21, 14, 0, 0, 0, ist), 26, "Clear")

	t.Run("idempotent", func(t *testing.T) {
		first, err := d.RefreshToday(ctx, "Delhi")
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := d.RefreshToday(ctx, "Delhi")
		require.NoError(t, err)
		assert.Equal(t, *first, *second)

		stored, err := s.GetRollup(ctx, "Delhi", time.Date(2024, 10, 21, 0, 0, 0, 0, ist))
		require.NoError(t, err)
		assert.Equal(t, *first, stored)

		assert.Equal(t, 23.0, stored.AvgTemp)
		assert.Equal(t, 26.0, stored.MaxTemp)
		assert.Equal(t, 20.0, stored.MinTemp)
		assert.Equal(t, "Rain", stored.DominantCondition)

		_, total, err := s.ListRollups(ctx, "Delhi", 6, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}

func TestRefreshPreviousDay(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	d := newTestAggregator(s, time.Date(2024, 10, 22, 0, 5, 0, 0, ist))

	appendObs(t, s, "Delhi", time.Date(2024, 10, 21, 23, 50, 0, 0, ist), 18, "Clear")
	appendObs(t, s, "Mumbai", time.Date(2024, 10, 21, 10, 0, 0, 0, ist), 30, "Haze")

	cities := []weather.City{{Name: "Delhi"}, {Name: "Mumbai"}, {Name: "Chennai"}}
	require.NoError(t, d.RefreshPreviousDay(ctx, cities))

	r, err := s.GetRollup(ctx, "Delhi", time.Date(2024, 10, 21, 0, 0, 0, 0, ist))
	require.NoError(t, err)
	assert.Equal(t, 18.0, r.AvgTemp)

	_, err = s.GetRollup(ctx, "Chennai", time.Date(2024, 10, 21, 0, 0, 0, 0, ist))
	var nf *weather.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestCalculateNextRunTime(t *testing.T) {
	s := store.NewMemoryStore()

	d := newTestAggregator(s, time.Date(2024, 10, 21, 0, 1, 0, 0, ist))
	next, err := d.CalculateNextRunTime("00:05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 21, 0, 5, 0, 0, ist), next)

	d = newTestAggregator(s, time.Date(2024, 10, 21, 9, 0, 0, 0, ist))
	next, err = d.CalculateNextRunTime("00:05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 22, 0, 5, 0, 0, ist), next)

	_, err = d.CalculateNextRunTime("midnight")
	assert.Error(t, err)
	_, err = d.CalculateNextRunTime("25:00")
	assert.Error(t, err)
}
