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

type fakeForecasts struct {
	byCity map[string][]weather.Observation
	err    error
}

func (f *fakeForecasts) FetchForecast(ctx context.Context, city weather.City) ([]weather.Observation, error) {
	if f.err != nil {
		return nil, &weather.FetchError{City: city.Name, Err: f.err}
	}
	return f.byCity[city.Name], nil
}

func TestBackfiller_Run(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	today := time.Date(2024, 10, 21, 0, 0, 0, 0, ist)

	// stale rollup that must be cleared, and today's which must survive
	require.NoError(t, s.UpsertRollup(ctx, weather.DailyRollup{City: "Delhi", Date: today.AddDate(0, 0, -10), AvgTemp: 99}))
	require.NoError(t, s.UpsertRollup(ctx, weather.DailyRollup{City: "Delhi", Date: today, AvgTemp: 21}))

	at := func(day, hour int) time.Time { return time.Date(2024, 10, day, hour, 0, 0, 0, ist) }
	forecasts := &fakeForecasts{byCity: map[string][]weather.Observation{
		"Delhi": {
			{City: "Delhi", Timestamp: at(21, 18), Temperature: 50, DominantCondition: "Clear"},
			{City: "Delhi", Timestamp: at(22, 3), Temperature: 10, DominantCondition: "Rain"},
			{City: "Delhi", Timestamp: at(22, 6), Temperature: 20, DominantCondition: "Rain"},
			{City: "Delhi", Timestamp: at(23, 12), Temperature: 30, DominantCondition: "Clouds"},
		},
	}}

	b := NewBackfiller(forecasts, s, ist, zap.NewNop())
	b.now = func() time.Time { return today.Add(10 * time.Hour) }

	written, err := b.Run(ctx, []weather.City{{Name: "Delhi"}})
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	yesterday, err := s.GetRollup(ctx, "Delhi", today.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 15.0, yesterday.AvgTemp)
	assert.Equal(t, "Rain", yesterday.DominantCondition)

	twoAgo, err := s.GetRollup(ctx, "Delhi", today.AddDate(0, 0, -2))
	require.NoError(t, err)
	assert.Equal(t, 30.0, twoAgo.AvgTemp)

	kept, err := s.GetRollup(ctx, "Delhi", today)
	require.NoError(t, err)
	assert.Equal(t, 21.0, kept.AvgTemp)

	_, err = s.GetRollup(ctx, "Delhi", today.AddDate(0, 0, -10))
	var nf *weather.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestBackfiller_FetchFailureAborts(t *testing.T) {
	s := store.NewMemoryStore()
	b := NewBackfiller(&fakeForecasts{err: errors.New("boom")}, s, ist, zap.NewNop())

	_, err := b.Run(context.Background(), []weather.City{{Name: "Delhi"}})
	var fetchErr *weather.FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestMirrorDate(t *testing.T) {
	today := time.Date(2024, 3, 1, 0, 0, 0, 0, ist)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, ist), mirrorDate(today, time.Date(2024, 3, 2, 0, 0, 0, 0, ist)))
	assert.Equal(t, time.Date(2024, 2, 26, 0, 0, 0, 0, ist), mirrorDate(today, time.Date(2024, 3, 5, 0, 0, 0, 0, ist)))
}
