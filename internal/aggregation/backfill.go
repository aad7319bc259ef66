package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
	"go.uber.org/zap"
)

// ForecastFetcher is the slice of the upstream client used by backfill
type ForecastFetcher interface {
	FetchForecast(ctx context.Context, city weather.City) ([]weather.Observation, error)
}

// Backfiller seeds past rollups from the 5-day forecast so a fresh install
// has history to show. Forecast day N ahead is written to day N behind.
type Backfiller struct {
	forecasts ForecastFetcher
	rollups   weather.RollupStore
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewBackfiller creates a backfiller
func NewBackfiller(forecasts ForecastFetcher, rollups weather.RollupStore, loc *time.Location, logger *zap.Logger) *Backfiller {
	return &Backfiller{
		forecasts: forecasts,
		rollups:   rollups,
		loc:       loc,
		logger:    logger.Named("backfill"),
		now:       time.Now,
	}
}

// Run clears rollups older than today and rebuilds them for every city.
// Today's rollup is left to real observations. A forecast failure aborts
// the run.
func (b *Backfiller) Run(ctx context.Context, cities []weather.City) (int, error) {
	today := weather.StartOfDay(b.now(), b.loc)

	if err := b.rollups.DeleteRollupsBefore(ctx, today); err != nil {
		return 0, fmt.Errorf("failed to clear old rollups: %w", err)
	}

	written := 0
	for _, city := range cities {
		forecast, err := b.forecasts.FetchForecast(ctx, city)
		if err != nil {
			return written, fmt.Errorf("failed to backfill %s: %w", city.Name, err)
		}

		for _, group := range groupByDate(forecast, b.loc) {
			if group.day.Equal(today) {
				continue
			}

			mirrored := mirrorDate(today, group.day)
			rollup := Summarize(city.Name, mirrored, group.observations)
			if err := b.rollups.UpsertRollup(ctx, rollup); err != nil {
				return written, fmt.Errorf("failed to store backfilled rollup for %s: %w", city.Name, err)
			}
			written++
		}

		b.logger.Info("Backfilled city", zap.String("city", city.Name), zap.Int("forecast_entries", len(forecast)))
	}

	return written, nil
}

type dateGroup struct {
	day          time.Time
	observations []weather.Observation
}

// groupByDate buckets observations by local date, chronological within and
// across buckets
func groupByDate(observations []weather.Observation, loc *time.Location) []dateGroup {
	sorted := make([]weather.Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var groups []dateGroup
	for _, o := range sorted {
		day := weather.StartOfDay(o.Timestamp, loc)
		if n := len(groups); n > 0 && groups[n-1].day.Equal(day) {
			groups[n-1].observations = append(groups[n-1].observations, o)
			continue
		}
		groups = append(groups, dateGroup{day: day, observations: []weather.Observation{o}})
	}
	return groups
}

// mirrorDate maps day to today - (day - today), counting calendar days
func mirrorDate(today, day time.Time) time.Time {
	offset := daysBetween(today, day)
	return today.AddDate(0, 0, -offset)
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
