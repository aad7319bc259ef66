package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
	"go.uber.org/zap"
)

// DailyAggregator computes and stores per-city daily rollups
type DailyAggregator struct {
	observations weather.ObservationStore
	rollups      weather.RollupStore
	loc          *time.Location
	logger       *zap.Logger
	now          func() time.Time
}

// NewDailyAggregator creates a new daily aggregator. Dates are local to loc.
func NewDailyAggregator(observations weather.ObservationStore, rollups weather.RollupStore, loc *time.Location, logger *zap.Logger) *DailyAggregator {
	return &DailyAggregator{
		observations: observations,
		rollups:      rollups,
		loc:          loc,
		logger:       logger.Named("aggregation"),
		now:          time.Now,
	}
}

// Today returns local midnight of the current date
func (d *DailyAggregator) Today() time.Time {
	return weather.StartOfDay(d.now(), d.loc)
}

// RefreshToday recomputes the city's rollup for the current local date.
// It returns nil without writing when there are no observations yet.
func (d *DailyAggregator) RefreshToday(ctx context.Context, city string) (*weather.DailyRollup, error) {
	return d.Refresh(ctx, city, d.Today())
}

// Refresh recomputes and upserts the city's rollup for day. Running it
// twice over the same observations yields the same row.
func (d *DailyAggregator) Refresh(ctx context.Context, city string, day time.Time) (*weather.DailyRollup, error) {
	day = weather.StartOfDay(day, d.loc)

	observations, err := d.observations.ForDate(ctx, city, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations for %s: %w", city, err)
	}
	if len(observations) == 0 {
		return nil, nil
	}

	rollup := Summarize(city, day, observations)
	if err := d.rollups.UpsertRollup(ctx, rollup); err != nil {
		return nil, fmt.Errorf("failed to store rollup for %s: %w", city, err)
	}

	d.logger.Debug("Rollup refreshed",
		zap.String("city", city),
		zap.String("date", day.Format(weather.DateLayout)),
		zap.Int("observations", len(observations)))
	return &rollup, nil
}

// RefreshPreviousDay finalizes yesterday's rollup for every city so
// observations that arrived after the last in-cycle refresh are counted
func (d *DailyAggregator) RefreshPreviousDay(ctx context.Context, cities []weather.City) error {
	yesterday := d.Today().AddDate(0, 0, -1)

	d.logger.Info("Running daily rollup finalize", zap.String("date", yesterday.Format(weather.DateLayout)))

	var errs []error
	refreshed := 0
	for _, city := range cities {
		rollup, err := d.Refresh(ctx, city.Name, yesterday)
		if err != nil {
			d.logger.Error("Failed to finalize rollup", zap.String("city", city.Name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if rollup != nil {
			refreshed++
		}
	}

	d.logger.Info("Daily rollup finalize completed", zap.Int("cities", refreshed))
	return errors.Join(errs...)
}

// Summarize aggregates one city's observations for one day. observations
// must be in chronological order; sums are accumulated in that order.
func Summarize(city string, day time.Time, observations []weather.Observation) weather.DailyRollup {
	r := weather.DailyRollup{City: city, Date: day}
	if len(observations) == 0 {
		return r
	}

	var sumTemp, sumFeels, sumHumidity, sumWind, sumDeg, sumClouds float64
	labels := make([]string, 0, len(observations))

	r.MaxTemp, r.MinTemp = observations[0].Temperature, observations[0].Temperature
	r.MaxFeelsLike, r.MinFeelsLike = observations[0].FeelsLike, observations[0].FeelsLike

	for _, o := range observations {
		sumTemp += o.Temperature
		sumFeels += o.FeelsLike
		sumHumidity += o.Humidity
		sumWind += o.WindSpeed
		sumDeg += o.WindDirection
		sumClouds += o.Clouds

		r.MaxTemp = max(r.MaxTemp, o.Temperature)
		r.MinTemp = min(r.MinTemp, o.Temperature)
		r.MaxFeelsLike = max(r.MaxFeelsLike, o.FeelsLike)
		r.MinFeelsLike = min(r.MinFeelsLike, o.FeelsLike)

		labels = append(labels, o.DominantCondition)
	}

	n := float64(len(observations))
	r.AvgTemp = sumTemp / n
	r.AvgFeelsLike = sumFeels / n
	r.AvgHumidity = sumHumidity / n
	r.AvgWindSpeed = sumWind / n
	r.AvgWindDeg = sumDeg / n
	r.AvgClouds = sumClouds / n
	r.DominantCondition = DominantCondition(labels)

	return r
}

// DominantCondition returns the most frequent label. Ties go to the label
// that occurs first in the sequence.
func DominantCondition(labels []string) string {
	counts := make(map[string]int, len(labels))
	var order []string
	for _, l := range labels {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}

	best, bestCount := "", 0
	for _, l := range order {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}

// CalculateNextRunTime returns the next local occurrence of timeOfDay
// ("HH:MM")
func (d *DailyAggregator) CalculateNextRunTime(timeOfDay string) (time.Time, error) {
	now := d.now().In(d.loc)

	var hour, minute int
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %s (expected HH:MM)", timeOfDay)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid time of day: %s", timeOfDay)
	}

	todayRun := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, d.loc)

	// If we're past today's run time, schedule for tomorrow
	if !now.Before(todayRun) {
		return todayRun.AddDate(0, 0, 1), nil
	}

	return todayRun, nil
}
