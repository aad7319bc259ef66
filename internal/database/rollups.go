package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
)

const rollupColumns = `city, date, avg_temp, max_temp, min_temp, avg_feels_like,
	max_feels_like, min_feels_like, avg_humidity, avg_wind_speed, avg_wind_deg,
	avg_clouds, dominant_condition`

// UpsertRollup inserts or replaces the rollup for (city, date)
func (db *DB) UpsertRollup(ctx context.Context, r weather.DailyRollup) error {
	query := `
		INSERT INTO daily_rollups (
			city, date, avg_temp, max_temp, min_temp, avg_feels_like,
			max_feels_like, min_feels_like, avg_humidity, avg_wind_speed,
			avg_wind_deg, avg_clouds, dominant_condition
		) VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (city, date) DO UPDATE
		SET avg_temp = EXCLUDED.avg_temp,
		    max_temp = EXCLUDED.max_temp,
		    min_temp = EXCLUDED.min_temp,
		    avg_feels_like = EXCLUDED.avg_feels_like,
		    max_feels_like = EXCLUDED.max_feels_like,
		    min_feels_like = EXCLUDED.min_feels_like,
		    avg_humidity = EXCLUDED.avg_humidity,
		    avg_wind_speed = EXCLUDED.avg_wind_speed,
		    avg_wind_deg = EXCLUDED.avg_wind_deg,
		    avg_clouds = EXCLUDED.avg_clouds,
		    dominant_condition = EXCLUDED.dominant_condition,
		    updated_at = CURRENT_TIMESTAMP
	`

	_, err := db.ExecContext(ctx,
		query,
		r.City,
		dateParam(r.Date),
		r.AvgTemp,
		r.MaxTemp,
		r.MinTemp,
		r.AvgFeelsLike,
		r.MaxFeelsLike,
		r.MinFeelsLike,
		r.AvgHumidity,
		r.AvgWindSpeed,
		r.AvgWindDeg,
		r.AvgClouds,
		r.DominantCondition,
	)
	if err != nil {
		return &weather.StoreError{Op: "upsert rollup for " + r.City, Err: err}
	}
	return nil
}

// GetRollup retrieves the rollup of one city and date
func (db *DB) GetRollup(ctx context.Context, city string, day time.Time) (weather.DailyRollup, error) {
	query := `SELECT ` + rollupColumns + ` FROM daily_rollups WHERE city = $1 AND date = $2::date`

	r, err := scanRollup(db.QueryRowContext(ctx, query, city, dateParam(day)))
	if errors.Is(err, sql.ErrNoRows) {
		return weather.DailyRollup{}, &weather.NotFoundError{Resource: "rollup", Key: city + "/" + dateParam(day)}
	}
	if err != nil {
		return weather.DailyRollup{}, &weather.StoreError{Op: "get rollup for " + city, Err: err}
	}
	return r, nil
}

// ListRollups pages a city's rollups by date descending
func (db *DB) ListRollups(ctx context.Context, city string, limit, offset int) ([]weather.DailyRollup, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_rollups WHERE city = $1`, city).Scan(&total); err != nil {
		return nil, 0, &weather.StoreError{Op: "count rollups for " + city, Err: err}
	}

	query := `
		SELECT ` + rollupColumns + `
		FROM daily_rollups
		WHERE city = $1
		ORDER BY date DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := db.QueryContext(ctx, query, city, limit, offset)
	if err != nil {
		return nil, 0, &weather.StoreError{Op: "list rollups for " + city, Err: err}
	}
	defer rows.Close()

	rollups := []weather.DailyRollup{}
	for rows.Next() {
		r, err := scanRollup(rows)
		if err != nil {
			return nil, 0, &weather.StoreError{Op: "scan rollup", Err: err}
		}
		rollups = append(rollups, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &weather.StoreError{Op: "list rollups for " + city, Err: err}
	}
	return rollups, total, nil
}

// DeleteRollupsBefore removes every rollup dated strictly before day
func (db *DB) DeleteRollupsBefore(ctx context.Context, day time.Time) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM daily_rollups WHERE date < $1::date`, dateParam(day)); err != nil {
		return &weather.StoreError{Op: "delete old rollups", Err: err}
	}
	return nil
}
