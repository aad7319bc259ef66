package database

import (
	"context"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
)

const observationColumns = `id, city, timestamp, temperature, feels_like, humidity,
	wind_speed, wind_direction, clouds, dominant_condition`

// Append inserts a raw observation and sets its ID
func (db *DB) Append(ctx context.Context, obs *weather.Observation) error {
	query := `
		INSERT INTO observations (
			city, timestamp, temperature, feels_like, humidity,
			wind_speed, wind_direction, clouds, dominant_condition
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := db.QueryRowContext(ctx,
		query,
		obs.City,
		obs.Timestamp,
		obs.Temperature,
		obs.FeelsLike,
		obs.Humidity,
		obs.WindSpeed,
		obs.WindDirection,
		obs.Clouds,
		obs.DominantCondition,
	).Scan(&obs.ID)
	if err != nil {
		return &weather.StoreError{Op: "append observation for " + obs.City, Err: err}
	}
	return nil
}

// Recent returns up to limit observations for a city, newest first
func (db *DB) Recent(ctx context.Context, city string, limit int) ([]weather.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE city = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`
	return db.queryObservations(ctx, "recent observations for "+city, query, city, limit)
}

// ForDate returns a city's observations within one local day, oldest first
func (db *DB) ForDate(ctx context.Context, city string, day time.Time) ([]weather.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE city = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp, id
	`
	return db.queryObservations(ctx, "observations by date for "+city, query, city, day, day.AddDate(0, 0, 1))
}

// Latest returns the newest observation of every city
func (db *DB) Latest(ctx context.Context) ([]weather.Observation, error) {
	query := `
		SELECT DISTINCT ON (city) ` + observationColumns + `
		FROM observations
		ORDER BY city, timestamp DESC, id DESC
	`
	return db.queryObservations(ctx, "latest observations", query)
}

func (db *DB) queryObservations(ctx context.Context, op, query string, args ...any) ([]weather.Observation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &weather.StoreError{Op: "query " + op, Err: err}
	}
	defer rows.Close()

	var observations []weather.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, &weather.StoreError{Op: "scan " + op, Err: err}
		}
		observations = append(observations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &weather.StoreError{Op: "query " + op, Err: err}
	}
	return observations, nil
}
