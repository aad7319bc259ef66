package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const settingInterval = "interval_minutes"

// DB wraps the database connection and implements weather.Store
type DB struct {
	*sql.DB
}

var _ weather.Store = (*DB)(nil)

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes the embedded SQL migrations in filename order.
// Every statement is idempotent.
func (db *DB) RunMigrations(logger *zap.Logger) error {
	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	for _, filename := range files {
		logger.Debug("Running migration", zap.String("file", filename))

		content, err := migrationFS.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	logger.Info("All migrations completed successfully", zap.Int("count", len(files)))
	return nil
}

// UpsertCity inserts or updates a city
func (db *DB) UpsertCity(ctx context.Context, city weather.City) error {
	query := `
		INSERT INTO cities (name, latitude, longitude)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    updated_at = CURRENT_TIMESTAMP
	`
	if _, err := db.ExecContext(ctx, query, city.Name, city.Latitude, city.Longitude); err != nil {
		return &weather.StoreError{Op: "upsert city " + city.Name, Err: err}
	}
	return nil
}

// GetCity retrieves a city by name
func (db *DB) GetCity(ctx context.Context, name string) (weather.City, error) {
	query := `SELECT name, latitude, longitude FROM cities WHERE name = $1`

	var c weather.City
	err := db.QueryRowContext(ctx, query, name).Scan(&c.Name, &c.Latitude, &c.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.City{}, &weather.NotFoundError{Resource: "city", Key: name}
	}
	if err != nil {
		return weather.City{}, &weather.StoreError{Op: "get city " + name, Err: err}
	}
	return c, nil
}

// ListCities returns every city in insertion order
func (db *DB) ListCities(ctx context.Context) ([]weather.City, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, latitude, longitude FROM cities ORDER BY created_at, name`)
	if err != nil {
		return nil, &weather.StoreError{Op: "list cities", Err: err}
	}
	defer rows.Close()

	var cities []weather.City
	for rows.Next() {
		var c weather.City
		if err := rows.Scan(&c.Name, &c.Latitude, &c.Longitude); err != nil {
			return nil, &weather.StoreError{Op: "scan city", Err: err}
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &weather.StoreError{Op: "list cities", Err: err}
	}
	return cities, nil
}

// GetInterval reads the persisted ingestion interval
func (db *DB) GetInterval(ctx context.Context) (int, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, settingInterval).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &weather.NotFoundError{Resource: "interval setting"}
	}
	if err != nil {
		return 0, &weather.StoreError{Op: "get interval", Err: err}
	}

	minutes, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &weather.StoreError{Op: "parse interval", Err: err}
	}
	return minutes, nil
}

// SetInterval persists the ingestion interval
func (db *DB) SetInterval(ctx context.Context, minutes int) error {
	query := `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = CURRENT_TIMESTAMP
	`
	if _, err := db.ExecContext(ctx, query, settingInterval, strconv.Itoa(minutes)); err != nil {
		return &weather.StoreError{Op: "set interval", Err: err}
	}
	return nil
}
