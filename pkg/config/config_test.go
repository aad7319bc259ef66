package config

import (
	"testing"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TIME_ZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreBackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 10, cfg.Ingestion.IntervalMinutes)
	assert.Equal(t, 6, cfg.Ingestion.Concurrency)
	assert.Equal(t, weather.DefaultCities, cfg.Ingestion.Cities)
	assert.Equal(t, "notifications", cfg.Notifier.Topic)
	assert.True(t, cfg.Notifier.Enabled("hub"))
	assert.False(t, cfg.Notifier.Enabled("kafka"))
	assert.Equal(t, 10*time.Second, cfg.OpenWeather.Timeout)
	assert.Equal(t, time.UTC, cfg.Ingestion.Location)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TIME_ZONE", "UTC")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("INGESTION_INTERVAL_MINUTES", "15")
	t.Setenv("NOTIFIER_BACKENDS", "hub, redis,kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CITIES", "Delhi:28.6667:77.2167; Pune:18.52:73.85")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, 15, cfg.Ingestion.IntervalMinutes)
	assert.Equal(t, []string{"hub", "redis", "kafka"}, cfg.Notifier.Backends)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Len(t, cfg.Ingestion.Cities, 2)
	assert.Equal(t, weather.City{Name: "Pune", Latitude: 18.52, Longitude: 73.85}, cfg.Ingestion.Cities[1])
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("TIME_ZONE", "UTC")

	t.Run("interval", func(t *testing.T) {
		t.Setenv("INGESTION_INTERVAL_MINUTES", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "sqlite")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("timezone", func(t *testing.T) {
		t.Setenv("TIME_ZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseCities(t *testing.T) {
	_, err := ParseCities("Delhi:abc:77")
	assert.Error(t, err)

	_, err = ParseCities("Delhi:28")
	assert.Error(t, err)

	_, err = ParseCities(" ; ")
	assert.Error(t, err)
}
