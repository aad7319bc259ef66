package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smukkama/weather-pipeline/internal/weather"
)

type Config struct {
	StoreBackend string
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	OpenWeather  OpenWeatherConfig
	Ingestion    IngestionConfig
	HTTP         HTTPConfig
	Aggregation  AggregationConfig
	Notifier     NotifierConfig
	SMTP         SMTPConfig
	Log          LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

type KafkaConfig struct {
	Brokers            []string
	TopicNotifications string
	NumPartitions      int
}

type OpenWeatherConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type IngestionConfig struct {
	IntervalMinutes int
	Concurrency     int
	CycleTimeout    time.Duration
	Location        *time.Location
	Cities          []weather.City
}

type HTTPConfig struct {
	Port           int
	AllowedOrigins []string
}

type AggregationConfig struct {
	DailyTime string
}

type NotifierConfig struct {
	Backends []string
	Topic    string
}

// Enabled reports whether a notifier backend is configured
func (n NotifierConfig) Enabled(backend string) bool {
	for _, b := range n.Backends {
		if b == backend {
			return true
		}
	}
	return false
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	tz := getEnv("TIME_ZONE", "Asia/Kolkata")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", tz, err)
	}

	cities := weather.DefaultCities
	if raw := getEnv("CITIES", ""); raw != "" {
		cities, err = ParseCities(raw)
		if err != nil {
			return nil, err
		}
	}

	config := &Config{
		StoreBackend: getEnv("STORE_BACKEND", StoreBackendPostgres),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "weather_user"),
			Password: getEnv("DB_PASSWORD", "weather_pass"),
			DBName:   getEnv("DB_NAME", "weather_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "weather:"),
		},
		Kafka: KafkaConfig{
			Brokers:            getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicNotifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "weather.notifications"),
			NumPartitions:      getEnvAsInt("KAFKA_NUM_PARTITIONS", 1),
		},
		OpenWeather: OpenWeatherConfig{
			APIKey:  getEnv("OPENWEATHERMAP_API_KEY", ""),
			BaseURL: getEnv("OPENWEATHERMAP_BASE_URL", "https://api.openweathermap.org"),
			Timeout: getEnvAsDuration("OPENWEATHERMAP_TIMEOUT", 10*time.Second),
		},
		Ingestion: IngestionConfig{
			IntervalMinutes: getEnvAsInt("INGESTION_INTERVAL_MINUTES", 10),
			Concurrency:     getEnvAsInt("INGESTION_CONCURRENCY", 6),
			CycleTimeout:    getEnvAsDuration("INGESTION_CYCLE_TIMEOUT", 2*time.Minute),
			Location:        loc,
			Cities:          cities,
		},
		HTTP: HTTPConfig{
			Port:           getEnvAsInt("HTTP_PORT", 8000),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Aggregation: AggregationConfig{
			DailyTime: getEnv("AGGREGATION_DAILY_TIME", "00:05"),
		},
		Notifier: NotifierConfig{
			Backends: getEnvAsList("NOTIFIER_BACKENDS", []string{"hub"}),
			Topic:    getEnv("NOTIFICATION_TOPIC", "notifications"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "weather-pipeline@example.com"),
			To:       getEnv("SMTP_TO", "admin@example.com"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if config.Ingestion.IntervalMinutes < 1 {
		return nil, fmt.Errorf("INGESTION_INTERVAL_MINUTES must be at least 1, got %d", config.Ingestion.IntervalMinutes)
	}
	if config.Ingestion.Concurrency < 1 {
		config.Ingestion.Concurrency = 1
	}
	switch config.StoreBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", config.StoreBackend)
	}

	return config, nil
}

// ParseCities parses "Name:lat:lon;Name:lat:lon"
func ParseCities(raw string) ([]weather.City, error) {
	var cities []weather.City
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid city entry %q (expected Name:lat:lon)", entry)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", entry, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", entry, err)
		}

		cities = append(cities, weather.City{
			Name:      strings.TrimSpace(parts[0]),
			Latitude:  lat,
			Longitude: lon,
		})
	}

	if len(cities) == 0 {
		return nil, fmt.Errorf("CITIES is set but contains no entries")
	}
	return cities, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
