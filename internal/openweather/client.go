package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	currentPath  = "/data/2.5/weather"
	forecastPath = "/data/2.5/forecast"

	breakerFailures = 5
	breakerOpenFor  = time.Minute
)

var (
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoAPIKey     = errors.New("openweathermap api key is not configured")
	errUnexpected   = errors.New("unexpected status code")
	errMissingField = errors.New("missing required field")
)

// Config holds the upstream API settings
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client fetches current conditions and forecasts from OpenWeatherMap.
// Calls are not retried; repeated failures open the circuit breaker so a
// dead upstream fails fast.
type Client struct {
	apiKey  string
	http    *resty.Client
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates an OpenWeatherMap client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	logger = logger.Named("openweather")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openweathermap",
		Timeout: breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		apiKey:  cfg.APIKey,
		http:    httpClient,
		circuit: cb,
		logger:  logger,
	}
}

// Fetch returns the current observation for a city. Any failure is a
// *weather.FetchError.
func (c *Client) Fetch(ctx context.Context, city weather.City) (weather.Observation, error) {
	body, err := c.get(ctx, currentPath, city)
	if err != nil {
		return weather.Observation{}, &weather.FetchError{City: city.Name, Err: err}
	}

	var payload reading
	if err := json.Unmarshal(body, &payload); err != nil {
		return weather.Observation{}, &weather.FetchError{City: city.Name, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	obs, err := payload.toObservation(city.Name)
	if err != nil {
		return weather.Observation{}, &weather.FetchError{City: city.Name, Err: err}
	}
	return obs, nil
}

// FetchForecast returns the 5-day / 3-hour forecast of a city converted to
// observations
func (c *Client) FetchForecast(ctx context.Context, city weather.City) ([]weather.Observation, error) {
	body, err := c.get(ctx, forecastPath, city)
	if err != nil {
		return nil, &weather.FetchError{City: city.Name, Err: err}
	}

	var payload struct {
		List []reading `json:"list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &weather.FetchError{City: city.Name, Err: fmt.Errorf("failed to decode forecast: %w", err)}
	}

	observations := make([]weather.Observation, 0, len(payload.List))
	for i, entry := range payload.List {
		obs, err := entry.toObservation(city.Name)
		if err != nil {
			return nil, &weather.FetchError{City: city.Name, Err: fmt.Errorf("forecast entry %d: %w", i, err)}
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

func (c *Client) get(ctx context.Context, path string, city weather.City) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errNoAPIKey
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"lat":   strconv.FormatFloat(city.Latitude, 'f', -1, 64),
				"lon":   strconv.FormatFloat(city.Longitude, 'f', -1, 64),
				"appid": c.apiKey,
			}).
			Get(path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	c.logger.Debug("Fetched upstream data", zap.String("city", city.Name), zap.String("path", path))
	return body, nil
}

// reading is the shared shape of a current-weather response and a forecast
// list entry. Pointers distinguish absent required fields from zero values.
type reading struct {
	Dt   *int64 `json:"dt"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
		Deg   float64  `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

func (r reading) toObservation(city string) (weather.Observation, error) {
	switch {
	case r.Dt == nil:
		return weather.Observation{}, fmt.Errorf("%w: dt", errMissingField)
	case r.Main.Temp == nil:
		return weather.Observation{}, fmt.Errorf("%w: main.temp", errMissingField)
	case r.Main.FeelsLike == nil:
		return weather.Observation{}, fmt.Errorf("%w: main.feels_like", errMissingField)
	case r.Main.Humidity == nil:
		return weather.Observation{}, fmt.Errorf("%w: main.humidity", errMissingField)
	case r.Wind.Speed == nil:
		return weather.Observation{}, fmt.Errorf("%w: wind.speed", errMissingField)
	case len(r.Weather) == 0 || r.Weather[0].Main == "":
		return weather.Observation{}, fmt.Errorf("%w: weather[0].main", errMissingField)
	}

	return weather.Observation{
		City:              city,
		Timestamp:         time.Unix(*r.Dt, 0).UTC(),
		Temperature:       weather.KelvinToCelsius(*r.Main.Temp),
		FeelsLike:         weather.KelvinToCelsius(*r.Main.FeelsLike),
		Humidity:          *r.Main.Humidity,
		WindSpeed:         *r.Wind.Speed,
		WindDirection:     r.Wind.Deg,
		Clouds:            r.Clouds.All,
		DominantCondition: r.Weather[0].Main,
	}, nil
}
