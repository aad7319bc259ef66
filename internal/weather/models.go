package weather

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire format of rollup dates
const DateLayout = "2006-01-02"

// KelvinOffset is subtracted from upstream Kelvin readings
const KelvinOffset = 273.15

// KelvinToCelsius converts an upstream Kelvin reading to Celsius
func KelvinToCelsius(kelvin float64) float64 {
	return kelvin - KelvinOffset
}

// City is a tracked location. Name is the unique key.
type City struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Observation is a single raw reading for a city. Temperatures are Celsius.
type Observation struct {
	ID                int64     `json:"id"`
	City              string    `json:"city"`
	Timestamp         time.Time `json:"dt"`
	Temperature       float64   `json:"temp"`
	FeelsLike         float64   `json:"feels_like"`
	Humidity          float64   `json:"humidity"`
	WindSpeed         float64   `json:"wind_speed"`
	WindDirection     float64   `json:"wind_deg"`
	Clouds            float64   `json:"clouds"`
	DominantCondition string    `json:"dominant_condition"`
}

// DailyRollup is the aggregate of one city's observations for one local date
type DailyRollup struct {
	City              string    `json:"city"`
	Date              time.Time `json:"-"`
	AvgTemp           float64   `json:"avg_temp"`
	MaxTemp           float64   `json:"max_temp"`
	MinTemp           float64   `json:"min_temp"`
	AvgFeelsLike      float64   `json:"avg_feels_like"`
	MaxFeelsLike      float64   `json:"max_feels_like"`
	MinFeelsLike      float64   `json:"min_feels_like"`
	AvgHumidity       float64   `json:"avg_humidity"`
	AvgWindSpeed      float64   `json:"avg_wind_speed"`
	AvgWindDeg        float64   `json:"avg_wind_deg"`
	AvgClouds         float64   `json:"avg_clouds"`
	DominantCondition string    `json:"dominant_condition"`
}

// MarshalJSON renders Date as a calendar date
func (r DailyRollup) MarshalJSON() ([]byte, error) {
	type alias DailyRollup
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{
		alias: alias(r),
		Date:  r.Date.Format(DateLayout),
	})
}

// UnmarshalJSON parses the calendar date written by MarshalJSON
func (r *DailyRollup) UnmarshalJSON(data []byte) error {
	type alias DailyRollup
	aux := struct {
		*alias
		Date string `json:"date"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Date == "" {
		return nil
	}

	date, err := time.Parse(DateLayout, aux.Date)
	if err != nil {
		return err
	}
	r.Date = date
	return nil
}

// ConnectionStatus is a point-in-time view of upstream health
type ConnectionStatus struct {
	Healthy                  bool       `json:"status"`
	LastSuccessfulConnection *time.Time `json:"last_successful_connection"`
}

// StartOfDay returns local midnight of t in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
