package database

import (
	"database/sql"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
)

// thresholdRow mirrors a thresholds row; nullable columns map to unset
// bounds or an absent condition
type thresholdRow struct {
	ID                 int64
	City               string
	Kind               string
	MinThreshold       sql.NullFloat64
	MaxThreshold       sql.NullFloat64
	Condition          sql.NullString
	ConsecutiveUpdates int
}

func (r thresholdRow) toRule() weather.ThresholdRule {
	rule := weather.ThresholdRule{
		ID:                 r.ID,
		City:               r.City,
		Kind:               weather.RuleKind(r.Kind),
		ConsecutiveUpdates: r.ConsecutiveUpdates,
	}
	if r.MinThreshold.Valid {
		v := r.MinThreshold.Float64
		rule.Min = &v
	}
	if r.MaxThreshold.Valid {
		v := r.MaxThreshold.Float64
		rule.Max = &v
	}
	if r.Condition.Valid {
		rule.Condition = r.Condition.String
	}
	return rule
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// dateParam renders a local midnight as a DATE literal so the column
// comparison is timezone independent
func dateParam(day time.Time) string {
	return day.Format(weather.DateLayout)
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(s scanner) (weather.Observation, error) {
	var o weather.Observation
	err := s.Scan(
		&o.ID,
		&o.City,
		&o.Timestamp,
		&o.Temperature,
		&o.FeelsLike,
		&o.Humidity,
		&o.WindSpeed,
		&o.WindDirection,
		&o.Clouds,
		&o.DominantCondition,
	)
	return o, err
}

func scanRollup(s scanner) (weather.DailyRollup, error) {
	var r weather.DailyRollup
	err := s.Scan(
		&r.City,
		&r.Date,
		&r.AvgTemp,
		&r.MaxTemp,
		&r.MinTemp,
		&r.AvgFeelsLike,
		&r.MaxFeelsLike,
		&r.MinFeelsLike,
		&r.AvgHumidity,
		&r.AvgWindSpeed,
		&r.AvgWindDeg,
		&r.AvgClouds,
		&r.DominantCondition,
	)
	return r, err
}
