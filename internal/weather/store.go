package weather

import (
	"context"
	"time"
)

// CityStore holds the city reference data
type CityStore interface {
	ListCities(ctx context.Context) ([]City, error)
	GetCity(ctx context.Context, name string) (City, error)
	UpsertCity(ctx context.Context, city City) error
}

// ObservationStore is the append-only store of raw readings.
//
// Recent returns at most limit observations, most recent first. ForDate
// returns every observation in [day, day+1 calendar day) in chronological
// order; day is local midnight in the caller's timezone.
type ObservationStore interface {
	Append(ctx context.Context, obs *Observation) error
	Recent(ctx context.Context, city string, limit int) ([]Observation, error)
	ForDate(ctx context.Context, city string, day time.Time) ([]Observation, error)
	Latest(ctx context.Context) ([]Observation, error)
}

// RollupStore holds daily rollups keyed by (city, date)
type RollupStore interface {
	UpsertRollup(ctx context.Context, rollup DailyRollup) error
	GetRollup(ctx context.Context, city string, day time.Time) (DailyRollup, error)
	// ListRollups pages a city's rollups by date descending and returns the
	// city's total rollup count.
	ListRollups(ctx context.Context, city string, limit, offset int) ([]DailyRollup, int, error)
	DeleteRollupsBefore(ctx context.Context, day time.Time) error
}

// ThresholdStore holds at most one rule per (city, kind)
type ThresholdStore interface {
	// ListRules returns every rule of a kind ordered by id
	ListRules(ctx context.Context, kind RuleKind) ([]ThresholdRule, error)
	GetRule(ctx context.Context, city string, kind RuleKind) (ThresholdRule, error)
	UpsertRule(ctx context.Context, rule ThresholdRule) (ThresholdRule, error)
	DeleteRule(ctx context.Context, kind RuleKind, id int64) error
}

// SettingsStore persists the ingestion interval
type SettingsStore interface {
	GetInterval(ctx context.Context) (int, error)
	SetInterval(ctx context.Context, minutes int) error
}

// Store bundles every persistence concern
type Store interface {
	CityStore
	ObservationStore
	RollupStore
	ThresholdStore
	SettingsStore
	Close() error
}
