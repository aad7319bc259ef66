package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
)

type ruleKey struct {
	city string
	kind weather.RuleKind
}

type rollupKey struct {
	city string
	date string
}

// MemoryStore is a concurrency-safe in-memory weather.Store. Used by tests
// and by STORE_BACKEND=memory.
type MemoryStore struct {
	mu sync.RWMutex

	cities       map[string]weather.City
	cityOrder    []string
	observations map[string][]weather.Observation // chronological per city
	rollups      map[rollupKey]weather.DailyRollup
	rules        map[ruleKey]weather.ThresholdRule
	interval     int

	nextObservationID int64
	nextRuleID        int64
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cities:       make(map[string]weather.City),
		observations: make(map[string][]weather.Observation),
		rollups:      make(map[rollupKey]weather.DailyRollup),
		rules:        make(map[ruleKey]weather.ThresholdRule),
	}
}

func (s *MemoryStore) ListCities(ctx context.Context) ([]weather.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cities := make([]weather.City, 0, len(s.cityOrder))
	for _, name := range s.cityOrder {
		cities = append(cities, s.cities[name])
	}
	return cities, nil
}

func (s *MemoryStore) GetCity(ctx context.Context, name string) (weather.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	city, ok := s.cities[name]
	if !ok {
		return weather.City{}, &weather.NotFoundError{Resource: "city", Key: name}
	}
	return city, nil
}

func (s *MemoryStore) UpsertCity(ctx context.Context, city weather.City) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cities[city.Name]; !ok {
		s.cityOrder = append(s.cityOrder, city.Name)
	}
	s.cities[city.Name] = city
	return nil
}

// Append stores obs and assigns its ID. Observations are kept sorted by
// timestamp so out-of-order appends still read back chronologically.
func (s *MemoryStore) Append(ctx context.Context, obs *weather.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextObservationID++
	obs.ID = s.nextObservationID

	history := append(s.observations[obs.City], *obs)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	s.observations[obs.City] = history
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, city string, limit int) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.observations[city]
	if limit > len(history) {
		limit = len(history)
	}

	recent := make([]weather.Observation, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		recent = append(recent, history[i])
	}
	return recent, nil
}

func (s *MemoryStore) ForDate(ctx context.Context, city string, day time.Time) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := day.AddDate(0, 0, 1)
	var result []weather.Observation
	for _, o := range s.observations[city] {
		if !o.Timestamp.Before(day) && o.Timestamp.Before(end) {
			result = append(result, o)
		}
	}
	return result, nil
}

// Latest returns the newest observation of every city, ordered by city name
func (s *MemoryStore) Latest(ctx context.Context) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest []weather.Observation
	for _, history := range s.observations {
		if len(history) > 0 {
			latest = append(latest, history[len(history)-1])
		}
	}
	sort.Slice(latest, func(i, j int) bool { return latest[i].City < latest[j].City })
	return latest, nil
}

func (s *MemoryStore) UpsertRollup(ctx context.Context, rollup weather.DailyRollup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollups[rollupKey{rollup.City, rollup.Date.Format(weather.DateLayout)}] = rollup
	return nil
}

func (s *MemoryStore) GetRollup(ctx context.Context, city string, day time.Time) (weather.DailyRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date := day.Format(weather.DateLayout)
	rollup, ok := s.rollups[rollupKey{city, date}]
	if !ok {
		return weather.DailyRollup{}, &weather.NotFoundError{Resource: "rollup", Key: city + "/" + date}
	}
	return rollup, nil
}

func (s *MemoryStore) ListRollups(ctx context.Context, city string, limit, offset int) ([]weather.DailyRollup, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []weather.DailyRollup
	for k, r := range s.rollups {
		if k.city == city {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })

	total := len(all)
	if offset >= total {
		return []weather.DailyRollup{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) DeleteRollupsBefore(ctx context.Context, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := day.Format(weather.DateLayout)
	for k := range s.rollups {
		if k.date < cutoff {
			delete(s.rollups, k)
		}
	}
	return nil
}

func (s *MemoryStore) ListRules(ctx context.Context, kind weather.RuleKind) ([]weather.ThresholdRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []weather.ThresholdRule
	for k, r := range s.rules {
		if k.kind == kind {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (s *MemoryStore) GetRule(ctx context.Context, city string, kind weather.RuleKind) (weather.ThresholdRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[ruleKey{city, kind}]
	if !ok {
		return weather.ThresholdRule{}, &weather.NotFoundError{Resource: string(kind) + " threshold", Key: city}
	}
	return rule, nil
}

// UpsertRule keeps the existing ID when a rule for (city, kind) exists
func (s *MemoryStore) UpsertRule(ctx context.Context, rule weather.ThresholdRule) (weather.ThresholdRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey{rule.City, rule.Kind}
	if existing, ok := s.rules[key]; ok {
		rule.ID = existing.ID
	} else {
		s.nextRuleID++
		rule.ID = s.nextRuleID
	}
	s.rules[key] = rule
	return rule, nil
}

func (s *MemoryStore) DeleteRule(ctx context.Context, kind weather.RuleKind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, r := range s.rules {
		if k.kind == kind && r.ID == id {
			delete(s.rules, k)
			return nil
		}
	}
	return &weather.NotFoundError{Resource: string(kind) + " threshold", Key: formatID(id)}
}

func (s *MemoryStore) GetInterval(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.interval == 0 {
		return 0, &weather.NotFoundError{Resource: "interval setting"}
	}
	return s.interval, nil
}

func (s *MemoryStore) SetInterval(ctx context.Context, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = minutes
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
