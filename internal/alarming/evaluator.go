package alarming

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/smukkama/weather-pipeline/internal/weather"
	"go.uber.org/zap"
)

// Evaluator checks every threshold rule against each city's most recent
// observations
type Evaluator struct {
	rules        weather.ThresholdStore
	observations weather.ObservationStore
	logger       *zap.Logger
}

// NewEvaluator creates a new threshold evaluator
func NewEvaluator(rules weather.ThresholdStore, observations weather.ObservationStore, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		rules:        rules,
		observations: observations,
		logger:       logger.Named("alarming"),
	}
}

// Evaluate runs every rule group in order temperature, humidity, wind_speed,
// condition. A failure on one rule or group does not stop the others; the
// joined error is returned with the alerts that were produced.
func (e *Evaluator) Evaluate(ctx context.Context) ([]weather.Alert, error) {
	alerts := []weather.Alert{}
	var errs []error

	for _, kind := range weather.RuleKinds {
		rules, err := e.rules.ListRules(ctx, kind)
		if err != nil {
			e.logger.Error("Failed to load thresholds", zap.String("type", string(kind)), zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to load %s thresholds: %w", kind, err))
			continue
		}

		for _, rule := range rules {
			if rule.ConsecutiveUpdates <= 0 {
				continue
			}

			window, err := e.observations.Recent(ctx, rule.City, rule.ConsecutiveUpdates)
			if err != nil {
				e.logger.Error("Failed to load observations for threshold",
					zap.String("city", rule.City),
					zap.String("type", string(kind)),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("failed to evaluate %s threshold for %s: %w", kind, rule.City, err))
				continue
			}

			if alert := EvaluateRule(rule, window); alert != nil {
				e.logger.Info("Threshold breached",
					zap.String("city", alert.City),
					zap.String("type", string(alert.Kind)),
					zap.String("breach", string(alert.Breach)),
					zap.Int("consecutive_updates", alert.ConsecutiveUpdates))
				alerts = append(alerts, *alert)
			}
		}
	}

	return alerts, errors.Join(errs...)
}

// EvaluateRule decides whether rule fires for window, the city's most recent
// observations. It needs at least ConsecutiveUpdates observations and only
// looks at that many. For numeric rules the lower bound wins when both
// sides could fire.
func EvaluateRule(rule weather.ThresholdRule, window []weather.Observation) *weather.Alert {
	k := rule.ConsecutiveUpdates
	if k <= 0 || len(window) < k {
		return nil
	}
	window = window[:k]

	if rule.Kind == weather.KindCondition {
		return evaluateCondition(rule, window)
	}
	return evaluateNumeric(rule, window)
}

func evaluateNumeric(rule weather.ThresholdRule, window []weather.Observation) *weather.Alert {
	values := make([]float64, 0, len(window))
	for _, o := range window {
		v, ok := rule.Kind.Value(o)
		if !ok {
			return nil
		}
		values = append(values, v)
	}

	var breach weather.Breach
	var bound float64
	switch {
	case rule.Min != nil && all(values, func(v float64) bool { return v < *rule.Min }):
		breach, bound = weather.BreachBelow, *rule.Min
	case rule.Max != nil && all(values, func(v float64) bool { return v > *rule.Max }):
		breach, bound = weather.BreachAbove, *rule.Max
	default:
		return nil
	}

	deviation := math.Abs(mean(values) - bound)
	return &weather.Alert{
		Kind:               rule.Kind,
		City:               rule.City,
		Breach:             breach,
		Threshold:          &bound,
		ConsecutiveUpdates: rule.ConsecutiveUpdates,
		Deviation:          &deviation,
	}
}

func evaluateCondition(rule weather.ThresholdRule, window []weather.Observation) *weather.Alert {
	if rule.Condition == "" {
		return nil
	}
	for _, o := range window {
		if o.DominantCondition != rule.Condition {
			return nil
		}
	}

	return &weather.Alert{
		Kind:               weather.KindCondition,
		City:               rule.City,
		Breach:             weather.BreachMatch,
		Condition:          rule.Condition,
		ConsecutiveUpdates: rule.ConsecutiveUpdates,
	}
}

func all(values []float64, pred func(float64) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
