package weather

import "fmt"

// RuleKind discriminates the threshold rule variants
type RuleKind string

const (
	KindTemperature RuleKind = "temperature"
	KindHumidity    RuleKind = "humidity"
	KindWindSpeed   RuleKind = "wind_speed"
	KindCondition   RuleKind = "condition"
)

// RuleKinds lists every kind in evaluation order
var RuleKinds = []RuleKind{KindTemperature, KindHumidity, KindWindSpeed, KindCondition}

// DefaultConsecutiveUpdates is the window size used when none is given
const DefaultConsecutiveUpdates = 3

// ParseRuleKind validates a kind received from a client
func ParseRuleKind(s string) (RuleKind, error) {
	for _, k := range RuleKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", &ValidationError{Field: "type", Message: fmt.Sprintf("unknown threshold type %q", s)}
}

// Numeric reports whether the kind compares a numeric observation field
func (k RuleKind) Numeric() bool {
	return k == KindTemperature || k == KindHumidity || k == KindWindSpeed
}

// Value extracts the field a numeric rule kind compares
func (k RuleKind) Value(o Observation) (float64, bool) {
	switch k {
	case KindTemperature:
		return o.Temperature, true
	case KindHumidity:
		return o.Humidity, true
	case KindWindSpeed:
		return o.WindSpeed, true
	default:
		return 0, false
	}
}

// ThresholdRule is a tagged variant: numeric kinds use Min/Max, the
// condition kind uses Condition. A nil bound disables that side.
type ThresholdRule struct {
	ID                 int64    `json:"id"`
	City               string   `json:"city"`
	Kind               RuleKind `json:"-"`
	Min                *float64 `json:"min_threshold,omitempty"`
	Max                *float64 `json:"max_threshold,omitempty"`
	Condition          string   `json:"condition,omitempty"`
	ConsecutiveUpdates int      `json:"consecutive_updates"`
}

// Validate checks that only the fields of the rule's variant are set
func (r ThresholdRule) Validate() error {
	if r.City == "" {
		return &ValidationError{Field: "city", Message: "city is required"}
	}
	if r.ConsecutiveUpdates < 1 {
		return &ValidationError{Field: "consecutive_updates", Message: "consecutive_updates must be at least 1"}
	}

	switch {
	case r.Kind.Numeric():
		if r.Condition != "" {
			return &ValidationError{Field: "condition", Message: fmt.Sprintf("%s thresholds do not take a condition", r.Kind)}
		}
	case r.Kind == KindCondition:
		if r.Condition == "" {
			return &ValidationError{Field: "condition", Message: "condition is required"}
		}
		if r.Min != nil || r.Max != nil {
			return &ValidationError{Field: "condition", Message: "condition thresholds do not take bounds"}
		}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown threshold type %q", r.Kind)}
	}

	return nil
}

// Breach describes which side of a rule was violated
type Breach string

const (
	BreachBelow Breach = "below"
	BreachAbove Breach = "above"
	BreachMatch Breach = "match"
)

// Alert is produced fresh each cycle and never stored
type Alert struct {
	Kind               RuleKind `json:"type"`
	City               string   `json:"city"`
	Breach             Breach   `json:"breach"`
	Threshold          *float64 `json:"threshold,omitempty"`
	Condition          string   `json:"condition,omitempty"`
	ConsecutiveUpdates int      `json:"consecutive_updates"`
	Deviation          *float64 `json:"deviation,omitempty"`
}
