package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
)

// MessageType represents the type of an envelope
type MessageType string

const (
	// MsgTypeWeather carries a CycleReport
	MsgTypeWeather MessageType = "weather"
)

// Envelope is the frame every subscriber receives. Message holds the
// JSON-encoded body as a string.
type Envelope struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// CycleReport is the body published once per successful ingestion cycle
type CycleReport struct {
	CycleID      string                         `json:"cycle_id"`
	GeneratedAt  time.Time                      `json:"generated_at"`
	Observations []weather.Observation          `json:"observations"`
	Rollups      map[string]weather.DailyRollup `json:"rollups"`
	Alerts       []weather.Alert                `json:"alerts"`
}

// EncodeCycleReport wraps a report in a weather envelope
func EncodeCycleReport(report *CycleReport) ([]byte, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cycle report: %w", err)
	}

	return json.Marshal(Envelope{Type: MsgTypeWeather, Message: string(body)})
}

// DecodeEnvelope decodes JSON to Envelope
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// CycleReport decodes the body of a weather envelope
func (e *Envelope) CycleReport() (*CycleReport, error) {
	if e.Type != MsgTypeWeather {
		return nil, fmt.Errorf("unexpected message type: %s", e.Type)
	}

	var report CycleReport
	if err := json.Unmarshal([]byte(e.Message), &report); err != nil {
		return nil, fmt.Errorf("failed to decode cycle report: %w", err)
	}
	return &report, nil
}
