package ingestion

import (
	"sync"
	"time"

	"github.com/smukkama/weather-pipeline/internal/weather"
)

// ConnectionState tracks upstream health. Readers get snapshots; only the
// orchestrator changes it.
type ConnectionState struct {
	mu          sync.RWMutex
	healthy     bool
	lastSuccess *time.Time
}

// NewConnectionState starts unhealthy with no recorded success
func NewConnectionState() *ConnectionState {
	return &ConnectionState{}
}

// Status returns a point-in-time copy of the state
func (s *ConnectionState) Status() weather.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := weather.ConnectionStatus{Healthy: s.healthy}
	if s.lastSuccess != nil {
		t := *s.lastSuccess
		status.LastSuccessfulConnection = &t
	}
	return status
}

// Healthy reports whether the last cycle reached the upstream
func (s *ConnectionState) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *ConnectionState) markHealthy(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = true
	s.lastSuccess = &at
}

// markUnhealthy keeps the last success timestamp
func (s *ConnectionState) markUnhealthy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = false
}
