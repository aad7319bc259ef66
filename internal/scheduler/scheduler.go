package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/smukkama/weather-pipeline/internal/ingestion"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"go.uber.org/zap"
)

const ingestionTag = "ingestion"

// CycleRunner is the orchestrator entry point used by the periodic job
type CycleRunner interface {
	TryRunCycle(ctx context.Context) (*ingestion.CycleResult, error)
}

// Scheduler triggers ingestion cycles every interval minutes. The interval
// can be changed while running and is persisted.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    CycleRunner
	settings  weather.SettingsStore
	logger    *zap.Logger

	mu       sync.Mutex
	interval int
	started  bool
}

// New creates a new Scheduler. defaultInterval is used until a persisted
// interval is loaded by Start.
func New(runner CycleRunner, settings weather.SettingsStore, defaultInterval int, loc *time.Location, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		runner:    runner,
		settings:  settings,
		logger:    logger.Named("scheduler"),
		interval:  defaultInterval,
	}
}

// Start loads the persisted interval, schedules the ingestion job and
// starts the underlying scheduler. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	minutes, err := s.settings.GetInterval(ctx)
	var nf *weather.NotFoundError
	switch {
	case errors.As(err, &nf):
		s.logger.Info("No persisted interval, using default", zap.Int("minutes", s.interval))
	case err != nil:
		return fmt.Errorf("failed to load interval: %w", err)
	case minutes >= 1:
		s.interval = minutes
	}

	if err := s.schedule(false); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.started = true
	s.logger.Info("Scheduler started", zap.Int("interval_minutes", s.interval))
	return nil
}

// Interval returns the current interval in minutes
func (s *Scheduler) Interval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval persists a new interval and reschedules the job. The next
// cycle runs one full new interval from now.
func (s *Scheduler) SetInterval(ctx context.Context, minutes int) error {
	if minutes < 1 {
		return &weather.ValidationError{Field: "interval", Message: "interval must be at least 1 minute"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.settings.SetInterval(ctx, minutes); err != nil {
		return fmt.Errorf("failed to persist interval: %w", err)
	}
	s.interval = minutes

	if !s.started {
		return nil
	}

	if err := s.scheduler.RemoveByTag(ingestionTag); err != nil {
		s.logger.Warn("Failed to remove ingestion job", zap.Error(err))
	}
	if err := s.schedule(true); err != nil {
		return err
	}

	s.logger.Info("Ingestion interval updated", zap.Int("interval_minutes", minutes))
	return nil
}

// Stop stops the scheduler and cancels any future jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.scheduler.Stop()
		s.started = false
	}
}

// schedule must be called with mu held
func (s *Scheduler) schedule(waitForSchedule bool) error {
	job := s.scheduler.Every(s.interval).Minutes().Tag(ingestionTag).SingletonMode()
	if waitForSchedule {
		job = job.WaitForSchedule()
	}

	if _, err := job.Do(s.runJob); err != nil {
		return fmt.Errorf("failed to schedule ingestion job: %w", err)
	}
	return nil
}

func (s *Scheduler) runJob() {
	result, err := s.runner.TryRunCycle(context.Background())
	switch {
	case errors.Is(err, ingestion.ErrCycleInProgress):
		s.logger.Info("Previous cycle still running, trigger dropped")
	case err != nil:
		s.logger.Warn("Scheduled cycle failed", zap.Error(err))
	default:
		s.logger.Debug("Scheduled cycle finished",
			zap.String("cycle_id", result.CycleID),
			zap.Int("observations", len(result.Observations)))
	}
}
