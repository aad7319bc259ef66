package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smukkama/weather-pipeline/internal/notification"
	"github.com/smukkama/weather-pipeline/internal/protocol"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrCycleInProgress is returned by TryRunCycle when a cycle is running
	ErrCycleInProgress = errors.New("ingestion cycle already in progress")

	// ErrAllFetchesFailed means no city produced an observation
	ErrAllFetchesFailed = errors.New("failed to fetch weather for every city")
)

// Fetcher retrieves the current observation of a city
type Fetcher interface {
	Fetch(ctx context.Context, city weather.City) (weather.Observation, error)
}

// RollupRefresher recomputes a city's rollup for the current day
type RollupRefresher interface {
	RefreshToday(ctx context.Context, city string) (*weather.DailyRollup, error)
}

// ThresholdEvaluator evaluates every threshold rule
type ThresholdEvaluator interface {
	Evaluate(ctx context.Context) ([]weather.Alert, error)
}

// Config holds the orchestrator settings
type Config struct {
	Cities       []weather.City
	Topic        string
	Concurrency  int
	CycleTimeout time.Duration
}

// CycleResult summarizes one cycle
type CycleResult struct {
	CycleID      string                         `json:"cycle_id"`
	Observations []weather.Observation          `json:"observations"`
	Rollups      map[string]weather.DailyRollup `json:"rollups"`
	Alerts       []weather.Alert                `json:"alerts"`
	Failed       []string                       `json:"failed"`
	Published    bool                           `json:"published"`
}

// Orchestrator runs ingestion cycles: fetch every city, record, roll up,
// evaluate thresholds, update connection state and publish. At most one
// cycle runs at a time.
type Orchestrator struct {
	cfg          Config
	fetcher      Fetcher
	observations weather.ObservationStore
	rollups      RollupRefresher
	evaluator    ThresholdEvaluator
	notifier     notification.Notifier
	state        *ConnectionState
	logger       *zap.Logger
	now          func() time.Time

	running chan struct{}
}

// NewOrchestrator creates a new ingestion orchestrator
func NewOrchestrator(
	cfg Config,
	fetcher Fetcher,
	observations weather.ObservationStore,
	rollups RollupRefresher,
	evaluator ThresholdEvaluator,
	notifier notification.Notifier,
	state *ConnectionState,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		cfg:          cfg,
		fetcher:      fetcher,
		observations: observations,
		rollups:      rollups,
		evaluator:    evaluator,
		notifier:     notifier,
		state:        state,
		logger:       logger.Named("orchestrator"),
		now:          time.Now,
		running:      make(chan struct{}, 1),
	}
}

// State returns the connection state the orchestrator maintains
func (o *Orchestrator) State() *ConnectionState {
	return o.state
}

// Cities returns the configured cities
func (o *Orchestrator) Cities() []weather.City {
	return o.cfg.Cities
}

// RunCycle runs one cycle, waiting for an in-flight cycle to finish first.
// ctx bounds only the wait; once started, the cycle is limited by
// CycleTimeout alone and survives the caller going away.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleResult, error) {
	select {
	case o.running <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.running }()

	return o.runCycle(context.WithoutCancel(ctx))
}

// TryRunCycle runs one cycle unless one is already in flight
func (o *Orchestrator) TryRunCycle(ctx context.Context) (*CycleResult, error) {
	select {
	case o.running <- struct{}{}:
	default:
		return nil, ErrCycleInProgress
	}
	defer func() { <-o.running }()

	return o.runCycle(ctx)
}

func (o *Orchestrator) runCycle(ctx context.Context) (*CycleResult, error) {
	if o.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.CycleTimeout)
		defer cancel()
	}

	result := &CycleResult{
		CycleID: uuid.New().String(),
		Rollups: make(map[string]weather.DailyRollup),
	}
	logger := o.logger.With(zap.String("cycle_id", result.CycleID))
	start := o.now()

	logger.Info("Ingestion cycle started", zap.Int("cities", len(o.cfg.Cities)))

	result.Observations, result.Failed = o.fetchAll(ctx, logger)

	if len(result.Observations) == 0 {
		o.state.markUnhealthy()
		logger.Warn("Ingestion cycle failed for every city", zap.Strings("failed", result.Failed))
		return result, ErrAllFetchesFailed
	}

	o.state.markHealthy(o.now())

	for _, city := range o.cfg.Cities {
		rollup, err := o.rollups.RefreshToday(ctx, city.Name)
		if err != nil {
			logger.Error("Failed to refresh rollup", zap.String("city", city.Name), zap.Error(err))
			continue
		}
		if rollup != nil {
			result.Rollups[city.Name] = *rollup
		}
	}

	alerts, err := o.evaluator.Evaluate(ctx)
	if err != nil {
		logger.Error("Threshold evaluation incomplete", zap.Error(err))
	}
	if alerts == nil {
		alerts = []weather.Alert{}
	}
	result.Alerts = alerts

	payload, err := protocol.EncodeCycleReport(&protocol.CycleReport{
		CycleID:      result.CycleID,
		GeneratedAt:  o.now(),
		Observations: result.Observations,
		Rollups:      result.Rollups,
		Alerts:       result.Alerts,
	})
	if err != nil {
		logger.Error("Failed to encode cycle report", zap.Error(err))
	} else if err := o.notifier.Publish(ctx, o.cfg.Topic, payload); err != nil {
		logger.Error("Failed to publish cycle report", zap.String("topic", o.cfg.Topic), zap.Error(err))
	} else {
		result.Published = true
	}

	logger.Info("Ingestion cycle completed",
		zap.Int("observations", len(result.Observations)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("rollups", len(result.Rollups)),
		zap.Int("alerts", len(result.Alerts)),
		zap.Bool("published", result.Published),
		zap.Duration("duration", o.now().Sub(start)))

	return result, nil
}

// fetchAll fetches and records every city concurrently. Results keep the
// configured city order.
func (o *Orchestrator) fetchAll(ctx context.Context, logger *zap.Logger) ([]weather.Observation, []string) {
	type outcome struct {
		obs weather.Observation
		ok  bool
	}
	outcomes := make([]outcome, len(o.cfg.Cities))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)

	for i, city := range o.cfg.Cities {
		i, city := i, city
		g.Go(func() error {
			obs, err := o.fetcher.Fetch(ctx, city)
			if err != nil {
				logger.Warn("Skipping city", zap.String("city", city.Name), zap.Error(err))
				return nil
			}

			if err := o.observations.Append(ctx, &obs); err != nil {
				logger.Error("Failed to record observation", zap.String("city", city.Name), zap.Error(err))
				return nil
			}

			outcomes[i] = outcome{obs: obs, ok: true}
			return nil
		})
	}
	g.Wait()

	var observations []weather.Observation
	var failed []string
	for i, out := range outcomes {
		if out.ok {
			observations = append(observations, out.obs)
		} else {
			failed = append(failed, o.cfg.Cities[i].Name)
		}
	}
	return observations, failed
}
