package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smukkama/weather-pipeline/internal/aggregation"
	"github.com/smukkama/weather-pipeline/internal/alarming"
	"github.com/smukkama/weather-pipeline/internal/api"
	"github.com/smukkama/weather-pipeline/internal/ingestion"
	"github.com/smukkama/weather-pipeline/internal/notification"
	"github.com/smukkama/weather-pipeline/internal/openweather"
	"github.com/smukkama/weather-pipeline/internal/queue"
	"github.com/smukkama/weather-pipeline/internal/scheduler"
	"github.com/smukkama/weather-pipeline/internal/store"
	"github.com/smukkama/weather-pipeline/internal/timer"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/smukkama/weather-pipeline/pkg/config"
	"github.com/smukkama/weather-pipeline/pkg/logger"
	"go.uber.org/zap"
)

const dailyFinalizeTask = "daily-finalize"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	if err := run(cfg, zl); err != nil {
		zl.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	zl.Info("Starting weather pipeline",
		zap.String("store", cfg.StoreBackend),
		zap.Strings("notifiers", cfg.Notifier.Backends),
		zap.Int("seed_cities", len(cfg.Ingestion.Cities)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg, zl)
	if err != nil {
		return err
	}
	defer st.Close()

	cities, err := loadCities(ctx, st, cfg.Ingestion.Cities)
	if err != nil {
		return err
	}
	zl.Info("Loaded cities", zap.Int("count", len(cities)))

	hub := notification.NewHub(0, notification.DefaultSubscriberBuffer, zl)
	defer hub.Close()

	notifier, closeNotifiers, err := buildNotifier(ctx, cfg, hub, zl)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	client := openweather.NewClient(openweather.Config{
		APIKey:  cfg.OpenWeather.APIKey,
		BaseURL: cfg.OpenWeather.BaseURL,
		Timeout: cfg.OpenWeather.Timeout,
	}, zl)

	loc := cfg.Ingestion.Location
	aggregator := aggregation.NewDailyAggregator(st, st, loc, zl)
	orch := ingestion.NewOrchestrator(
		ingestion.Config{
			Cities:       cities,
			Topic:        cfg.Notifier.Topic,
			Concurrency:  cfg.Ingestion.Concurrency,
			CycleTimeout: cfg.Ingestion.CycleTimeout,
		},
		client,
		st,
		aggregator,
		alarming.NewEvaluator(st, st, zl),
		notifier,
		ingestion.NewConnectionState(),
		zl,
	)

	sched := scheduler.New(orch, st, cfg.Ingestion.IntervalMinutes, loc, zl)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// Finalize yesterday's rollups once a day
	timerManager := timer.NewTimerManager(zl)
	timerManager.Start()
	defer timerManager.Stop()

	err = timerManager.ScheduleRecurring(dailyFinalizeTask,
		func() (time.Time, error) { return aggregator.CalculateNextRunTime(cfg.Aggregation.DailyTime) },
		func() {
			if err := aggregator.RefreshPreviousDay(context.Background(), cities); err != nil {
				zl.Error("Daily finalize failed", zap.Error(err))
			}
		})
	if err != nil {
		return fmt.Errorf("failed to schedule daily finalize: %w", err)
	}

	srv := api.NewServer(api.Config{
		Topic:          cfg.Notifier.Topic,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, st, orch, sched, hub, zl)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("HTTP server listening", zap.Int("port", cfg.HTTP.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Print statistics periodically
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := orch.State().Status()
				zl.Info("Pipeline statistics",
					zap.Bool("healthy", status.Healthy),
					zap.Timep("last_successful_connection", status.LastSuccessfulConnection),
					zap.Int("interval_minutes", sched.Interval()),
					zap.Int("subscribers", hub.Count()),
					zap.Int("scheduled_timers", timerManager.Stats().ScheduledTasks))
			}
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	zl.Info("Shutting down gracefully")
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	return nil
}

// loadCities seeds the configured cities and returns every stored one.
// The cities table is authoritative; CITIES only seeds it.
func loadCities(ctx context.Context, st weather.CityStore, seed []weather.City) ([]weather.City, error) {
	for _, c := range seed {
		if err := st.UpsertCity(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to seed city %s: %w", c.Name, err)
		}
	}
	cities, err := st.ListCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cities: %w", err)
	}
	return cities, nil
}

// buildNotifier fans cycle reports out to every configured backend
func buildNotifier(ctx context.Context, cfg *config.Config, hub *notification.Hub, zl *zap.Logger) (notification.Notifier, func(), error) {
	var (
		multi   notification.Multi
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	for _, backend := range cfg.Notifier.Backends {
		switch backend {
		case notification.BackendHub:
			multi = append(multi, hub)

		case notification.BackendRedis:
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := client.Ping(ctx).Err(); err != nil {
				client.Close()
				closeAll()
				return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			closers = append(closers, func() { client.Close() })
			multi = append(multi, notification.NewRedisNotifier(client, cfg.Redis.ChannelPrefix, zl))

		case notification.BackendKafka:
			if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.NumPartitions, 1); err != nil {
				zl.Warn("Topic creation failed", zap.String("topic", cfg.Kafka.TopicNotifications), zap.Error(err))
			}
			producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
			closers = append(closers, func() { producer.Close() })
			multi = append(multi, notification.NewKafkaNotifier(producer, zl))

		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown notifier backend %q", backend)
		}
	}

	if len(multi) == 0 {
		zl.Warn("No notifier backends configured, cycle reports are not published")
	}
	return multi, closeAll, nil
}
