package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/weather-pipeline/internal/notification"
	"github.com/smukkama/weather-pipeline/internal/protocol"
	"github.com/smukkama/weather-pipeline/internal/queue"
	"github.com/smukkama/weather-pipeline/pkg/config"
	"github.com/smukkama/weather-pipeline/pkg/logger"
	"go.uber.org/zap"
)

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

	zl.Info("Starting notification service",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.TopicNotifications))

	notifier := notification.NewEmailNotifier(&cfg.SMTP, zl)

	// Test SMTP connection (optional, will skip if not configured)
	if err := notifier.TestConnection(); err != nil {
		zl.Warn("SMTP unavailable, alerts will be logged only", zap.Error(err))
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, "notification-group")
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		msg, err := consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			zl.Warn("Failed to consume message", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		report, err := decodeReport(msg.Value)
		if err != nil {
			// poison message, skip it
			zl.Error("Failed to decode notification", zap.Int64("offset", msg.Offset), zap.Error(err))
			if err := consumer.Commit(ctx, msg); err != nil {
				zl.Warn("Failed to commit offset", zap.Error(err))
			}
			continue
		}

		if err := sendWithRetry(ctx, notifier, report); err != nil {
			zl.Error("Failed to send alerts, giving up",
				zap.String("cycle_id", report.CycleID),
				zap.Int("alerts", len(report.Alerts)),
				zap.Error(err))
		}

		if err := consumer.Commit(ctx, msg); err != nil {
			zl.Warn("Failed to commit offset", zap.Error(err))
		}
	}

	zl.Info("Shutting down gracefully")
}

const sendAttempts = 3

// sendWithRetry retries the mail a few times. A fetched message is not
// redelivered by the reader, so the offset is committed either way.
func sendWithRetry(ctx context.Context, notifier *notification.EmailNotifier, report *protocol.CycleReport) error {
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = notifier.SendAlerts(report); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return err
}

func decodeReport(data []byte) (*protocol.CycleReport, error) {
	envelope, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if envelope.Type != protocol.MsgTypeWeather {
		return nil, errors.New("unexpected message type " + string(envelope.Type))
	}
	return envelope.CycleReport()
}
