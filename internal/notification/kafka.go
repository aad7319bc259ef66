package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Publisher is the producer side of a Kafka topic
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// KafkaNotifier writes payloads to the notifications topic keyed by the
// logical topic name
type KafkaNotifier struct {
	producer Publisher
	logger   *zap.Logger
}

// NewKafkaNotifier creates a new Kafka notifier
func NewKafkaNotifier(producer Publisher, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		logger:   logger.Named("kafka"),
	}
}

func (k *KafkaNotifier) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := k.producer.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("failed to publish to kafka: %w", err)
	}

	k.logger.Debug("Published to kafka", zap.String("key", topic), zap.Int("bytes", len(payload)))
	return nil
}
