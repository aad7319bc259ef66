package notification

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisNotifier publishes on Redis pub/sub channels named prefix+topic so
// subscribers outside this process can follow cycles
type RedisNotifier struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisNotifier creates a new Redis notifier
func NewRedisNotifier(client *redis.Client, prefix string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		prefix: prefix,
		logger: logger.Named("redis"),
	}
}

// Channel returns the Redis channel for a topic
func (r *RedisNotifier) Channel(topic string) string {
	return r.prefix + topic
}

func (r *RedisNotifier) Publish(ctx context.Context, topic string, payload []byte) error {
	channel := r.Channel(topic)

	receivers, err := r.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", channel, err)
	}

	r.logger.Debug("Published to redis", zap.String("channel", channel), zap.Int64("receivers", receivers))
	return nil
}

// Subscribe opens a pub/sub subscription on the topic's channel
func (r *RedisNotifier) Subscribe(ctx context.Context, topic string) *redis.PubSub {
	return r.client.Subscribe(ctx, r.Channel(topic))
}
