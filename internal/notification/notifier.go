package notification

import (
	"context"
	"errors"
	"fmt"
)

// Notifier publishes a payload to every subscriber of a topic
type Notifier interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Backend names accepted in NOTIFIER_BACKENDS
const (
	BackendHub   = "hub"
	BackendRedis = "redis"
	BackendKafka = "kafka"
)

// Multi fans a publish out to several notifiers. Every backend is tried;
// failures are joined.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", n, err))
		}
	}
	return errors.Join(errs...)
}
