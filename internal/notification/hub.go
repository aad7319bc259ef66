package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSubscriberBuffer is the number of undelivered messages a
// subscriber may hold before new ones are dropped for it
const DefaultSubscriberBuffer = 16

// Subscription is one subscriber's view of a topic
type Subscription struct {
	ID          string
	Topic       string
	ConnectedAt time.Time

	messages chan []byte
	dropped  int
	once     sync.Once
	mu       sync.Mutex
}

// Messages delivers published payloads. It is closed on Unsubscribe.
func (s *Subscription) Messages() <-chan []byte {
	return s.messages
}

// Dropped returns how many messages were skipped because the buffer was full
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) deliver(payload []byte) bool {
	select {
	case s.messages <- payload:
		return true
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return false
	}
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.messages) })
}

// Hub is the in-process topic registry. Publish never blocks on a slow
// subscriber and a subscriber only sees messages published after it joined.
type Hub struct {
	subscribers map[string]*Subscription // key: subscription id
	byTopic     map[string][]string      // key: topic, value: []subscription id
	mu          sync.RWMutex
	maxSubs     int
	bufferSize  int
	logger      *zap.Logger
}

// NewHub creates a hub. maxSubscribers <= 0 means unlimited.
func NewHub(maxSubscribers, bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[string]*Subscription),
		byTopic:     make(map[string][]string),
		maxSubs:     maxSubscribers,
		bufferSize:  bufferSize,
		logger:      logger.Named("hub"),
	}
}

// Subscribe registers a new subscriber on topic
func (h *Hub) Subscribe(topic string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxSubs > 0 && len(h.subscribers) >= h.maxSubs {
		return nil, ErrMaxSubscribersReached
	}

	sub := &Subscription{
		ID:          uuid.New().String(),
		Topic:       topic,
		ConnectedAt: time.Now(),
		messages:    make(chan []byte, h.bufferSize),
	}

	h.subscribers[sub.ID] = sub
	h.byTopic[topic] = append(h.byTopic[topic], sub.ID)

	h.logger.Debug("Subscriber joined", zap.String("id", sub.ID), zap.String("topic", topic))
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, exists := h.subscribers[id]
	if !exists {
		return fmt.Errorf("subscription %s not found", id)
	}

	topic := sub.Topic
	if ids, ok := h.byTopic[topic]; ok {
		for i, sid := range ids {
			if sid == id {
				h.byTopic[topic] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		// Clean up empty topic entries
		if len(h.byTopic[topic]) == 0 {
			delete(h.byTopic, topic)
		}
	}

	delete(h.subscribers, id)
	sub.close()

	h.logger.Debug("Subscriber left", zap.String("id", id), zap.String("topic", topic))
	return nil
}

// Publish delivers payload to every current subscriber of topic
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, id := range h.byTopic[topic] {
		sub := h.subscribers[id]
		if sub.deliver(payload) {
			delivered++
			continue
		}
		h.logger.Warn("Subscriber too slow, message dropped",
			zap.String("id", id),
			zap.String("topic", topic))
	}

	h.logger.Debug("Published to hub",
		zap.String("topic", topic),
		zap.Int("delivered", delivered),
		zap.Int("subscribers", len(h.byTopic[topic])))
	return nil
}

// Close removes every subscriber, closing their channels
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subscribers {
		sub.close()
		delete(h.subscribers, id)
	}
	h.byTopic = make(map[string][]string)
}

// Count returns the total number of subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// CountByTopic returns the number of subscribers per topic
func (h *Hub) CountByTopic() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]int)
	for topic, ids := range h.byTopic {
		result[topic] = len(ids)
	}
	return result
}

// Stats returns statistics about the hub
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return HubStats{
		TotalSubscribers: len(h.subscribers),
		Topics:           len(h.byTopic),
		MaxSubscribers:   h.maxSubs,
	}
}

// HubStats contains statistics about the hub
type HubStats struct {
	TotalSubscribers int `json:"total_subscribers"`
	Topics           int `json:"topics"`
	MaxSubscribers   int `json:"max_subscribers"`
}

var (
	ErrMaxSubscribersReached = &HubError{"maximum subscribers reached"}
)

// HubError represents a subscription error
type HubError struct {
	msg string
}

func (e *HubError) Error() string {
	return e.msg
}
