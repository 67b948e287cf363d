// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/drawdeck/boardsync/internal/metrics"
	"github.com/google/uuid"
)

// Default per-subscriber buffer. A subscriber that falls further behind
// than this starts losing events rather than blocking the publisher.
const defaultSubscriberBuffer = 64

// Broker is the per-board, per-topic fan-out hub. It is a transient
// relay: nothing published through it is persisted, and a payload
// published with no subscribers is simply gone. Durability lives in the
// action log only.
type Broker struct {
	logger *slog.Logger
	buffer int

	mu     sync.RWMutex
	boards map[uuid.UUID]map[domain.Topic]map[*Subscription]struct{}
}

// Subscription is one subscriber's stream for a single (board, topic)
// pair. Closing it detaches it from the broker without affecting any
// other subscriber.
type Subscription struct {
	broker  *Broker
	boardID uuid.UUID
	topic   domain.Topic
	ch      chan json.RawMessage
	once    sync.Once
}

func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger: logger,
		buffer: defaultSubscriberBuffer,
		boards: make(map[uuid.UUID]map[domain.Topic]map[*Subscription]struct{}),
	}
}

func (b *Broker) Subscribe(boardID uuid.UUID, topic domain.Topic) *Subscription {
	sub := &Subscription{
		broker:  b,
		boardID: boardID,
		topic:   topic,
		ch:      make(chan json.RawMessage, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	topics, ok := b.boards[boardID]
	if !ok {
		topics = make(map[domain.Topic]map[*Subscription]struct{})
		b.boards[boardID] = topics
	}
	subs, ok := topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		topics[topic] = subs
	}
	subs[sub] = struct{}{}

	return sub
}

// Publish delivers payload to every current subscriber of (boardID,
// topic). Delivery order per subscriber matches publish order; a
// subscriber with a full buffer loses the payload instead of stalling
// the publisher.
func (b *Broker) Publish(boardID uuid.UUID, topic domain.Topic, payload json.RawMessage) {
	metrics.IncEventPublished(string(topic))

	// Deliveries are non-blocking, so holding the read lock across them
	// is cheap and rules out a send racing a concurrent Close (Close
	// needs the write lock before it closes the channel).
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics, ok := b.boards[boardID]
	if !ok {
		return
	}
	for sub := range topics[topic] {
		select {
		case sub.ch <- payload:
		default:
			metrics.IncEventDropped()
			b.logger.Warn("dropping event for slow subscriber",
				"board_id", boardID,
				"topic", topic,
			)
		}
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	topics, ok := b.boards[sub.boardID]
	if !ok {
		return
	}
	subs, ok := topics[sub.topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(topics, sub.topic)
	}
	if len(topics) == 0 {
		delete(b.boards, sub.boardID)
	}
}

// SubscriberCount reports the current number of subscribers for a
// (board, topic) pair. Used by tests and the metrics endpoint.
func (b *Broker) SubscriberCount(boardID uuid.UUID, topic domain.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if topics, ok := b.boards[boardID]; ok {
		return len(topics[topic])
	}
	return 0
}

// C is the subscriber's receive stream. It is closed by Close.
func (s *Subscription) C() <-chan json.RawMessage {
	return s.ch
}

func (s *Subscription) Topic() domain.Topic {
	return s.topic
}

// Close detaches the subscription and closes its channel. Safe to call
// more than once and concurrently with Publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.ch)
	})
}
