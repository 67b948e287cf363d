// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drawdeck/boardsync/internal/broker"
	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/drawdeck/boardsync/internal/metrics"
	"github.com/google/uuid"
)

const defaultHeartbeatInterval = 25 * time.Second

// Sink writes one envelope to the connected client. Implementations do
// not need to be safe for concurrent use; the session serializes all
// writes through a single loop.
type Sink interface {
	Write(env domain.Envelope) error
}

type Settings struct {
	HeartbeatInterval time.Duration
}

// Session is one client's live multiplexed connection to a board. It
// subscribes to every topic, relays them onto the sink tagged with the
// topic name, and emits a periodic ping. Teardown runs exactly once no
// matter how many triggers race: client disconnect, a failed write, or
// server shutdown.
type Session struct {
	boardID uuid.UUID
	userID  uuid.UUID

	hub    *broker.Broker
	sink   Sink
	logger *slog.Logger

	heartbeat time.Duration
	subs      []*broker.Subscription
	outbound  chan domain.Envelope

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	loopDone  chan struct{}
	openedAt  time.Time
}

// Open subscribes to every board topic, sends the initial connected
// envelope, announces the user, and starts relaying. The caller blocks
// on Done() until the session tears down.
func Open(
	ctx context.Context,
	hub *broker.Broker,
	boardID uuid.UUID,
	userID uuid.UUID,
	sink Sink,
	logger *slog.Logger,
	settings Settings,
) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := settings.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	s := &Session{
		boardID:   boardID,
		userID:    userID,
		hub:       hub,
		sink:      sink,
		logger:    logger,
		heartbeat: heartbeat,
		outbound:  make(chan domain.Envelope, 16),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		openedAt:  time.Now(),
	}

	if err := sink.Write(domain.Envelope{Type: domain.EnvelopeConnected}); err != nil {
		return nil, err
	}

	for _, topic := range domain.AllTopics() {
		s.subs = append(s.subs, hub.Subscribe(boardID, topic))
	}

	metrics.SessionOpened()
	s.logger.Info("session opened",
		"board_id", boardID,
		"user_id", userID,
	)

	for _, sub := range s.subs {
		go s.forward(sub)
	}
	go s.run(ctx)

	s.announce(domain.TopicUserJoined)

	return s, nil
}

// forward relays one subscription into the shared outbound channel. It
// exits when the subscription closes during teardown or when the session
// is already done.
func (s *Session) forward(sub *broker.Subscription) {
	for payload := range sub.C() {
		select {
		case s.outbound <- domain.NewEnvelope(sub.Topic(), payload):
		case <-s.done:
			return
		}
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case env := <-s.outbound:
			if err := s.write(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(domain.Envelope{Type: domain.EnvelopePing}); err != nil {
				return
			}
		}
	}
}

// write sends one envelope unless the session is already closed; a
// failed send kills the session.
func (s *Session) write(env domain.Envelope) error {
	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	if err := s.sink.Write(env); err != nil {
		s.logger.Warn("session write failed, tearing down",
			"board_id", s.boardID,
			"user_id", s.userID,
			"type", env.Type,
			"error", err,
		)
		s.Close()
		return err
	}
	return nil
}

func (s *Session) announce(topic domain.Topic) {
	payload, err := json.Marshal(domain.UserEvent{
		ActorID: s.userID,
		At:      time.Now().UTC(),
	})
	if err != nil {
		return
	}
	s.hub.Publish(s.boardID, topic, payload)
}

// Close tears the session down: unsubscribe every topic exactly once,
// stop the heartbeat, announce the departure. Idempotent and safe to
// call concurrently from any trigger.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)

		for _, sub := range s.subs {
			sub.Close()
		}

		s.announce(domain.TopicUserLeft)
		metrics.SessionClosed(time.Since(s.openedAt))
		s.logger.Info("session closed",
			"board_id", s.boardID,
			"user_id", s.userID,
			"duration_ms", time.Since(s.openedAt).Milliseconds(),
		)
	})
}

// Done is closed once teardown has run and the relay loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.loopDone
}

func (s *Session) BoardID() uuid.UUID { return s.boardID }
func (s *Session) UserID() uuid.UUID  { return s.userID }
