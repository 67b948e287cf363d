// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/drawdeck/boardsync/internal/broker"
	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
)

type fakeSink struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
	failAfter int // fail writes once this many have succeeded; -1 never
}

func newFakeSink() *fakeSink {
	return &fakeSink{failAfter: -1}
}

func (f *fakeSink) Write(env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.envelopes) >= f.failAfter {
		return errors.New("broken pipe")
	}
	f.envelopes = append(f.envelopes, env)
	return nil
}

func (f *fakeSink) snapshot() []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Envelope{}, f.envelopes...)
}

func (f *fakeSink) waitFor(t *testing.T, match func(domain.Envelope) bool) domain.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, env := range f.snapshot() {
			if match(env) {
				return env
			}
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for envelope")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSession(t *testing.T, hub *broker.Broker, boardID uuid.UUID, sink Sink, settings Settings) *Session {
	t.Helper()
	s, err := Open(context.Background(), hub, boardID, uuid.New(), sink, testLogger(), settings)
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	return s
}

func TestOpenSendsConnectedFirst(t *testing.T) {
	hub := broker.New(testLogger())
	sink := newFakeSink()
	boardID := uuid.New()

	s := openSession(t, hub, boardID, sink, Settings{})
	defer s.Close()

	envs := sink.snapshot()
	if len(envs) == 0 || envs[0].Type != domain.EnvelopeConnected {
		t.Fatalf("expected connected envelope first, got %+v", envs)
	}
}

func TestSessionMultiplexesTopics(t *testing.T) {
	hub := broker.New(testLogger())
	sink := newFakeSink()
	boardID := uuid.New()

	s := openSession(t, hub, boardID, sink, Settings{})
	defer s.Close()

	hub.Publish(boardID, domain.TopicCursorMovement, json.RawMessage(`{"x":4}`))
	hub.Publish(boardID, domain.TopicElementAdded, json.RawMessage(`{"element_id":"e1"}`))

	cursor := sink.waitFor(t, func(env domain.Envelope) bool {
		return env.Type == string(domain.TopicCursorMovement)
	})
	if string(cursor.Payload) != `{"x":4}` {
		t.Fatalf("unexpected cursor payload: %s", cursor.Payload)
	}
	sink.waitFor(t, func(env domain.Envelope) bool {
		return env.Type == string(domain.TopicElementAdded)
	})
}

func TestSessionHeartbeat(t *testing.T) {
	hub := broker.New(testLogger())
	sink := newFakeSink()

	s := openSession(t, hub, uuid.New(), sink, Settings{HeartbeatInterval: 10 * time.Millisecond})
	defer s.Close()

	sink.waitFor(t, func(env domain.Envelope) bool {
		return env.Type == domain.EnvelopePing
	})
}

func TestSessionAnnouncesJoinAndLeave(t *testing.T) {
	hub := broker.New(testLogger())
	boardID := uuid.New()

	joined := hub.Subscribe(boardID, domain.TopicUserJoined)
	defer joined.Close()
	left := hub.Subscribe(boardID, domain.TopicUserLeft)
	defer left.Close()

	s := openSession(t, hub, boardID, newFakeSink(), Settings{})

	select {
	case <-joined.C():
	case <-time.After(time.Second):
		t.Fatal("expected userJoined on open")
	}

	s.Close()

	select {
	case <-left.C():
	case <-time.After(time.Second):
		t.Fatal("expected userLeft on close")
	}
}

func TestTeardownIsIdempotentUnderConcurrency(t *testing.T) {
	hub := broker.New(testLogger())
	boardID := uuid.New()

	left := hub.Subscribe(boardID, domain.TopicUserLeft)
	defer left.Close()

	s := openSession(t, hub, boardID, newFakeSink(), Settings{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	// Exactly one teardown ran: one userLeft announcement.
	select {
	case <-left.C():
	case <-time.After(time.Second):
		t.Fatal("expected a userLeft announcement")
	}
	select {
	case _, ok := <-left.C():
		if ok {
			t.Fatal("expected exactly one userLeft, got a second")
		}
	case <-time.After(50 * time.Millisecond):
	}

	// And every session subscription is gone; only this test's observer
	// remains on userLeft.
	for _, topic := range domain.AllTopics() {
		want := 0
		if topic == domain.TopicUserLeft {
			want = 1
		}
		if n := hub.SubscriberCount(boardID, topic); n != want {
			t.Fatalf("topic %s has %d subscribers, want %d", topic, n, want)
		}
	}
}

func TestWriteFailureTriggersTeardown(t *testing.T) {
	hub := broker.New(testLogger())
	boardID := uuid.New()
	sink := newFakeSink()
	sink.failAfter = 1 // connected succeeds, everything after fails

	s := openSession(t, hub, boardID, sink, Settings{HeartbeatInterval: 5 * time.Millisecond})

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to tear down after write failure")
	}

	for _, topic := range domain.AllTopics() {
		if n := hub.SubscriberCount(boardID, topic); n != 0 {
			t.Fatalf("topic %s still has %d subscribers after teardown", topic, n)
		}
	}
}

func TestContextCancellationClosesSession(t *testing.T) {
	hub := broker.New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	s, err := Open(ctx, hub, uuid.New(), uuid.New(), newFakeSink(), testLogger(), Settings{})
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}

	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to close on context cancellation")
	}
}
