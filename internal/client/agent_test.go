// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func testSettings() Settings {
	s := DefaultSettings()
	s.BackoffBase = 5 * time.Millisecond
	s.BackoffCap = 20 * time.Millisecond
	s.MaxAttempts = 3
	s.CursorInterval = 50 * time.Millisecond
	s.DrawingInterval = 20 * time.Millisecond
	return s
}

// wsTestServer upgrades connections, emits the scripted envelopes, and
// collects everything the client sends.
type wsTestServer struct {
	srv      *httptest.Server
	outbound []domain.Envelope

	mu       sync.Mutex
	received []domain.Envelope
}

func newWSTestServer(t *testing.T, outbound ...domain.Envelope) *wsTestServer {
	t.Helper()
	ws := &wsTestServer{outbound: outbound}

	upgrader := websocket.Upgrader{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(domain.Envelope{Type: domain.EnvelopeConnected}); err != nil {
			return
		}
		for _, env := range ws.outbound {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}

		for {
			var env domain.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ws.mu.Lock()
			ws.received = append(ws.received, env)
			ws.mu.Unlock()
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsTestServer) snapshot() []domain.Envelope {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]domain.Envelope{}, ws.received...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAgentConnectsAndDispatches(t *testing.T) {
	other := uuid.New()
	payload, _ := json.Marshal(domain.ElementEvent{ActorID: other, ElementID: "e1"})
	server := newWSTestServer(t, domain.NewEnvelope(domain.TopicElementAdded, payload))

	h := &recordingHandler{}
	agent := New(server.url(), uuid.New(), h, discardLogger(), testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		h.mu.Lock()
		n := len(h.elements)
		h.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("element event never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := agent.State(); got != StateConnected {
		t.Fatalf("expected connected state, got %s", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop on context cancel")
	}
	if got := agent.State(); got != StateDisconnected {
		t.Fatalf("expected disconnected after shutdown, got %s", got)
	}
}

func TestAgentGivesUpAfterBoundedAttempts(t *testing.T) {
	// A server that is already closed refuses every dial.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	agent := New(url, uuid.New(), nil, discardLogger(), testSettings())

	var states []State
	var mu sync.Mutex
	agent.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	err := agent.Run(context.Background())
	if !errors.Is(err, domain.ErrReconnectFailed) {
		t.Fatalf("expected ErrReconnectFailed, got %v", err)
	}
	if got := agent.State(); got != StateFailed {
		t.Fatalf("expected failed state, got %s", got)
	}

	mu.Lock()
	defer mu.Unlock()
	sawReconnecting := false
	for _, s := range states {
		if s == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Fatalf("expected a reconnecting transition, got %v", states)
	}
}

func TestAgentThrottlesCursorBurst(t *testing.T) {
	server := newWSTestServer(t)

	agent := New(server.url(), uuid.New(), nil, discardLogger(), testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = agent.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for agent.State() != StateConnected {
		select {
		case <-deadline:
			t.Fatal("agent never connected")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// 100 positions inside one 50ms window.
	for i := 0; i < 100; i++ {
		agent.MoveCursor(float64(i), 0)
	}

	var cursors []domain.CursorEvent
	waitDeadline := time.After(2 * time.Second)
	for {
		cursors = cursors[:0]
		for _, env := range server.snapshot() {
			if env.Type != string(domain.TopicCursorMovement) {
				continue
			}
			var ev domain.CursorEvent
			if err := json.Unmarshal(env.Payload, &ev); err != nil {
				t.Fatalf("unmarshal cursor event: %v", err)
			}
			cursors = append(cursors, ev)
		}
		if len(cursors) > 0 && cursors[len(cursors)-1].X == 99 {
			break
		}
		select {
		case <-waitDeadline:
			t.Fatalf("final cursor position never arrived; got %d events", len(cursors))
		case <-time.After(10 * time.Millisecond):
		}
	}

	if len(cursors) > 4 {
		t.Fatalf("expected a small bounded number of cursor broadcasts, got %d", len(cursors))
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	base := 100 * time.Millisecond
	limit := 2 * time.Second

	cases := []struct {
		attempt int
		floor   time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{10, 2 * time.Second}, // capped
	}

	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			d := backoffDelay(base, limit, tc.attempt)
			if d < tc.floor {
				t.Fatalf("attempt %d: delay %s below floor %s", tc.attempt, d, tc.floor)
			}
			if ceiling := tc.floor + tc.floor/2; d > ceiling {
				t.Fatalf("attempt %d: delay %s above jitter ceiling %s", tc.attempt, d, ceiling)
			}
		}
	}
}
