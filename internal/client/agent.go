// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

type Settings struct {
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
	CursorInterval   time.Duration
	DrawingInterval  time.Duration
	PresenceInterval time.Duration
	AwayAfter        time.Duration
	OfflineAfter     time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		BackoffBase:      500 * time.Millisecond,
		BackoffCap:       30 * time.Second,
		MaxAttempts:      10,
		HandshakeTimeout: 5 * time.Second,
		CursorInterval:   300 * time.Millisecond,
		DrawingInterval:  150 * time.Millisecond,
		PresenceInterval: 30 * time.Second,
		AwayAfter:        5 * time.Minute,
		OfflineAfter:     10 * time.Minute,
	}
}

// Agent keeps one client connected to a board's event stream. It owns
// the reconnect state machine, throttles outbound ephemeral events with
// a trailing-edge flush, suppresses self-echoes on inbound events, and
// tracks the user's presence from a local idle timer.
type Agent struct {
	url      string
	userID   uuid.UUID
	handler  Handler
	logger   *slog.Logger
	settings Settings

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	onState func(State)

	writeMu sync.Mutex

	cursor   *Throttle
	drawing  *Throttle
	presence *presenceTracker
}

func New(url string, userID uuid.UUID, handler Handler, logger *slog.Logger, settings Settings) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = NopHandler{}
	}

	a := &Agent{
		url:      url,
		userID:   userID,
		handler:  handler,
		logger:   logger,
		settings: settings,
		state:    StateDisconnected,
	}

	a.cursor = NewThrottle(settings.CursorInterval, func(v any) {
		a.send(domain.TopicCursorMovement, v)
	})
	a.drawing = NewThrottle(settings.DrawingInterval, func(v any) {
		a.send(domain.TopicDrawingUpdated, v)
	})
	a.presence = newPresenceTracker(
		userID,
		settings.AwayAfter,
		settings.OfflineAfter,
		settings.PresenceInterval,
		func(record domain.PresenceRecord) {
			a.send(domain.TopicPresenceUpdated, record)
		},
	)

	return a
}

// OnStateChange registers a callback invoked on every connection state
// transition. Must be called before Run.
func (a *Agent) OnStateChange(fn func(State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onState = fn
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Run connects and keeps the agent connected until ctx is canceled or
// the bounded reconnect attempts are exhausted, in which case it returns
// domain.ErrReconnectFailed.
func (a *Agent) Run(ctx context.Context) error {
	defer a.cursor.Stop()
	defer a.drawing.Stop()

	presenceCtx, cancelPresence := context.WithCancel(ctx)
	defer cancelPresence()
	go a.presence.run(presenceCtx)

	attempt := 0
	for {
		a.setState(StateConnecting)

		conn, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.setState(StateDisconnected)
				return nil
			}
			attempt++
			a.logger.Warn("connect failed",
				"url", a.url,
				"attempt", attempt,
				"error", err,
			)
			if attempt >= a.settings.MaxAttempts {
				a.setState(StateFailed)
				return fmt.Errorf("%w: gave up after %d attempts",
					domain.ErrReconnectFailed, attempt)
			}
			a.setState(StateReconnecting)
			if !a.sleep(ctx, backoffDelay(a.settings.BackoffBase, a.settings.BackoffCap, attempt)) {
				a.setState(StateDisconnected)
				return nil
			}
			continue
		}

		attempt = 0
		a.setConn(conn)
		a.setState(StateConnected)
		a.logger.Info("connected", "url", a.url)

		readErr := a.readLoop(ctx, conn)
		a.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			a.setState(StateDisconnected)
			return nil
		}

		attempt++
		a.logger.Warn("connection lost, reconnecting",
			"url", a.url,
			"error", readErr,
		)
		a.setState(StateReconnecting)
		if !a.sleep(ctx, backoffDelay(a.settings.BackoffBase, a.settings.BackoffCap, attempt)) {
			a.setState(StateDisconnected)
			return nil
		}
	}
}

func (a *Agent) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: a.settings.HandshakeTimeout}
	header := http.Header{"X-User-Id": []string{a.userID.String()}}
	conn, _, err := dialer.DialContext(ctx, a.url, header)
	return conn, err
}

func (a *Agent) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when the caller tears the agent down.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env domain.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			a.logger.Warn("malformed envelope", "error", err)
			continue
		}

		switch env.Type {
		case domain.EnvelopeConnected, domain.EnvelopePing:
			continue
		}

		if err := dispatch(a.handler, a.userID, env); err != nil {
			a.logger.Warn("dispatch failed", "type", env.Type, "error", err)
		}
	}
}

// MoveCursor reports the local cursor position. Bursts are throttled
// with the newest position always flushed.
func (a *Agent) MoveCursor(x, y float64) {
	a.presence.Activity()
	a.cursor.Send(domain.CursorEvent{
		ActorID: a.userID,
		X:       x,
		Y:       y,
		At:      time.Now().UTC(),
	})
}

// StartDrawing announces a new live stroke; not throttled so the
// receiving side never misses a stroke start.
func (a *Agent) StartDrawing(strokeID string, stroke json.RawMessage) {
	a.presence.Activity()
	a.send(domain.TopicDrawingStarted, a.drawingEvent(strokeID, stroke))
}

// UpdateDrawing streams stroke progress, throttled with trailing flush.
func (a *Agent) UpdateDrawing(strokeID string, stroke json.RawMessage) {
	a.drawing.Send(a.drawingEvent(strokeID, stroke))
}

// CompleteDrawing announces the finished stroke. The durable element add
// goes through the mutation API separately.
func (a *Agent) CompleteDrawing(strokeID string, stroke json.RawMessage) {
	a.send(domain.TopicDrawingCompleted, a.drawingEvent(strokeID, stroke))
}

func (a *Agent) StartTextEditing(elementID string) {
	a.presence.Activity()
	a.send(domain.TopicTextElementEditingStarted, a.editingEvent(elementID))
}

func (a *Agent) FinishTextEditing(elementID string) {
	a.send(domain.TopicTextElementEditingFinished, a.editingEvent(elementID))
}

// TransformShape streams a live shape transform (move/scale/rotate in
// progress). The durable update is a separate mutation.
func (a *Agent) TransformShape(elementID string, data json.RawMessage) {
	a.presence.Activity()
	a.send(domain.TopicShapeElementTransformed, domain.ElementEvent{
		ActorID:   a.userID,
		ElementID: elementID,
		Element:   &domain.Element{ID: elementID, Kind: domain.ElementShape, Data: data},
	})
}

// Activity notes mouse/keyboard input for the idle timer.
func (a *Agent) Activity() {
	a.presence.Activity()
}

// Presence returns the current local presence record.
func (a *Agent) Presence() domain.PresenceRecord {
	return a.presence.current()
}

func (a *Agent) drawingEvent(strokeID string, stroke json.RawMessage) domain.DrawingEvent {
	return domain.DrawingEvent{
		ActorID:  a.userID,
		StrokeID: strokeID,
		Stroke:   stroke,
		At:       time.Now().UTC(),
	}
}

func (a *Agent) editingEvent(elementID string) domain.EditingEvent {
	return domain.EditingEvent{
		ActorID:   a.userID,
		ElementID: elementID,
		At:        time.Now().UTC(),
	}
}

// send publishes an ephemeral event upstream. Dropped silently when the
// agent is not connected; ephemeral events have no delivery guarantee.
func (a *Agent) send(topic domain.Topic, payload any) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("marshal outbound event failed", "topic", topic, "error", err)
		return
	}

	a.writeMu.Lock()
	err = conn.WriteJSON(domain.NewEnvelope(topic, raw))
	a.writeMu.Unlock()
	if err != nil {
		a.logger.Warn("outbound send failed", "topic", topic, "error", err)
	}
}

func (a *Agent) setConn(conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
}

func (a *Agent) setState(next State) {
	a.mu.Lock()
	changed := a.state != next
	a.state = next
	fn := a.onState
	a.mu.Unlock()

	if changed && fn != nil {
		fn(next)
	}
}

// sleep waits for d or ctx cancellation; reports false on cancel.
func (a *Agent) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoffDelay is min(base * 2^attempt, limit) plus up to 50% jitter so
// a fleet of clients does not reconnect in lockstep.
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d + time.Duration(rand.Int63n(int64(d/2+1)))
}
