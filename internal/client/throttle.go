// SPDX-License-Identifier: Apache-2.0

package client

import (
	"sync"
	"time"
)

// Throttle rate-limits a stream of values to at most one per interval,
// with a trailing-edge flush: a value arriving inside the quiet window is
// held and emitted when the window expires, newest wins. The final value
// of a burst is therefore never silently dropped.
type Throttle struct {
	interval time.Duration
	emit     func(v any)

	mu       sync.Mutex
	lastEmit time.Time
	pending  any
	hasPend  bool
	timer    *time.Timer
	stopped  bool
}

func NewThrottle(interval time.Duration, emit func(v any)) *Throttle {
	return &Throttle{
		interval: interval,
		emit:     emit,
	}
}

// Send emits v immediately when outside the quiet window, otherwise
// stores it as the pending trailing value.
func (t *Throttle) Send(v any) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	now := time.Now()
	if now.Sub(t.lastEmit) >= t.interval && !t.hasPend {
		t.lastEmit = now
		t.mu.Unlock()
		t.emit(v)
		return
	}

	t.pending = v
	t.hasPend = true
	if t.timer == nil {
		wait := t.interval - now.Sub(t.lastEmit)
		if wait < 0 {
			wait = 0
		}
		t.timer = time.AfterFunc(wait, t.flush)
	}
	t.mu.Unlock()
}

func (t *Throttle) flush() {
	t.mu.Lock()
	t.timer = nil
	if !t.hasPend || t.stopped {
		t.mu.Unlock()
		return
	}
	v := t.pending
	t.pending = nil
	t.hasPend = false
	t.lastEmit = time.Now()
	t.mu.Unlock()

	t.emit(v)
}

// Stop cancels the timer and emits any pending trailing value so the
// last state of a burst still goes out.
func (t *Throttle) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	v := t.pending
	flush := t.hasPend
	t.pending = nil
	t.hasPend = false
	t.mu.Unlock()

	if flush {
		t.emit(v)
	}
}
