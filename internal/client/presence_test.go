// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
)

type presenceRecorder struct {
	mu      sync.Mutex
	records []domain.PresenceRecord
}

func (r *presenceRecorder) notify(record domain.PresenceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *presenceRecorder) waitForStatus(t *testing.T, status domain.PresenceStatus) domain.PresenceRecord {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		for _, rec := range r.records {
			if rec.Status == status {
				r.mu.Unlock()
				return rec
			}
		}
		r.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("never saw presence status %s", status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPresenceIdleTransitions(t *testing.T) {
	rec := &presenceRecorder{}
	p := newPresenceTracker(uuid.New(), 30*time.Millisecond, 80*time.Millisecond, time.Hour, rec.notify)
	p.checkEvery = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.run(ctx)

	away := rec.waitForStatus(t, domain.PresenceAway)
	if away.Status != domain.PresenceAway {
		t.Fatalf("expected away, got %s", away.Status)
	}
	rec.waitForStatus(t, domain.PresenceOffline)
}

func TestPresenceActivityRestoresOnline(t *testing.T) {
	rec := &presenceRecorder{}
	p := newPresenceTracker(uuid.New(), 20*time.Millisecond, time.Hour, time.Hour, rec.notify)
	p.checkEvery = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.run(ctx)

	rec.waitForStatus(t, domain.PresenceAway)
	p.Activity()
	rec.waitForStatus(t, domain.PresenceOnline)

	if got := p.current().Status; got != domain.PresenceOnline {
		t.Fatalf("expected online after activity, got %s", got)
	}
}

func TestPresencePeriodicBroadcast(t *testing.T) {
	rec := &presenceRecorder{}
	p := newPresenceTracker(uuid.New(), time.Hour, time.Hour, 20*time.Millisecond, rec.notify)
	p.checkEvery = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.records)
		rec.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected periodic presence broadcasts")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPresenceActivityThrottledToOncePerSecond(t *testing.T) {
	rec := &presenceRecorder{}
	p := newPresenceTracker(uuid.New(), time.Hour, time.Hour, time.Hour, rec.notify)

	// Rapid-fire activity: only the first note moves the idle clock;
	// none of them broadcast because the status never changes.
	for i := 0; i < 20; i++ {
		p.Activity()
	}

	rec.mu.Lock()
	n := len(rec.records)
	rec.mu.Unlock()
	if n != 0 {
		t.Fatalf("activity without a transition must not broadcast, got %d records", n)
	}
}
