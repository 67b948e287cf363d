// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"sync"
	"time"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
)

// presenceTracker derives the user's presence status from a local idle
// timer. Activity notes are throttled to once per second; transitions
// (online -> away -> offline) and a low-frequency heartbeat trigger the
// notify callback.
type presenceTracker struct {
	userID     uuid.UUID
	notify     func(domain.PresenceRecord)
	awayAfter  time.Duration
	offAfter   time.Duration
	interval   time.Duration
	checkEvery time.Duration

	mu           sync.Mutex
	status       domain.PresenceStatus
	lastActivity time.Time
	lastNote     time.Time
	startedAt    time.Time
}

func newPresenceTracker(
	userID uuid.UUID,
	awayAfter, offAfter, broadcastInterval time.Duration,
	notify func(domain.PresenceRecord),
) *presenceTracker {
	now := time.Now()
	return &presenceTracker{
		userID:       userID,
		notify:       notify,
		awayAfter:    awayAfter,
		offAfter:     offAfter,
		interval:     broadcastInterval,
		checkEvery:   time.Second,
		status:       domain.PresenceOnline,
		lastActivity: now,
		startedAt:    now,
	}
}

// Activity records user input. Calls inside the one-second throttle
// window are dropped; a transition back to online broadcasts at once.
func (p *presenceTracker) Activity() {
	p.mu.Lock()
	now := time.Now()
	if now.Sub(p.lastNote) < time.Second {
		p.mu.Unlock()
		return
	}
	p.lastNote = now
	p.lastActivity = now

	changed := p.status != domain.PresenceOnline
	p.status = domain.PresenceOnline
	record := p.record(now)
	p.mu.Unlock()

	if changed {
		p.notify(record)
	}
}

// run checks for idle transitions every second and rebroadcasts the
// current record on the configured interval. It exits on ctx cancel.
func (p *presenceTracker) run(ctx context.Context) {
	check := time.NewTicker(p.checkEvery)
	defer check.Stop()
	broadcast := time.NewTicker(p.interval)
	defer broadcast.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.status = domain.PresenceOffline
			record := p.record(time.Now())
			p.mu.Unlock()
			p.notify(record)
			return
		case <-check.C:
			if record, changed := p.tick(); changed {
				p.notify(record)
			}
		case <-broadcast.C:
			p.mu.Lock()
			record := p.record(time.Now())
			p.mu.Unlock()
			p.notify(record)
		}
	}
}

func (p *presenceTracker) tick() (domain.PresenceRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	idle := now.Sub(p.lastActivity)

	next := p.status
	switch {
	case idle >= p.offAfter:
		next = domain.PresenceOffline
	case idle >= p.awayAfter:
		next = domain.PresenceAway
	}

	if next == p.status {
		return domain.PresenceRecord{}, false
	}
	p.status = next
	return p.record(now), true
}

func (p *presenceTracker) record(now time.Time) domain.PresenceRecord {
	return domain.PresenceRecord{
		UserID:          p.userID,
		Status:          p.status,
		LastSeen:        p.lastActivity,
		SessionDuration: now.Sub(p.startedAt),
	}
}

func (p *presenceTracker) current() domain.PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record(time.Now())
}
