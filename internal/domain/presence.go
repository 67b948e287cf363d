// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceRecord is per-connection in-memory state, broadcast at low
// frequency on the presenceUpdated topic. It is never persisted.
type PresenceRecord struct {
	UserID            uuid.UUID      `json:"user_id"`
	Status            PresenceStatus `json:"status"`
	LastSeen          time.Time      `json:"last_seen"`
	SessionDuration   time.Duration  `json:"session_duration"`
	ConnectionQuality string         `json:"connection_quality,omitempty"`
}
