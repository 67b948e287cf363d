// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type ActionKind string

const (
	ActionAdd    ActionKind = "add"
	ActionUpdate ActionKind = "update"
	ActionRemove ActionKind = "remove"
	ActionClear  ActionKind = "clear"
	ActionSync   ActionKind = "sync"
)

// Action is one immutable entry in a board's log. Payload holds the
// serialized element for add/update, `{"id":...}` for remove, and is
// empty for clear/sync.
type Action struct {
	ID        string          `json:"id"`
	Kind      ActionKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedBy uuid.UUID       `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewActionID returns a ULID so action ids sort in append order.
func NewActionID() string {
	return ulid.Make().String()
}

func (k ActionKind) Valid() bool {
	switch k {
	case ActionAdd, ActionUpdate, ActionRemove, ActionClear, ActionSync:
		return true
	}
	return false
}
