// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire frame pushed to clients: one JSON object per
// line-delimited message, tagged with the topic (or a control type) so
// the client can dispatch without inspecting the payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Control envelope types. These are not broker topics.
const (
	EnvelopeConnected = "connected"
	EnvelopePing      = "ping"
)

func NewEnvelope(topic Topic, payload json.RawMessage) Envelope {
	return Envelope{Type: string(topic), Payload: payload}
}

// Every event payload carries the originating actor under "actor_id" so
// receivers can suppress their own echoes.

type BoardUpdatedEvent struct {
	ActorID  uuid.UUID `json:"actor_id"`
	BoardID  uuid.UUID `json:"board_id"`
	Cursor   int       `json:"cursor"`
	Elements []Element `json:"elements"`
}

type ElementEvent struct {
	ActorID   uuid.UUID `json:"actor_id"`
	BoardID   uuid.UUID `json:"board_id"`
	ElementID string    `json:"element_id"`
	Element   *Element  `json:"element,omitempty"`
}

type CursorEvent struct {
	ActorID uuid.UUID `json:"actor_id"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	At      time.Time `json:"at"`
}

// DrawingEvent carries a live in-progress stroke. Stroke is the
// kind-specific payload the renderer understands; the engine relays it
// opaquely.
type DrawingEvent struct {
	ActorID  uuid.UUID       `json:"actor_id"`
	StrokeID string          `json:"stroke_id"`
	Stroke   json.RawMessage `json:"stroke,omitempty"`
	At       time.Time       `json:"at"`
}

type UserEvent struct {
	ActorID uuid.UUID `json:"actor_id"`
	At      time.Time `json:"at"`
}

type InvitationEvent struct {
	ActorID    uuid.UUID  `json:"actor_id"`
	Invitation Invitation `json:"invitation"`
}

// EditingEvent marks the start or finish of a text element edit.
type EditingEvent struct {
	ActorID   uuid.UUID `json:"actor_id"`
	ElementID string    `json:"element_id"`
	At        time.Time `json:"at"`
}
