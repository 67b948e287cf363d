// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"fmt"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
)

// Handler receives decoded board events. Embed NopHandler to implement
// only the families a caller cares about.
type Handler interface {
	BoardUpdated(ev domain.BoardUpdatedEvent)
	ElementChanged(topic domain.Topic, ev domain.ElementEvent)
	CursorMoved(ev domain.CursorEvent)
	Drawing(topic domain.Topic, ev domain.DrawingEvent)
	PresenceChanged(record domain.PresenceRecord)
	UserJoined(ev domain.UserEvent)
	UserLeft(ev domain.UserEvent)
	InvitationChanged(topic domain.Topic, ev domain.InvitationEvent)
	TextEditing(topic domain.Topic, ev domain.EditingEvent)
}

// NopHandler implements Handler with no-ops.
type NopHandler struct{}

func (NopHandler) BoardUpdated(domain.BoardUpdatedEvent)                    {}
func (NopHandler) ElementChanged(domain.Topic, domain.ElementEvent)         {}
func (NopHandler) CursorMoved(domain.CursorEvent)                           {}
func (NopHandler) Drawing(domain.Topic, domain.DrawingEvent)                {}
func (NopHandler) PresenceChanged(domain.PresenceRecord)                    {}
func (NopHandler) UserJoined(domain.UserEvent)                              {}
func (NopHandler) UserLeft(domain.UserEvent)                                {}
func (NopHandler) InvitationChanged(domain.Topic, domain.InvitationEvent)   {}
func (NopHandler) TextEditing(domain.Topic, domain.EditingEvent)            {}

// actorProbe reads just the originating actor so self-echoes can be
// discarded before full decoding. Presence records carry the originator
// under user_id instead.
type actorProbe struct {
	ActorID uuid.UUID `json:"actor_id"`
	UserID  uuid.UUID `json:"user_id"`
}

func (p actorProbe) matches(selfID uuid.UUID) bool {
	return p.ActorID == selfID || p.UserID == selfID
}

// dispatch decodes one envelope and routes it to the handler. Events
// originated by selfID are dropped: the originator already applied the
// change optimistically. The switch is exhaustive over the topic enum;
// an unknown type is an error, not a silent skip.
func dispatch(h Handler, selfID uuid.UUID, env domain.Envelope) error {
	topic := domain.Topic(env.Type)
	if !topic.Valid() {
		return fmt.Errorf("unknown event type %q", env.Type)
	}

	var probe actorProbe
	if err := json.Unmarshal(env.Payload, &probe); err != nil {
		return fmt.Errorf("decode %s actor: %w", topic, err)
	}
	if probe.matches(selfID) {
		return nil
	}

	switch topic {
	case domain.TopicBoardUpdated:
		var ev domain.BoardUpdatedEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.BoardUpdated(ev)

	case domain.TopicElementAdded, domain.TopicElementUpdated, domain.TopicElementDeleted,
		domain.TopicTextElementCreated, domain.TopicTextElementUpdated, domain.TopicTextElementDeleted,
		domain.TopicShapeElementCreated, domain.TopicShapeElementUpdated, domain.TopicShapeElementDeleted,
		domain.TopicShapeElementTransformed:
		var ev domain.ElementEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.ElementChanged(topic, ev)

	case domain.TopicCursorMovement:
		var ev domain.CursorEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.CursorMoved(ev)

	case domain.TopicDrawingStarted, domain.TopicDrawingUpdated, domain.TopicDrawingCompleted:
		var ev domain.DrawingEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.Drawing(topic, ev)

	case domain.TopicPresenceUpdated:
		var record domain.PresenceRecord
		if err := json.Unmarshal(env.Payload, &record); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.PresenceChanged(record)

	case domain.TopicUserJoined:
		var ev domain.UserEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.UserJoined(ev)

	case domain.TopicUserLeft:
		var ev domain.UserEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.UserLeft(ev)

	case domain.TopicInvitationCreated, domain.TopicInvitationAccepted, domain.TopicInvitationDeclined:
		var ev domain.InvitationEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.InvitationChanged(topic, ev)

	case domain.TopicTextElementEditingStarted, domain.TopicTextElementEditingFinished:
		var ev domain.EditingEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.TextEditing(topic, ev)
	}

	return nil
}
