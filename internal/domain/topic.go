// SPDX-License-Identifier: Apache-2.0

package domain

// Topic is a named event channel within a board. Adding a topic means
// extending allTopics and, if the topic is not persisted, ephemeralTopics.
type Topic string

const (
	TopicBoardUpdated    Topic = "boardUpdated"
	TopicUserJoined      Topic = "userJoined"
	TopicUserLeft        Topic = "userLeft"
	TopicPresenceUpdated Topic = "presenceUpdated"
	TopicCursorMovement  Topic = "cursorMovement"

	TopicInvitationCreated  Topic = "invitationCreated"
	TopicInvitationAccepted Topic = "invitationAccepted"
	TopicInvitationDeclined Topic = "invitationDeclined"

	TopicDrawingStarted   Topic = "drawingStarted"
	TopicDrawingUpdated   Topic = "drawingUpdated"
	TopicDrawingCompleted Topic = "drawingCompleted"

	TopicElementAdded   Topic = "elementAdded"
	TopicElementUpdated Topic = "elementUpdated"
	TopicElementDeleted Topic = "elementDeleted"

	TopicTextElementCreated         Topic = "textElementCreated"
	TopicTextElementUpdated         Topic = "textElementUpdated"
	TopicTextElementDeleted         Topic = "textElementDeleted"
	TopicTextElementEditingStarted  Topic = "textElementEditingStarted"
	TopicTextElementEditingFinished Topic = "textElementEditingFinished"

	TopicShapeElementCreated     Topic = "shapeElementCreated"
	TopicShapeElementUpdated     Topic = "shapeElementUpdated"
	TopicShapeElementDeleted     Topic = "shapeElementDeleted"
	TopicShapeElementTransformed Topic = "shapeElementTransformed"
)

var allTopics = []Topic{
	TopicBoardUpdated,
	TopicUserJoined,
	TopicUserLeft,
	TopicPresenceUpdated,
	TopicCursorMovement,
	TopicInvitationCreated,
	TopicInvitationAccepted,
	TopicInvitationDeclined,
	TopicDrawingStarted,
	TopicDrawingUpdated,
	TopicDrawingCompleted,
	TopicElementAdded,
	TopicElementUpdated,
	TopicElementDeleted,
	TopicTextElementCreated,
	TopicTextElementUpdated,
	TopicTextElementDeleted,
	TopicTextElementEditingStarted,
	TopicTextElementEditingFinished,
	TopicShapeElementCreated,
	TopicShapeElementUpdated,
	TopicShapeElementDeleted,
	TopicShapeElementTransformed,
}

// AllTopics returns every topic a session subscribes to, in a fixed order.
func AllTopics() []Topic {
	out := make([]Topic, len(allTopics))
	copy(out, allTopics)
	return out
}

var ephemeralTopics = map[Topic]bool{
	TopicPresenceUpdated:            true,
	TopicCursorMovement:             true,
	TopicDrawingStarted:             true,
	TopicDrawingUpdated:             true,
	TopicDrawingCompleted:           true,
	TopicTextElementEditingStarted:  true,
	TopicTextElementEditingFinished: true,
	TopicShapeElementTransformed:    true,
}

// Ephemeral reports whether events on this topic are never persisted and
// may be coalesced or dropped under load.
func (t Topic) Ephemeral() bool {
	return ephemeralTopics[t]
}

func (t Topic) Valid() bool {
	for _, known := range allTopics {
		if t == known {
			return true
		}
	}
	return false
}

// ElementTopic maps an action kind and element kind to the fine-grained
// topic published alongside boardUpdated. Clear and sync have no
// per-element topic; ok is false for those.
func ElementTopic(action ActionKind, element ElementKind) (Topic, bool) {
	switch element {
	case ElementText:
		switch action {
		case ActionAdd:
			return TopicTextElementCreated, true
		case ActionUpdate:
			return TopicTextElementUpdated, true
		case ActionRemove:
			return TopicTextElementDeleted, true
		}
	case ElementShape:
		switch action {
		case ActionAdd:
			return TopicShapeElementCreated, true
		case ActionUpdate:
			return TopicShapeElementUpdated, true
		case ActionRemove:
			return TopicShapeElementDeleted, true
		}
	default:
		switch action {
		case ActionAdd:
			return TopicElementAdded, true
		case ActionUpdate:
			return TopicElementUpdated, true
		case ActionRemove:
			return TopicElementDeleted, true
		}
	}
	return "", false
}
