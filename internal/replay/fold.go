// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"encoding/json"
	"log/slog"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
)

// Folder turns a prefix of a board's action log into a snapshot. Folding
// is deterministic: the same prefix always yields the same snapshot. A
// malformed action is skipped with a warning rather than aborting the
// whole replay, so one bad log entry cannot take a board offline.
type Folder struct {
	logger *slog.Logger
}

func NewFolder(logger *slog.Logger) *Folder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Folder{logger: logger}
}

// elementPayload is the wire shape of add/update/remove payloads. Every
// field is optional on update; remove only needs the id.
type elementPayload struct {
	ID   string             `json:"id"`
	Kind domain.ElementKind `json:"kind"`
	Data json.RawMessage    `json:"data"`
}

func (f *Folder) Fold(actions []domain.Action) domain.Snapshot {
	snapshot := make(domain.Snapshot)
	for _, action := range actions {
		f.apply(snapshot, action)
	}
	return snapshot
}

func (f *Folder) apply(snapshot domain.Snapshot, action domain.Action) {
	switch action.Kind {
	case domain.ActionAdd:
		payload, err := decodePayload(action.Payload)
		if err != nil {
			f.logger.Warn("skipping malformed add action",
				"action_id", action.ID,
				"error", err,
			)
			return
		}
		if !payload.Kind.Valid() {
			f.logger.Warn("skipping add action with unknown element kind",
				"action_id", action.ID,
				"kind", payload.Kind,
			)
			return
		}
		id := payload.ID
		if id == "" {
			id = uuid.NewString()
		}
		snapshot[id] = domain.Element{
			ID:        id,
			Kind:      payload.Kind,
			Data:      payload.Data,
			CreatedBy: action.CreatedBy,
			CreatedAt: action.CreatedAt,
			UpdatedAt: action.CreatedAt,
		}

	case domain.ActionUpdate:
		payload, err := decodePayload(action.Payload)
		if err != nil || payload.ID == "" {
			f.logger.Warn("skipping malformed update action",
				"action_id", action.ID,
				"error", err,
			)
			return
		}
		current, ok := snapshot[payload.ID]
		if !ok {
			// Updating an element that no longer exists is a no-op:
			// the remove may have raced the update on another client.
			return
		}
		if payload.Kind.Valid() {
			current.Kind = payload.Kind
		}
		if payload.Data != nil {
			current.Data = payload.Data
		}
		current.UpdatedAt = action.CreatedAt
		snapshot[payload.ID] = current

	case domain.ActionRemove:
		payload, err := decodePayload(action.Payload)
		if err != nil || payload.ID == "" {
			f.logger.Warn("skipping malformed remove action",
				"action_id", action.ID,
				"error", err,
			)
			return
		}
		delete(snapshot, payload.ID)

	case domain.ActionClear:
		for id := range snapshot {
			delete(snapshot, id)
		}

	case domain.ActionSync:
		// Marker action: forces a log entry without touching the snapshot.

	default:
		f.logger.Warn("skipping action with unknown kind",
			"action_id", action.ID,
			"kind", action.Kind,
		)
	}
}

func decodePayload(raw json.RawMessage) (elementPayload, error) {
	var payload elementPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return elementPayload{}, err
	}
	return payload, nil
}
