// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"encoding/json"
	"fmt"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
)

// NormalizeAction validates an action payload at the mutation boundary,
// before anything touches the log. For adds it also fills in a generated
// element id when the client did not supply one, so the appended action
// replays to the same element id forever.
func NormalizeAction(kind domain.ActionKind, payload json.RawMessage) (json.RawMessage, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidAction, kind)
	}

	switch kind {
	case domain.ActionClear, domain.ActionSync:
		return nil, nil

	case domain.ActionAdd:
		var p struct {
			ID   string             `json:"id"`
			Kind domain.ElementKind `json:"kind"`
			Data json.RawMessage    `json:"data,omitempty"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAction, err)
		}
		if !p.Kind.Valid() {
			return nil, fmt.Errorf("%w: unknown element kind %q", domain.ErrInvalidElement, p.Kind)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		normalized, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAction, err)
		}
		return normalized, nil

	case domain.ActionUpdate, domain.ActionRemove:
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAction, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: missing element id", domain.ErrInvalidAction)
		}
		return payload, nil
	}

	return payload, nil
}

// ElementID extracts the element id from an add/update/remove payload.
// Returns "" for clear/sync payloads.
func ElementID(payload json.RawMessage) string {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.ID
}
