// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

type ElementKind string

const (
	ElementLine       ElementKind = "line"
	ElementStickyNote ElementKind = "sticky-note"
	ElementFrame      ElementKind = "frame"
	ElementText       ElementKind = "text"
	ElementShape      ElementKind = "shape"
)

func (k ElementKind) Valid() bool {
	switch k {
	case ElementLine, ElementStickyNote, ElementFrame, ElementText, ElementShape:
		return true
	}
	return false
}

// Element is one item on a board. Data is the kind-specific payload
// (points and stroke style for a line, text runs for a text element, and
// so on); the sync engine never looks inside it.
type Element struct {
	ID        string          `json:"id"`
	Kind      ElementKind     `json:"kind"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedBy uuid.UUID       `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Snapshot is the materialized element set of a board, keyed by element
// id. It is only ever produced by replaying a log prefix.
type Snapshot map[string]Element

func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, el := range s {
		out[id] = el
	}
	return out
}

// List returns the elements ordered by creation time, then id, so the
// serialized form is stable across replays.
func (s Snapshot) List() []Element {
	out := make([]Element, 0, len(s))
	for _, el := range s {
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
