// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type Board struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BoardLog is the durable state the mutation service owns: the ordered
// action history, the undo/redo cursor, and the cached snapshot at the
// cursor. Revision is the storage compare-and-swap token; it is bumped
// on every persisted mutation.
type BoardLog struct {
	BoardID  uuid.UUID
	History  []Action
	Cursor   int
	Elements Snapshot
	Revision int64
}
