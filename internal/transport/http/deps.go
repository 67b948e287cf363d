// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
)

type BoardStore interface {
	CreateBoard(ctx context.Context, name string, ownerID uuid.UUID) (domain.Board, error)
	GetBoard(ctx context.Context, id uuid.UUID) (domain.Board, error)
	ListBoards(ctx context.Context) ([]domain.Board, error)
	RenameBoard(ctx context.Context, id uuid.UUID, name string) (domain.Board, error)
	DeleteBoard(ctx context.Context, id uuid.UUID) error
}

type BoardMutator interface {
	Apply(ctx context.Context, boardID, actorID uuid.UUID, kind domain.ActionKind, payload json.RawMessage) (domain.Snapshot, error)
	Undo(ctx context.Context, boardID, actorID uuid.UUID) (domain.Snapshot, error)
	Redo(ctx context.Context, boardID, actorID uuid.UUID) (domain.Snapshot, error)
}

type InvitationStore interface {
	CreateInvitation(ctx context.Context, boardID, inviterID uuid.UUID, inviteeEmail string) (domain.Invitation, error)
	RespondInvitation(ctx context.Context, id uuid.UUID, status domain.InvitationStatus) (domain.Invitation, error)
	ListInvitations(ctx context.Context, boardID uuid.UUID) ([]domain.Invitation, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
