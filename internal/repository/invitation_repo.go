// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InvitationRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewInvitationRepository(pool *pgxpool.Pool, logger *slog.Logger) *InvitationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationRepository{
		pool:   pool,
		logger: logger,
	}
}

// CreateInvitation inserts a pending invitation inside a transaction that
// first verifies the board still exists, so a concurrent board delete
// cannot leave an orphaned invite.
func (r *InvitationRepository) CreateInvitation(ctx context.Context, boardID, inviterID uuid.UUID, inviteeEmail string) (domain.Invitation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin invitation tx failed", "board_id", boardID, "error", err)
		return domain.Invitation{}, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM boards WHERE id=$1)`, boardID,
	).Scan(&exists); err != nil {
		r.logger.Error("invitation board probe failed", "board_id", boardID, "error", err)
		return domain.Invitation{}, err
	}
	if !exists {
		return domain.Invitation{}, domain.ErrBoardNotFound
	}

	var inv domain.Invitation
	err = tx.QueryRow(ctx, `
		INSERT INTO board_invitations (id, board_id, inviter_id, invitee_email, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, board_id, inviter_id, invitee_email, status, created_at, responded_at
	`,
		uuid.New(), boardID, inviterID, inviteeEmail, domain.InvitationPending,
	).Scan(&inv.ID, &inv.BoardID, &inv.InviterID, &inv.InviteeEmail, &inv.Status, &inv.CreatedAt, &inv.RespondedAt)
	if err != nil {
		r.logger.Error("insert invitation failed", "board_id", boardID, "error", err)
		return domain.Invitation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit invitation failed", "board_id", boardID, "error", err)
		return domain.Invitation{}, err
	}

	r.logger.Info("invitation created", "invitation_id", inv.ID, "board_id", boardID)
	return inv, nil
}

// RespondInvitation flips a pending invitation to accepted or declined.
// Responses to an already-answered invitation report not found, which
// keeps replays of the same response idempotent from the caller's view.
func (r *InvitationRepository) RespondInvitation(ctx context.Context, id uuid.UUID, status domain.InvitationStatus) (domain.Invitation, error) {
	var inv domain.Invitation
	err := r.pool.QueryRow(ctx, `
		UPDATE board_invitations
		SET status=$2, responded_at=NOW()
		WHERE id=$1 AND status=$3
		RETURNING id, board_id, inviter_id, invitee_email, status, created_at, responded_at
	`,
		id, status, domain.InvitationPending,
	).Scan(&inv.ID, &inv.BoardID, &inv.InviterID, &inv.InviteeEmail, &inv.Status, &inv.CreatedAt, &inv.RespondedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Invitation{}, domain.ErrInvitationNotFound
		}
		r.logger.Error("respond invitation failed", "invitation_id", id, "error", err)
		return domain.Invitation{}, err
	}

	r.logger.Info("invitation responded", "invitation_id", id, "status", status)
	return inv, nil
}

func (r *InvitationRepository) ListInvitations(ctx context.Context, boardID uuid.UUID) ([]domain.Invitation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, board_id, inviter_id, invitee_email, status, created_at, responded_at
		FROM board_invitations
		WHERE board_id=$1
		ORDER BY created_at ASC
	`, boardID)
	if err != nil {
		r.logger.Error("list invitations query failed", "board_id", boardID, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Invitation, 0, 4)
	for rows.Next() {
		var inv domain.Invitation
		if err := rows.Scan(&inv.ID, &inv.BoardID, &inv.InviterID, &inv.InviteeEmail, &inv.Status, &inv.CreatedAt, &inv.RespondedAt); err != nil {
			r.logger.Error("scan invitation row failed", "error", err)
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("invitation rows iteration failed", "error", err)
		return nil, err
	}
	return out, nil
}
