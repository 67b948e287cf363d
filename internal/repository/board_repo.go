// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BoardRepository persists boards as one row each: metadata plus the
// action history, cursor and cached elements as JSONB. SaveLog uses a
// revision column as a compare-and-swap token so concurrent writers from
// different service instances cannot interleave.
type BoardRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewBoardRepository(pool *pgxpool.Pool, logger *slog.Logger) *BoardRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *BoardRepository) CreateBoard(ctx context.Context, name string, ownerID uuid.UUID) (domain.Board, error) {
	boardID := uuid.New()

	var board domain.Board
	err := r.pool.QueryRow(ctx, `
		INSERT INTO boards (id, name, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, owner_id, created_at, updated_at
	`,
		boardID, name, ownerID,
	).Scan(&board.ID, &board.Name, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		r.logger.Error("insert board failed", "board_id", boardID, "error", err)
		return domain.Board{}, err
	}

	r.logger.Info("board created", "board_id", boardID, "owner_id", ownerID)
	return board, nil
}

func (r *BoardRepository) GetBoard(ctx context.Context, id uuid.UUID) (domain.Board, error) {
	var board domain.Board
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, owner_id, created_at, updated_at
		FROM boards WHERE id=$1
	`, id).Scan(&board.ID, &board.Name, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Board{}, domain.ErrBoardNotFound
		}
		r.logger.Error("get board failed", "board_id", id, "error", err)
		return domain.Board{}, err
	}
	return board, nil
}

func (r *BoardRepository) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, owner_id, created_at, updated_at
		FROM boards
		ORDER BY created_at DESC
	`)
	if err != nil {
		r.logger.Error("list boards query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Board, 0, 8)
	for rows.Next() {
		var board domain.Board
		if err := rows.Scan(&board.ID, &board.Name, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt); err != nil {
			r.logger.Error("scan board row failed", "error", err)
			return nil, err
		}
		out = append(out, board)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("board rows iteration failed", "error", err)
		return nil, err
	}
	return out, nil
}

func (r *BoardRepository) RenameBoard(ctx context.Context, id uuid.UUID, name string) (domain.Board, error) {
	var board domain.Board
	err := r.pool.QueryRow(ctx, `
		UPDATE boards SET name=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING id, name, owner_id, created_at, updated_at
	`, id, name).Scan(&board.ID, &board.Name, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Board{}, domain.ErrBoardNotFound
		}
		r.logger.Error("rename board failed", "board_id", id, "error", err)
		return domain.Board{}, err
	}

	r.logger.Info("board renamed", "board_id", id)
	return board, nil
}

func (r *BoardRepository) DeleteBoard(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM boards WHERE id=$1`, id)
	if err != nil {
		r.logger.Error("delete board failed", "board_id", id, "error", err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrBoardNotFound
	}

	r.logger.Info("board deleted", "board_id", id)
	return nil
}

func (r *BoardRepository) GetLog(ctx context.Context, boardID uuid.UUID) (domain.BoardLog, error) {
	var (
		historyRaw  []byte
		elementsRaw []byte
		log         domain.BoardLog
	)
	err := r.pool.QueryRow(ctx, `
		SELECT history, cursor, elements, revision
		FROM boards WHERE id=$1
	`, boardID).Scan(&historyRaw, &log.Cursor, &elementsRaw, &log.Revision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BoardLog{}, domain.ErrBoardNotFound
		}
		r.logger.Error("get board log failed", "board_id", boardID, "error", err)
		return domain.BoardLog{}, err
	}
	log.BoardID = boardID

	if err := json.Unmarshal(historyRaw, &log.History); err != nil {
		r.logger.Error("decode board history failed", "board_id", boardID, "error", err)
		return domain.BoardLog{}, fmt.Errorf("decode history: %w", err)
	}

	var elements []domain.Element
	if err := json.Unmarshal(elementsRaw, &elements); err != nil {
		r.logger.Error("decode board elements failed", "board_id", boardID, "error", err)
		return domain.BoardLog{}, fmt.Errorf("decode elements: %w", err)
	}
	log.Elements = make(domain.Snapshot, len(elements))
	for _, el := range elements {
		log.Elements[el.ID] = el
	}

	return log, nil
}

// SaveLog persists the whole log state in one atomic update, guarded by
// the revision the caller read. A lost race surfaces as
// domain.ErrConcurrentUpdate so the mutation service can re-read and
// retry.
func (r *BoardRepository) SaveLog(ctx context.Context, log domain.BoardLog) error {
	historyRaw, err := json.Marshal(log.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	elementsRaw, err := json.Marshal(log.Elements.List())
	if err != nil {
		return fmt.Errorf("encode elements: %w", err)
	}

	cmd, err := r.pool.Exec(ctx, `
		UPDATE boards
		SET history=$2, cursor=$3, elements=$4, revision=revision+1, updated_at=NOW()
		WHERE id=$1 AND revision=$5
	`,
		log.BoardID, historyRaw, log.Cursor, elementsRaw, log.Revision,
	)
	if err != nil {
		r.logger.Error("save board log failed", "board_id", log.BoardID, "error", err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM boards WHERE id=$1)`, log.BoardID,
		).Scan(&exists); err != nil {
			r.logger.Error("save conflict probe failed", "board_id", log.BoardID, "error", err)
			return err
		}
		if !exists {
			return domain.ErrBoardNotFound
		}
		return domain.ErrConcurrentUpdate
	}

	return nil
}
