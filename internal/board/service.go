// SPDX-License-Identifier: Apache-2.0

package board

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/drawdeck/boardsync/internal/metrics"
	"github.com/drawdeck/boardsync/internal/replay"
	"github.com/google/uuid"
)

// saveRetries bounds the optimistic-concurrency retry loop. Conflicts
// only occur when another service instance writes the same board between
// our read and save; within one instance the per-board mutex already
// serializes mutations.
const saveRetries = 3

type LogStore interface {
	GetLog(ctx context.Context, boardID uuid.UUID) (domain.BoardLog, error)
	// SaveLog persists the log if the stored revision still equals
	// log.Revision, returns domain.ErrConcurrentUpdate otherwise.
	SaveLog(ctx context.Context, log domain.BoardLog) error
}

type Publisher interface {
	Publish(boardID uuid.UUID, topic domain.Topic, payload json.RawMessage)
}

// Service owns every mutation of a board's log: apply, undo, redo. All
// three run under a per-board lock so concurrent calls on the same board
// never interleave their read-modify-write of {history, cursor}.
type Service struct {
	store     LogStore
	publisher Publisher
	folder    *replay.Folder
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewService(store LogStore, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		folder:    replay.NewFolder(logger),
		logger:    logger,
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Service) boardLock(boardID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[boardID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[boardID] = lock
	}
	return lock
}

// Apply validates the action, truncates any redo tail, appends, recomputes
// the snapshot and persists it, then publishes the new board state plus a
// fine-grained element event. The returned snapshot is the authoritative
// post-mutation state.
func (s *Service) Apply(
	ctx context.Context,
	boardID uuid.UUID,
	actorID uuid.UUID,
	kind domain.ActionKind,
	payload json.RawMessage,
) (domain.Snapshot, error) {
	started := time.Now()
	defer func() { metrics.ObserveMutationDuration(time.Since(started)) }()

	normalized, err := replay.NormalizeAction(kind, payload)
	if err != nil {
		return nil, err
	}

	action := domain.Action{
		ID:        domain.NewActionID(),
		Kind:      kind,
		Payload:   normalized,
		CreatedBy: actorID,
		CreatedAt: time.Now().UTC(),
	}

	lock := s.boardLock(boardID)
	lock.Lock()

	var (
		snapshot domain.Snapshot
		log      domain.BoardLog
		previous domain.Snapshot
	)
	err = s.withSaveRetry(ctx, boardID, func(current domain.BoardLog) (domain.BoardLog, error) {
		previous = current.Elements

		// Appending after an undo discards the redo tail for good.
		history := append([]domain.Action{}, current.History[:current.Cursor+1]...)
		history = append(history, action)

		current.History = history
		current.Cursor = len(history) - 1
		snapshot = s.recompute(current)
		current.Elements = snapshot
		log = current
		return current, nil
	})
	lock.Unlock()

	if err != nil {
		return nil, err
	}

	metrics.IncAction(string(kind))
	s.logger.Info("action applied",
		"board_id", boardID,
		"action_id", action.ID,
		"kind", kind,
		"cursor", log.Cursor,
	)

	s.publishBoardUpdated(boardID, actorID, log.Cursor, snapshot)
	s.publishElementEvent(boardID, actorID, action, previous, snapshot)

	return snapshot, nil
}

// Undo steps the cursor back one action. At cursor -1 it is a no-op that
// returns the current snapshot unchanged.
func (s *Service) Undo(ctx context.Context, boardID uuid.UUID, actorID uuid.UUID) (domain.Snapshot, error) {
	metrics.IncUndo()
	return s.moveCursor(ctx, boardID, actorID, -1)
}

// Redo steps the cursor forward one action. At the head of the history it
// is a no-op that returns the current snapshot unchanged.
func (s *Service) Redo(ctx context.Context, boardID uuid.UUID, actorID uuid.UUID) (domain.Snapshot, error) {
	metrics.IncRedo()
	return s.moveCursor(ctx, boardID, actorID, +1)
}

func (s *Service) moveCursor(
	ctx context.Context,
	boardID uuid.UUID,
	actorID uuid.UUID,
	delta int,
) (domain.Snapshot, error) {
	started := time.Now()
	defer func() { metrics.ObserveMutationDuration(time.Since(started)) }()

	lock := s.boardLock(boardID)
	lock.Lock()

	var (
		snapshot domain.Snapshot
		log      domain.BoardLog
	)
	err := s.withSaveRetry(ctx, boardID, func(current domain.BoardLog) (domain.BoardLog, error) {
		next := current.Cursor + delta
		if next < -1 || next > len(current.History)-1 {
			snapshot = current.Elements
			return current, errNoMove
		}

		current.Cursor = next
		snapshot = s.recompute(current)
		current.Elements = snapshot
		log = current
		return current, nil
	})
	lock.Unlock()

	if errors.Is(err, errNoMove) {
		return snapshot, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("cursor moved",
		"board_id", boardID,
		"cursor", log.Cursor,
		"history_len", len(log.History),
	)

	s.publishBoardUpdated(boardID, actorID, log.Cursor, snapshot)

	return snapshot, nil
}

// errNoMove signals a cursor-bound no-op out of the retry closure without
// persisting anything.
var errNoMove = errors.New("cursor at bound")

func (s *Service) recompute(log domain.BoardLog) domain.Snapshot {
	metrics.ObserveReplayedActions(log.Cursor + 1)
	return s.folder.Fold(log.History[:log.Cursor+1])
}

// withSaveRetry runs the read-modify-write cycle, retrying a bounded
// number of times when another writer won the revision race.
func (s *Service) withSaveRetry(
	ctx context.Context,
	boardID uuid.UUID,
	mutate func(domain.BoardLog) (domain.BoardLog, error),
) error {
	for attempt := 0; attempt < saveRetries; attempt++ {
		current, err := s.store.GetLog(ctx, boardID)
		if err != nil {
			return err
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}

		if err := s.store.SaveLog(ctx, next); err != nil {
			if errors.Is(err, domain.ErrConcurrentUpdate) {
				metrics.IncMutationConflict()
				s.logger.Warn("save conflict, retrying",
					"board_id", boardID,
					"attempt", attempt+1,
				)
				continue
			}
			return err
		}
		return nil
	}
	return domain.ErrConcurrentUpdate
}

func (s *Service) publishBoardUpdated(boardID, actorID uuid.UUID, cursor int, snapshot domain.Snapshot) {
	payload, err := json.Marshal(domain.BoardUpdatedEvent{
		ActorID:  actorID,
		BoardID:  boardID,
		Cursor:   cursor,
		Elements: snapshot.List(),
	})
	if err != nil {
		s.logger.Error("marshal board update failed", "board_id", boardID, "error", err)
		return
	}
	s.publisher.Publish(boardID, domain.TopicBoardUpdated, payload)
}

// publishElementEvent derives the fine-grained topic from the action and
// the element's kind. Removed elements are looked up in the pre-mutation
// snapshot since they are gone from the new one.
func (s *Service) publishElementEvent(
	boardID, actorID uuid.UUID,
	action domain.Action,
	previous, snapshot domain.Snapshot,
) {
	elementID := replay.ElementID(action.Payload)
	if elementID == "" {
		return
	}

	var (
		kind    domain.ElementKind
		element *domain.Element
	)
	if el, ok := snapshot[elementID]; ok {
		kind = el.Kind
		element = &el
	} else if el, ok := previous[elementID]; ok {
		kind = el.Kind
	} else {
		// Update on a missing element: nothing changed, nothing to announce.
		return
	}

	topic, ok := domain.ElementTopic(action.Kind, kind)
	if !ok {
		return
	}

	payload, err := json.Marshal(domain.ElementEvent{
		ActorID:   actorID,
		BoardID:   boardID,
		ElementID: elementID,
		Element:   element,
	})
	if err != nil {
		s.logger.Error("marshal element event failed", "board_id", boardID, "error", err)
		return
	}
	s.publisher.Publish(boardID, topic, payload)
}
