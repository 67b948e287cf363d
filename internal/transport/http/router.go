// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/drawdeck/boardsync/internal/broker"
	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/drawdeck/boardsync/internal/identity"
	"github.com/drawdeck/boardsync/internal/metrics"
	"github.com/drawdeck/boardsync/internal/session"
	"github.com/drawdeck/boardsync/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type createBoardRequest struct {
	Name string `json:"name"`
}

type renameBoardRequest struct {
	Name string `json:"name"`
}

type applyActionRequest struct {
	Kind    domain.ActionKind `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
}

type createInvitationRequest struct {
	InviteeEmail string `json:"invitee_email"`
}

type Deps struct {
	Boards          BoardStore
	Mutator         BoardMutator
	Invitations     InvitationStore
	Hub             *broker.Broker
	Health          HealthChecker
	Logger          *slog.Logger
	RateLimitPerMin int
	Heartbeat       time.Duration
	Version         string
	Commit          string
	BuildDate       string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")
	rateLimit := deps.RateLimitPerMin
	if rateLimit <= 0 {
		rateLimit = 600
	}

	upgrader := websocket.Upgrader{
		// The actor is already identified by header; cross-origin pages
		// are allowed to connect.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Use(middleware.UserIdentity(rateLimit, logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- BOARD LIFECYCLE ----------------

	r.Post("/boards", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		var reqBody createBoardRequest
		if err := decodeJSONBody(r, &reqBody); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		reqBody.Name = strings.TrimSpace(reqBody.Name)
		if reqBody.Name == "" {
			http.Error(w, "board name is required", http.StatusBadRequest)
			return
		}

		board, err := deps.Boards.CreateBoard(r.Context(), reqBody.Name, userID)
		if err != nil {
			logger.Error("create board failed", "error", err)
			http.Error(w, "failed to create board", http.StatusInternalServerError)
			return
		}

		logger.Info("board created via API", "board_id", board.ID)
		writeJSON(w, http.StatusCreated, board)
	})

	r.Get("/boards", func(w http.ResponseWriter, r *http.Request) {
		boards, err := deps.Boards.ListBoards(r.Context())
		if err != nil {
			logger.Error("list boards failed", "error", err)
			http.Error(w, "failed to list boards", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"boards": boards,
		})
	})

	r.Get("/boards/{id}", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}

		board, err := deps.Boards.GetBoard(r.Context(), boardID)
		if err != nil {
			if errors.Is(err, domain.ErrBoardNotFound) {
				http.Error(w, "board not found", http.StatusNotFound)
				return
			}
			logger.Error("get board failed", "board_id", boardID, "error", err)
			http.Error(w, "failed to get board", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, board)
	})

	r.Patch("/boards/{id}", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}

		var reqBody renameBoardRequest
		if err := decodeJSONBody(r, &reqBody); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		reqBody.Name = strings.TrimSpace(reqBody.Name)
		if reqBody.Name == "" {
			http.Error(w, "board name is required", http.StatusBadRequest)
			return
		}

		board, err := deps.Boards.RenameBoard(r.Context(), boardID, reqBody.Name)
		if err != nil {
			if errors.Is(err, domain.ErrBoardNotFound) {
				http.Error(w, "board not found", http.StatusNotFound)
				return
			}
			logger.Error("rename board failed", "board_id", boardID, "error", err)
			http.Error(w, "failed to rename board", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, board)
	})

	r.Delete("/boards/{id}", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}

		if err := deps.Boards.DeleteBoard(r.Context(), boardID); err != nil {
			if errors.Is(err, domain.ErrBoardNotFound) {
				http.Error(w, "board not found", http.StatusNotFound)
				return
			}
			logger.Error("delete board failed", "board_id", boardID, "error", err)
			http.Error(w, "failed to delete board", http.StatusInternalServerError)
			return
		}

		logger.Info("board deleted via API", "board_id", boardID)
		w.WriteHeader(http.StatusNoContent)
	})

	// ---------------- MUTATIONS ----------------

	r.Post("/boards/{id}/actions", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		var reqBody applyActionRequest
		if err := decodeJSONBody(r, &reqBody); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		snapshot, err := deps.Mutator.Apply(r.Context(), boardID, userID, reqBody.Kind, reqBody.Payload)
		if err != nil {
			writeMutationError(w, logger, boardID, err)
			return
		}

		writeSnapshot(w, boardID, snapshot)
	})

	r.Post("/boards/{id}/undo", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		snapshot, err := deps.Mutator.Undo(r.Context(), boardID, userID)
		if err != nil {
			writeMutationError(w, logger, boardID, err)
			return
		}
		writeSnapshot(w, boardID, snapshot)
	})

	r.Post("/boards/{id}/redo", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		snapshot, err := deps.Mutator.Redo(r.Context(), boardID, userID)
		if err != nil {
			writeMutationError(w, logger, boardID, err)
			return
		}
		writeSnapshot(w, boardID, snapshot)
	})

	// ---------------- INVITATIONS ----------------

	r.Post("/boards/{id}/invitations", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		var reqBody createInvitationRequest
		if err := decodeJSONBody(r, &reqBody); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		reqBody.InviteeEmail = strings.TrimSpace(reqBody.InviteeEmail)
		if reqBody.InviteeEmail == "" || !strings.Contains(reqBody.InviteeEmail, "@") {
			http.Error(w, "valid invitee_email is required", http.StatusBadRequest)
			return
		}

		inv, err := deps.Invitations.CreateInvitation(r.Context(), boardID, userID, reqBody.InviteeEmail)
		if err != nil {
			if errors.Is(err, domain.ErrBoardNotFound) {
				http.Error(w, "board not found", http.StatusNotFound)
				return
			}
			logger.Error("create invitation failed", "board_id", boardID, "error", err)
			http.Error(w, "failed to create invitation", http.StatusInternalServerError)
			return
		}

		publishInvitation(deps.Hub, logger, domain.TopicInvitationCreated, userID, inv)
		writeJSON(w, http.StatusCreated, inv)
	})

	r.Get("/boards/{id}/invitations", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}

		invitations, err := deps.Invitations.ListInvitations(r.Context(), boardID)
		if err != nil {
			logger.Error("list invitations failed", "board_id", boardID, "error", err)
			http.Error(w, "failed to list invitations", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"invitations": invitations,
		})
	})

	respondInvitation := func(status domain.InvitationStatus, topic domain.Topic) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				http.Error(w, "invalid invitation ID", http.StatusBadRequest)
				return
			}
			userID, ok := identity.UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "missing identity", http.StatusUnauthorized)
				return
			}

			inv, err := deps.Invitations.RespondInvitation(r.Context(), id, status)
			if err != nil {
				if errors.Is(err, domain.ErrInvitationNotFound) {
					http.Error(w, "invitation not found", http.StatusNotFound)
					return
				}
				logger.Error("respond invitation failed", "invitation_id", id, "error", err)
				http.Error(w, "failed to respond to invitation", http.StatusInternalServerError)
				return
			}

			publishInvitation(deps.Hub, logger, topic, userID, inv)
			writeJSON(w, http.StatusOK, inv)
		}
	}
	r.Post("/invitations/{id}/accept", respondInvitation(domain.InvitationAccepted, domain.TopicInvitationAccepted))
	r.Post("/invitations/{id}/decline", respondInvitation(domain.InvitationDeclined, domain.TopicInvitationDeclined))

	// ---------------- STREAM (SSE) ----------------

	r.Get("/boards/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		if _, err := deps.Boards.GetBoard(r.Context(), boardID); err != nil {
			if errors.Is(err, domain.ErrBoardNotFound) {
				http.Error(w, "board not found", http.StatusNotFound)
				return
			}
			logger.Error("sse get board failed", "board_id", boardID, "error", err)
			http.Error(w, "failed to stream events", http.StatusInternalServerError)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sess, err := session.Open(r.Context(), deps.Hub, boardID, userID, &sseSink{w: w, flusher: flusher}, logger, session.Settings{
			HeartbeatInterval: deps.Heartbeat,
		})
		if err != nil {
			logger.Error("open sse session failed", "board_id", boardID, "error", err)
			return
		}
		defer sess.Close()

		<-sess.Done()
	})

	// ---------------- STREAM (WEBSOCKET) ----------------

	r.Get("/boards/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		boardID, ok := boardIDParam(w, r)
		if !ok {
			return
		}
		userID, ok := identity.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		if _, err := deps.Boards.GetBoard(r.Context(), boardID); err != nil {
			if errors.Is(err, domain.ErrBoardNotFound) {
				http.Error(w, "board not found", http.StatusNotFound)
				return
			}
			logger.Error("ws get board failed", "board_id", boardID, "error", err)
			http.Error(w, "failed to open stream", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "board_id", boardID, "error", err)
			return
		}
		defer conn.Close()

		sess, err := session.Open(r.Context(), deps.Hub, boardID, userID, &wsSink{conn: conn}, logger, session.Settings{
			HeartbeatInterval: deps.Heartbeat,
		})
		if err != nil {
			logger.Error("open ws session failed", "board_id", boardID, "error", err)
			return
		}
		defer sess.Close()

		// Inbound frames are ephemeral events (cursor, drawing, editing,
		// presence) relayed straight to the broker. Durable mutations go
		// through the action endpoints.
		go func() {
			defer sess.Close()
			for {
				var env domain.Envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				topic := domain.Topic(env.Type)
				if !topic.Valid() || !topic.Ephemeral() {
					logger.Warn("dropping non-ephemeral inbound frame",
						"board_id", boardID,
						"user_id", userID,
						"type", env.Type,
					)
					continue
				}
				deps.Hub.Publish(boardID, topic, env.Payload)
			}
		}()

		<-sess.Done()
	})

	return r
}

func boardIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	boardID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid board ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return boardID, true
}

func writeSnapshot(w http.ResponseWriter, boardID uuid.UUID, snapshot domain.Snapshot) {
	writeJSON(w, http.StatusOK, struct {
		BoardID  string           `json:"board_id"`
		Elements []domain.Element `json:"elements"`
	}{
		BoardID:  boardID.String(),
		Elements: snapshot.List(),
	})
}

func writeMutationError(w http.ResponseWriter, logger *slog.Logger, boardID uuid.UUID, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAction), errors.Is(err, domain.ErrInvalidElement):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrBoardNotFound):
		http.Error(w, "board not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrConcurrentUpdate):
		http.Error(w, "board is being modified concurrently, retry", http.StatusConflict)
	default:
		logger.Error("board mutation failed", "board_id", boardID, "error", err)
		http.Error(w, "failed to apply mutation", http.StatusInternalServerError)
	}
}

func publishInvitation(hub *broker.Broker, logger *slog.Logger, topic domain.Topic, actorID uuid.UUID, inv domain.Invitation) {
	if hub == nil {
		return
	}
	payload, err := json.Marshal(domain.InvitationEvent{
		ActorID:    actorID,
		Invitation: inv,
	})
	if err != nil {
		logger.Error("marshal invitation event failed", "invitation_id", inv.ID, "error", err)
		return
	}
	hub.Publish(inv.BoardID, topic, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return errors.New("empty request body")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}
	return nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
