// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drawdeck/boardsync/internal/client"
	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/drawdeck/boardsync/internal/logging"
	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(os.Getenv("ENV"))

	var err error
	switch os.Args[1] {
	case "watch":
		err = runWatch(ctx, logger, os.Args[2:])
	case "cursor-demo":
		err = runCursorDemo(ctx, logger, os.Args[2:])
	default:
		printUsage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: boardctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  watch        stream a board's events to stdout")
	fmt.Fprintln(w, "  cursor-demo  connect and send a circling cursor")
}

func connectFlags(name string) (*flag.FlagSet, *string, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	server := fs.String("server", "ws://localhost:8080", "server base URL (ws:// or wss://)")
	boardID := fs.String("board", "", "board id (required)")
	userID := fs.String("user", "", "user id (random when empty)")
	return fs, server, boardID, userID
}

func buildAgent(logger *slog.Logger, handler client.Handler, server, boardStr, userStr string) (*client.Agent, error) {
	boardID, err := uuid.Parse(boardStr)
	if err != nil {
		return nil, fmt.Errorf("invalid board id %q: %w", boardStr, err)
	}

	userID := uuid.New()
	if userStr != "" {
		userID, err = uuid.Parse(userStr)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", userStr, err)
		}
	}

	url := fmt.Sprintf("%s/boards/%s/ws", server, boardID)
	logger.Info("connecting", "url", url, "user_id", userID)

	agent := client.New(url, userID, handler, logger, client.DefaultSettings())
	agent.OnStateChange(func(s client.State) {
		logger.Info("connection state changed", "state", s)
	})
	return agent, nil
}

// watchHandler logs every remote event family as it arrives.
type watchHandler struct {
	client.NopHandler
	logger *slog.Logger
}

func (h *watchHandler) BoardUpdated(ev domain.BoardUpdatedEvent) {
	h.logger.Info("board updated",
		"actor_id", ev.ActorID,
		"cursor", ev.Cursor,
		"elements", len(ev.Elements),
	)
}

func (h *watchHandler) ElementChanged(topic domain.Topic, ev domain.ElementEvent) {
	h.logger.Info("element changed",
		"topic", topic,
		"actor_id", ev.ActorID,
		"element_id", ev.ElementID,
	)
}

func (h *watchHandler) CursorMoved(ev domain.CursorEvent) {
	h.logger.Info("cursor", "actor_id", ev.ActorID, "x", ev.X, "y", ev.Y)
}

func (h *watchHandler) Drawing(topic domain.Topic, ev domain.DrawingEvent) {
	h.logger.Info("drawing", "topic", topic, "actor_id", ev.ActorID, "stroke_id", ev.StrokeID)
}

func (h *watchHandler) PresenceChanged(record domain.PresenceRecord) {
	h.logger.Info("presence", "user_id", record.UserID, "status", record.Status)
}

func (h *watchHandler) UserJoined(ev domain.UserEvent) {
	h.logger.Info("user joined", "actor_id", ev.ActorID)
}

func (h *watchHandler) UserLeft(ev domain.UserEvent) {
	h.logger.Info("user left", "actor_id", ev.ActorID)
}

func (h *watchHandler) InvitationChanged(topic domain.Topic, ev domain.InvitationEvent) {
	h.logger.Info("invitation",
		"topic", topic,
		"invitation_id", ev.Invitation.ID,
		"status", ev.Invitation.Status,
	)
}

func (h *watchHandler) TextEditing(topic domain.Topic, ev domain.EditingEvent) {
	h.logger.Info("text editing", "topic", topic, "actor_id", ev.ActorID, "element_id", ev.ElementID)
}

func runWatch(ctx context.Context, logger *slog.Logger, args []string) error {
	fs, server, boardID, userID := connectFlags("watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *boardID == "" {
		return fmt.Errorf("-board is required")
	}

	agent, err := buildAgent(logger, &watchHandler{logger: logger}, *server, *boardID, *userID)
	if err != nil {
		return err
	}
	return agent.Run(ctx)
}

func runCursorDemo(ctx context.Context, logger *slog.Logger, args []string) error {
	fs, server, boardID, userID := connectFlags("cursor-demo")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *boardID == "" {
		return fmt.Errorf("-board is required")
	}

	agent, err := buildAgent(logger, nil, *server, *boardID, *userID)
	if err != nil {
		return err
	}

	// Circle the cursor around the board center while the agent runs.
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		angle := 0.0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				angle += 0.1
				agent.MoveCursor(500+200*math.Cos(angle), 500+200*math.Sin(angle))
			}
		}
	}()

	return agent.Run(ctx)
}
