// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drawdeck/boardsync/internal/board"
	"github.com/drawdeck/boardsync/internal/broker"
	"github.com/drawdeck/boardsync/internal/config"
	"github.com/drawdeck/boardsync/internal/logging"
	"github.com/drawdeck/boardsync/internal/persistence/postgres"
	"github.com/drawdeck/boardsync/internal/repository"
	httptransport "github.com/drawdeck/boardsync/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	}

	boardRepo := repository.NewBoardRepository(pool, logger)
	invitationRepo := repository.NewInvitationRepository(pool, logger)

	hub := broker.New(logger)
	mutator := board.NewService(boardRepo, hub, logger)

	handler := httptransport.NewRouter(httptransport.Deps{
		Boards:          boardRepo,
		Mutator:         mutator,
		Invitations:     invitationRepo,
		Hub:             hub,
		Health:          postgres.NewSchemaHealthChecker(pool),
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Heartbeat:       cfg.HeartbeatInterval,
		Version:         Version,
		Commit:          Commit,
		BuildDate:       BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
