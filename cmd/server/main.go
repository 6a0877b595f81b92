package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/app"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/handler"
	"github.com/stemsi/exstem-rewards/internal/logger"
	"github.com/stemsi/exstem-rewards/internal/router"
	"github.com/stemsi/exstem-rewards/internal/service"
	"github.com/stemsi/exstem-rewards/internal/validator"
	"github.com/stemsi/exstem-rewards/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("queue_backend", cfg.QueueBackend).
		Msg("Starting ExStem Rewards")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connect & Wire ────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise pipeline")
	}
	defer a.Close()

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Participation: handler.NewParticipationHandler(a.Participation, log),
		Session:       handler.NewSessionHandler(a.Sessions, log),
		Result:        handler.NewResultHandler(a.Results, log),
		Admin:         handler.NewAdminHandler(a.Sessions, a.Settlement, log),
		WS:            handler.NewWSHandler(a.Sessions, cfg.SessionTick, log, cfg.AllowedOrigins),
	}
	r := router.SetupRouter(ctx, service.NewAuthService(cfg.JWTSecret), handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Periodic Triggers ─────────────────────────────────────────────
	scheduler := worker.NewScheduler(cfg.TriggerTimeout, log)
	if err := worker.RegisterPipeline(scheduler, map[string]string{
		worker.TriggerCompletion:       cfg.CompletionSchedule,
		worker.TriggerSettlement:       cfg.SettlementSchedule,
		worker.TriggerNotificationScan: cfg.NotificationScanSchedule,
	}, a.Completion, a.Settlement, a.Notifications); err != nil {
		log.Fatal().Err(err).Msg("Failed to register triggers")
	}

	notifier := worker.NewNotificationWorker(a.NotificationQueue, a.Notifications, log)

	// ─── Run Until Signal ──────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return scheduler.Start(gctx) })
	g.Go(func() error { return notifier.Start(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		// Stop accepting new HTTP requests (5s timeout).
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Shutdown with error")
		a.Close()
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
