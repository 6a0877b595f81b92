// Package app wires configuration into connected repositories and services.
// cmd/server and cmd/rewardctl share it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/database"
	"github.com/stemsi/exstem-rewards/internal/mail"
	"github.com/stemsi/exstem-rewards/internal/proof"
	"github.com/stemsi/exstem-rewards/internal/queue"
	"github.com/stemsi/exstem-rewards/internal/repository"
	"github.com/stemsi/exstem-rewards/internal/service"
)

// JobQueue is a queue the pipeline both publishes to and consumes from.
type JobQueue interface {
	Enqueue(ctx context.Context, payload any) error
	Consume(ctx context.Context, h queue.Handler) error
}

// App holds the connected pipeline.
type App struct {
	Pool *pgxpool.Pool
	RDB  *redis.Client

	Sessions      *service.ExamSessionService
	Participation *service.ParticipationService
	Results       *service.ResultService
	Completion    *service.CompletionService
	Settlement    *service.SettlementService
	Notifications *service.NotificationService

	NotificationQueue JobQueue
	WinnerListQueue   JobQueue

	Log zerolog.Logger

	closers []func()
}

// New connects PostgreSQL, Redis and the queue backend and builds every
// service. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{Log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	a.Pool, err = database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, a.Pool.Close)

	// ─── Connect to Redis ──────────────────────────────────────────────
	a.RDB, err = database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.RDB.Close() })

	// ─── Job Queues ────────────────────────────────────────────────────
	notifQueue, winnerQueue, err := a.queues(cfg, log)
	if err != nil {
		return nil, err
	}
	a.NotificationQueue = notifQueue
	a.WinnerListQueue = winnerQueue

	// ─── Repositories ──────────────────────────────────────────────────
	examRepo := repository.NewExamRepository(a.Pool)
	sessionRepo := repository.NewExamSessionRepository(a.Pool)
	partRepo := repository.NewParticipationRepository(a.Pool)
	scoreRepo := repository.NewScoreRepository(a.Pool)
	questionRepo := repository.NewQuestionRepository(a.Pool)

	// ─── Services ──────────────────────────────────────────────────────
	var mailer mail.Mailer = mail.NewLogMailer(log)
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	}
	chain := proof.NewChain(proof.NewClient(cfg.ProofServiceURL, cfg.ProofServiceToken, cfg.ProofServiceTimeout, log))

	a.Sessions = service.NewExamSessionService(sessionRepo, examRepo, log)
	a.Participation = service.NewParticipationService(partRepo, log)
	a.Results = service.NewResultService(a.Participation, a.Sessions, examRepo, scoreRepo, questionRepo, a.RDB, log)
	a.Completion = service.NewCompletionService(examRepo, a.Sessions, queue.NewWinnerListRequester(winnerQueue), log)
	a.Settlement = service.NewSettlementService(examRepo, partRepo, chain, log)
	a.Notifications = service.NewNotificationService(partRepo, scoreRepo, notifQueue, mailer, log)

	return a, nil
}

func (a *App) queues(cfg *config.Config, log zerolog.Logger) (notif, winners JobQueue, err error) {
	opts := queue.Options{
		MaxAttempts: cfg.NotificationMaxAttempts,
		RetryDelay:  cfg.NotificationRetryDelay,
	}

	switch cfg.QueueBackend {
	case config.QueueBackendRedis:
		return queue.NewRedisQueue(a.RDB, config.WorkerKey.ResultNotificationQueue, opts, log),
			queue.NewRedisQueue(a.RDB, config.WorkerKey.WinnerListQueue, opts, log),
			nil

	case config.QueueBackendRabbitMQ:
		conn, err := database.NewAMQPConnection(cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })

		nq, err := queue.NewAMQPQueue(conn, config.WorkerKey.ResultNotificationQueue, opts, log)
		if err != nil {
			return nil, nil, fmt.Errorf("declare %s: %w", config.WorkerKey.ResultNotificationQueue, err)
		}
		a.closers = append(a.closers, func() { _ = nq.Close() })

		wq, err := queue.NewAMQPQueue(conn, config.WorkerKey.WinnerListQueue, opts, log)
		if err != nil {
			return nil, nil, fmt.Errorf("declare %s: %w", config.WorkerKey.WinnerListQueue, err)
		}
		a.closers = append(a.closers, func() { _ = wq.Close() })
		return nq, wq, nil

	default:
		return nil, nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
