package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/logger"
	"github.com/stemsi/exstem-rewards/internal/service"
)

// Trigger names.
const (
	TriggerCompletion       = "completion"
	TriggerSettlement       = "settlement"
	TriggerNotificationScan = "notification_scan"
)

// Detector runs one completion detection pass.
type Detector interface {
	DetectCompletion(ctx context.Context) (service.CompletionReport, error)
}

// Settler settles every pending exam.
type Settler interface {
	SettlePending(ctx context.Context) ([]service.SettlementReport, error)
}

// Dispatcher enqueues at most one notification job.
type Dispatcher interface {
	DispatchNext(ctx context.Context) (bool, error)
}

// Job is one run of a periodic trigger.
type Job func(ctx context.Context) error

// Scheduler runs the periodic triggers on one cron instance. A trigger never
// overlaps itself: a tick that fires while the previous run of the same
// trigger is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	base    context.Context
	log     zerolog.Logger
}

// NewScheduler creates a Scheduler. timeout bounds every single run.
func NewScheduler(timeout time.Duration, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := logger.CronLogger{Log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timeout: timeout,
		base:    context.Background(),
		log:     log,
	}
}

// Register adds a named trigger on a cron spec ("@every 60s", "*/5 * * * *").
func (s *Scheduler) Register(name, spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("register %s trigger %q: %w", name, spec, err)
	}
	s.log.Info().Str("trigger", name).Str("spec", spec).Msg("Trigger registered")
	return nil
}

// Start runs the triggers until ctx is cancelled, then waits for running
// jobs to return.
func (s *Scheduler) Start(ctx context.Context) error {
	s.base = ctx
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")

	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopping...")
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx := s.base
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	err := job(ctx)
	log := s.log.With().Str("trigger", name).Dur("took", time.Since(started)).Logger()
	if err != nil {
		log.Error().Err(err).Msg("Trigger run failed")
		return
	}
	log.Debug().Msg("Trigger run finished")
}

// RegisterPipeline wires the completion, settlement and notification scan
// triggers.
func RegisterPipeline(s *Scheduler, specs map[string]string, detector Detector, settler Settler, dispatcher Dispatcher) error {
	jobs := map[string]Job{
		TriggerCompletion: func(ctx context.Context) error {
			report, err := detector.DetectCompletion(ctx)
			if n := len(report.FixedCompleted) + len(report.FlexibleCompleted); n > 0 {
				s.log.Info().Int("exams", n).Int("sessions_swept", report.SessionsSwept).Msg("Exams completed")
			}
			return err
		},
		TriggerSettlement: func(ctx context.Context) error {
			_, err := settler.SettlePending(ctx)
			return err
		},
		TriggerNotificationScan: func(ctx context.Context) error {
			_, err := dispatcher.DispatchNext(ctx)
			return err
		},
	}

	for _, name := range []string{TriggerCompletion, TriggerSettlement, TriggerNotificationScan} {
		spec, ok := specs[name]
		if !ok || spec == "" {
			return fmt.Errorf("no schedule for %s trigger", name)
		}
		if err := s.Register(name, spec, jobs[name]); err != nil {
			return err
		}
	}
	return nil
}
