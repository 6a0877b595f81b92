package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/mail"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// NotificationService finds finished participations of completed exams and
// sends each participant their result exactly once.
type NotificationService struct {
	partRepo  ParticipationStore
	scoreRepo ScoreStore
	jobs      JobEnqueuer
	mailer    mail.Mailer
	log       zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(partRepo ParticipationStore, scoreRepo ScoreStore, jobs JobEnqueuer, mailer mail.Mailer, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		partRepo:  partRepo,
		scoreRepo: scoreRepo,
		jobs:      jobs,
		mailer:    mailer,
		log:       log.With().Str("component", "notification").Logger(),
	}
}

// DispatchNext enqueues a job for at most one unnotified participation.
// job_added is claimed before the enqueue and released if the enqueue fails,
// so two scans can never enqueue the same participation. Returns whether a
// job was enqueued.
func (s *NotificationService) DispatchNext(ctx context.Context) (bool, error) {
	n, err := s.partRepo.NextUnnotified(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("next unnotified: %w", err)
	}

	claimed, err := s.partRepo.ClaimJob(ctx, n.ParticipationID)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		return false, nil
	}
	n.JobAdded = true

	// job_added may drop back to false here; it stays true once a job is queued.
	if err := s.jobs.Enqueue(ctx, n); err != nil {
		if relErr := s.partRepo.ReleaseJob(context.WithoutCancel(ctx), n.ParticipationID); relErr != nil {
			s.log.Error().Err(relErr).
				Str("participation_id", n.ParticipationID.String()).
				Msg("Failed to release job claim")
		}
		return false, fmt.Errorf("enqueue notification: %w", err)
	}

	s.log.Debug().Str("participation_id", n.ParticipationID.String()).Msg("Notification enqueued")
	return true, nil
}

// Deliver sends the result mail for one job. Stale jobs (participation gone,
// no contact address, exam not completed, already mailed, no score) are
// dropped silently. A send failure is returned so the queue retries.
func (s *NotificationService) Deliver(ctx context.Context, job model.ResultNotification) error {
	log := s.log.With().Str("participation_id", job.ParticipationID.String()).Logger()

	n, err := s.partRepo.GetNotification(ctx, job.ParticipationID)
	if errors.Is(err, model.ErrNotFound) {
		log.Debug().Msg("Participation gone, dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get participation: %w", err)
	}

	if n.Email == nil || *n.Email == "" || !n.ExamCompleted || n.IsMailSent {
		log.Debug().Msg("Nothing to send")
		return nil
	}

	score, err := s.scoreRepo.GetByUserAndExam(ctx, n.UserID, n.ExamID)
	if errors.Is(err, model.ErrNotFound) {
		log.Debug().Msg("No score yet, dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get score: %w", err)
	}

	subject, body := mail.ResultMessage(n.ExamName, score.TotalQuestions, score.CorrectCount)
	if err := s.mailer.Send(ctx, *n.Email, subject, body); err != nil {
		return fmt.Errorf("send result mail: %w", err)
	}

	// The mail is out; a retry now would send it twice.
	if err := s.partRepo.MarkMailSent(context.WithoutCancel(ctx), n.ParticipationID); err != nil {
		log.Error().Err(err).Msg("Mail sent but is_mail_sent not recorded")
		return nil
	}

	log.Info().Msg("Result mail sent")
	return nil
}
