package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// SessionTimer is the part of ExamSessionService the detector depends on.
type SessionTimer interface {
	ActiveSessions(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error)
	ExhaustedSessions(ctx context.Context) ([]model.ExamSession, error)
	UpdateRemainingTime(ctx context.Context, sessionID uuid.UUID, remaining time.Duration) (*model.ExamSession, error)
}

// CompletionReport summarises one detector run.
type CompletionReport struct {
	FixedCompleted    []uuid.UUID `json:"fixed_completed"`
	FlexibleCompleted []uuid.UUID `json:"flexible_completed"`
	SessionsSwept     int         `json:"sessions_swept"`
}

// CompletionService decides when exams end, per schedule variant.
type CompletionService struct {
	examRepo ExamStore
	timer    SessionTimer
	winners  WinnerListRequester
	log      zerolog.Logger
	now      func() time.Time
}

// NewCompletionService creates a new CompletionService.
func NewCompletionService(examRepo ExamStore, timer SessionTimer, winners WinnerListRequester, log zerolog.Logger) *CompletionService {
	return &CompletionService{
		examRepo: examRepo,
		timer:    timer,
		winners:  winners,
		log:      log.With().Str("component", "completion_detector").Logger(),
		now:      time.Now,
	}
}

// DetectCompletion runs the fixed pass, the flexible pass and the exhausted
// session sweep. A failing pass is logged and abandoned for this run; the
// others still run. The returned error joins every pass failure.
func (s *CompletionService) DetectCompletion(ctx context.Context) (CompletionReport, error) {
	var (
		report CompletionReport
		errs   []error
		err    error
	)

	report.FixedCompleted, err = s.completeFixed(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Fixed exam pass abandoned")
		errs = append(errs, err)
	}

	report.FlexibleCompleted, err = s.completeFlexible(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Flexible exam pass abandoned")
		errs = append(errs, err)
	}

	report.SessionsSwept, err = s.sweepExhausted(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Exhausted session sweep abandoned")
		errs = append(errs, err)
	}

	if n := len(report.FixedCompleted) + len(report.FlexibleCompleted) + report.SessionsSwept; n > 0 {
		s.log.Info().
			Int("fixed", len(report.FixedCompleted)).
			Int("flexible", len(report.FlexibleCompleted)).
			Int("sessions", report.SessionsSwept).
			Msg("Completion detected")
	}

	return report, errors.Join(errs...)
}

func (s *CompletionService) completeFixed(ctx context.Context) ([]uuid.UUID, error) {
	exams, err := s.examRepo.ListOpenFixed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open fixed exams: %w", err)
	}

	now := s.now()
	var ended []model.Exam
	for _, e := range exams {
		if sched, ok := e.Fixed(); ok && sched.HasEnded(now) {
			ended = append(ended, e)
		}
	}
	if len(ended) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(ended))
	for i, e := range ended {
		ids[i] = e.ID
	}
	if err := s.examRepo.MarkCompleted(ctx, ids); err != nil {
		return nil, fmt.Errorf("mark fixed exams completed: %w", err)
	}

	for _, e := range ended {
		s.requestWinnerList(ctx, e)
	}
	return ids, nil
}

func (s *CompletionService) completeFlexible(ctx context.Context) ([]uuid.UUID, error) {
	exams, err := s.examRepo.ListActiveFlexible(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active flexible exams: %w", err)
	}

	var done []uuid.UUID
	for _, e := range exams {
		active, err := s.timer.ActiveSessions(ctx, e.ID)
		if err != nil {
			return done, fmt.Errorf("active sessions of exam %s: %w", e.ID, err)
		}
		if len(active) > 0 {
			continue
		}

		if err := s.examRepo.CompleteFlexible(ctx, e.ID); err != nil {
			return done, fmt.Errorf("complete flexible exam %s: %w", e.ID, err)
		}
		done = append(done, e.ID)
		s.requestWinnerList(ctx, e)
	}
	return done, nil
}

func (s *CompletionService) sweepExhausted(ctx context.Context) (int, error) {
	sessions, err := s.timer.ExhaustedSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list exhausted sessions: %w", err)
	}

	swept := 0
	for _, sess := range sessions {
		_, err := s.timer.UpdateRemainingTime(ctx, sess.ID, 0)
		if errors.Is(err, model.ErrInvalidState) {
			// Completed in the meantime.
			continue
		}
		if err != nil {
			return swept, fmt.Errorf("complete session %s: %w", sess.ID, err)
		}
		swept++
	}
	return swept, nil
}

func (s *CompletionService) requestWinnerList(ctx context.Context, e model.Exam) {
	if !e.IsWinnerlistRequested || s.winners == nil {
		return
	}
	if err := s.winners.RequestWinnerList(ctx, e.ID); err != nil {
		s.log.Warn().Err(err).Str("exam_id", e.ID.String()).Msg("Winner list hand-off failed")
	}
}
