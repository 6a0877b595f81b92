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

// ExamSessionService owns the per-participant countdown of flexible exams.
type ExamSessionService struct {
	sessionRepo SessionStore
	examRepo    ExamStore
	log         zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(sessionRepo SessionStore, examRepo ExamStore, log zerolog.Logger) *ExamSessionService {
	return &ExamSessionService{
		sessionRepo: sessionRepo,
		examRepo:    examRepo,
		log:         log.With().Str("component", "exam_session_service").Logger(),
	}
}

// StartSession returns the open session of the pair, creating it on first
// start. Re-entering never resets the clock.
func (s *ExamSessionService) StartSession(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	now := time.Now()
	var allowance time.Duration

	switch sched := exam.Schedule.(type) {
	case model.FixedSchedule:
		if exam.IsCompleted {
			return nil, fmt.Errorf("%w: exam %s is completed", model.ErrInvalidState, examID)
		}
		allowance = min(max(sched.EndsAt().Sub(now), 0), sched.Duration)
	case model.FlexibleSchedule:
		if sched.Status != model.FlexibleStatusActive {
			return nil, fmt.Errorf("%w: exam %s is %s", model.ErrInvalidState, examID, sched.Status)
		}
		allowance = sched.TimeLimit
	default:
		return nil, fmt.Errorf("%w: exam %s has no schedule", model.ErrInvalidState, examID)
	}

	existing, err := s.sessionRepo.GetByExamAndUser(ctx, examID, userID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}
	if existing != nil {
		return openSession(existing)
	}

	session := &model.ExamSession{
		ExamID:           examID,
		UserID:           userID,
		StartTime:        now,
		RemainingSeconds: int64(allowance / time.Second),
	}

	created, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !created {
		// Concurrent start: hand back the session that won.
		existing, err := s.sessionRepo.GetByExamAndUser(ctx, examID, userID)
		if err != nil {
			return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
		}
		return openSession(existing)
	}

	s.log.Debug().
		Str("session_id", session.ID.String()).
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Int64("remaining_seconds", session.RemainingSeconds).
		Msg("Session started")

	return session, nil
}

func openSession(sess *model.ExamSession) (*model.ExamSession, error) {
	if sess.IsCompleted {
		return nil, fmt.Errorf("%w: session %s is already completed", model.ErrInvalidState, sess.ID)
	}
	return sess, nil
}

// UpdateRemainingTime is the single mutation path of the countdown. The new
// value is clamped to [0, current]; reaching zero completes the session.
func (s *ExamSessionService) UpdateRemainingTime(ctx context.Context, sessionID uuid.UUID, remaining time.Duration) (*model.ExamSession, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.IsCompleted {
		return nil, fmt.Errorf("%w: session %s is already completed", model.ErrInvalidState, sessionID)
	}

	secs := int64(remaining / time.Second)
	secs = min(max(secs, 0), sess.RemainingSeconds)

	var completedAt *time.Time
	if secs == 0 {
		now := time.Now()
		completedAt = &now
	}

	if err := s.sessionRepo.UpdateRemaining(ctx, sessionID, secs, completedAt); err != nil {
		return nil, fmt.Errorf("update remaining: %w", err)
	}

	sess.RemainingSeconds = secs
	if completedAt != nil {
		sess.IsCompleted = true
		sess.EndTime = completedAt
		s.log.Debug().Str("session_id", sessionID.String()).Msg("Session ran out of time")
	}
	return sess, nil
}

// CompleteSession marks a session completed regardless of remaining time.
// Completing twice keeps the first end time.
func (s *ExamSessionService) CompleteSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.IsCompleted {
		return sess, nil
	}

	now := time.Now()
	if err := s.sessionRepo.Complete(ctx, sessionID, now); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	sess.IsCompleted = true
	sess.EndTime = &now
	return sess, nil
}

// GetSession returns a session by ID.
func (s *ExamSessionService) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	return s.sessionRepo.GetByID(ctx, sessionID)
}

// GetUserSession returns the session of a user on an exam.
func (s *ExamSessionService) GetUserSession(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	return s.sessionRepo.GetByExamAndUser(ctx, examID, userID)
}

// ActiveSessions returns the non-completed sessions of an exam.
func (s *ExamSessionService) ActiveSessions(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	return s.sessionRepo.ListActiveByExam(ctx, examID)
}

// ExhaustedSessions returns open sessions whose countdown is already zero.
func (s *ExamSessionService) ExhaustedSessions(ctx context.Context) ([]model.ExamSession, error) {
	return s.sessionRepo.ListExhausted(ctx)
}
