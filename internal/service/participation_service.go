package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// CheckResult is the outcome of the participation gate.
type CheckResult int

const (
	// CheckCreated means the participation did not exist and was created.
	CheckCreated CheckResult = iota + 1
	// CheckNotParticipated means the participation does not exist and was not created.
	CheckNotParticipated
	// CheckAlreadyFinished means the participant already submitted; re-entry is blocked.
	CheckAlreadyFinished
	// CheckContinue means the participation exists and is still open.
	CheckContinue
)

// StatusCode returns the HTTP status the gate result maps to.
func (r CheckResult) StatusCode() int {
	switch r {
	case CheckCreated:
		return http.StatusCreated
	case CheckNotParticipated:
		return http.StatusNotFound
	case CheckAlreadyFinished:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}

func (r CheckResult) String() string {
	switch r {
	case CheckCreated:
		return "created"
	case CheckNotParticipated:
		return "not_participated"
	case CheckAlreadyFinished:
		return "already_finished"
	case CheckContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// ParticipationService owns the per-(user, exam) participation record.
type ParticipationService struct {
	repo ParticipationStore
	log  zerolog.Logger
}

// NewParticipationService creates a new ParticipationService.
func NewParticipationService(repo ParticipationStore, log zerolog.Logger) *ParticipationService {
	return &ParticipationService{
		repo: repo,
		log:  log.With().Str("component", "participation_service").Logger(),
	}
}

// CheckParticipation gates exam start and exam finish. With createIfNotExist
// a missing participation is created; a concurrent creator's row wins.
func (s *ParticipationService) CheckParticipation(ctx context.Context, userID int, examID uuid.UUID, createIfNotExist bool) (CheckResult, *model.Participation, error) {
	p, err := s.repo.GetByUserAndExam(ctx, userID, examID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return 0, nil, fmt.Errorf("get participation: %w", err)
	}

	if p != nil {
		if p.IsFinished {
			return CheckAlreadyFinished, p, nil
		}
		return CheckContinue, p, nil
	}

	if !createIfNotExist {
		return CheckNotParticipated, nil, nil
	}

	created := &model.Participation{UserID: userID, ExamID: examID}
	ok, err := s.repo.Create(ctx, created)
	if err != nil {
		return 0, nil, fmt.Errorf("create participation: %w", err)
	}
	if ok {
		return CheckCreated, created, nil
	}

	// Lost the insert race; report against the row that won.
	existing, err := s.repo.GetByUserAndExam(ctx, userID, examID)
	if err != nil {
		return 0, nil, fmt.Errorf("concurrent create detected, but fetch failed: %w", err)
	}
	if existing.IsFinished {
		return CheckAlreadyFinished, existing, nil
	}
	return CheckContinue, existing, nil
}

// UpdateParticipationStatus records the finish transition and the winner flag.
func (s *ParticipationService) UpdateParticipationStatus(ctx context.Context, userID int, examID uuid.UUID, isWinner bool) error {
	p, err := s.repo.GetByUserAndExam(ctx, userID, examID)
	if err != nil {
		return fmt.Errorf("get participation: %w", err)
	}

	if err := s.repo.MarkFinished(ctx, p.ID, isWinner, time.Now()); err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}

	s.log.Debug().
		Str("participation_id", p.ID.String()).
		Bool("is_winner", isWinner).
		Msg("Participation finished")
	return nil
}

// GetParticipation returns the participation of a user in an exam.
func (s *ParticipationService) GetParticipation(ctx context.Context, userID int, examID uuid.UUID) (*model.Participation, error) {
	return s.repo.GetByUserAndExam(ctx, userID, examID)
}
