package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// The stores below are satisfied by the PostgreSQL repositories in
// internal/repository and by the in-memory store in internal/repository/memory.

// ExamStore is the exam state the pipeline reads and flips.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListOpenFixed(ctx context.Context) ([]model.Exam, error)
	ListActiveFlexible(ctx context.Context) ([]model.Exam, error)
	ListPendingDistribution(ctx context.Context) ([]model.Exam, error)
	MarkCompleted(ctx context.Context, ids []uuid.UUID) error
	CompleteFlexible(ctx context.Context, id uuid.UUID) error
	ClaimDistribution(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseDistribution(ctx context.Context, id uuid.UUID) error
}

// SessionStore persists flexible-exam countdowns.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) (bool, error)
	UpdateRemaining(ctx context.Context, id uuid.UUID, remaining int64, completedAt *time.Time) error
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
	ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error)
	ListExhausted(ctx context.Context) ([]model.ExamSession, error)
}

// ParticipationStore persists participations and the flags the background
// workers hang off them.
type ParticipationStore interface {
	GetByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) (*model.Participation, error)
	Create(ctx context.Context, p *model.Participation) (bool, error)
	MarkFinished(ctx context.Context, id uuid.UUID, isWinner bool, at time.Time) error
	ListEligibleWinners(ctx context.Context, examID uuid.UUID) ([]model.Winner, error)
	MarkRewardSent(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) error
	MarkRewardFailed(ctx context.Context, id uuid.UUID) error
	NextUnnotified(ctx context.Context) (*model.ResultNotification, error)
	GetNotification(ctx context.Context, id uuid.UUID) (*model.ResultNotification, error)
	ClaimJob(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseJob(ctx context.Context, id uuid.UUID) error
	MarkMailSent(ctx context.Context, id uuid.UUID) error
}

// ScoreStore persists insert-only scores.
type ScoreStore interface {
	Create(ctx context.Context, s *model.Score) (bool, error)
	GetByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) (*model.Score, error)
}

// AnswerKeyStore reads the source of truth for answer keys.
type AnswerKeyStore interface {
	ListAnswerKey(ctx context.Context, examID uuid.UUID) ([]model.AnswerKeyEntry, error)
}

// JobEnqueuer pushes a JSON-encodable payload onto a job queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, payload any) error
}

// WinnerListRequester hands an exam over to the winner-list sender.
type WinnerListRequester interface {
	RequestWinnerList(ctx context.Context, examID uuid.UUID) error
}
