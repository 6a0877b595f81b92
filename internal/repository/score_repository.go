package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// ScoreRepository handles the insert-only score records.
type ScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(pool *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{pool: pool}
}

// Create inserts a score. Returns false if one already exists for the pair;
// scores are never overwritten.
func (r *ScoreRepository) Create(ctx context.Context, s *model.Score) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO scores (user_id, exam_id, score, total_questions, correct_count, is_winner)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, exam_id) DO NOTHING
		 RETURNING id, created_at`,
		s.UserID, s.ExamID, s.Score, s.TotalQuestions, s.CorrectCount, s.IsWinner,
	).Scan(&s.ID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByUserAndExam retrieves the score of a user in an exam.
func (r *ScoreRepository) GetByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) (*model.Score, error) {
	s := &model.Score{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_id, score, total_questions, correct_count, is_winner, created_at
		 FROM scores WHERE user_id = $1 AND exam_id = $2`, userID, examID,
	).Scan(&s.ID, &s.UserID, &s.ExamID, &s.Score, &s.TotalQuestions, &s.CorrectCount, &s.IsWinner, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}
