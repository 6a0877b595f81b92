package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// QuestionRepository reads answer keys; question authoring lives elsewhere.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListAnswerKey returns the correct answer of every question of an exam.
func (r *QuestionRepository) ListAnswerKey(ctx context.Context, examID uuid.UUID) ([]model.AnswerKeyEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, correct_answer FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var key []model.AnswerKeyEntry
	for rows.Next() {
		var (
			id     uuid.UUID
			answer string
		)
		if err := rows.Scan(&id, &answer); err != nil {
			return nil, err
		}
		key = append(key, model.AnswerKeyEntry{QuestionID: id.String(), CorrectAnswer: answer})
	}
	return key, rows.Err()
}
