package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-rewards/internal/model"
)

const sessionColumns = `id, exam_id, user_id, start_time, end_time, is_completed, remaining_seconds`

// ExamSessionRepository handles flexible-exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetByExamAndUser retrieves the session for a specific exam-user pair.
func (r *ExamSessionRepository) GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = $1 AND user_id = $2`,
		examID, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// Create inserts a new session. Returns false if the pair already has one
// (concurrent start); the caller re-reads the existing row.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, user_id, start_time, remaining_seconds)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, user_id) DO NOTHING
		 RETURNING id`,
		s.ExamID, s.UserID, s.StartTime, s.RemainingSeconds,
	).Scan(&s.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateRemaining writes a new countdown value. A non-nil completedAt also
// completes the session. Completed sessions are left untouched.
func (r *ExamSessionRepository) UpdateRemaining(ctx context.Context, id uuid.UUID, remaining int64, completedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET remaining_seconds = $2,
		     is_completed = ($3::timestamptz IS NOT NULL),
		     end_time = $3
		 WHERE id = $1 AND is_completed = FALSE`,
		id, remaining, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInvalidState
	}
	return nil
}

// Complete marks a session completed. Idempotent: an existing end time is kept.
func (r *ExamSessionRepository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET is_completed = TRUE, end_time = COALESCE(end_time, $2)
		 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListActiveByExam returns the open sessions of an exam.
func (r *ExamSessionRepository) ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND is_completed = FALSE
		 ORDER BY start_time ASC`, examID)
}

// ListExhausted returns open sessions whose countdown already hit zero.
func (r *ExamSessionRepository) ListExhausted(ctx context.Context) ([]model.ExamSession, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE is_completed = FALSE AND remaining_seconds = 0`)
}

func (r *ExamSessionRepository) list(ctx context.Context, query string, args ...any) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func scanSession(row rowScanner) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	if err := row.Scan(&s.ID, &s.ExamID, &s.UserID, &s.StartTime, &s.EndTime,
		&s.IsCompleted, &s.RemainingSeconds); err != nil {
		return nil, err
	}
	return s, nil
}
