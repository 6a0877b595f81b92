package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/model"
)

const examColumns = `id, name, question_count, schedule_mode, start_date, duration_minutes,
	participant_time_limit_minutes, status, is_rewarded, reward_per_winner::text,
	passing_score::float8, COALESCE(contract_address, ''), is_completed, is_distributed,
	is_winnerlist_requested, created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// ListOpenFixed returns fixed-schedule exams not yet completed.
func (r *ExamRepository) ListOpenFixed(ctx context.Context) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE is_completed = FALSE AND schedule_mode = $1`, model.ScheduleModeFixed)
}

// ListActiveFlexible returns flexible exams in the active state not yet completed.
func (r *ExamRepository) ListActiveFlexible(ctx context.Context) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE is_completed = FALSE AND schedule_mode = $1 AND status = $2`,
		model.ScheduleModeFlexible, model.FlexibleStatusActive)
}

// ListPendingDistribution returns completed rewarded exams whose rewards
// have not been distributed.
func (r *ExamRepository) ListPendingDistribution(ctx context.Context) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE is_completed = TRUE AND is_rewarded = TRUE AND is_distributed = FALSE
		 ORDER BY updated_at ASC`)
}

// MarkCompleted flips a batch of exams to completed in one statement.
func (r *ExamRepository) MarkCompleted(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_completed = TRUE, updated_at = NOW()
		 WHERE id = ANY($1) AND is_completed = FALSE`, ids)
	return err
}

// CompleteFlexible marks a flexible exam completed (status and flag together).
func (r *ExamRepository) CompleteFlexible(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, is_completed = TRUE, updated_at = NOW()
		 WHERE id = $2 AND schedule_mode = $3`,
		model.FlexibleStatusCompleted, id, model.ScheduleModeFlexible)
	return err
}

// ClaimDistribution sets is_distributed only if it is still false.
// Returns false when another run already holds the claim.
func (r *ExamRepository) ClaimDistribution(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_distributed = TRUE, updated_at = NOW()
		 WHERE id = $1 AND is_distributed = FALSE`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseDistribution rolls is_distributed back so a later run retries the exam.
func (r *ExamRepository) ReleaseDistribution(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_distributed = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *ExamRepository) list(ctx context.Context, query string, args ...any) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (*model.Exam, error) {
	var (
		e             model.Exam
		mode          model.ScheduleMode
		startDate     *time.Time
		durationMin   *int
		timeLimitMin  *int
		status        *model.FlexibleStatus
		rewardPerUser string
	)
	err := row.Scan(&e.ID, &e.Name, &e.QuestionCount, &mode, &startDate, &durationMin,
		&timeLimitMin, &status, &e.Reward.IsRewarded, &rewardPerUser,
		&e.Reward.PassingScore, &e.Reward.ContractAddress, &e.IsCompleted, &e.IsDistributed,
		&e.IsWinnerlistRequested, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Reward.RewardPerWinner, err = decimal.NewFromString(rewardPerUser)
	if err != nil {
		return nil, fmt.Errorf("parse reward_per_winner: %w", err)
	}

	switch mode {
	case model.ScheduleModeFixed:
		if startDate == nil || durationMin == nil {
			return nil, fmt.Errorf("exam %s: fixed schedule without start/duration", e.ID)
		}
		e.Schedule = model.FixedSchedule{
			StartDate: *startDate,
			Duration:  time.Duration(*durationMin) * time.Minute,
		}
	case model.ScheduleModeFlexible:
		if status == nil || timeLimitMin == nil {
			return nil, fmt.Errorf("exam %s: flexible schedule without status/time limit", e.ID)
		}
		e.Schedule = model.FlexibleSchedule{
			TimeLimit: time.Duration(*timeLimitMin) * time.Minute,
			Status:    *status,
		}
	default:
		return nil, fmt.Errorf("exam %s: unknown schedule mode %q", e.ID, mode)
	}

	return &e, nil
}

// notFound maps pgx.ErrNoRows onto the shared taxonomy.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}
