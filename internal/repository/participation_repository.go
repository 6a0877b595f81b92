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

const participationColumns = `id, user_id, exam_id, is_finished, finish_time, is_winner,
	is_reward_sent, reward_amount::text, reward_sent_date, is_mail_sent, job_added, created_at`

const notificationSelect = `
	SELECT p.id, p.user_id, p.exam_id, e.name, u.email, e.is_completed,
	       p.is_finished, p.is_mail_sent, p.job_added
	FROM participations p
	JOIN users u ON u.id = p.user_id
	JOIN exams e ON e.id = p.exam_id`

// ParticipationRepository handles participation data access, including the
// reward and notification flags written by the background pipeline.
type ParticipationRepository struct {
	pool *pgxpool.Pool
}

// NewParticipationRepository creates a new ParticipationRepository.
func NewParticipationRepository(pool *pgxpool.Pool) *ParticipationRepository {
	return &ParticipationRepository{pool: pool}
}

// GetByUserAndExam retrieves the participation of a user in an exam.
func (r *ParticipationRepository) GetByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) (*model.Participation, error) {
	p, err := scanParticipation(r.pool.QueryRow(ctx,
		`SELECT `+participationColumns+` FROM participations WHERE user_id = $1 AND exam_id = $2`,
		userID, examID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// Create inserts a participation. Returns false if the pair already exists.
func (r *ParticipationRepository) Create(ctx context.Context, p *model.Participation) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO participations (user_id, exam_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, exam_id) DO NOTHING
		 RETURNING id, created_at`,
		p.UserID, p.ExamID,
	).Scan(&p.ID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkFinished records the finish transition and the winner flag.
func (r *ParticipationRepository) MarkFinished(ctx context.Context, id uuid.UUID, isWinner bool, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE participations SET is_finished = TRUE, finish_time = $2, is_winner = $3
		 WHERE id = $1`, id, at, isWinner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListEligibleWinners returns unrewarded finished winners of a completed exam
// that have a payout address.
func (r *ParticipationRepository) ListEligibleWinners(ctx context.Context, examID uuid.UUID) ([]model.Winner, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.user_id, u.wallet_address
		 FROM participations p
		 JOIN users u ON u.id = p.user_id AND u.wallet_address IS NOT NULL
		 JOIN exams e ON e.id = p.exam_id AND e.is_completed = TRUE
		 WHERE p.exam_id = $1
		   AND p.is_finished = TRUE
		   AND p.is_winner = TRUE
		   AND p.is_reward_sent = FALSE
		 ORDER BY p.finish_time ASC NULLS LAST, p.created_at ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var winners []model.Winner
	for rows.Next() {
		var w model.Winner
		if err := rows.Scan(&w.ParticipationID, &w.UserID, &w.WalletAddress); err != nil {
			return nil, err
		}
		winners = append(winners, w)
	}
	return winners, rows.Err()
}

// MarkRewardSent records a successful payout.
func (r *ParticipationRepository) MarkRewardSent(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participations
		 SET is_reward_sent = TRUE, reward_amount = $2::numeric, reward_sent_date = $3
		 WHERE id = $1`, id, amount.String(), at)
	return err
}

// MarkRewardFailed explicitly records an unsuccessful payout.
func (r *ParticipationRepository) MarkRewardFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participations SET is_reward_sent = FALSE WHERE id = $1`, id)
	return err
}

// NextUnnotified returns one finished, unnotified, unclaimed participation of
// a completed exam whose user has a contact address.
func (r *ParticipationRepository) NextUnnotified(ctx context.Context) (*model.ResultNotification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, notificationSelect+`
		WHERE p.is_mail_sent = FALSE
		  AND p.is_finished = TRUE
		  AND p.job_added = FALSE
		  AND u.email IS NOT NULL
		  AND e.is_completed = TRUE
		ORDER BY p.finish_time ASC NULLS LAST
		LIMIT 1`))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

// GetNotification re-reads the notification snapshot of a participation.
func (r *ParticipationRepository) GetNotification(ctx context.Context, id uuid.UUID) (*model.ResultNotification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, notificationSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

// ClaimJob sets job_added only if it is still false.
func (r *ParticipationRepository) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE participations SET job_added = TRUE WHERE id = $1 AND job_added = FALSE`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseJob clears job_added after a failed enqueue.
func (r *ParticipationRepository) ReleaseJob(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participations SET job_added = FALSE WHERE id = $1 AND is_mail_sent = FALSE`, id)
	return err
}

// MarkMailSent records that the result mail went out.
func (r *ParticipationRepository) MarkMailSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participations SET is_mail_sent = TRUE WHERE id = $1`, id)
	return err
}

func scanParticipation(row rowScanner) (*model.Participation, error) {
	var (
		p      model.Participation
		amount *string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.ExamID, &p.IsFinished, &p.FinishTime, &p.IsWinner,
		&p.IsRewardSent, &amount, &p.RewardSentDate, &p.IsMailSent, &p.JobAdded, &p.CreatedAt); err != nil {
		return nil, err
	}
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("parse reward_amount: %w", err)
		}
		p.RewardAmount = &d
	}
	return &p, nil
}

func scanNotification(row rowScanner) (*model.ResultNotification, error) {
	n := &model.ResultNotification{}
	if err := row.Scan(&n.ParticipationID, &n.UserID, &n.ExamID, &n.ExamName, &n.Email,
		&n.ExamCompleted, &n.IsFinished, &n.IsMailSent, &n.JobAdded); err != nil {
		return nil, err
	}
	return n, nil
}
