package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Participation is one user's attempt at one exam, plus the reward and
// notification state hung off it.
type Participation struct {
	ID             uuid.UUID        `json:"id"`
	UserID         int              `json:"user_id"`
	ExamID         uuid.UUID        `json:"exam_id"`
	IsFinished     bool             `json:"is_finished"`
	FinishTime     *time.Time       `json:"finish_time,omitempty"`
	IsWinner       bool             `json:"is_winner"`
	IsRewardSent   bool             `json:"is_reward_sent"`
	RewardAmount   *decimal.Decimal `json:"reward_amount,omitempty"`
	RewardSentDate *time.Time       `json:"reward_sent_date,omitempty"`
	IsMailSent     bool             `json:"is_mail_sent"`
	// JobAdded guards the notification scanner against enqueuing twice.
	JobAdded  bool      `json:"job_added"`
	CreatedAt time.Time `json:"created_at"`
}

// Winner is a settlement candidate assembled for a single run.
type Winner struct {
	ParticipationID uuid.UUID
	UserID          int
	WalletAddress   string
	RewardAmount    decimal.Decimal
}

// ResultNotification is the joined snapshot a notification job carries.
type ResultNotification struct {
	ParticipationID uuid.UUID `json:"participation_id"`
	UserID          int       `json:"user_id"`
	ExamID          uuid.UUID `json:"exam_id"`
	ExamName        string    `json:"exam_name"`
	Email           *string   `json:"email,omitempty"`
	ExamCompleted   bool      `json:"exam_completed"`
	IsFinished      bool      `json:"is_finished"`
	IsMailSent      bool      `json:"is_mail_sent"`
	JobAdded        bool      `json:"job_added"`
}
