package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamSession is a participant's countdown on a flexible exam.
type ExamSession struct {
	ID               uuid.UUID  `json:"id"`
	ExamID           uuid.UUID  `json:"exam_id"`
	UserID           int        `json:"user_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	IsCompleted      bool       `json:"is_completed"`
	RemainingSeconds int64      `json:"remaining_seconds"`
}

// Remaining returns the countdown as a duration.
func (s *ExamSession) Remaining() time.Duration {
	return time.Duration(s.RemainingSeconds) * time.Second
}

// UpdateRemainingRequest is the payload for a client-side countdown report.
type UpdateRemainingRequest struct {
	RemainingSeconds *int64 `json:"remaining_seconds" binding:"required"`
}
