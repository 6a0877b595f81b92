package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WinnerListJob asks the winner-list sender to publish an exam's winners.
type WinnerListJob struct {
	ExamID      uuid.UUID `json:"exam_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Enqueuer is any queue that accepts JSON payloads.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any) error
}

// WinnerListRequester hands completed exams to the winner-list sender.
type WinnerListRequester struct {
	q Enqueuer
}

// NewWinnerListRequester creates a new WinnerListRequester.
func NewWinnerListRequester(q Enqueuer) *WinnerListRequester {
	return &WinnerListRequester{q: q}
}

// RequestWinnerList enqueues a winner-list job for examID.
func (r *WinnerListRequester) RequestWinnerList(ctx context.Context, examID uuid.UUID) error {
	return r.q.Enqueue(ctx, WinnerListJob{ExamID: examID, RequestedAt: time.Now().UTC()})
}
