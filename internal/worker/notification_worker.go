package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/queue"
)

// Consumer is a job queue that can be drained; queue.RedisQueue and
// queue.AMQPQueue implement it.
type Consumer interface {
	Consume(ctx context.Context, h queue.Handler) error
}

// Deliverer sends the result mail for one notification job.
type Deliverer interface {
	Deliver(ctx context.Context, job model.ResultNotification) error
}

// NotificationWorker consumes result_notification_queue with a single
// consumer and hands each job to the notification service.
type NotificationWorker struct {
	consumer Consumer
	notifier Deliverer
	log      zerolog.Logger
}

// NewNotificationWorker creates a new NotificationWorker.
func NewNotificationWorker(consumer Consumer, notifier Deliverer, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		consumer: consumer,
		notifier: notifier,
		log:      log.With().Str("component", "notification_worker").Logger(),
	}
}

// Start blocks until ctx is cancelled or the queue connection fails.
// Call in a goroutine.
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Worker started")
	err := w.consumer.Consume(ctx, w.Handle)
	if err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("Worker stopped unexpectedly")
		return err
	}
	w.log.Info().Msg("Worker stopped")
	return nil
}

// Handle decodes one notification job and delivers it.
func (w *NotificationWorker) Handle(ctx context.Context, payload json.RawMessage) error {
	var job model.ResultNotification
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("%w: decode notification job: %w", model.ErrValidation, err)
	}

	if err := w.notifier.Deliver(ctx, job); err != nil {
		w.log.Warn().Err(err).
			Str("participation_id", job.ParticipationID.String()).
			Msg("Delivery failed, job will be retried")
		return err
	}
	return nil
}
