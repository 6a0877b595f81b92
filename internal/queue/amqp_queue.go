package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/config"
)

const attemptsHeader = "x-attempts"

// AMQPQueue is a durable RabbitMQ queue with a dead-letter companion.
// Messages that exhaust MaxAttempts are nacked into the dead-letter queue.
type AMQPQueue struct {
	conn *amqp.Connection
	name string
	opts Options
	log  zerolog.Logger

	mu  sync.Mutex
	pub *amqp.Channel
}

// NewAMQPQueue declares the queue and its dead-letter queue.
func NewAMQPQueue(conn *amqp.Connection, name string, opts Options, log zerolog.Logger) (*AMQPQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	dead := config.WorkerKey.DeadLetter(name)
	if _, err := ch.QueueDeclare(
		dead,
		true,  // durable
		false, // auto delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare %s: %w", dead, err)
	}

	if _, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dead,
		},
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare %s: %w", name, err)
	}

	return &AMQPQueue{
		conn: conn,
		name: name,
		opts: opts.withDefaults(),
		log:  log.With().Str("component", "amqp_queue").Str("queue", name).Logger(),
		pub:  ch,
	}, nil
}

// Enqueue publishes payload as a persistent message.
func (q *AMQPQueue) Enqueue(ctx context.Context, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return q.publish(ctx, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{attemptsHeader: int32(0)},
		Body:         raw,
	})
}

func (q *AMQPQueue) publish(ctx context.Context, msg amqp.Publishing) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pub.PublishWithContext(ctx, "", q.name, false, false, msg)
}

// Consume delivers one message at a time to h until ctx is done.
func (q *AMQPQueue) Consume(ctx context.Context, h Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		q.name,
		"",
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.name, err)
	}

	q.log.Info().Msg("Consumer started")
	for {
		select {
		case <-ctx.Done():
			q.log.Info().Msg("Consumer stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel of %s closed", q.name)
			}
			q.handle(ctx, d, h)
		}
	}
}

func (q *AMQPQueue) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	err := runHandler(ctx, h, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	attempts := headerInt(d.Headers[attemptsHeader]) + 1
	log := q.log.With().Str("job_id", d.MessageId).Int("attempts", attempts).Logger()

	if attempts >= q.opts.MaxAttempts {
		log.Error().Err(err).Msg("Job exhausted retries, dead-lettering")
		_ = d.Nack(false, false)
		return
	}

	log.Warn().Err(err).Dur("retry_in", q.opts.RetryDelay).Msg("Job failed, republishing")
	wait(ctx, q.opts.RetryDelay)

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptsHeader] = int32(attempts)

	if pubErr := q.publish(context.WithoutCancel(ctx), amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Headers:      headers,
		Body:         d.Body,
	}); pubErr != nil {
		log.Error().Err(pubErr).Msg("Republish failed, returning to queue")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Close releases the publishing channel.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pub.Close()
}

func headerInt(v any) int {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
