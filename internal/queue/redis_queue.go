package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/config"
)

// PollTimeout bounds a single BLPOP so shutdown is noticed promptly.
const PollTimeout = 1 * time.Second

// RedisQueue is a FIFO job queue on a Redis list.
type RedisQueue struct {
	rdb  *redis.Client
	name string
	opts Options
	log  zerolog.Logger
}

// NewRedisQueue creates a queue on the list named name.
func NewRedisQueue(rdb *redis.Client, name string, opts Options, log zerolog.Logger) *RedisQueue {
	return &RedisQueue{
		rdb:  rdb,
		name: name,
		opts: opts.withDefaults(),
		log:  log.With().Str("component", "redis_queue").Str("queue", name).Logger(),
	}
}

// Name returns the list key.
func (q *RedisQueue) Name() string { return q.name }

// Enqueue appends payload to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return q.push(ctx, q.name, Envelope{
		ID:         uuid.New().String(),
		EnqueuedAt: time.Now().UTC(),
		Payload:    raw,
	})
}

// Len returns the number of waiting jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

// DeadLen returns the number of dead-lettered jobs.
func (q *RedisQueue) DeadLen(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, config.WorkerKey.DeadLetter(q.name)).Result()
}

// Consume pops jobs one at a time and runs h on each until ctx is done.
func (q *RedisQueue) Consume(ctx context.Context, h Handler) error {
	q.log.Info().Msg("Consumer started")

	for {
		if ctx.Err() != nil {
			q.log.Info().Msg("Consumer stopped")
			return nil
		}

		item, err := q.rdb.BLPop(ctx, PollTimeout, q.name).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				q.log.Error().Err(err).Msg("BLPop error")
				wait(ctx, PollTimeout)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		q.handle(ctx, []byte(item[1]), h)
	}
}

// ProcessOne pops and handles at most one job without blocking. Returns false
// when the queue is empty.
func (q *RedisQueue) ProcessOne(ctx context.Context, h Handler) (bool, error) {
	raw, err := q.rdb.LPop(ctx, q.name).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	q.handle(ctx, raw, h)
	return true, nil
}

func (q *RedisQueue) handle(ctx context.Context, raw []byte, h Handler) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		q.log.Error().Err(err).Msg("Invalid envelope, dead-lettering")
		_ = q.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.DeadLetter(q.name), raw).Err()
		return
	}

	err := runHandler(ctx, h, env.Payload)
	if err == nil {
		return
	}

	env.Attempts++
	log := q.log.With().Str("job_id", env.ID).Int("attempts", env.Attempts).Logger()

	// Never lose a job on shutdown.
	pushCtx := context.WithoutCancel(ctx)

	if env.Attempts >= q.opts.MaxAttempts {
		log.Error().Err(err).Msg("Job exhausted retries, dead-lettering")
		if pushErr := q.push(pushCtx, config.WorkerKey.DeadLetter(q.name), env); pushErr != nil {
			log.Error().Err(pushErr).Msg("Dead-letter push failed")
		}
		return
	}

	log.Warn().Err(err).Dur("retry_in", q.opts.RetryDelay).Msg("Job failed, requeueing")
	wait(ctx, q.opts.RetryDelay)
	if pushErr := q.push(pushCtx, q.name, env); pushErr != nil {
		log.Error().Err(pushErr).Msg("Requeue failed")
	}
}

func (q *RedisQueue) push(ctx context.Context, list string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return q.rdb.RPush(ctx, list, raw).Err()
}

// runHandler turns a handler panic into an error so the job is retried.
func runHandler(ctx context.Context, h Handler, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}
