// Package queue carries background jobs between the periodic scanners and
// their consumers. Delivery is at-least-once: a job whose handler fails is
// retried up to MaxAttempts and then dead-lettered.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Handler processes one job payload. A non-nil error schedules a retry.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Options tunes retry behaviour.
type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	return o
}

// Envelope wraps every payload on the wire.
type Envelope struct {
	ID         string          `json:"id"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
