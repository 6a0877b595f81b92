package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// pingInitialInterval is the first wait between startup pings.
var pingInitialInterval = time.Second

// pingWithRetry calls ping until it succeeds, attempts run out or ctx ends.
// The delay doubles after every failure.
func pingWithRetry(ctx context.Context, log zerolog.Logger, what string, attempts int, ping func(context.Context) error) error {
	attempts = max(attempts, 1)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = pingInitialInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	try := 0
	err := backoff.RetryNotify(func() error {
		try++
		return ping(ctx)
	}, policy, func(err error, next time.Duration) {
		log.Warn().Err(err).
			Str("target", what).
			Int("attempt", try).
			Dur("retry_in", next).
			Msg("Connection not ready, retrying")
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("ping %s: %w", what, ctx.Err())
	}
	return fmt.Errorf("ping %s after %d attempts: %w", what, try, err)
}
