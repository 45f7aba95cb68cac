package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Containers in the compose stack start in any order, so the first pings
// may hit a store that is still booting.
var (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// pingWithRetry calls ping until it succeeds, doubling the wait between
// attempts. It gives up early when ctx is done.
func pingWithRetry(ctx context.Context, log zerolog.Logger, target string, ping func(context.Context) error) error {
	wait := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		log.Warn().
			Err(err).
			Str("target", target).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Store not reachable yet")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("ping %s: %w", target, ctx.Err())
		}
		wait *= 2
	}
	return fmt.Errorf("ping %s after %d attempts: %w", target, connectAttempts, err)
}
