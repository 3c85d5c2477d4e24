package idempotency

import (
	"context"
	"time"
)

// RunCleanup purges expired records every interval until ctx is cancelled. Errors are reported
// through logger and do not stop the loop.
func RunCleanup(ctx context.Context, store Store, interval time.Duration, batch int, logger Logger) error {
	if store == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			removed, err := store.CleanupExpired(ctx, now.UTC(), batch)
			if logger == nil {
				continue
			}
			if err != nil {
				logger.Printf("idempotency: cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				logger.Printf("idempotency: removed %d expired records", removed)
			}
		}
	}
}
