package oci

import (
	"context"
	"fmt"
	"time"
)

// WaitUntil polls check every interval until it reports done, the
// timeout elapses, or the context is cancelled.
func WaitUntil(ctx context.Context, interval, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("timed out after %s waiting for resource: %w", timeout, ctx.Err())
		}
	}
}
