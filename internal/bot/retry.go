package bot

import (
	"context"
	"time"
)

const (
	retryAttempts = 3
	retryBaseWait = 500 * time.Millisecond
)

// withRetry runs op up to retryAttempts times with doubling waits. Used
// for transport calls only; core state is already recorded before these
// run and is never rolled back on failure.
func withRetry(ctx context.Context, op func() error) error {
	wait := retryBaseWait
	var err error
	for i := 0; i < retryAttempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i == retryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
