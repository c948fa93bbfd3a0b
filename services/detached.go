package services

import (
	"context"
	"time"
)

// runDetached runs fn on a context that ignores the caller's cancellation but
// is bounded by timeout, so a started mutation always commits or rolls back.
// If the caller gives up first it gets ctx.Err() while fn keeps running.
func runDetached(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	done := make(chan error, 1)
	go func() {
		defer cancel()
		done <- fn(detached)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
