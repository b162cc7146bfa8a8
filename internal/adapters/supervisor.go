package adapters

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

const (
	restartBase = 1 * time.Second
	restartCap  = 60 * time.Second
)

// Supervise runs every adapter in its own goroutine and restarts crashed
// ones with exponential backoff (base 1s, cap 60s). One adapter's crash
// never brings down its peers. Returns when ctx is cancelled and all
// adapters have stopped.
func Supervise(ctx context.Context, list ...Adapter) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, a := range list {
		g.Go(func() error {
			return supervise(ctx, a)
		})
	}
	return g.Wait()
}

func supervise(ctx context.Context, a Adapter) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = restartBase
	bo.MaxInterval = restartCap
	bo.MaxElapsedTime = 0

	for {
		started := time.Now()
		err := a.Start(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// Clean self-termination outside shutdown is unexpected but
			// not an error worth restarting.
			slog.Info("adapter stopped", "adapter", a.Name())
			return nil
		}

		// A healthy run resets the backoff schedule.
		if time.Since(started) > restartCap {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		slog.Error("adapter crashed, restarting",
			"adapter", a.Name(),
			"error", err,
			"retry_in", wait,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
