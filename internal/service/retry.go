package service

import (
	"context"
	"errors"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// RetryOnContention calls fn up to attempts times while it fails with
// domain.ErrLockContention, sleeping backoff, 2*backoff, ... between tries.
// Any other outcome is returned immediately.
func RetryOnContention[T any](ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var (
		out T
		err error
	)
	for i := range attempts {
		out, err = fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrLockContention) {
			return out, err
		}
		if i == attempts-1 || backoff <= 0 {
			continue
		}

		timer := time.NewTimer(backoff << i)
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return out, err
}
