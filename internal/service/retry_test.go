package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

func TestRetryOnContention(t *testing.T) {
	contention := fmt.Errorf("memory: lock auction a1: %w", domain.ErrLockContention)

	cases := []struct {
		name      string
		failures  int
		failWith  error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{"succeeds first try", 0, nil, 3, 1, nil},
		{"recovers after contention", 2, contention, 3, 3, nil},
		{"gives up", 5, contention, 3, 3, domain.ErrLockContention},
		{"does not retry rejections", 5, domain.ErrBidTooLow, 3, 1, domain.ErrBidTooLow},
		{"zero attempts still calls once", 0, nil, 0, 1, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			out, err := RetryOnContention(context.Background(), tc.attempts, time.Microsecond, func(context.Context) (int, error) {
				calls++
				if calls <= tc.failures {
					return 0, tc.failWith
				}
				return calls, nil
			})
			check.Equal(t, tc.wantCalls, calls)
			if tc.wantErr == nil {
				check.NoError(t, err)
				check.Equal(t, calls, out)
			} else {
				check.True(t, errors.Is(err, tc.wantErr))
			}
		})
	}
}

func TestRetryOnContentionHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryOnContention(ctx, 5, time.Hour, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, domain.ErrLockContention
	})
	check.Equal(t, 1, calls)
	check.True(t, errors.Is(err, context.Canceled))
	check.True(t, errors.Is(err, domain.ErrLockContention))
}

func TestDedupExpires(t *testing.T) {
	clk := fakeclock.NewFakeClock(t0)
	d := NewDedup(30*time.Second, clk)

	check.False(t, d.Seen("s1"))
	d.Remember("s1")
	check.True(t, d.Seen("s1"))

	clk.Increment(31 * time.Second)
	check.False(t, d.Seen("s1"))
	check.Equal(t, 1, d.Len())
	d.Cleanup()
	check.Equal(t, 0, d.Len())
}
