package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// unlockLua deletes the lease only while it still carries the caller's
// token, so an expired holder cannot release its successor's lease.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const leasePollInterval = 10 * time.Millisecond

// LockManager implements domain.LockManager with SET NX leases. Acquire
// retries for up to the configured wait before giving up.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	clock    clock.Clock
	wait     time.Duration
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager. wait bounds how long Acquire polls a
// held lease; zero makes a single attempt.
func NewLockManager(c *Client, clk clock.Clock, wait time.Duration) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		clock:    clk,
		wait:     wait,
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// AuctionLockKey is the lease key for one auction.
func AuctionLockKey(auctionID string) string {
	return "auction:" + auctionID
}

// Acquire obtains the lease for key with the given TTL and returns an
// idempotent unlock function. When the lease stays held past the wait it
// returns an error matching both domain.ErrLockContention and
// domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lockKey(key)
	deadline := lm.clock.Now().Add(lm.wait)

	for {
		ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if !lm.clock.Now().Before(deadline) {
			return nil, fmt.Errorf("redis: acquire lock %s: %w: %w", key, domain.ErrLockContention, domain.ErrLockHeld)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, ctx.Err())
		case <-lm.clock.After(leasePollInterval):
		}
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Background context so the lease is released even when the
			// caller's context is already cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, nil
}
