package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// AuctionCache implements domain.AuctionCache with one Redis hash per
// auction:
//
//	auction:snap:{id} - status, mode, price, min_next, leader, end, bids, version
//
// Set ignores snapshots older than the cached version so a slow writer
// cannot roll the display back.
type AuctionCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	setSc *redis.Script
}

var _ domain.AuctionCache = (*AuctionCache)(nil)

// setIfNewerLua writes the hash only when ARGV[1] (version) is greater than
// the stored version. ARGV[2] is the TTL in milliseconds; the rest are
// field/value pairs.
const setIfNewerLua = `
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '-1')
if tonumber(ARGV[1]) <= current then
    return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], unpack(ARGV, 3))
if tonumber(ARGV[2]) > 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`

// NewAuctionCache creates an AuctionCache whose entries expire after ttl.
func NewAuctionCache(c *Client, ttl time.Duration) *AuctionCache {
	return &AuctionCache{rdb: c.Underlying(), ttl: ttl, setSc: redis.NewScript(setIfNewerLua)}
}

func snapshotKey(auctionID string) string { return "auction:snap:" + auctionID }

// Set stores snap unless a newer version is already cached.
func (ac *AuctionCache) Set(ctx context.Context, snap domain.AuctionSnapshot) error {
	args := []any{snap.Version, ac.ttl.Milliseconds()}
	for field, value := range snapshotFields(snap) {
		args = append(args, field, value)
	}
	if err := ac.setSc.Run(ctx, ac.rdb, []string{snapshotKey(snap.AuctionID)}, args...).Err(); err != nil {
		return fmt.Errorf("redis: set auction snapshot %s: %w", snap.AuctionID, err)
	}
	return nil
}

// Get returns the cached snapshot, or domain.ErrNotFound on a miss.
func (ac *AuctionCache) Get(ctx context.Context, auctionID string) (domain.AuctionSnapshot, error) {
	fields, err := ac.rdb.HGetAll(ctx, snapshotKey(auctionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AuctionSnapshot{}, domain.ErrNotFound
		}
		return domain.AuctionSnapshot{}, fmt.Errorf("redis: get auction snapshot %s: %w", auctionID, err)
	}
	if len(fields) == 0 {
		return domain.AuctionSnapshot{}, domain.ErrNotFound
	}
	snap, err := parseSnapshot(auctionID, fields)
	if err != nil {
		return domain.AuctionSnapshot{}, fmt.Errorf("redis: parse auction snapshot %s: %w", auctionID, err)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (ac *AuctionCache) Invalidate(ctx context.Context, auctionID string) error {
	if err := ac.rdb.Del(ctx, snapshotKey(auctionID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate auction snapshot %s: %w", auctionID, err)
	}
	return nil
}

func snapshotFields(snap domain.AuctionSnapshot) map[string]string {
	return map[string]string{
		"status":   string(snap.Status),
		"mode":     string(snap.Mode),
		"price":    snap.CurrentPrice.String(),
		"min_next": snap.MinimumNextBid.String(),
		"leader":   snap.LeaderID,
		"end":      snap.EndTime.UTC().Format(time.RFC3339Nano),
		"bids":     strconv.Itoa(snap.TotalBids),
	}
}

func parseSnapshot(auctionID string, fields map[string]string) (domain.AuctionSnapshot, error) {
	snap := domain.AuctionSnapshot{
		AuctionID: auctionID,
		Status:    domain.AuctionStatus(fields["status"]),
		Mode:      domain.AuctionMode(fields["mode"]),
		LeaderID:  fields["leader"],
	}

	var err error
	if snap.CurrentPrice, err = decimal.NewFromString(fields["price"]); err != nil {
		return snap, fmt.Errorf("price: %w", err)
	}
	if snap.MinimumNextBid, err = decimal.NewFromString(fields["min_next"]); err != nil {
		return snap, fmt.Errorf("min_next: %w", err)
	}
	if snap.EndTime, err = time.Parse(time.RFC3339Nano, fields["end"]); err != nil {
		return snap, fmt.Errorf("end: %w", err)
	}
	if snap.TotalBids, err = strconv.Atoi(fields["bids"]); err != nil {
		return snap, fmt.Errorf("bids: %w", err)
	}
	if snap.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return snap, fmt.Errorf("version: %w", err)
	}
	return snap, nil
}
