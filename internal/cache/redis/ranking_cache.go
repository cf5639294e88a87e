package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

const defaultRankingKey = "ranking:urgency"

// RankingCache implements domain.RankingCache as a sorted set of auction ids
// scored by urgency.
type RankingCache struct {
	rdb *redis.Client
	key string
}

var _ domain.RankingCache = (*RankingCache)(nil)

// NewRankingCache creates a RankingCache stored under key.
func NewRankingCache(c *Client, key string) *RankingCache {
	if key == "" {
		key = defaultRankingKey
	}
	return &RankingCache{rdb: c.Underlying(), key: key}
}

// Replace swaps the whole ranking atomically.
func (rc *RankingCache) Replace(ctx context.Context, ranked []domain.RankedAuction) error {
	members := make([]redis.Z, 0, len(ranked))
	for _, r := range ranked {
		members = append(members, redis.Z{Score: r.Score, Member: r.AuctionID})
	}

	pipe := rc.rdb.TxPipeline()
	pipe.Del(ctx, rc.key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, rc.key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: replace ranking: %w", err)
	}
	return nil
}

// Top returns the n highest-scored auctions.
func (rc *RankingCache) Top(ctx context.Context, n int) ([]domain.RankedAuction, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := rc.rdb.ZRevRangeWithScores(ctx, rc.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: top ranking: %w", err)
	}

	ranked := make([]domain.RankedAuction, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		ranked = append(ranked, domain.RankedAuction{AuctionID: id, Score: z.Score})
	}
	return ranked, nil
}
