package app

import (
	"context"
	"fmt"
	"log/slog"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/auctionengine/internal/blob/s3"
	"github.com/alanyoungcy/auctionengine/internal/cache/redis"
	"github.com/alanyoungcy/auctionengine/internal/config"
	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/events"
	"github.com/alanyoungcy/auctionengine/internal/pricing"
	"github.com/alanyoungcy/auctionengine/internal/server/handler"
	"github.com/alanyoungcy/auctionengine/internal/store/memory"
	"github.com/alanyoungcy/auctionengine/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional dependencies are nil when their backend is
// disabled.
type Dependencies struct {
	Clock clock.Clock

	// Stores
	Auctions    domain.AuctionStore
	Bids        domain.BidStore
	SellerStats domain.SellerStatsStore
	Audit       domain.AuditStore

	// Redis
	Cache       domain.AuctionCache
	Ranking     domain.RankingCache
	RateLimiter domain.RateLimiter
	Leases      domain.LockManager
	SignalBus   domain.SignalBus

	// Publisher fans committed events out to the bus and Kafka.
	Publisher domain.EventPublisher

	// Blob storage
	Archiver   domain.Archiver
	BlobReader domain.BlobReader

	Fees pricing.FeeSchedule

	// HealthChecks probes every connected backend.
	HealthChecks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Clock:        clock.NewClock(),
		HealthChecks: map[string]handler.Pinger{},
	}

	fees, err := feeSchedule(cfg.Fees)
	if err != nil {
		return fail(fmt.Errorf("wire: fees: %w", err))
	}
	deps.Fees = fees

	// --- Auction store ---
	switch cfg.Storage {
	case "memory":
		store := memory.New(cfg.Bidding.LockTimeout.Duration)
		deps.Auctions = store
		deps.Bids = store.Bids()
		deps.SellerStats = store
		deps.Audit = store
		logger.WarnContext(ctx, "wire: using in-memory store; state is lost on exit")
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.Auctions = postgres.NewAuctionStore(pool, cfg.Bidding.LockTimeout.Duration)
		deps.Bids = postgres.NewBidStore(pool)
		deps.SellerStats = postgres.NewSellerStatsStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	var sinks events.Fanout
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewAuctionCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
		deps.Ranking = redis.NewRankingCache(redisClient, cfg.Ranking.Key)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, deps.Clock)
		deps.Leases = redis.NewLockManager(redisClient, deps.Clock, cfg.Bidding.LockTimeout.Duration)
		bus := redis.NewSignalBus(redisClient)
		deps.SignalBus = bus
		sinks = append(sinks, events.NewBusPublisher(bus, cfg.Redis.EventStream))
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		kp := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout.Duration,
		})
		closers = append(closers, func() { _ = kp.Close() })
		sinks = append(sinks, kp)
	}
	if len(sinks) > 0 {
		deps.Publisher = sinks
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Audit)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	return deps, cleanup, nil
}

// feeSchedule applies the configured category rows over the built-in table.
func feeSchedule(cfg config.FeesConfig) (pricing.FeeSchedule, error) {
	schedule := pricing.DefaultFeeSchedule()
	for name, row := range cfg.Categories {
		seller, err := decimal.NewFromString(row.SellerPercent)
		if err != nil {
			return nil, fmt.Errorf("%s: seller_percent: %w", name, err)
		}
		buyer, err := decimal.NewFromString(row.BuyerPercent)
		if err != nil {
			return nil, fmt.Errorf("%s: buyer_percent: %w", name, err)
		}
		schedule[pricing.NormalizeCategory(name)] = pricing.CategoryFees{
			Seller: pricing.FeeRate{Percent: seller, Cap: decimal.NewFromInt(row.SellerCap)},
			Buyer:  pricing.FeeRate{Percent: buyer, Cap: decimal.NewFromInt(row.BuyerCap)},
		}
	}
	return schedule, nil
}
