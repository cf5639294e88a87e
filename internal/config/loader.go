package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUCTIOND_* environment variable overrides, and
// returns the final Config. An empty path or a missing file leaves the
// defaults in place. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUCTIOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "AUCTIOND_MODE")
	setStr(&cfg.LogLevel, "AUCTIOND_LOG_LEVEL")
	setStr(&cfg.Storage, "AUCTIOND_STORAGE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AUCTIOND_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "AUCTIOND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUCTIOND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUCTIOND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUCTIOND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUCTIOND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUCTIOND_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUCTIOND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUCTIOND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUCTIOND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AUCTIOND_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AUCTIOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIOND_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "AUCTIOND_REDIS_SNAPSHOT_TTL")
	setStr(&cfg.Redis.EventStream, "AUCTIOND_REDIS_EVENT_STREAM")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUCTIOND_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUCTIOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTIOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTIOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUCTIOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTIOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTIOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTIOND_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "AUCTIOND_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "AUCTIOND_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "AUCTIOND_KAFKA_TOPIC")
	setDuration(&cfg.Kafka.BatchTimeout, "AUCTIOND_KAFKA_BATCH_TIMEOUT")

	// ── Bidding ──
	setInt(&cfg.Bidding.ExtensionMinutes, "AUCTIOND_BIDDING_EXTENSION_MINUTES")
	setInt(&cfg.Bidding.ThresholdMinutes, "AUCTIOND_BIDDING_THRESHOLD_MINUTES")
	setInt(&cfg.Bidding.MaxExtensions, "AUCTIOND_BIDDING_MAX_EXTENSIONS")
	setDuration(&cfg.Bidding.LockTimeout, "AUCTIOND_BIDDING_LOCK_TIMEOUT")
	setDuration(&cfg.Bidding.LeaseTTL, "AUCTIOND_BIDDING_LEASE_TTL")
	setDuration(&cfg.Bidding.DedupTTL, "AUCTIOND_BIDDING_DEDUP_TTL")
	setInt(&cfg.Bidding.RetryAttempts, "AUCTIOND_BIDDING_RETRY_ATTEMPTS")
	setDuration(&cfg.Bidding.RetryBackoff, "AUCTIOND_BIDDING_RETRY_BACKOFF")
	setInt(&cfg.Bidding.RateLimit, "AUCTIOND_BIDDING_RATE_LIMIT")
	setDuration(&cfg.Bidding.RateWindow, "AUCTIOND_BIDDING_RATE_WINDOW")

	// ── Sweeper ──
	setDuration(&cfg.Sweeper.Interval, "AUCTIOND_SWEEPER_INTERVAL")
	setInt(&cfg.Sweeper.BatchSize, "AUCTIOND_SWEEPER_BATCH_SIZE")
	setInt(&cfg.Sweeper.Concurrency, "AUCTIOND_SWEEPER_CONCURRENCY")

	// ── Ranking ──
	setDuration(&cfg.Ranking.RefreshInterval, "AUCTIOND_RANKING_REFRESH_INTERVAL")
	setStr(&cfg.Ranking.Key, "AUCTIOND_RANKING_KEY")
	setInt(&cfg.Ranking.Limit, "AUCTIOND_RANKING_LIMIT")

	// ── Server ──
	setInt(&cfg.Server.Port, "AUCTIOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTIOND_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AUCTIOND_SERVER_API_KEY")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
