// Package config defines the top-level configuration for the auction engine
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AUCTIOND_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`
	// Storage selects the auction store: "postgres" or "memory".
	Storage string `toml:"storage"`

	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Bidding  BiddingConfig  `toml:"bidding"`
	Sweeper  SweeperConfig  `toml:"sweeper"`
	Ranking  RankingConfig  `toml:"ranking"`
	Fees     FeesConfig     `toml:"fees"`
	Server   ServerConfig   `toml:"server"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. With Enabled false the
// daemon runs without the display cache, ranking, rate limiter, lease and
// event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// SnapshotTTL bounds how long a display snapshot outlives its last write.
	SnapshotTTL duration `toml:"snapshot_ttl"`
	// EventStream is the Redis stream that keeps a replayable event log.
	EventStream string `toml:"event_stream"`
}

// S3Config holds S3-compatible object storage parameters for bid-history
// archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// KafkaConfig holds the optional Kafka event sink.
type KafkaConfig struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	BatchTimeout duration `toml:"batch_timeout"`
}

// BiddingConfig holds bid-resolution parameters.
type BiddingConfig struct {
	ExtensionMinutes int `toml:"extension_minutes"`
	ThresholdMinutes int `toml:"threshold_minutes"`
	MaxExtensions    int `toml:"max_extensions"`
	// LockTimeout bounds the wait for an auction's lock.
	LockTimeout duration `toml:"lock_timeout"`
	// LeaseTTL enables a Redis lease around each locked unit when positive.
	LeaseTTL      duration `toml:"lease_ttl"`
	DedupTTL      duration `toml:"dedup_ttl"`
	RetryAttempts int      `toml:"retry_attempts"`
	RetryBackoff  duration `toml:"retry_backoff"`
	// RateLimit caps bid submissions per client within RateWindow; zero
	// disables the limit.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// ExtensionPolicy returns the anti-sniping durations.
func (b BiddingConfig) ExtensionPolicy() (extension, threshold time.Duration, maxExtensions int) {
	return time.Duration(b.ExtensionMinutes) * time.Minute,
		time.Duration(b.ThresholdMinutes) * time.Minute,
		b.MaxExtensions
}

// SweeperConfig holds the lifecycle loop parameters.
type SweeperConfig struct {
	Interval    duration `toml:"interval"`
	BatchSize   int      `toml:"batch_size"`
	Concurrency int      `toml:"concurrency"`
}

// RankingConfig holds the urgency ranking refresh parameters.
type RankingConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
	Key             string   `toml:"key"`
	Limit           int      `toml:"limit"`
}

// FeesConfig overrides rows of the built-in commission table. Keys are
// category names; they are normalized the same way as auction categories.
type FeesConfig struct {
	Categories map[string]CategoryFeeConfig `toml:"categories"`
}

// CategoryFeeConfig is one commission row. Percentages are given as strings
// so they decode exactly.
type CategoryFeeConfig struct {
	SellerPercent string `toml:"seller_percent"`
	SellerCap     int64  `toml:"seller_cap"`
	BuyerPercent  string `toml:"buyer_percent"`
	BuyerCap      int64  `toml:"buyer_cap"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating endpoints; empty disables authentication.
	APIKey string `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in auctiond.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Storage:  "postgres",
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "auctions",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  20,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:     true,
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			SnapshotTTL: duration{24 * time.Hour},
			EventStream: "stream:auction:events",
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "auction-archive",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Topic:        "auction-events",
			BatchTimeout: duration{50 * time.Millisecond},
		},
		Bidding: BiddingConfig{
			ExtensionMinutes: 5,
			ThresholdMinutes: 5,
			MaxExtensions:    3,
			LockTimeout:      duration{2 * time.Second},
			DedupTTL:         duration{10 * time.Minute},
			RetryAttempts:    3,
			RetryBackoff:     duration{25 * time.Millisecond},
			RateLimit:        20,
			RateWindow:       duration{time.Second},
		},
		Sweeper: SweeperConfig{
			Interval:    duration{time.Second},
			BatchSize:   200,
			Concurrency: 8,
		},
		Ranking: RankingConfig{
			RefreshInterval: duration{30 * time.Second},
			Key:             "ranking:auctions:urgency",
			Limit:           1000,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"sweeper": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, sweeper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch c.Storage {
	case "memory":
		if c.Mode != "full" {
			errs = append(errs, "storage: memory is only valid with mode full (the store is not shared between processes)")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: postgres, memory)", c.Storage))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: at least one broker is required when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	b := c.Bidding
	if b.ExtensionMinutes < 0 || b.ThresholdMinutes < 0 || b.MaxExtensions < 0 {
		errs = append(errs, "bidding: extension_minutes, threshold_minutes and max_extensions must be >= 0")
	}
	if b.LockTimeout.Duration <= 0 {
		errs = append(errs, "bidding: lock_timeout must be > 0")
	}
	if b.LeaseTTL.Duration > 0 && !c.Redis.Enabled {
		errs = append(errs, "bidding: lease_ttl requires redis")
	}
	if b.RetryAttempts < 1 {
		errs = append(errs, "bidding: retry_attempts must be >= 1")
	}
	if b.RateLimit > 0 && b.RateWindow.Duration <= 0 {
		errs = append(errs, "bidding: rate_window must be > 0 when rate_limit is set")
	}

	if c.Sweeper.Interval.Duration <= 0 {
		errs = append(errs, "sweeper: interval must be > 0")
	}
	if c.Sweeper.Concurrency < 1 {
		errs = append(errs, "sweeper: concurrency must be >= 1")
	}

	for name, row := range c.Fees.Categories {
		if row.SellerCap < 0 || row.BuyerCap < 0 {
			errs = append(errs, fmt.Sprintf("fees: %s: caps must be >= 0", name))
		}
		for _, pct := range []string{row.SellerPercent, row.BuyerPercent} {
			if d, err := decimal.NewFromString(pct); err != nil || d.IsNegative() {
				errs = append(errs, fmt.Sprintf("fees: %s: percent %q must be a non-negative number", name, pct))
			}
		}
	}

	if c.Mode != "sweeper" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
