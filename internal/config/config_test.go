package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	check.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auctiond.toml")
	body := `
mode = "server"
storage = "postgres"

[bidding]
extension_minutes = 2
lock_timeout = "750ms"

[fees.categories.coins]
seller_percent = "2.5"
seller_cap = 1000
buyer_percent = "1"
buyer_cap = 500
`
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("AUCTIOND_SERVER_PORT", "9090")
	t.Setenv("AUCTIOND_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load(path)
	assert.NoError(t, err)

	check.Equal(t, "server", cfg.Mode)
	check.Equal(t, 2, cfg.Bidding.ExtensionMinutes)
	check.Equal(t, 5, cfg.Bidding.ThresholdMinutes)
	check.Equal(t, 750*time.Millisecond, cfg.Bidding.LockTimeout.Duration)
	check.Equal(t, 9090, cfg.Server.Port)
	check.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	check.Equal(t, "2.5", cfg.Fees.Categories["coins"].SellerPercent)
	check.NoError(t, cfg.Validate())

	ext, threshold, maxExt := cfg.Bidding.ExtensionPolicy()
	check.Equal(t, 2*time.Minute, ext)
	check.Equal(t, 5*time.Minute, threshold)
	check.Equal(t, 3, maxExt)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.NoError(t, err)
	check.Equal(t, Defaults().Sweeper.BatchSize, cfg.Sweeper.BatchSize)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"memory needs full", func(c *Config) { c.Storage = "memory"; c.Mode = "sweeper" }, "storage: memory"},
		{"unknown storage", func(c *Config) { c.Storage = "sqlite" }, "unknown storage"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka: at least one broker"},
		{"lease without redis", func(c *Config) {
			c.Redis.Enabled = false
			c.Bidding.LeaseTTL = duration{time.Second}
		}, "lease_ttl requires redis"},
		{"bad fee percent", func(c *Config) {
			c.Fees.Categories = map[string]CategoryFeeConfig{"art": {SellerPercent: "five", BuyerPercent: "1"}}
		}, `percent "five"`},
		{"zero retries", func(c *Config) { c.Bidding.RetryAttempts = 0 }, "retry_attempts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			check.True(t, strings.Contains(err.Error(), tc.want))
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "key"
	cfg.S3.SecretKey = ""

	out := RedactedConfig(&cfg)
	check.Equal(t, redacted, out.Postgres.Password)
	check.Equal(t, redacted, out.Server.APIKey)
	check.Equal(t, "", out.S3.SecretKey)
	check.Equal(t, "hunter2", cfg.Postgres.Password)

	out.Server.CORSOrigins[0] = "changed"
	check.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigins[0])
}
