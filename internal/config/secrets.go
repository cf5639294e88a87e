package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Kafka.Brokers != nil {
		out.Kafka.Brokers = append([]string(nil), cfg.Kafka.Brokers...)
	}
	if cfg.Fees.Categories != nil {
		out.Fees.Categories = make(map[string]CategoryFeeConfig, len(cfg.Fees.Categories))
		for k, v := range cfg.Fees.Categories {
			out.Fees.Categories[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
