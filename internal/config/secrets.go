package config

import "maps"

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
	redact(&out.Swap.APIKey)
	redact(&out.Swap.APISecret)
	redact(&out.Keyring.Password)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Raw keys are private keys; only the wallet addresses survive.
	if cfg.Keyring.RawKeys != nil {
		out.Keyring.RawKeys = make(map[string]string, len(cfg.Keyring.RawKeys))
		for addr := range cfg.Keyring.RawKeys {
			out.Keyring.RawKeys[addr] = redacted
		}
	}

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Swap.PaperPrices = maps.Clone(cfg.Swap.PaperPrices)
	out.Scheduler.NativeAssets = maps.Clone(cfg.Scheduler.NativeAssets)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
