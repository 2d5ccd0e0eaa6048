package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TWAPBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TWAPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform convention
	setStr(&cfg.Postgres.DSN, "TWAPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TWAPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TWAPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TWAPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TWAPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TWAPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TWAPBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TWAPBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TWAPBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TWAPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TWAPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TWAPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TWAPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TWAPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TWAPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TWAPBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TWAPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TWAPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TWAPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TWAPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TWAPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TWAPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TWAPBOT_S3_FORCE_PATH_STYLE")

	// ── Swap ──
	setStr(&cfg.Swap.BaseURL, "TWAPBOT_SWAP_BASE_URL")
	setStr(&cfg.Swap.APIKey, "TWAPBOT_SWAP_API_KEY")
	setStr(&cfg.Swap.APISecret, "TWAPBOT_SWAP_API_SECRET")
	setDuration(&cfg.Swap.Timeout, "TWAPBOT_SWAP_TIMEOUT")
	setInt64(&cfg.Swap.SlippageBps, "TWAPBOT_SWAP_SLIPPAGE_BPS")
	setDuration(&cfg.Swap.DeadlineWindow, "TWAPBOT_SWAP_DEADLINE_WINDOW")
	setBool(&cfg.Swap.Paper, "TWAPBOT_SWAP_PAPER")

	// ── Keyring ──
	setStr(&cfg.Keyring.KeysDir, "TWAPBOT_KEYRING_KEYS_DIR")
	setStr(&cfg.Keyring.Password, "TWAPBOT_KEYRING_PASSWORD")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.PollInterval, "TWAPBOT_SCHEDULER_POLL_INTERVAL")
	setInt(&cfg.Scheduler.BatchSize, "TWAPBOT_SCHEDULER_BATCH_SIZE")
	setInt(&cfg.Scheduler.MaxConcurrent, "TWAPBOT_SCHEDULER_MAX_CONCURRENT")
	setDuration(&cfg.Scheduler.LockTTL, "TWAPBOT_SCHEDULER_LOCK_TTL")
	setDuration(&cfg.Scheduler.TickTimeout, "TWAPBOT_SCHEDULER_TICK_TIMEOUT")
	setDuration(&cfg.Scheduler.DefaultInterval, "TWAPBOT_SCHEDULER_DEFAULT_INTERVAL")
	setDuration(&cfg.Scheduler.SwapTimeout, "TWAPBOT_SCHEDULER_SWAP_TIMEOUT")
	setInt(&cfg.Scheduler.SwapRateLimit, "TWAPBOT_SCHEDULER_SWAP_RATE_LIMIT")
	setDuration(&cfg.Scheduler.SwapRateWindow, "TWAPBOT_SCHEDULER_SWAP_RATE_WINDOW")

	// ── Ledger ──
	setInt(&cfg.Ledger.MaxRetries, "TWAPBOT_LEDGER_MAX_RETRIES")
	setDuration(&cfg.Ledger.RetryBackoff, "TWAPBOT_LEDGER_RETRY_BACKOFF")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TWAPBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "TWAPBOT_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.Retention, "TWAPBOT_ARCHIVE_RETENTION")

	// ── Bus ──
	setInt64(&cfg.Bus.StreamMaxLen, "TWAPBOT_BUS_STREAM_MAX_LEN")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TWAPBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TWAPBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TWAPBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TWAPBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TWAPBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TWAPBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TWAPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TWAPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TWAPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TWAPBOT_NOTIFY_EVENTS")
	setStr(&cfg.Notify.Prefix, "TWAPBOT_NOTIFY_PREFIX")

	// ── Top-level ──
	setStr(&cfg.Mode, "TWAPBOT_MODE")
	setStr(&cfg.LogLevel, "TWAPBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
