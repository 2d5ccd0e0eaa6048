// Package config defines the top-level configuration for twapbot and provides
// validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TWAPBOT_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Swap      SwapConfig      `toml:"swap"`
	Keyring   KeyringConfig   `toml:"keyring"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Archive   ArchiveConfig   `toml:"archive"`
	Bus       BusConfig       `toml:"bus"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. DSN wins over the
// individual fields.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port" validate:"gte=0,lte=65535"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	PoolMaxConns  int    `toml:"pool_max_conns" validate:"gte=1"`
	PoolMinConns  int    `toml:"pool_min_conns" validate:"gte=0"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db" validate:"gte=0"`
	PoolSize   int    `toml:"pool_size" validate:"gte=1"`
	MaxRetries int    `toml:"max_retries" validate:"gte=0"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SwapConfig configures the exchange gateway. With Paper set, swaps are
// simulated at PaperPrices (target token -> units per source unit).
type SwapConfig struct {
	BaseURL        string             `toml:"base_url"`
	APIKey         string             `toml:"api_key"`
	APISecret      string             `toml:"api_secret"`
	Timeout        duration           `toml:"timeout"`
	SlippageBps    int64              `toml:"slippage_bps" validate:"gte=0,lte=10000"`
	DeadlineWindow duration           `toml:"deadline_window"`
	Paper          bool               `toml:"paper"`
	PaperPrices    map[string]float64 `toml:"paper_prices"`
}

// KeyringConfig locates the encrypted wallet keys.
type KeyringConfig struct {
	KeysDir  string `toml:"keys_dir"`
	Password string `toml:"password"`
	// RawKeys maps wallet address to hex private key. Paper mode only.
	RawKeys map[string]string `toml:"raw_keys"`
}

// SchedulerConfig holds the runner and per-order execution parameters.
type SchedulerConfig struct {
	PollInterval    duration          `toml:"poll_interval"`
	BatchSize       int               `toml:"batch_size" validate:"gte=1"`
	MaxConcurrent   int               `toml:"max_concurrent" validate:"gte=1"`
	LockTTL         duration          `toml:"lock_ttl"`
	TickTimeout     duration          `toml:"tick_timeout"`
	DefaultInterval duration          `toml:"default_interval"`
	SwapTimeout     duration          `toml:"swap_timeout"`
	NativeAssets    map[string]string `toml:"native_assets"`
	SwapRateLimit   int               `toml:"swap_rate_limit" validate:"gte=0"`
	SwapRateWindow  duration          `toml:"swap_rate_window"`
}

// LedgerConfig tunes the optimistic-concurrency retry of position updates.
type LedgerConfig struct {
	MaxRetries   int      `toml:"max_retries" validate:"gte=1"`
	RetryBackoff duration `toml:"retry_backoff"`
}

// ArchiveConfig controls the periodic upload of finished orders.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	Retention duration `toml:"retention"`
}

// BusConfig bounds the execution journal stream.
type BusConfig struct {
	StreamMaxLen int64 `toml:"stream_max_len" validate:"gte=0"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit" validate:"gte=0"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Prefix            string   `toml:"prefix"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "twapbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "twapbot-archive",
			ForcePathStyle: true,
		},
		Swap: SwapConfig{
			Timeout:        duration{30 * time.Second},
			SlippageBps:    50,
			DeadlineWindow: duration{2 * time.Minute},
			PaperPrices:    map[string]float64{},
		},
		Keyring: KeyringConfig{
			KeysDir: "keys",
			RawKeys: map[string]string{},
		},
		Scheduler: SchedulerConfig{
			PollInterval:    duration{5 * time.Second},
			BatchSize:       100,
			MaxConcurrent:   8,
			LockTTL:         duration{2 * time.Minute},
			TickTimeout:     duration{time.Minute},
			DefaultInterval: duration{60 * time.Minute},
			SwapTimeout:     duration{30 * time.Second},
			NativeAssets: map[string]string{
				"ethereum": "ETH",
				"polygon":  "POL",
				"base":     "ETH",
				"arbitrum": "ETH",
			},
			SwapRateLimit:  1,
			SwapRateWindow: duration{time.Second},
		},
		Ledger: LedgerConfig{
			MaxRetries:   5,
			RetryBackoff: duration{20 * time.Millisecond},
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Interval:  duration{24 * time.Hour},
			Retention: duration{30 * 24 * time.Hour},
		},
		Bus: BusConfig{
			StreamMaxLen: 100_000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"order_completed", "order_cancelled", "execution_failed"},
			Prefix: "[twapbot]",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scheduler": true,
	"server":    true,
	"full":      true,
	"paper":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// UsesPaper reports whether the run simulates swaps.
func (c *Config) UsesPaper() bool {
	return strings.EqualFold(c.Mode, "paper") || c.Swap.Paper
}

// RunsScheduler reports whether the mode polls and executes due orders.
func (c *Config) RunsScheduler() bool {
	switch strings.ToLower(c.Mode) {
	case "scheduler", "full", "paper":
		return true
	}
	return false
}

// RunsServer reports whether the mode serves the HTTP API.
func (c *Config) RunsServer() bool {
	switch strings.ToLower(c.Mode) {
	case "server", "full", "paper":
		return c.Server.Enabled
	}
	return false
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scheduler, server, full, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	errs = append(errs, tagProblems(c)...)

	paperMode := strings.EqualFold(c.Mode, "paper")

	// Postgres and Redis back every mode but paper.
	if !paperMode {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
	}

	// Swap
	if c.RunsScheduler() && !c.UsesPaper() && c.Swap.BaseURL == "" {
		errs = append(errs, "swap: base_url must be set unless swap.paper is enabled")
	}
	if (c.Swap.APIKey == "") != (c.Swap.APISecret == "") {
		errs = append(errs, "swap: api_key and api_secret must be set together")
	}
	if c.Swap.Timeout.Duration <= 0 {
		errs = append(errs, "swap: timeout must be > 0")
	}

	// Keyring
	if c.RunsScheduler() && !paperMode {
		if c.Keyring.KeysDir == "" {
			errs = append(errs, "keyring: keys_dir must not be empty")
		}
		if c.Keyring.Password == "" {
			errs = append(errs, "keyring: password is required to decrypt wallet keys")
		}
		if len(c.Keyring.RawKeys) > 0 {
			errs = append(errs, "keyring: raw_keys are only accepted in paper mode")
		}
	}

	// Scheduler
	for name, d := range map[string]duration{
		"poll_interval":    c.Scheduler.PollInterval,
		"lock_ttl":         c.Scheduler.LockTTL,
		"tick_timeout":     c.Scheduler.TickTimeout,
		"default_interval": c.Scheduler.DefaultInterval,
		"swap_timeout":     c.Scheduler.SwapTimeout,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("scheduler: %s must be > 0", name))
		}
	}
	if c.Scheduler.SwapTimeout.Duration > c.Scheduler.TickTimeout.Duration {
		errs = append(errs, "scheduler: swap_timeout must not exceed tick_timeout")
	}
	if c.Scheduler.TickTimeout.Duration > c.Scheduler.LockTTL.Duration {
		errs = append(errs, "scheduler: tick_timeout must not exceed lock_ttl")
	}
	if len(c.Scheduler.NativeAssets) == 0 {
		errs = append(errs, "scheduler: native_assets must list at least one chain")
	}

	// Archive
	if c.Archive.Enabled && !paperMode {
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be > 0")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

var validate = validator.New()

// tagProblems runs the struct tag rules and renders each failure as
// "section.field failed rule".
func tagProblems(c *Config) []string {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return out
}
