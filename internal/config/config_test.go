package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validFullConfig() Config {
	cfg := Defaults()
	cfg.Swap.BaseURL = "https://swap.example.com"
	cfg.Keyring.Password = "hunter2"
	return cfg
}

func TestDefaultsNeedSecretsOutsidePaperMode(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "swap: base_url")
	require.Contains(t, err.Error(), "keyring: password")

	full := validFullConfig()
	require.NoError(t, full.Validate())
}

func TestPaperModeValidatesWithoutInfrastructure(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "paper"
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""
	cfg.Keyring.RawKeys = map[string]string{"0xabc": "deadbeef"}
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.UsesPaper())
	require.True(t, cfg.RunsScheduler())
	require.True(t, cfg.RunsServer())
}

func TestModes(t *testing.T) {
	testCases := []struct {
		mode      string
		scheduler bool
		server    bool
	}{
		{"scheduler", true, false},
		{"server", false, true},
		{"full", true, true},
		{"PAPER", true, true},
	}
	for _, tc := range testCases {
		cfg := Defaults()
		cfg.Mode = tc.mode
		require.Equal(t, tc.scheduler, cfg.RunsScheduler(), tc.mode)
		require.Equal(t, tc.server, cfg.RunsServer(), tc.mode)
	}

	cfg := Defaults()
	cfg.Server.Enabled = false
	require.False(t, cfg.RunsServer())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validFullConfig()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Swap.APIKey = "key-without-secret"
	cfg.Swap.SlippageBps = 20000
	cfg.Scheduler.SwapTimeout = duration{2 * time.Minute}
	cfg.Scheduler.NativeAssets = nil
	cfg.Server.Port = 70000
	cfg.Notify.TelegramToken = "token"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "turbo"`,
		`unknown log_level "loud"`,
		"api_key and api_secret must be set together",
		"SlippageBps failed lte",
		"swap_timeout must not exceed tick_timeout",
		"native_assets must list at least one chain",
		"server: port must be 1-65535",
		"telegram_token and telegram_chat_id",
	} {
		require.Contains(t, err.Error(), want)
	}
}

func TestRawKeysRejectedOutsidePaperMode(t *testing.T) {
	cfg := validFullConfig()
	cfg.Keyring.RawKeys = map[string]string{"0xabc": "deadbeef"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "raw_keys are only accepted in paper mode")
}

func TestArchiveRequiresBucket(t *testing.T) {
	cfg := validFullConfig()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "s3: bucket")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twapbot.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "scheduler"

[postgres]
host = "db.internal"
pool_max_conns = 25

[scheduler]
poll_interval = "2s"
default_interval = "15m"

[scheduler.native_assets]
optimism = "ETH"
`), 0o600))

	t.Setenv("TWAPBOT_POSTGRES_HOST", "db.override")
	t.Setenv("TWAPBOT_SCHEDULER_MAX_CONCURRENT", "3")
	t.Setenv("TWAPBOT_SERVER_CORS_ORIGINS", " https://a.example , https://b.example ,")
	t.Setenv("TWAPBOT_SWAP_TIMEOUT", "10s")
	t.Setenv("TWAPBOT_ARCHIVE_ENABLED", "not-a-bool")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "scheduler", cfg.Mode)
	require.Equal(t, "db.override", cfg.Postgres.Host)
	require.Equal(t, 25, cfg.Postgres.PoolMaxConns)
	require.Equal(t, 5432, cfg.Postgres.Port, "unset keys keep their defaults")
	require.Equal(t, 2*time.Second, cfg.Scheduler.PollInterval.Duration)
	require.Equal(t, 15*time.Minute, cfg.Scheduler.DefaultInterval.Duration)
	require.Equal(t, 3, cfg.Scheduler.MaxConcurrent)
	require.Equal(t, "ETH", cfg.Scheduler.NativeAssets["optimism"])
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, 10*time.Second, cfg.Swap.Timeout.Duration)
	require.False(t, cfg.Archive.Enabled, "unparsable values are ignored")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scheduler]\npoll_interval = \"often\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "config: decode")
}

func TestRedactedConfig(t *testing.T) {
	cfg := validFullConfig()
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Swap.APIKey = "k"
	cfg.Swap.APISecret = "s"
	cfg.Server.APIKey = "api"
	cfg.Keyring.RawKeys = map[string]string{"0xabc": "deadbeef"}

	out := RedactedConfig(&cfg)
	require.Equal(t, "***", out.Postgres.DSN)
	require.Equal(t, "***", out.Swap.APIKey)
	require.Equal(t, "***", out.Swap.APISecret)
	require.Equal(t, "***", out.Keyring.Password)
	require.Equal(t, "***", out.Server.APIKey)
	require.Equal(t, map[string]string{"0xabc": "***"}, out.Keyring.RawKeys)
	require.Empty(t, out.Redis.Password, "empty secrets stay empty")

	out.Scheduler.NativeAssets["solana"] = "SOL"
	out.Server.CORSOrigins[0] = "changed"
	require.NotContains(t, cfg.Scheduler.NativeAssets, "solana")
	require.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
	require.Equal(t, "deadbeef", cfg.Keyring.RawKeys["0xabc"])
}
