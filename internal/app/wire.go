package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/twapbot/internal/blob/s3"
	"github.com/alanyoungcy/twapbot/internal/cache/redis"
	"github.com/alanyoungcy/twapbot/internal/config"
	"github.com/alanyoungcy/twapbot/internal/crypto"
	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/notify"
	"github.com/alanyoungcy/twapbot/internal/platform/swap"
	"github.com/alanyoungcy/twapbot/internal/server/handler"
	"github.com/alanyoungcy/twapbot/internal/store/memory"
	"github.com/alanyoungcy/twapbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	OrderStore   domain.OrderStore
	AccountStore domain.AccountStore
	AuditStore   domain.AuditStore

	// Coordination. RateLimiter and LockManager are nil in paper mode.
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Exchange and keys
	Gateway domain.ExchangeGateway
	Tokens  domain.TokenResolver
	Signers domain.SignerResolver

	// Archiver is nil unless archive.enabled and S3 is wired.
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks probe the external services wired above.
	HealthChecks map[string]handler.HealthCheck
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

	deps := &Dependencies{HealthChecks: map[string]handler.HealthCheck{}}
	paper := strings.EqualFold(cfg.Mode, "paper")

	if paper {
		// Everything in memory: nothing survives a restart.
		deps.OrderStore = memory.NewOrderStore()
		deps.AccountStore = memory.NewAccountStore()
		deps.AuditStore = memory.NewAuditStore()
		deps.SignalBus = memory.NewBus(int(cfg.Bus.StreamMaxLen))
	} else {
		// --- PostgreSQL ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping

		// --- Redis ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Scheduler.SwapRateLimit, cfg.Scheduler.SwapRateWindow.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, cfg.Bus.StreamMaxLen)
		deps.HealthChecks["redis"] = redisClient.Ping

		// --- S3 archive ---
		if cfg.Archive.Enabled {
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
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client),
				s3blob.NewReader(s3Client),
				deps.OrderStore,
				deps.AuditStore,
				logger,
			)
			deps.HealthChecks["s3"] = s3Client.Health
		}
	}

	// --- Exchange gateway ---
	if cfg.UsesPaper() {
		pg := swap.NewPaperGateway(cfg.Swap.PaperPrices, logger)
		deps.Gateway = pg
		deps.Tokens = pg
	} else {
		client := swap.NewClient(swap.ClientConfig{
			BaseURL:        cfg.Swap.BaseURL,
			APIKey:         cfg.Swap.APIKey,
			APISecret:      cfg.Swap.APISecret,
			Timeout:        cfg.Swap.Timeout.Duration,
			SlippageBps:    cfg.Swap.SlippageBps,
			DeadlineWindow: cfg.Swap.DeadlineWindow.Duration,
		})
		deps.Gateway = client
		deps.Tokens = client
	}

	// --- Keys ---
	keyring := crypto.KeyringConfig{
		KeysDir:  cfg.Keyring.KeysDir,
		Password: cfg.Keyring.Password,
	}
	if paper {
		keyring.RawKeys = cfg.Keyring.RawKeys
	}
	deps.Signers = crypto.NewKeyring(deps.AccountStore, keyring, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Prefix, logger)

	return deps, cleanup, nil
}
