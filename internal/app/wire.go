package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/uykb/hypejk/internal/blob/s3"
	"github.com/uykb/hypejk/internal/cache/redis"
	"github.com/uykb/hypejk/internal/config"
	"github.com/uykb/hypejk/internal/domain"
	"github.com/uykb/hypejk/internal/metrics"
	"github.com/uykb/hypejk/internal/notify"
	"github.com/uykb/hypejk/internal/server/handler"
	"github.com/uykb/hypejk/internal/store/postgres"
)

// redisNamespace prefixes every channel and stream the monitor writes.
const redisNamespace = "hypejk"

// Dependencies bundles what the modes need. Optional backends are nil when
// disabled in the configuration.
type Dependencies struct {
	Metrics *metrics.Metrics

	Journal domain.TransitionStore
	Bus     domain.SignalBus
	Blob    domain.BlobWriter

	// Probes back the health endpoint, one per wired backend.
	Probes map[string]handler.Probe

	// Chat holds the kind-filtered chat channels (Feishu, Telegram, Discord).
	Chat *notify.Notifier

	logger *slog.Logger
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

	deps := &Dependencies{
		Metrics: metrics.New("hypejk"),
		Probes:  make(map[string]handler.Probe),
		logger:  logger,
	}

	// --- PostgreSQL journal ---
	if cfg.Postgres.Enabled {
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
		deps.Journal = postgres.NewTransitionStore(pgClient.Pool())
		deps.Probes["postgres"] = pgClient.Ping
	}

	// --- Redis pub/sub ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Bus = redis.NewSignalBus(redisClient, redisNamespace)
		deps.Probes["redis"] = redisClient.Ping
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blob = s3blob.NewWriter(s3Client)
		deps.Probes["s3"] = s3Client.Health
	}

	// --- Chat channels ---
	var senders []notify.Sender
	if cfg.Feishu.WebhookURL != "" {
		senders = append(senders, notify.NewFeishuSender(cfg.Feishu.WebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	names := make([]string, 0, len(senders))
	for _, s := range senders {
		names = append(names, s.Name())
	}
	logger.InfoContext(ctx, "wired backends",
		slog.Bool("postgres", deps.Journal != nil),
		slog.Bool("redis", deps.Bus != nil),
		slog.Bool("s3", deps.Blob != nil),
		slog.Any("chat", names),
	)
	deps.Chat = notify.NewNotifier("chat", senders, cfg.Notify.Events, deps.Metrics, logger)

	return deps, cleanup, nil
}

// SinkOptions selects which senders a mode's fan-out includes.
type SinkOptions struct {
	Chat   bool
	Bus    bool
	Prefix string // archive key prefix
	Extra  []notify.Sender
}

// Sink assembles the top-level fan-out handed to the pipeline. Record sinks
// are present only when their backend is wired.
func (d *Dependencies) Sink(opts SinkOptions) *notify.Notifier {
	var senders []notify.Sender
	if opts.Chat {
		senders = append(senders, d.Chat)
	}
	if opts.Bus && d.Bus != nil {
		senders = append(senders, notify.NewBusSender(d.Bus))
	}
	if d.Journal != nil {
		senders = append(senders, notify.NewJournalSender(d.Journal))
	}
	if d.Blob != nil {
		senders = append(senders, notify.NewArchiveSender(d.Blob, opts.Prefix))
	}
	senders = append(senders, opts.Extra...)
	return notify.NewNotifier("sinks", senders, nil, d.Metrics, d.logger)
}
