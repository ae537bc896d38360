// Package feed keeps one live userFills subscription per watched account and
// hands every push to the pipeline.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uykb/hypejk/internal/domain"
	"github.com/uykb/hypejk/internal/metrics"
	"github.com/uykb/hypejk/internal/platform/hyperliquid"
)

const (
	defaultReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 60 * time.Second
	connectTimeout        = 15 * time.Second

	// A connection that stays up this long resets the backoff.
	stableAfter = time.Minute
)

// Ingester accepts subscription batches without blocking.
type Ingester interface {
	Ingest(batch domain.SubscriptionBatch) error
}

// Conn is one subscription connection. *hyperliquid.WSClient implements it.
type Conn interface {
	Connect(ctx context.Context) error
	SubscribeUserFills(ctx context.Context, user string) error
	OnUserFills(handler hyperliquid.UserFillsHandler)
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Dialer builds a fresh, unconnected Conn.
type Dialer func() Conn

// Options tunes a UserFillsFeed. Zero values select the defaults.
type Options struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	Metrics           *metrics.Metrics
}

// UserFillsFeed subscribes to userFills for one account and reconnects on
// disconnect with exponential backoff.
type UserFillsFeed struct {
	account string
	dial    Dialer
	sink    Ingester
	opts    Options
	logger  *slog.Logger
}

// NewUserFillsFeed creates a feed for account using real WebSocket
// connections to wsURL.
func NewUserFillsFeed(wsURL, account string, sink Ingester, opts Options, logger *slog.Logger) *UserFillsFeed {
	dial := func() Conn { return hyperliquid.NewWSClient(wsURL, logger) }
	return NewUserFillsFeedWithDialer(dial, account, sink, opts, logger)
}

// NewUserFillsFeedWithDialer is NewUserFillsFeed with a custom connection
// factory.
func NewUserFillsFeedWithDialer(dial Dialer, account string, sink Ingester, opts Options, logger *slog.Logger) *UserFillsFeed {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = maxReconnectDelay
	}
	account = strings.ToLower(strings.TrimSpace(account))
	return &UserFillsFeed{
		account: account,
		dial:    dial,
		sink:    sink,
		opts:    opts,
		logger: logger.With(
			slog.String("component", "userfills_feed"),
			slog.String("account", account),
		),
	}
}

// Account returns the watched address.
func (f *UserFillsFeed) Account() string {
	return f.account
}

// Run connects, subscribes and runs until ctx is cancelled. Reconnects with
// backoff on disconnect.
func (f *UserFillsFeed) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		started := time.Now()
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(started) >= stableAfter {
			failures = 0
		}
		delay := Backoff(f.opts.ReconnectDelay, f.opts.MaxReconnectDelay, failures)
		failures++

		f.opts.Metrics.ObserveReconnect(f.account)
		f.logger.Warn("userFills feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
			slog.Int("attempt", failures),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runConnection returns when the connection ends or ctx is cancelled. It
// always returns a non-nil error.
func (f *UserFillsFeed) runConnection(ctx context.Context) error {
	client := f.dial()
	defer client.Close()

	client.OnUserFills(func(batch domain.SubscriptionBatch) {
		if batch.Account == "" {
			batch.Account = f.account
		}
		if err := f.sink.Ingest(batch); err != nil {
			f.logger.Warn("batch not accepted",
				slog.Bool("snapshot", batch.IsSnapshot),
				slog.Int("fills", len(batch.Fills)),
				slog.String("error", err.Error()),
			)
		}
	})

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := client.Connect(connCtx)
	if err == nil {
		err = client.SubscribeUserFills(connCtx, f.account)
	}
	cancel()
	if err != nil {
		return err
	}
	f.logger.Info("userFills subscribed")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.Done():
		if err := client.Err(); err != nil {
			return err
		}
		return fmt.Errorf("feed: connection closed: %w", domain.ErrWSDisconnect)
	}
}
