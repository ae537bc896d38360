package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uykb/hypejk/internal/detector"
	"github.com/uykb/hypejk/internal/domain"
	"github.com/uykb/hypejk/internal/feed"
	"github.com/uykb/hypejk/internal/notify"
	"github.com/uykb/hypejk/internal/pipeline"
	"github.com/uykb/hypejk/internal/platform/hyperliquid"
	"github.com/uykb/hypejk/internal/server"
	"github.com/uykb/hypejk/internal/server/handler"
)

const serverShutdownTimeout = 5 * time.Second

// newPipeline builds the event pipeline around the fill classifier.
func (a *App) newPipeline(deps *Dependencies, sink pipeline.Sink) *pipeline.Pipeline {
	return pipeline.New(detector.New(), sink, pipeline.Options{
		QueueSize:   a.cfg.Pipeline.QueueSize,
		SendTimeout: a.cfg.Pipeline.SendTimeout.Duration,
		Metrics:     deps.Metrics,
	}, a.logger)
}

// MonitorMode subscribes to userFills for every configured address and
// dispatches detected transitions until ctx is cancelled. Queued events get
// pipeline.shutdown_grace to drain afterwards.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Any("addresses", a.cfg.Monitor.Addresses),
		slog.String("ws_url", a.cfg.Hyperliquid.WSURL),
	)

	p := a.newPipeline(deps, deps.Sink(SinkOptions{
		Chat:   true,
		Bus:    true,
		Prefix: a.cfg.S3.Prefix,
	}))

	g, gctx := errgroup.WithContext(ctx)

	feedOpts := feed.Options{
		ReconnectDelay: a.cfg.Hyperliquid.ReconnectInterval(),
		Metrics:        deps.Metrics,
	}
	for _, addr := range a.cfg.Monitor.Addresses {
		f := feed.NewUserFillsFeed(a.cfg.Hyperliquid.WSURL, addr, p, feedOpts, a.logger)
		g.Go(func() error {
			return f.Run(gctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, p)
	}

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Pipeline.ShutdownGrace.Duration)
	defer cancel()
	if cerr := p.Close(closeCtx); cerr != nil {
		a.logger.Warn("pipeline did not drain before shutdown grace",
			slog.String("error", cerr.Error()),
			slog.Any("stats", p.Stats()),
		)
	}

	a.logger.Info("monitor stopped", slog.Any("stats", p.Stats()))
	return err
}

// BackfillMode replays each address's fills inside the backfill window through
// the classifier. Events are written as JSON lines to stdout and to the
// journal and archive when wired; chat channels are used only when
// backfill.notify is set.
func (a *App) BackfillMode(ctx context.Context, deps *Dependencies) error {
	return a.backfill(ctx, deps, hyperliquid.NewInfoClient(a.cfg.Hyperliquid.APIURL), os.Stdout)
}

// FillSource fetches historical fills for one account.
type FillSource interface {
	UserFillsByTime(ctx context.Context, user string, startMs, endMs int64) ([]domain.Fill, error)
}

func (a *App) backfill(ctx context.Context, deps *Dependencies, src FillSource, out io.Writer) error {
	start, end, err := a.cfg.Backfill.Window(time.Now())
	if err != nil {
		return fmt.Errorf("backfill mode: %w", err)
	}

	a.logger.InfoContext(ctx, "starting backfill mode",
		slog.Time("start", start),
		slog.Time("end", end),
		slog.Bool("notify", a.cfg.Backfill.Notify),
	)

	p := a.newPipeline(deps, deps.Sink(SinkOptions{
		Chat:   a.cfg.Backfill.Notify,
		Prefix: a.cfg.S3.Prefix,
		Extra:  []notify.Sender{notify.NewJSONLinesSender(out)},
	}))

	var errs []error
	for _, addr := range a.cfg.Monitor.Addresses {
		if ctx.Err() != nil {
			break
		}
		fills, err := src.UserFillsByTime(ctx, addr, start.UnixMilli(), end.UnixMilli())
		if err != nil {
			a.logger.ErrorContext(ctx, "backfill fetch failed",
				slog.String("account", addr),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		a.logger.InfoContext(ctx, "backfill fetched fills",
			slog.String("account", addr),
			slog.Int("fills", len(fills)),
		)
		// Historical fills are replayed as a live batch so the intake filter
		// lets them through.
		if err := p.Ingest(domain.SubscriptionBatch{Account: addr, Fills: fills}); err != nil {
			errs = append(errs, err)
		}
	}

	closeCtx, cancel := graceContext(ctx, a.cfg.Pipeline.ShutdownGrace.Duration)
	defer cancel()
	if err := p.Close(closeCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain pipeline: %w", err))
	}

	stats := p.Stats()
	a.logger.InfoContext(ctx, "backfill complete", slog.Any("stats", stats))

	if len(errs) > 0 {
		return fmt.Errorf("backfill mode: %w", errors.Join(errs...))
	}
	return ctx.Err()
}

// graceContext returns a context that is cancelled grace after parent is done.
// While parent is live the returned context never expires.
func graceContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		select {
		case <-time.After(grace):
			cancel()
		case <-ctx.Done():
		}
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

// startHTTPServer serves health, metrics and the transition journal until ctx
// is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, p *pipeline.Pipeline) {
	srv := server.NewServer(server.Config{
		Port:   a.cfg.Server.Port,
		APIKey: a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(p, a.cfg.Monitor.Addresses, deps.Probes, a.logger),
		Transitions: handler.NewTransitionHandler(deps.Journal, a.logger),
		Metrics:     deps.Metrics.Handler(),
	}, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
