package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/uykb/hypejk/internal/domain"
	"github.com/uykb/hypejk/internal/metrics"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 10 * time.Second

	// workerExitWait bounds how long Close waits, after cancelling sends, for
	// workers to unwind.
	workerExitWait = 2 * time.Second
)

// Classifier turns a fill into a transition event. A non-nil error means the
// fill produced no signal.
type Classifier interface {
	Explain(fill domain.Fill) (domain.TransitionEvent, error)
}

// Sink receives every emitted transition event.
type Sink interface {
	Send(ctx context.Context, ev domain.TransitionEvent) error
}

// Options tunes the pipeline. Zero values select the defaults.
type Options struct {
	QueueSize   int
	SendTimeout time.Duration
	Metrics     *metrics.Metrics
	NewID       func() string
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Batches          uint64 `json:"batches"`
	SnapshotsSkipped uint64 `json:"snapshots_skipped"`
	Fills            uint64 `json:"fills"`
	Signals          uint64 `json:"signals"`
	Suppressed       uint64 `json:"suppressed"`
	DispatchFailures uint64 `json:"dispatch_failures"`
	QueueOverflows   uint64 `json:"queue_overflows"`
	SnapshotsEvicted uint64 `json:"snapshots_evicted"`
	Accounts         int    `json:"accounts"`
}

// Pipeline routes subscription batches to one worker per account. Each worker
// filters, classifies and dispatches its account's fills strictly in arrival
// order; accounts progress independently.
type Pipeline struct {
	classifier Classifier
	sink       Sink
	opts       Options
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// ctx bounds in-flight sends; cancelled when Close gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string]*accountQueue
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup

	batches          atomic.Uint64
	snapshotsSkipped atomic.Uint64
	fills            atomic.Uint64
	signals          atomic.Uint64
	suppressed       atomic.Uint64
	dispatchFailures atomic.Uint64
	overflows        atomic.Uint64
	evictions        atomic.Uint64
}

// New creates a Pipeline delivering events produced by classifier to sink.
func New(classifier Classifier, sink Sink, opts Options, logger *slog.Logger) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		classifier: classifier,
		sink:       sink,
		opts:       opts,
		metrics:    opts.Metrics,
		logger:     logger.With(slog.String("component", "pipeline")),
		ctx:        ctx,
		cancel:     cancel,
		queues:     make(map[string]*accountQueue),
		done:       make(chan struct{}),
	}
}

// Ingest hands a batch to the account's worker without waiting for it to be
// processed. It is safe to call from any goroutine.
func (p *Pipeline) Ingest(batch domain.SubscriptionBatch) error {
	account := strings.ToLower(strings.TrimSpace(batch.Account))
	batch.Account = account

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logger.Warn("batch dropped after close",
			slog.String("account", account),
			slog.Int("fills", len(batch.Fills)),
		)
		return fmt.Errorf("pipeline: ingest: %w", domain.ErrPipelineClosed)
	}

	p.batches.Add(1)
	p.metrics.ObserveBatch(batch.IsSnapshot)

	q, ok := p.queues[account]
	if !ok {
		q = newAccountQueue(account, p.opts.QueueSize)
		p.queues[account] = q
		p.wg.Add(1)
		go p.runWorker(q)
	}

	outcome := q.push(batch)
	switch outcome {
	case pushEvictedSnapshot:
		p.evictions.Add(1)
		p.logger.Warn("account queue full, oldest snapshot batch dropped",
			slog.String("account", account),
		)
	case pushDroppedSnapshot:
		p.evictions.Add(1)
		p.logger.Warn("account queue full, incoming snapshot batch dropped",
			slog.String("account", account),
			slog.Int("fills", len(batch.Fills)),
		)
	case pushOverflow:
		p.overflows.Add(1)
		p.logger.Warn("account queue over capacity",
			slog.String("account", account),
			slog.Int("depth", q.len()),
			slog.Int("capacity", p.opts.QueueSize),
		)
	}
	if outcome != pushAccepted {
		p.metrics.ObserveEviction(outcome.String())
	}
	p.metrics.SetQueueDepth(account, q.len())
	return nil
}

func (p *Pipeline) runWorker(q *accountQueue) {
	defer p.wg.Done()

	for {
		if p.ctx.Err() != nil {
			if n := q.len(); n > 0 {
				p.logger.Warn("shutdown grace expired, queued batches discarded",
					slog.String("account", q.account),
					slog.Int("batches", n),
				)
			}
			return
		}

		if batch, ok := q.pop(); ok {
			p.metrics.SetQueueDepth(q.account, q.len())
			p.process(batch)
			continue
		}

		select {
		case <-q.ready:
		case <-p.done:
			// Ingest no longer pushes once done is closed, so an empty queue
			// stays empty.
			if q.len() == 0 {
				return
			}
		}
	}
}

func (p *Pipeline) process(batch domain.SubscriptionBatch) {
	if !ShouldForward(batch) {
		p.snapshotsSkipped.Add(1)
		p.metrics.ObserveSuppressed("snapshot")
		p.logger.Info("snapshot batch skipped",
			slog.String("account", batch.Account),
			slog.Int("fills", len(batch.Fills)),
		)
		return
	}

	for _, fill := range batch.Fills {
		if p.ctx.Err() != nil {
			return
		}
		p.handleFill(batch.Account, fill)
	}
}

func (p *Pipeline) handleFill(account string, fill domain.Fill) {
	defer func() {
		if r := recover(); r != nil {
			p.dispatchFailures.Add(1)
			p.logger.Error("panic while handling fill",
				slog.String("account", account),
				slog.String("coin", fill.Coin),
				slog.Any("panic", r),
			)
		}
	}()

	p.fills.Add(1)
	p.metrics.ObserveFill()

	if fill.Account == "" {
		fill.Account = account
	}
	fill.Account = strings.ToLower(fill.Account)

	ev, err := p.classifier.Explain(fill)
	if err != nil {
		p.suppressed.Add(1)
		if errors.Is(err, domain.ErrMalformedFill) {
			p.metrics.ObserveSuppressed("malformed")
			p.logger.Warn("malformed fill ignored",
				slog.String("account", fill.Account),
				slog.String("coin", fill.Coin),
				slog.String("error", err.Error()),
			)
		} else {
			p.metrics.ObserveSuppressed("ambiguous")
			p.logger.Debug("fill produced no signal",
				slog.String("account", fill.Account),
				slog.String("coin", fill.Coin),
				slog.String("label", fill.Label),
				slog.String("reason", err.Error()),
			)
		}
		return
	}

	ev.ID = p.opts.NewID()
	p.signals.Add(1)
	p.metrics.ObserveSignal(string(ev.Kind))
	p.logger.Info("transition detected",
		slog.String("id", ev.ID),
		slog.String("kind", string(ev.Kind)),
		slog.String("coin", ev.Coin),
		slog.String("direction", string(ev.Direction)),
		slog.String("account", ev.Account),
		slog.String("size", ev.Size.String()),
		slog.String("price", ev.Price.String()),
	)

	p.dispatch(ev)
}

func (p *Pipeline) dispatch(ev domain.TransitionEvent) {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.SendTimeout)
	defer cancel()

	start := time.Now()
	err := p.sink.Send(ctx, ev)
	p.metrics.ObserveDispatch(time.Since(start), err != nil)
	if err != nil {
		p.dispatchFailures.Add(1)
		p.logger.Error("dispatch failed",
			slog.String("id", ev.ID),
			slog.String("kind", string(ev.Kind)),
			slog.String("coin", ev.Coin),
			slog.String("account", ev.Account),
			slog.String("error", err.Error()),
		)
	}
}

// Close stops accepting batches and waits for queued ones to drain. If ctx
// expires first, in-flight sends are cancelled, remaining batches are
// discarded and ctx's error is returned once the workers have exited (or
// workerExitWait has passed).
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.cancel()
		p.logger.Info("pipeline drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("pipeline close timed out", slog.String("error", ctx.Err().Error()))

		select {
		case <-finished:
		case <-time.After(workerExitWait):
			p.logger.Error("pipeline workers still running after cancel",
				slog.Duration("waited", workerExitWait),
			)
		}
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	accounts := len(p.queues)
	p.mu.Unlock()

	return Stats{
		Batches:          p.batches.Load(),
		SnapshotsSkipped: p.snapshotsSkipped.Load(),
		Fills:            p.fills.Load(),
		Signals:          p.signals.Load(),
		Suppressed:       p.suppressed.Load(),
		DispatchFailures: p.dispatchFailures.Load(),
		QueueOverflows:   p.overflows.Load(),
		SnapshotsEvicted: p.evictions.Load(),
		Accounts:         accounts,
	}
}
