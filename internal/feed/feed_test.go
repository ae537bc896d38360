package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uykb/hypejk/internal/domain"
	"github.com/uykb/hypejk/internal/platform/hyperliquid"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 5 * time.Second},
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 60 * time.Second},
		{100, 60 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(5*time.Second, 60*time.Second, tt.attempt), "attempt %d", tt.attempt)
	}
	assert.Equal(t, time.Second, Backoff(0, time.Minute, 0))
}

// fakeConn delivers its batches on subscribe, then drops the connection
// unless hold is set.
type fakeConn struct {
	batches    []domain.SubscriptionBatch
	hold       bool
	connectErr error

	handler    hyperliquid.UserFillsHandler
	subscribed string
	done       chan struct{}
	once       sync.Once
}

func (c *fakeConn) Connect(context.Context) error { return c.connectErr }

func (c *fakeConn) SubscribeUserFills(_ context.Context, user string) error {
	c.subscribed = user
	for _, b := range c.batches {
		c.handler(b)
	}
	if !c.hold {
		c.once.Do(func() { close(c.done) })
	}
	return nil
}

func (c *fakeConn) OnUserFills(h hyperliquid.UserFillsHandler) {
	c.handler = h
}

func (c *fakeConn) Done() <-chan struct{} {
	return c.done
}

func (c *fakeConn) Err() error {
	return domain.ErrWSDisconnect
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type collector struct {
	mu      sync.Mutex
	batches []domain.SubscriptionBatch
}

func (c *collector) Ingest(b domain.SubscriptionBatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestUserFillsFeed_ReconnectsAndForwards(t *testing.T) {
	t.Parallel()

	conns := []*fakeConn{
		{connectErr: errors.New("dial refused")},
		{batches: []domain.SubscriptionBatch{{IsSnapshot: true}}},
		{batches: []domain.SubscriptionBatch{{Fills: []domain.Fill{{Coin: "BTC"}}}}, hold: true},
	}
	var mu sync.Mutex
	dialed := 0
	dial := func() Conn {
		mu.Lock()
		defer mu.Unlock()
		c := conns[min(dialed, len(conns)-1)]
		dialed++
		if c.done == nil {
			c.done = make(chan struct{})
		}
		return c
	}

	sink := &collector{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	f := NewUserFillsFeedWithDialer(dial, "0xABC", sink, Options{ReconnectDelay: time.Millisecond}, logger)
	assert.Equal(t, "0xabc", f.Account())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	assert.Equal(t, "0xabc", conns[2].subscribed)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.True(t, sink.batches[0].IsSnapshot)
	assert.Equal(t, "0xabc", sink.batches[1].Account, "account filled in from the feed")
}
