package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to HYPEJK_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("HYPEJK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HYPEJK_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSignalBus_PublishAndStream(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ns := "hypejk_test_" + time.Now().Format("150405.000000")
	bus := NewSignalBus(c, ns)

	sub := c.Underlying().Subscribe(ctx, ns+":transitions")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "transitions", []byte(`{"kind":"OPEN"}`)))
	select {
	case msg := <-sub.Channel():
		assert.Equal(t, `{"kind":"OPEN"}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no pub/sub message")
	}

	require.NoError(t, bus.StreamAppend(ctx, "transitions", []byte(`{"kind":"CLOSE"}`)))
	n, err := c.Underlying().XLen(ctx, ns+":transitions").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_ = c.Underlying().Del(ctx, ns+":transitions").Err()
}

func TestNewSignalBus_Prefix(t *testing.T) {
	assert.Equal(t, "", (&SignalBus{}).prefix)
	bus := NewSignalBus(&Client{}, "hypejk")
	assert.Equal(t, "hypejk:", bus.prefix)
}
