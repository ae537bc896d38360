package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/uykb/hypejk/internal/domain"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus using Redis Pub/Sub for live
// subscribers and Redis Streams for consumers that join late. Channel and
// stream names are prefixed with the configured namespace.
type SignalBus struct {
	rdb    *redis.Client
	prefix string
}

// NewSignalBus creates a SignalBus backed by the given Client. A non-empty
// namespace is joined to every name with a colon, e.g. "hypejk:transitions".
func NewSignalBus(c *Client, namespace string) *SignalBus {
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	return &SignalBus{rdb: c.Underlying(), prefix: prefix}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	channel = sb.prefix + channel
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// StreamAppend appends a payload to a Redis stream using XADD with an
// approximate MAXLEN of 10,000 entries for automatic trimming.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	stream = sb.prefix + stream
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
