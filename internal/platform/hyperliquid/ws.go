package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uykb/hypejk/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the longest silence tolerated before the connection is
	// treated as dead. The server answers every ping, so this must exceed
	// pingPeriod.
	readWait = 90 * time.Second

	// pingPeriod sends application-level pings at this interval. The server
	// drops connections idle for 60s.
	pingPeriod = 50 * time.Second
)

// UserFillsHandler is called for every userFills push, on the read goroutine.
type UserFillsHandler func(domain.SubscriptionBatch)

// WSClient is a single-use WebSocket connection to the Hyperliquid
// subscription API. It does not reconnect on its own: once Done is closed the
// caller builds a new client.
type WSClient struct {
	wsURL  string
	logger *slog.Logger

	// mu serialises writes and guards conn.
	mu   sync.Mutex
	conn *websocket.Conn

	handlers  []UserFillsHandler
	handlerMu sync.RWMutex

	closing  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	errMu    sync.Mutex
	err      error

	pingPeriod time.Duration
}

// NewWSClient creates a client for wsURL, e.g. "wss://api.hyperliquid.xyz/ws".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		wsURL:      wsURL,
		logger:     logger.With(slog.String("component", "hyperliquid_ws")),
		done:       make(chan struct{}),
		pingPeriod: pingPeriod,
	}
}

// Connect dials the server and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return fmt.Errorf("hyperliquid/ws: %w", domain.ErrWSDisconnect)
	default:
	}
	if w.conn != nil {
		return errors.New("hyperliquid/ws: already connected")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("hyperliquid/ws: connect: %w", err)
	}

	w.conn = conn
	_ = w.conn.SetReadDeadline(time.Now().Add(readWait))

	go w.readLoop(conn)
	go w.pingLoop()

	return nil
}

// SubscribeUserFills subscribes to fills for user. The first push after
// subscribing is a snapshot of recent history.
func (w *WSClient) SubscribeUserFills(ctx context.Context, user string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("hyperliquid/ws: subscribe: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("hyperliquid/ws: not connected")
	}

	cmd := WSCommand{
		Method:       "subscribe",
		Subscription: &Subscription{Type: "userFills", User: user},
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("hyperliquid/ws: subscribe userFills %s: %w", user, err)
	}
	return nil
}

// OnUserFills registers a handler for userFills pushes.
func (w *WSClient) OnUserFills(handler UserFillsHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Done is closed when the connection ends, whether by Close or by a read or
// write failure.
func (w *WSClient) Done() <-chan struct{} {
	return w.done
}

// Err returns why the connection ended, or nil while it is alive or after a
// clean Close.
func (w *WSClient) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Close shuts down the connection and stops both loops.
func (w *WSClient) Close() error {
	w.closing.Store(true)

	w.mu.Lock()
	conn := w.conn
	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}
	w.mu.Unlock()

	w.stop(nil)
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// stop records cause (first caller wins), closes done and the socket. Errors
// raised while Close is in progress are not recorded.
func (w *WSClient) stop(cause error) {
	w.stopOnce.Do(func() {
		if cause != nil && !w.closing.Load() {
			w.errMu.Lock()
			w.err = fmt.Errorf("hyperliquid/ws: %w: %v", domain.ErrWSDisconnect, cause)
			w.errMu.Unlock()
		}
		close(w.done)

		w.mu.Lock()
		if w.conn != nil {
			_ = w.conn.Close()
		}
		w.mu.Unlock()
	})
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
			default:
				w.stop(err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		w.handleMessage(message)
	}
}

// pingLoop sends {"method":"ping"} to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(w.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			err := w.sendCommand(WSCommand{Method: "ping"})
			w.mu.Unlock()
			if err != nil {
				w.stop(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// handleMessage routes a raw frame by channel. Unparseable frames are
// dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var env WSEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		w.logger.Debug("dropping unparseable message", slog.String("error", err.Error()))
		return
	}

	switch env.Channel {
	case "userFills":
		var data UserFillsData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			w.logger.Debug("dropping malformed userFills message", slog.String("error", err.Error()))
			return
		}
		batch := data.ToDomain()

		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(batch)
		}

	case "pong", "subscriptionResponse":

	case "error":
		w.logger.Warn("server reported error", slog.String("data", string(env.Data)))

	default:
		w.logger.Debug("ignoring message", slog.String("channel", env.Channel))
	}
}
