package hyperliquid

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uykb/hypejk/internal/domain"
)

var upgrader = websocket.Upgrader{}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeServer upgrades every request and hands the connection to serve.
func fakeServer(t *testing.T, serve func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

const snapshotFrame = `{"channel":"userFills","data":{"isSnapshot":true,"user":"0xABC","fills":[
 {"coin":"BTC","px":"42000","sz":"0.1","side":"B","time":1,"startPosition":"0","dir":"Open Long","closedPnl":"0","hash":"0x1","oid":1,"crossed":true,"fee":"0.1","tid":1}]}}`

const liveFrame = `{"channel":"userFills","data":{"user":"0xABC","fills":[
 {"coin":"ETH","px":"2150.5","sz":"2","side":"A","time":1704067200000,"startPosition":"2","dir":"Close Long","closedPnl":"12.5","hash":"0x2","oid":2,"crossed":false,"fee":"0.2","tid":2}]}}`

func TestWSClient_SubscribeAndReceive(t *testing.T) {
	t.Parallel()

	subscribed := make(chan WSCommand, 1)
	url := fakeServer(t, func(conn *websocket.Conn) {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		subscribed <- cmd
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"subscriptionResponse","data":{"method":"subscribe"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(snapshotFrame))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"pong"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(liveFrame))
		// Hold the connection until the client goes away.
		_, _, _ = conn.ReadMessage()
	})

	client := NewWSClient(url, quietLogger())
	batches := make(chan domain.SubscriptionBatch, 4)
	client.OnUserFills(func(b domain.SubscriptionBatch) { batches <- b })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.SubscribeUserFills(ctx, "0xabc"))

	cmd := <-subscribed
	assert.Equal(t, "subscribe", cmd.Method)
	require.NotNil(t, cmd.Subscription)
	assert.Equal(t, "userFills", cmd.Subscription.Type)
	assert.Equal(t, "0xabc", cmd.Subscription.User)

	snap := <-batches
	assert.True(t, snap.IsSnapshot)
	assert.Equal(t, "0xabc", snap.Account)
	require.Len(t, snap.Fills, 1)

	live := <-batches
	assert.False(t, live.IsSnapshot)
	require.Len(t, live.Fills, 1)
	f := live.Fills[0]
	assert.Equal(t, "ETH", f.Coin)
	assert.Equal(t, "2150.5", f.Price)
	assert.Equal(t, "2", f.PositionBefore)
	assert.Equal(t, "Close Long", f.Label)
	assert.Equal(t, "0xabc", f.Account)
	assert.Equal(t, int64(1704067200000), f.TimestampMs)

	require.NoError(t, client.Close())
	<-client.Done()
	assert.NoError(t, client.Err())
}

func TestWSClient_SendsPing(t *testing.T) {
	t.Parallel()

	pings := make(chan string, 1)
	url := fakeServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case pings <- string(msg):
			default:
			}
		}
	})

	client := NewWSClient(url, quietLogger())
	client.pingPeriod = 10 * time.Millisecond
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	select {
	case msg := <-pings:
		assert.JSONEq(t, `{"method":"ping"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestWSClient_ServerDisconnect(t *testing.T) {
	t.Parallel()

	url := fakeServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	})

	client := NewWSClient(url, quietLogger())
	require.NoError(t, client.Connect(context.Background()))

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice disconnect")
	}
	require.ErrorIs(t, client.Err(), domain.ErrWSDisconnect)

	err := client.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrWSDisconnect)
}

func TestWSClient_SubscribeBeforeConnect(t *testing.T) {
	t.Parallel()

	client := NewWSClient("ws://127.0.0.1:0", quietLogger())
	require.Error(t, client.SubscribeUserFills(context.Background(), "0xabc"))
}

func TestUserFillsData_ToDomain(t *testing.T) {
	t.Parallel()

	var env WSEnvelope
	require.NoError(t, json.Unmarshal([]byte(liveFrame), &env))
	var data UserFillsData
	require.NoError(t, json.Unmarshal(env.Data, &data))

	data.Fills[0].User = "0xOWN"
	batch := data.ToDomain()
	assert.Equal(t, "0xabc", batch.Account)
	assert.Equal(t, "0xown", batch.Fills[0].Account, "fill's own user wins")
	assert.Equal(t, "12.5", batch.Fills[0].ClosedPnl)
	assert.Equal(t, int64(2), batch.Fills[0].Tid)
}
