package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uykb/hypejk/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleEvent(kind domain.TransitionKind) domain.TransitionEvent {
	return domain.TransitionEvent{
		ID:          "6f1c0c8e-0000-4000-8000-000000000001",
		Kind:        kind,
		Coin:        "BTC",
		Account:     "0xabc",
		Direction:   domain.DirectionLong,
		Size:        decimal.RequireFromString("1234.5"),
		Price:       decimal.RequireFromString("42000.5"),
		TimestampMs: 1704067200000,
	}
}

type fakeSender struct {
	name string
	err  error

	mu   sync.Mutex
	sent []domain.TransitionEvent
}

func (f *fakeSender) Send(_ context.Context, ev domain.TransitionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ev)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifier_FansOutAndJoinsErrors(t *testing.T) {
	t.Parallel()

	errDown := errors.New("down")
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b", err: errDown}
	c := &fakeSender{name: "c"}
	n := NewNotifier("chat", []Sender{a, b, c}, nil, nil, testLogger())

	err := n.Send(context.Background(), sampleEvent(domain.TransitionOpen))
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "1 sender(s) failed")

	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)
	assert.Len(t, c.sent, 1)
}

func TestNotifier_KindFilter(t *testing.T) {
	t.Parallel()

	s := &fakeSender{name: "s"}
	n := NewNotifier("chat", []Sender{s}, []string{"open", " CLOSE ", "bogus"}, nil, testLogger())

	for _, k := range domain.TransitionKinds {
		require.NoError(t, n.Send(context.Background(), sampleEvent(k)))
	}

	require.Len(t, s.sent, 2)
	assert.Equal(t, domain.TransitionOpen, s.sent[0].Kind)
	assert.Equal(t, domain.TransitionClose, s.sent[1].Kind)
}

func TestNotifier_NoSendersIsNoop(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := NewNotifier("chat", nil, nil, nil, logger)

	for i := 0; i < 3; i++ {
		require.NoError(t, n.Send(context.Background(), sampleEvent(domain.TransitionOpen)))
	}
	assert.Equal(t, 1, strings.Count(buf.String(), domain.ErrNoChannels.Error()))
	assert.Zero(t, n.Len())
}

func TestNotifier_Nested(t *testing.T) {
	t.Parallel()

	chat := &fakeSender{name: "feishu"}
	journal := &fakeSender{name: "journal"}
	chatGroup := NewNotifier("chat", []Sender{chat}, []string{"REVERSE"}, nil, testLogger())
	all := NewNotifier("all", []Sender{chatGroup, journal}, nil, nil, testLogger())

	require.NoError(t, all.Send(context.Background(), sampleEvent(domain.TransitionOpen)))
	require.NoError(t, all.Send(context.Background(), sampleEvent(domain.TransitionReverse)))

	assert.Len(t, chat.sent, 1)
	assert.Len(t, journal.sent, 2)
}

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  domain.TransitionKind
		title string
		color string
	}{
		{domain.TransitionOpen, "[OPEN] BTC LONG", ColorGreen},
		{domain.TransitionClose, "[CLOSE] BTC LONG", ColorRed},
		{domain.TransitionIncrease, "[INCREASE] BTC LONG", ColorYellow},
		{domain.TransitionDecrease, "[DECREASE] BTC LONG", ColorBlue},
		{domain.TransitionReverse, "[REVERSE] BTC 🔄", ColorPurple},
		{domain.TransitionUnknown, "[UNKNOWN] BTC LONG", ColorGrey},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			card := Render(sampleEvent(tt.kind))
			assert.Equal(t, tt.title, card.Title)
			assert.Equal(t, tt.color, card.Color)
		})
	}

	card := Render(sampleEvent(domain.TransitionOpen))
	require.Len(t, card.Fields, 4)
	assert.Equal(t, "0xabc", card.Fields[0].Value)
	assert.Equal(t, "1,234.5000", card.Fields[1].Value)
	assert.Equal(t, "$42,000.5000", card.Fields[2].Value)
	assert.Equal(t, "LONG", card.Fields[3].Value)
	assert.Equal(t, "Time: 2024-01-01 00:00:00 UTC", card.Note)
	assert.Contains(t, card.Text(), "Size: 1,234.5000\n")
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"0":           "0.0000",
		"1.5":         "1.5000",
		"999.99999":   "1,000.0000",
		"1234567.125": "1,234,567.1250",
		"-2500":       "-2,500.0000",
		"0.00001":     "0.0000",
		"-0.00001":    "0.0000",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatAmount(decimal.RequireFromString(in)), in)
	}
}

func TestFeishuSender(t *testing.T) {
	t.Parallel()

	t.Run("posts interactive card", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
		}))
		defer srv.Close()

		s := NewFeishuSender(srv.URL)
		require.NoError(t, s.Send(context.Background(), sampleEvent(domain.TransitionReverse)))

		assert.Equal(t, "interactive", got["msg_type"])
		card := got["card"].(map[string]any)
		header := card["header"].(map[string]any)
		assert.Equal(t, "purple", header["template"])
		assert.Equal(t, "[REVERSE] BTC 🔄", header["title"].(map[string]any)["content"])
		elements := card["elements"].([]any)
		require.Len(t, elements, 2)
		fields := elements[0].(map[string]any)["fields"].([]any)
		assert.Len(t, fields, 4)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()

		err := NewFeishuSender(srv.URL).Send(context.Background(), sampleEvent(domain.TransitionOpen))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("non-zero code is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"code":19021,"msg":"sign match fail"}`))
		}))
		defer srv.Close()

		err := NewFeishuSender(srv.URL).Send(context.Background(), sampleEvent(domain.TransitionOpen))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "19021")
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewFeishuSender(srv.URL).Send(ctx, sampleEvent(domain.TransitionOpen))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestDiscordSender(t *testing.T) {
	t.Parallel()

	var msg discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), sampleEvent(domain.TransitionClose)))
	require.Len(t, msg.Embeds, 1)

	embed := msg.Embeds[0]
	assert.Equal(t, "[CLOSE] BTC LONG", embed.Title)
	assert.Equal(t, 0xE74C3C, embed.Color)
	assert.Equal(t, "2024-01-01T00:00:00Z", embed.Timestamp)
	assert.Equal(t, "Time: 2024-01-01 00:00:00 UTC", embed.Footer.Text)
	require.Len(t, embed.Fields, 4)
	assert.Equal(t, discordField{Name: "Price", Value: "$42,000.5000", Inline: true}, embed.Fields[2])
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Unknown Webhook"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), sampleEvent(domain.TransitionOpen))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 404")
}

func TestTelegramSender(t *testing.T) {
	t.Parallel()

	var path string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("123:abc", "-100")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), sampleEvent(domain.TransitionIncrease)))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "-100", payload["chat_id"])
	assert.True(t, strings.HasPrefix(payload["text"].(string), "[INCREASE] BTC LONG\n"))
	assert.Equal(t, true, payload["disable_web_page_preview"])
	_, hasParseMode := payload["parse_mode"]
	assert.False(t, hasParseMode)
}

func TestTelegramSender_Rejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("123:abc", "-100")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), sampleEvent(domain.TransitionOpen))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
