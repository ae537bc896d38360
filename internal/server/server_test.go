package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uykb/hypejk/internal/domain"
	"github.com/uykb/hypejk/internal/pipeline"
	"github.com/uykb/hypejk/internal/server/handler"
)

type fakeStats struct{}

func (fakeStats) Stats() pipeline.Stats {
	return pipeline.Stats{Batches: 3, Signals: 2, Accounts: 1}
}

type fakeStore struct {
	events []domain.TransitionEvent
	err    error
	opts   domain.ListOpts
}

func (s *fakeStore) Insert(ctx context.Context, ev domain.TransitionEvent) error {
	return nil
}

func (s *fakeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TransitionEvent, error) {
	s.opts = opts
	return s.events, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(apiKey string, store domain.TransitionStore) *Server {
	return newTestServerWithProbes(apiKey, store, nil)
}

func newTestServerWithProbes(apiKey string, store domain.TransitionStore, probes map[string]handler.Probe) *Server {
	logger := discardLogger()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	return NewServer(Config{Port: 0, APIKey: apiKey}, Handlers{
		Health:      handler.NewHealthHandler(fakeStats{}, []string{"0xabc"}, probes, logger),
		Transitions: handler.NewTransitionHandler(store, logger),
		Metrics:     metrics,
	}, logger)
}

func do(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer("secret", nil)

	rec := do(t, srv.Handler(), "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string         `json:"status"`
		Addresses []string       `json:"addresses"`
		Pipeline  pipeline.Stats `json:"pipeline"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, []string{"0xabc"}, body.Addresses)
	assert.Equal(t, uint64(2), body.Pipeline.Signals)
}

func TestHealthDegradedOnProbeFailure(t *testing.T) {
	srv := newTestServerWithProbes("", nil, map[string]handler.Probe{
		"redis": func(ctx context.Context) error {
			return nil
		},
		"postgres": func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	})

	rec := do(t, srv.Handler(), "/api/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["redis"])
	assert.Equal(t, "connection refused", body.Checks["postgres"])
}

func TestMetricsIsPublic(t *testing.T) {
	srv := newTestServer("secret", nil)

	rec := do(t, srv.Handler(), "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestTransitionsRequiresKey(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer("secret", store)

	rec := do(t, srv.Handler(), "/api/transitions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv.Handler(), "/api/transitions", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv.Handler(), "/api/transitions", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv.Handler(), "/api/transitions", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTransitionsList(t *testing.T) {
	store := &fakeStore{events: []domain.TransitionEvent{{
		ID:        "id-1",
		Kind:      domain.TransitionOpen,
		Coin:      "BTC",
		Account:   "0xabc",
		Direction: domain.DirectionLong,
		Size:      decimal.RequireFromString("0.5"),
		Price:     decimal.RequireFromString("65000"),
	}}}
	srv := newTestServer("", store)

	rec := do(t, srv.Handler(), "/api/transitions?account=0xABC&limit=900&offset=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "0xabc", store.opts.Account)
	assert.Equal(t, 500, store.opts.Limit)
	assert.Equal(t, 2, store.opts.Offset)

	var body struct {
		Transitions []domain.TransitionEvent `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Transitions, 1)
	assert.Equal(t, "id-1", body.Transitions[0].ID)
	assert.True(t, body.Transitions[0].Size.Equal(decimal.RequireFromString("0.5")))
}

func TestTransitionsEmptyIsArray(t *testing.T) {
	srv := newTestServer("", &fakeStore{})

	rec := do(t, srv.Handler(), "/api/transitions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"transitions":[]`)
}

func TestTransitionsStoreError(t *testing.T) {
	srv := newTestServer("", &fakeStore{err: errors.New("boom")})

	rec := do(t, srv.Handler(), "/api/transitions", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTransitionsJournalDisabled(t *testing.T) {
	srv := newTestServer("", nil)

	rec := do(t, srv.Handler(), "/api/transitions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer("", nil)

	rec := do(t, srv.Handler(), "/api/orders", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
