package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/uykb/hypejk/internal/pipeline"
)

const probeTimeout = 2 * time.Second

// StatsSource reports pipeline counters.
type StatsSource interface {
	Stats() pipeline.Stats
}

// Probe checks one backend dependency.
type Probe func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	stats     StatsSource
	addresses []string
	probes    map[string]Probe
	started   time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. stats and probes may be nil.
func NewHealthHandler(stats StatsSource, addresses []string, probes map[string]Probe, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		stats:     stats,
		addresses: addresses,
		probes:    probes,
		started:   time.Now(),
		logger:    logHandler(logger, "health"),
	}
}

// HealthCheck reports uptime, pipeline counters and backend probes. Any
// failing probe turns the status to "degraded" with a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK

	checks := make(map[string]string, len(h.probes))
	for name, probe := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := probe(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("health probe failed",
				slog.String("probe", name),
				slog.String("error", err.Error()),
			)
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"addresses":      h.addresses,
		"checks":         checks,
	}
	if h.stats != nil {
		body["pipeline"] = h.stats.Stats()
	}
	writeJSON(w, code, body)
}
