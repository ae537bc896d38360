package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/uykb/hypejk/internal/domain"
)

// TransitionHandler serves the journal of emitted transition events.
type TransitionHandler struct {
	store  domain.TransitionStore
	logger *slog.Logger
}

// NewTransitionHandler creates a TransitionHandler. A nil store means the
// journal is disabled and the endpoint answers 503.
func NewTransitionHandler(store domain.TransitionStore, logger *slog.Logger) *TransitionHandler {
	return &TransitionHandler{
		store:  store,
		logger: logHandler(logger, "transitions"),
	}
}

// ListRecent returns the most recent transitions, newest first.
// GET /api/transitions?account=0x...&limit=50&offset=0
func (h *TransitionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "transition journal disabled")
		return
	}

	opts := parseListOpts(r)
	opts.Account = strings.ToLower(strings.TrimSpace(r.URL.Query().Get("account")))

	events, err := h.store.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.Error("list transitions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list transitions")
		return
	}
	if events == nil {
		events = []domain.TransitionEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transitions": events,
		"limit":       opts.Limit,
		"offset":      opts.Offset,
	})
}
