package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/uykb/hypejk/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// writeJSON writes v as the JSON response body with the given status. A
// marshal failure becomes a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts reads limit and offset from the query string. Missing or
// invalid values fall back to limit=50 and offset=0; limit is capped at 500.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	return domain.ListOpts{
		Limit:  min(queryInt(q.Get("limit"), defaultLimit, 1), maxLimit),
		Offset: queryInt(q.Get("offset"), 0, 0),
	}
}

// queryInt parses v, returning fallback when it is empty, malformed or below
// floor.
func queryInt(v string, fallback, floor int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return fallback
	}
	return n
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("handler", handler))
}
