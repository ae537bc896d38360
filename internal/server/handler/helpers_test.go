package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", 50, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=0", 50, 0},
		{"limit=-3&offset=-1", 50, 0},
		{"limit=abc&offset=x", 50, 0},
		{"limit=100000", 500, 0},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			opts := parseListOpts(httptest.NewRequest("GET", "/api/transitions?"+tc.query, nil))
			assert.Equal(t, tc.limit, opts.Limit)
			assert.Equal(t, tc.offset, opts.Offset)
		})
	}
}
