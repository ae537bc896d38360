package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/uykb/hypejk/internal/domain"
)

// maxFillsPerPage is the most fills the info endpoint returns per request.
const maxFillsPerPage = 2000

// InfoClient is the REST client for the Hyperliquid info endpoint.
type InfoClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewInfoClient creates a new info client.
//
// baseURL is the API root, e.g. "https://api.hyperliquid.xyz".
func NewInfoClient(baseURL string) *InfoClient {
	return &InfoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UserFills returns the most recent fills for user, oldest first.
func (c *InfoClient) UserFills(ctx context.Context, user string) ([]domain.Fill, error) {
	var wire []WireFill
	if err := c.post(ctx, InfoRequest{Type: "userFills", User: user}, &wire); err != nil {
		return nil, fmt.Errorf("hyperliquid/info: userFills: %w", err)
	}
	return toDomainSorted(wire, user), nil
}

// UserFillsByTime returns fills for user in [startMs, endMs], oldest first.
// endMs <= 0 means "until now". Pages are requested until a short page, a
// page with nothing new or the end of the window.
//
// Each page after the first starts at the last timestamp already seen, since
// a full page can end partway through a millisecond. Fills repeated across
// the page boundary are dropped by hash and trade id.
func (c *InfoClient) UserFillsByTime(ctx context.Context, user string, startMs, endMs int64) ([]domain.Fill, error) {
	var all []domain.Fill
	seen := make(map[fillKey]struct{})
	cursor := startMs

	for {
		req := InfoRequest{Type: "userFillsByTime", User: user, StartTime: &cursor}
		if endMs > 0 {
			end := endMs
			req.EndTime = &end
		}

		var wire []WireFill
		if err := c.post(ctx, req, &wire); err != nil {
			return nil, fmt.Errorf("hyperliquid/info: userFillsByTime: %w", err)
		}

		page := toDomainSorted(wire, user)
		added := 0
		for _, f := range page {
			k := fillKey{hash: f.Hash, tid: f.Tid}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			all = append(all, f)
			added++
		}

		if len(wire) < maxFillsPerPage || added == 0 {
			break
		}
		next := page[len(page)-1].TimestampMs
		if next < cursor || (endMs > 0 && next > endMs) {
			break
		}
		cursor = next
	}

	sortFills(all)
	return all, nil
}

type fillKey struct {
	hash string
	tid  int64
}

func toDomainSorted(wire []WireFill, user string) []domain.Fill {
	account := strings.ToLower(user)
	fills := make([]domain.Fill, 0, len(wire))
	for _, f := range wire {
		fills = append(fills, f.ToDomain(account))
	}
	sortFills(fills)
	return fills
}

func sortFills(fills []domain.Fill) {
	sort.SliceStable(fills, func(i, j int) bool {
		if fills[i].TimestampMs != fills[j].TimestampMs {
			return fills[i].TimestampMs < fills[j].TimestampMs
		}
		return fills[i].Tid < fills[j].Tid
	})
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// post sends body to /info and decodes the JSON response into out.
func (c *InfoClient) post(ctx context.Context, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > 512 {
			respBody = respBody[:512]
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
