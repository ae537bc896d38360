package hyperliquid

import (
	"encoding/json"
	"strings"

	"github.com/uykb/hypejk/internal/domain"
)

// Public endpoints.
const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	MainnetWSURL  = "wss://api.hyperliquid.xyz/ws"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"
	TestnetWSURL  = "wss://api.hyperliquid-testnet.xyz/ws"
)

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// Subscription identifies a feed on the WebSocket API.
type Subscription struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// WSCommand is a client-to-server message.
type WSCommand struct {
	Method       string        `json:"method"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// WSEnvelope is the outer frame of every server message. Data is decoded
// according to Channel.
type WSEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// UserFillsData is the payload of the "userFills" channel.
type UserFillsData struct {
	IsSnapshot bool       `json:"isSnapshot"`
	User       string     `json:"user"`
	Fills      []WireFill `json:"fills"`
}

// WireFill is a fill as sent by both the WebSocket and the info endpoint.
// Numeric fields arrive as decimal strings.
type WireFill struct {
	Coin          string `json:"coin"`
	Px            string `json:"px"`
	Sz            string `json:"sz"`
	Side          string `json:"side"` // "B" bid / "A" ask
	Time          int64  `json:"time"`
	StartPosition string `json:"startPosition"`
	Dir           string `json:"dir"` // e.g. "Open Long", "Close Short"
	ClosedPnl     string `json:"closedPnl"`
	Hash          string `json:"hash"`
	Oid           int64  `json:"oid"`
	Crossed       bool   `json:"crossed"`
	Fee           string `json:"fee"`
	Tid           int64  `json:"tid"`
	User          string `json:"user,omitempty"`
}

// ToDomain converts the wire fill. account is used when the fill carries no
// user of its own.
func (f WireFill) ToDomain(account string) domain.Fill {
	user := f.User
	if user == "" {
		user = account
	}
	return domain.Fill{
		Coin:           f.Coin,
		Price:          f.Px,
		Size:           f.Sz,
		TimestampMs:    f.Time,
		PositionBefore: f.StartPosition,
		Label:          f.Dir,
		Account:        strings.ToLower(user),
		Side:           f.Side,
		Hash:           f.Hash,
		Oid:            f.Oid,
		Tid:            f.Tid,
		Fee:            f.Fee,
		ClosedPnl:      f.ClosedPnl,
		Crossed:        f.Crossed,
	}
}

// ToDomain converts the channel payload into a batch.
func (d UserFillsData) ToDomain() domain.SubscriptionBatch {
	account := strings.ToLower(d.User)
	fills := make([]domain.Fill, 0, len(d.Fills))
	for _, f := range d.Fills {
		fills = append(fills, f.ToDomain(account))
	}
	return domain.SubscriptionBatch{
		IsSnapshot: d.IsSnapshot,
		Account:    account,
		Fills:      fills,
	}
}

// --------------------------------------------------------------------------
// Info endpoint DTOs
// --------------------------------------------------------------------------

// InfoRequest is the body of POST /info.
type InfoRequest struct {
	Type            string `json:"type"`
	User            string `json:"user"`
	StartTime       *int64 `json:"startTime,omitempty"`
	EndTime         *int64 `json:"endTime,omitempty"`
	AggregateByTime bool   `json:"aggregateByTime,omitempty"`
}
