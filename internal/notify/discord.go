package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/uykb/hypejk/internal/domain"
)

// Embed colors matching the card color names.
var discordColors = map[string]int{
	ColorGreen:  0x2ECC71,
	ColorRed:    0xE74C3C,
	ColorYellow: 0xF1C40F,
	ColorBlue:   0x3498DB,
	ColorPurple: 0x9B59B6,
	ColorGrey:   0x95A5A6,
}

// DiscordSender delivers events as embeds via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     newWebhookClient(),
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Footer    discordFooter  `json:"footer"`
	Timestamp string         `json:"timestamp"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

func buildDiscordMessage(c Card, at time.Time) discordMessage {
	embed := discordEmbed{
		Title:     c.Title,
		Color:     discordColors[c.Color],
		Fields:    make([]discordField, 0, len(c.Fields)),
		Footer:    discordFooter{Text: c.Note},
		Timestamp: at.UTC().Format(time.RFC3339),
	}
	for _, f := range c.Fields {
		embed.Fields = append(embed.Fields, discordField{Name: f.Label, Value: f.Value, Inline: true})
	}
	return discordMessage{Embeds: []discordEmbed{embed}}
}

// Send posts the rendered card as a single embed. Discord answers 204 on
// success.
func (d *DiscordSender) Send(ctx context.Context, ev domain.TransitionEvent) error {
	if _, err := postJSON(ctx, d.client, d.webhookURL, buildDiscordMessage(Render(ev), ev.Time())); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
