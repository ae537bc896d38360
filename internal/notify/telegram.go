package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/uykb/hypejk/internal/domain"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers events via the Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPIBase,
		client:  newWebhookClient(),
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts the card as plain text with sendMessage. No parse mode is set,
// so addresses and amounts need no escaping.
func (t *TelegramSender) Send(ctx context.Context, ev domain.TransitionEvent) error {
	card := Render(ev)
	msg := telegramMessage{
		ChatID:                t.chatID,
		Text:                  card.Title + "\n" + card.Text(),
		DisableWebPagePreview: true,
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	body, err := postJSON(ctx, t.client, url, msg)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	var resp telegramResponse
	if json.Unmarshal(body, &resp) == nil && !resp.OK {
		return fmt.Errorf("telegram: rejected: %s", resp.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
