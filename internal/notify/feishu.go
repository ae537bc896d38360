package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/uykb/hypejk/internal/domain"
)

// FeishuSender delivers events as interactive cards to a Feishu (Lark) bot
// webhook.
type FeishuSender struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuSender creates a FeishuSender for the given webhook URL.
func NewFeishuSender(webhookURL string) *FeishuSender {
	return &FeishuSender{
		webhookURL: webhookURL,
		client:     newWebhookClient(),
	}
}

type feishuText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type feishuField struct {
	IsShort bool       `json:"is_short"`
	Text    feishuText `json:"text"`
}

type feishuElement struct {
	Tag      string        `json:"tag"`
	Fields   []feishuField `json:"fields,omitempty"`
	Elements []feishuText  `json:"elements,omitempty"`
}

type feishuCard struct {
	Config struct {
		WideScreenMode bool `json:"wide_screen_mode"`
		EnableForward  bool `json:"enable_forward"`
	} `json:"config"`
	Header struct {
		Title    feishuText `json:"title"`
		Template string     `json:"template"`
	} `json:"header"`
	Elements []feishuElement `json:"elements"`
}

type feishuMessage struct {
	MsgType string     `json:"msg_type"`
	Card    feishuCard `json:"card"`
}

// feishuResponse covers both the current {"code","msg"} body and the legacy
// {"StatusCode","StatusMessage"} one.
type feishuResponse struct {
	Code          int    `json:"code"`
	Msg           string `json:"msg"`
	StatusCode    int    `json:"StatusCode"`
	StatusMessage string `json:"StatusMessage"`
}

func buildFeishuMessage(c Card) feishuMessage {
	var card feishuCard
	card.Config.WideScreenMode = true
	card.Config.EnableForward = true
	card.Header.Title = feishuText{Tag: "plain_text", Content: c.Title}
	card.Header.Template = c.Color

	fields := make([]feishuField, 0, len(c.Fields))
	for _, f := range c.Fields {
		fields = append(fields, feishuField{
			IsShort: true,
			Text:    feishuText{Tag: "lark_md", Content: fmt.Sprintf("**%s**\n%s", f.Label, f.Value)},
		})
	}
	card.Elements = []feishuElement{
		{Tag: "div", Fields: fields},
		{Tag: "note", Elements: []feishuText{{Tag: "plain_text", Content: c.Note}}},
	}

	return feishuMessage{MsgType: "interactive", Card: card}
}

// Send posts the rendered card to the webhook.
func (f *FeishuSender) Send(ctx context.Context, ev domain.TransitionEvent) error {
	body, err := postJSON(ctx, f.client, f.webhookURL, buildFeishuMessage(Render(ev)))
	if err != nil {
		return fmt.Errorf("feishu: %w", err)
	}

	// Feishu reports rejected payloads with HTTP 200 and a non-zero code.
	var fr feishuResponse
	if len(body) > 0 && json.Unmarshal(body, &fr) == nil {
		if fr.Code != 0 {
			return fmt.Errorf("feishu: rejected with code %d: %s", fr.Code, fr.Msg)
		}
		if fr.StatusCode != 0 {
			return fmt.Errorf("feishu: rejected with code %d: %s", fr.StatusCode, fr.StatusMessage)
		}
	}
	return nil
}

// Name returns the sender identifier.
func (f *FeishuSender) Name() string {
	return "feishu"
}
