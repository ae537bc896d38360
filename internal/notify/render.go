package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uykb/hypejk/internal/domain"
)

// TimeLayout formats fill times on cards.
const TimeLayout = "2006-01-02 15:04:05"

// Card colors, named after the Feishu header templates.
const (
	ColorGreen  = "green"
	ColorRed    = "red"
	ColorYellow = "yellow"
	ColorBlue   = "blue"
	ColorPurple = "purple"
	ColorGrey   = "grey"
)

var kindColors = map[domain.TransitionKind]string{
	domain.TransitionOpen:     ColorGreen,
	domain.TransitionClose:    ColorRed,
	domain.TransitionIncrease: ColorYellow,
	domain.TransitionDecrease: ColorBlue,
	domain.TransitionReverse:  ColorPurple,
}

// Field is one labelled value on a card.
type Field struct {
	Label string
	Value string
}

// Card is the channel-neutral rendering of an event.
type Card struct {
	Title  string
	Color  string
	Fields []Field
	Note   string
}

// Render builds the card for ev.
func Render(ev domain.TransitionEvent) Card {
	title := fmt.Sprintf("[%s] %s %s", ev.Kind, ev.Coin, ev.Direction)
	if ev.Kind == domain.TransitionReverse {
		title = fmt.Sprintf("[%s] %s 🔄", ev.Kind, ev.Coin)
	}

	color, ok := kindColors[ev.Kind]
	if !ok {
		color = ColorGrey
	}

	return Card{
		Title: title,
		Color: color,
		Fields: []Field{
			{Label: "Address", Value: ev.Account},
			{Label: "Size", Value: FormatAmount(ev.Size)},
			{Label: "Price", Value: "$" + FormatAmount(ev.Price)},
			{Label: "Direction", Value: string(ev.Direction)},
		},
		Note: "Time: " + ev.Time().Format(TimeLayout) + " UTC",
	}
}

// Text renders the card body as plain lines for text-only channels.
func (c Card) Text() string {
	var b strings.Builder
	for _, f := range c.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Label, f.Value)
	}
	b.WriteString(c.Note)
	return b.String()
}

// FormatAmount renders d with four decimals and comma thousands separators,
// e.g. 1234567.5 -> "1,234,567.5000".
func FormatAmount(d decimal.Decimal) string {
	s := d.Abs().StringFixed(4)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.Sign() < 0 && !d.Abs().Round(4).IsZero() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
