// Package notify renders item cards and posts them to a Discord-compatible chat webhook
package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/umputun/lotwatch/pkg/domain"
)

// MaxCards is the number of cards the chat platform accepts in one message
const MaxCards = 10

// maxTitleRunes is the card title limit of the chat platform
const maxTitleRunes = 256

// Message is one webhook post, a text line followed by item cards
type Message struct {
	Content string `json:"content"`
	Cards   []Card `json:"embeds"`
}

// Card is a rich item card
type Card struct {
	Title  string  `json:"title"`
	URL    string  `json:"url,omitempty"`
	Color  int     `json:"color"`
	Fields []Field `json:"fields"`
	Image  *Image  `json:"image,omitempty"`
}

// Field is a card field
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Image is a card image
type Image struct {
	URL string `json:"url"`
}

// RenderCard builds the card of an item. link is the URL the card title points to.
func RenderCard(item domain.Item, tier domain.Tier, link string) Card {
	fields := []Field{
		{Name: "優先度", Value: strings.TrimSpace(tier.Icon() + " " + tier.Label()), Inline: true},
		{Name: "販売形式", Value: item.Category.Label(), Inline: true},
		{Name: "価格", Value: domain.FormatPrice(item.Price), Inline: true},
	}
	if item.BuyNow != nil {
		fields = append(fields, Field{Name: "即決価格", Value: domain.FormatPrice(*item.BuyNow), Inline: true})
	}

	card := Card{
		Title:  truncate(item.Title, maxTitleRunes),
		URL:    link,
		Color:  tier.Color(),
		Fields: fields,
	}
	if strings.HasPrefix(item.Thumb, "http://") || strings.HasPrefix(item.Thumb, "https://") {
		card.Image = &Image{URL: item.Thumb}
	}
	return card
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Dump writes a readable form of the message, used by dry runs
func Dump(w io.Writer, msg Message) error {
	if _, err := fmt.Fprintf(w, "=== DRY RUN ===\n%s\n", msg.Content); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, c := range msg.Cards {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal card: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("write card: %w", err)
		}
	}
	return nil
}
