package source

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pkgz/lgr"
	"github.com/mmcdole/gofeed"

	"github.com/umputun/lotwatch/pkg/domain"
)

// ParseFeed extracts items from an RSS or Atom listing.
// The price is taken from the first yen amount in the title or description.
func ParseFeed(body []byte, cat domain.Category) ([]domain.Item, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		item := domain.Item{
			Title:    cleanText(fi.Title),
			URL:      strings.TrimSpace(fi.Link),
			Category: cat,
			Thumb:    feedThumb(fi),
		}
		if price, ok := domain.FindPrice(fi.Title); ok {
			item.Price = price
		} else if price, ok := domain.FindPrice(cleanText(fi.Description)); ok {
			item.Price = price
		}
		if !item.Valid() {
			lgr.Printf("[DEBUG] skip feed item %q: %v", fi.GUID, ErrMalformed)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func feedThumb(fi *gofeed.Item) string {
	if fi.Image != nil && isHTTP(fi.Image.URL) {
		return fi.Image.URL
	}
	for _, enc := range fi.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && isHTTP(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

func isHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
