package source

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"

	"github.com/umputun/lotwatch/pkg/config"
	"github.com/umputun/lotwatch/pkg/domain"
)

const buyNowMarker = "即決"

var textPolicy = bluemonday.StrictPolicy()

// ParseListing extracts items from an html listing page using the source selectors.
// Cards without URL or title are skipped.
func ParseListing(body []byte, src config.Source) ([]domain.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(src.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", src.BaseURL, err)
	}

	var items []domain.Item
	doc.Find(src.Selectors.Card).Each(func(i int, card *goquery.Selection) {
		item, err := parseCard(card, src.Selectors, base, src.Category)
		if err != nil {
			lgr.Printf("[DEBUG] skip card %d of %s: %v", i, src.URL, err)
			return
		}
		items = append(items, item)
	})
	return items, nil
}

func parseCard(card *goquery.Selection, sel config.Selectors, base *url.URL, cat domain.Category) (domain.Item, error) {
	item := domain.Item{
		Title:    cleanText(card.Find(sel.Title).First().Text()),
		Price:    domain.ParsePrice(priceText(card, sel.Price)),
		Category: cat,
	}

	if h := card.Find(sel.BuyNow).First(); h.Length() > 0 && strings.Contains(h.Text(), buyNowMarker) {
		v := domain.ParsePrice(h.Text())
		item.BuyNow = &v
	}

	if href, ok := card.Find(sel.Link).First().Attr("href"); ok {
		item.URL = absURL(base, href)
	}

	if src, ok := card.Find(sel.Thumb).First().Attr("src"); ok {
		if thumb := absURL(base, src); isHTTP(thumb) {
			item.Thumb = thumb
		}
	}

	if !item.Valid() {
		return domain.Item{}, fmt.Errorf("title %q, url %q: %w", item.Title, item.URL, ErrMalformed)
	}
	return item, nil
}

// priceText returns the text of the price element, falling back to the first
// paragraph or heading that looks like a price
func priceText(card *goquery.Selection, selector string) string {
	if p := card.Find(selector).First(); p.Length() > 0 {
		return strings.TrimSpace(p.Text())
	}
	var res string
	card.Find("p, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.TrimSpace(s.Text())
		if domain.HasPriceMarker(txt) {
			res = txt
			return false
		}
		return true
	})
	return res
}

// absURL resolves relative and protocol-relative links against base
func absURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil || base.Host == "" {
		if ref.Scheme == "" && strings.HasPrefix(href, "//") {
			ref.Scheme = "https"
		}
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// cleanText strips markup and collapses whitespace
func cleanText(s string) string {
	s = html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
