package source

import (
	"math/rand"
	"net/http"
)

// acceptLanguages contains common browser Accept-Language values of japanese visitors
var acceptLanguages = []string{
	"ja,en-US;q=0.9,en;q=0.8",
	"ja-JP,ja;q=0.9",
	"ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7",
	"ja,en;q=0.9",
}

// addBrowserHeaders adds browser-like headers to listing and detail page requests
func addBrowserHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/rss+xml;q=0.8,*/*;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")

	// randomized language
	req.Header.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))]) //nolint:gosec // non-cryptographic randomness is fine for header variation

	req.Header.Set("Connection", "keep-alive")

	// dnt - 30% chance
	if rand.Float32() < 0.3 { //nolint:gosec // non-cryptographic randomness is fine
		req.Header.Set("DNT", "1")
	}
}
