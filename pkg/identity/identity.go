// Package identity derives stable deduplication keys from listing URLs.
//
// Normalize maps superficially different URLs of the same listing (scheme,
// protocol-relative prefix, query string, fragment, trailing slash) to one
// canonical string, KeyOf hashes that string into the Key stored in the seen-set.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Key is the dedup key of an item, hex-encoded sha256 of the normalized URL
type Key string

// shortLen is the number of hex chars used for display
const shortLen = 8

// Short returns an abbreviated key for logs and cards, never use it for dedup
func (k Key) Short() string {
	if len(k) <= shortLen {
		return string(k)
	}
	return string(k[:shortLen])
}

// Normalize returns the canonical form of a listing URL.
// It extracts the last "{category}/{numeric-id}" pair of the path. If the URL has no
// such pair the raw URL is returned without query, fragment and trailing slashes.
// Normalize is idempotent.
func Normalize(rawURL string) string {
	res := normalizeOnce(rawURL)
	// trimming in the fallback can expose a new id pair or more trailing junk,
	// repeat until stable, each pass either returns a pair or shrinks the string
	for {
		next := normalizeOnce(res)
		if next == res {
			return res
		}
		res = next
	}
}

func normalizeOnce(rawURL string) string {
	u := stripQuery(strings.TrimSpace(rawURL))

	path := u
	switch {
	case strings.HasPrefix(path, "https:"):
		path = path[len("https:"):]
	case strings.HasPrefix(path, "http:"):
		path = path[len("http:"):]
	}
	if strings.HasPrefix(path, "//") {
		// drop host
		rest := path[2:]
		idx := strings.IndexByte(rest, '/')
		if idx < 0 {
			rest = ""
		} else {
			rest = rest[idx:]
		}
		path = rest
	}

	segs := strings.Split(path, "/")
	for i := len(segs) - 1; i >= 1; i-- {
		if isNumeric(segs[i]) && isSegmentName(segs[i-1]) {
			return segs[i-1] + "/" + segs[i]
		}
	}

	return strings.TrimRightFunc(u, func(r rune) bool { return r == '/' || unicode.IsSpace(r) })
}

// KeyOf returns the dedup key for a listing URL
func KeyOf(rawURL string) Key {
	sum := sha256.Sum256([]byte(Normalize(rawURL)))
	return Key(hex.EncodeToString(sum[:]))
}

// stripQuery removes the query string and fragment
func stripQuery(u string) string {
	if idx := strings.IndexAny(u, "?#"); idx >= 0 {
		return u[:idx]
	}
	return u
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isSegmentName accepts path segments like "auctions" or "exist_products"
func isSegmentName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '-' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}
