package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// maxPriceDigits guards against overflow on garbage input
const maxPriceDigits = 12

var priceTokenRe = regexp.MustCompile(`[¥￥]\s*[0-9][0-9,，]*|[0-9][0-9,，]*\s*円`)

// ParsePrice converts a price text like "11,000円" into 11000.
// All non-digit characters are ignored, absent or unparsable input gives 0.
func ParsePrice(s string) int {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()
	if digits == "" || len(digits) > maxPriceDigits {
		return 0
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return v
}

// FindPrice locates the first yen price token in free text and parses it.
// Returns false if the text has no price token.
func FindPrice(text string) (int, bool) {
	tok := priceTokenRe.FindString(text)
	if tok == "" {
		return 0, false
	}
	return ParsePrice(tok), true
}

// HasPriceMarker reports whether text looks like it carries a price
func HasPriceMarker(text string) bool {
	if !strings.ContainsAny(text, "円¥￥") {
		return false
	}
	return strings.ContainsAny(text, "0123456789")
}

// FormatPrice renders a price as "11,000円"
func FormatPrice(v int) string {
	s := strconv.Itoa(v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var sb strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	res := sb.String() + "円"
	if neg {
		return "-" + res
	}
	return res
}
