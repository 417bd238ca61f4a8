package classifier

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-pkgz/lgr"
)

//go:generate moq -out mocks/tagger.go -pkg mocks -skip-ensure -fmt goimports . Tagger

// Tagger reports which titles sell an excluded kind of art
type Tagger interface {
	ExcludedTitles(ctx context.Context, titles []string) ([]bool, error)
}

// Verdict is the keyword rule outcome for a title
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictAllow
	VerdictExclude
)

// standingPortrait is always allowed, even when excluded keywords are present
const standingPortrait = "立ち絵"

// excludedKeywords cover logos, interface parts and backgrounds
var excludedKeywords = []string{
	"ロゴ", "logo", "タイトルロゴ", "ロゴデザイン", "ロゴ制作",
	"ui", "配信素材", "overlay", "フレーム", "hud", "ウィジェット",
	"背景", "background", "scenery", "風景", "背景素材", "背景イラスト",
}

// allowedKeywords name art kinds that are always notified
var allowedKeywords = []string{"アイコン", "icon", "sd", "デフォルメ", "ちび"}

// KeywordVerdict applies the keyword rules to a title.
// Latin keywords match whole words only, japanese keywords match anywhere.
func KeywordVerdict(title string) Verdict {
	if strings.Contains(title, standingPortrait) {
		return VerdictAllow
	}
	text := strings.ToLower(title)
	if containsAny(text, excludedKeywords) {
		return VerdictExclude
	}
	if containsAny(text, allowedKeywords) {
		return VerdictAllow
	}
	return VerdictUnknown
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if isLatin(k) {
			if hasWord(text, k) {
				return true
			}
			continue
		}
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// hasWord reports whether word appears in text delimited by non-latin characters
func hasWord(text, word string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		before := i == 0 || !isLatinRune(lastRune(text[:i]))
		after := end == len(text) || !isLatinRune(firstRune(text[end:]))
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isLatin(s string) bool {
	for _, r := range s {
		if !isLatinRune(r) {
			return false
		}
	}
	return true
}

func isLatinRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}

// ContentFilter excludes listings of logos, interface parts and backgrounds
type ContentFilter struct {
	tagger Tagger
}

// NewContentFilter makes a content filter, the tagger is optional and consulted
// only for titles the keyword rules can't decide
func NewContentFilter(tagger Tagger) *ContentFilter {
	return &ContentFilter{tagger: tagger}
}

// Excluded reports for each title whether it should be excluded. Tagger failures mean "not excluded".
func (f *ContentFilter) Excluded(ctx context.Context, titles []string) []bool {
	res := make([]bool, len(titles))
	var unknown []int
	for i, title := range titles {
		switch KeywordVerdict(title) {
		case VerdictExclude:
			res[i] = true
		case VerdictUnknown:
			unknown = append(unknown, i)
		}
	}
	if f.tagger == nil || len(unknown) == 0 {
		return res
	}

	ask := make([]string, len(unknown))
	for j, idx := range unknown {
		ask[j] = titles[idx]
	}
	tags, err := f.tagger.ExcludedTitles(ctx, ask)
	if err != nil {
		lgr.Printf("[WARN] content tagging failed, %d titles not filtered: %v", len(ask), err)
		return res
	}
	for j, idx := range unknown {
		if j < len(tags) && tags[j] {
			res[idx] = true
		}
	}
	return res
}
