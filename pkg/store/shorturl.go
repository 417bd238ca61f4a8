package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// DefaultShortURLSize is used when the configured size is not positive
const DefaultShortURLSize = 500

type shortEntry struct {
	Short   string `json:"short"`
	AddedAt int64  `json:"added_at"`
}

// ShortURLs caches the display form of item URLs
type ShortURLs struct {
	entries map[string]shortEntry
	maxSize int
}

// NewShortURLs makes an empty cache bounded by maxSize entries
func NewShortURLs(maxSize int) *ShortURLs {
	if maxSize <= 0 {
		maxSize = DefaultShortURLSize
	}
	return &ShortURLs{entries: map[string]shortEntry{}, maxSize: maxSize}
}

// LoadShortURLs loads the cache from the backend, empty on any failure
func LoadShortURLs(ctx context.Context, b Backend, maxSize int) *ShortURLs {
	s := NewShortURLs(maxSize)
	var raw map[string]shortEntry
	if loadDoc(ctx, b, DocShortURLs, &raw) {
		for u, e := range raw {
			s.entries[u] = e
		}
		s.trim()
	}
	return s
}

// Shorten returns the cached short form of url, creating it on miss.
// The short form is the url tagged with a hash fragment, "url#s=1a2b3c4d".
func (s *ShortURLs) Shorten(url string, now time.Time) string {
	if url == "" {
		return ""
	}
	if e, ok := s.entries[url]; ok {
		return e.Short
	}
	sum := sha256.Sum256([]byte(url))
	short := url + "#s=" + hex.EncodeToString(sum[:])[:8]
	s.entries[url] = shortEntry{Short: short, AddedAt: now.Unix()}
	s.trim()
	return short
}

// Len returns the number of cached urls
func (s *ShortURLs) Len() int {
	return len(s.entries)
}

// Document returns the persistable snapshot
func (s *ShortURLs) Document() Document {
	snapshot := make(map[string]shortEntry, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	return Document{Name: DocShortURLs, Value: snapshot}
}

func (s *ShortURLs) trim() {
	for _, k := range oldestFirst(s.entries, len(s.entries)-s.maxSize, func(e shortEntry) int64 { return e.AddedAt }) {
		delete(s.entries, k)
	}
}

// oldestFirst returns the n keys with the smallest timestamps, ties broken by key
func oldestFirst[V any](m map[string]V, n int, ts func(V) int64) []string {
	if n <= 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := ts(m[keys[i]]), ts(m[keys[j]])
		if ti != tj {
			return ti < tj
		}
		return keys[i] < keys[j]
	})
	if n > len(keys) {
		n = len(keys)
	}
	return keys[:n]
}
