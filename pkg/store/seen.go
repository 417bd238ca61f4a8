package store

import (
	"context"
	"sort"
	"time"

	"github.com/umputun/lotwatch/pkg/identity"
)

// SeenSet records identity keys already processed, with their first-seen time.
// Once a key is marked it is never admitted again until pruned.
type SeenSet struct {
	entries map[identity.Key]int64 // unix seconds of first observation
}

// NewSeenSet makes an empty seen-set
func NewSeenSet() *SeenSet {
	return &SeenSet{entries: map[identity.Key]int64{}}
}

// LoadSeenSet loads the seen-set from the backend, empty on any failure
func LoadSeenSet(ctx context.Context, b Backend) *SeenSet {
	s := NewSeenSet()
	var raw map[identity.Key]int64
	if loadDoc(ctx, b, DocSeen, &raw) {
		for k, ts := range raw {
			if k == "" {
				continue
			}
			s.entries[k] = ts
		}
	}
	return s
}

// Has reports whether the key was seen
func (s *SeenSet) Has(key identity.Key) bool {
	_, ok := s.entries[key]
	return ok
}

// Mark records the key as seen at the given time. Marking a known key keeps the
// original first-seen time. Returns true if the key was added.
func (s *SeenSet) Mark(key identity.Key, when time.Time) bool {
	if _, ok := s.entries[key]; ok {
		return false
	}
	s.entries[key] = when.Unix()
	return true
}

// Len returns the number of keys
func (s *SeenSet) Len() int {
	return len(s.entries)
}

// Prune drops keys older than maxAge, then drops the oldest keys until at most
// maxSize remain. Zero maxAge or maxSize disables the corresponding rule.
// Returns the number of removed keys.
func (s *SeenSet) Prune(now time.Time, maxAge time.Duration, maxSize int) int {
	removed := 0
	if maxAge > 0 {
		cutoff := now.Add(-maxAge).Unix()
		for k, ts := range s.entries {
			if ts < cutoff {
				delete(s.entries, k)
				removed++
			}
		}
	}

	if maxSize <= 0 || len(s.entries) <= maxSize {
		return removed
	}

	keys := make([]identity.Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := s.entries[keys[i]], s.entries[keys[j]]
		if ti != tj {
			return ti < tj
		}
		return keys[i] < keys[j]
	})
	excess := len(keys) - maxSize
	for _, k := range keys[:excess] {
		delete(s.entries, k)
	}
	return removed + excess
}

// Document returns the persistable snapshot
func (s *SeenSet) Document() Document {
	snapshot := make(map[identity.Key]int64, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	return Document{Name: DocSeen, Value: snapshot}
}
