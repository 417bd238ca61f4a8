package store

import (
	"context"
	"sync"
	"time"
)

// DefaultSellerCacheSize is used when the configured size is not positive
const DefaultSellerCacheSize = 1000

type sellerEntry struct {
	Seller  string `json:"seller"`
	AddedAt int64  `json:"added_at"`
}

// SellerCache maps item URLs to resolved seller ids. An empty seller is a
// negative entry: resolution was attempted and found nothing. Safe for concurrent use.
type SellerCache struct {
	mu      sync.Mutex
	entries map[string]sellerEntry
	maxSize int
}

// NewSellerCache makes an empty cache bounded by maxSize entries
func NewSellerCache(maxSize int) *SellerCache {
	if maxSize <= 0 {
		maxSize = DefaultSellerCacheSize
	}
	return &SellerCache{entries: map[string]sellerEntry{}, maxSize: maxSize}
}

// LoadSellerCache loads the cache from the backend, empty on any failure
func LoadSellerCache(ctx context.Context, b Backend, maxSize int) *SellerCache {
	c := NewSellerCache(maxSize)
	var raw map[string]sellerEntry
	if loadDoc(ctx, b, DocSellers, &raw) {
		for u, e := range raw {
			c.entries[u] = e
		}
		c.mu.Lock()
		c.trim()
		c.mu.Unlock()
	}
	return c
}

// Get returns the cached seller for url and whether the url was cached
func (c *SellerCache) Get(url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	return e.Seller, ok
}

// Put stores the seller for url, evicting the oldest entries over the size bound
func (c *SellerCache) Put(url, seller string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = sellerEntry{Seller: seller, AddedAt: now.Unix()}
	c.trim()
}

// Len returns the number of cached urls
func (c *SellerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Document returns the persistable snapshot
func (c *SellerCache) Document() Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[string]sellerEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	return Document{Name: DocSellers, Value: snapshot}
}

// trim drops oldest entries until the cache fits, caller holds the lock
func (c *SellerCache) trim() {
	for _, k := range oldestFirst(c.entries, len(c.entries)-c.maxSize, func(e sellerEntry) int64 { return e.AddedAt }) {
		delete(c.entries, k)
	}
}
