// Package seller resolves the seller of an item from its detail page, backed by the persisted seller cache.
package seller

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/umputun/lotwatch/pkg/store"
)

//go:generate moq -out mocks/fetcher.go -pkg mocks -skip-ensure -fmt goimports . Fetcher

// Fetcher loads the seller id of an item detail page, empty when unknown
type Fetcher interface {
	FetchSeller(ctx context.Context, itemURL string) string
}

// Options defines resolver parameters
type Options struct {
	Workers int        // concurrent detail page fetches
	Rate    rate.Limit // detail page requests per second, 0 means unlimited
	Burst   int
	NoCache bool // bypass cache lookups, results are still cached
}

// Resolver maps item URLs to seller ids
type Resolver struct {
	fetcher Fetcher
	cache   *store.SellerCache
	limiter *rate.Limiter
	workers int
	noCache bool
	now     func() time.Time
}

// NewResolver makes a resolver on top of the seller cache
func NewResolver(fetcher Fetcher, cache *store.SellerCache, opts Options) *Resolver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	limit := opts.Rate
	if limit <= 0 {
		limit = rate.Inf
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		limiter: rate.NewLimiter(limit, opts.Burst),
		workers: opts.Workers,
		noCache: opts.NoCache,
		now:     time.Now,
	}
}

// Resolve returns the seller of a single item, empty string when it can't be determined
func (r *Resolver) Resolve(ctx context.Context, itemURL string) string {
	if !r.noCache {
		if seller, ok := r.cache.Get(itemURL); ok {
			return seller
		}
	}
	if err := r.limiter.Wait(ctx); err != nil {
		lgr.Printf("[DEBUG] seller lookup for %s canceled: %v", itemURL, err)
		return ""
	}
	seller := r.fetcher.FetchSeller(ctx, itemURL)
	if ctx.Err() != nil {
		return seller // interrupted lookups are not cached
	}
	r.cache.Put(itemURL, seller, r.now())
	return seller
}

// ResolveAll resolves sellers of many items concurrently. Every input URL is present in the result.
func (r *Resolver) ResolveAll(ctx context.Context, urls []string) map[string]string {
	res := make(map[string]string, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	seen := make(map[string]bool, len(urls))
	var fetched int
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		if !r.noCache {
			if seller, ok := r.cache.Get(u); ok {
				res[u] = seller
				continue
			}
		}
		fetched++
		g.Go(func() error {
			seller := r.Resolve(gctx, u)
			mu.Lock()
			res[u] = seller
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	for _, u := range urls {
		if _, ok := res[u]; !ok {
			res[u] = ""
		}
	}
	lgr.Printf("[DEBUG] resolved %d sellers, %d from detail pages", len(seen), fetched)
	return res
}
