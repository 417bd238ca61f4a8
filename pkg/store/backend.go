// Package store keeps the state persisted between runs: the seen-set, the seller
// cache, the quiet-hours deferral queue and the short URL cache.
//
// Every store is an in-memory object loaded once at run start and saved once at run
// end through a Backend. Missing or unreadable documents load as empty stores, a
// corrupted state file never fails a run.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
)

// document names, one per store
const (
	DocSeen      = "seen"
	DocSellers   = "sellers"
	DocDeferred  = "deferred"
	DocShortURLs = "short_urls"
)

var (
	// ErrNotFound returned by Backend.Load when the document was never saved
	ErrNotFound = errors.New("document not found")
	// ErrCorrupt returned by Backend.Load when the stored document can't be decoded
	ErrCorrupt = errors.New("document corrupted")
)

// Document is a named value to persist, Value must be json-serializable
type Document struct {
	Name  string
	Value any
}

// Backend loads and saves named json documents
type Backend interface {
	Load(ctx context.Context, name string, v any) error
	Save(ctx context.Context, docs ...Document) error
}

// loadDoc loads the named document into v, treating missing and corrupt documents
// as empty. Returns false if v was not populated.
func loadDoc(ctx context.Context, b Backend, name string, v any) bool {
	err := b.Load(ctx, name, v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNotFound):
		lgr.Printf("[DEBUG] no %s state yet, starting empty", name)
	case errors.Is(err, ErrCorrupt):
		lgr.Printf("[WARN] %s state is corrupted, starting empty: %v", name, err)
	default:
		lgr.Printf("[WARN] can't load %s state, starting empty: %v", name, err)
	}
	return false
}

// State bundles all persisted stores of a run
type State struct {
	Seen      *SeenSet
	Sellers   *SellerCache
	Deferred  *DeferralQueue
	ShortURLs *ShortURLs
}

// Limits defines the size bounds of the stores
type Limits struct {
	SellerCacheSize int
	DeferralCap     int
	ShortURLSize    int
}

// LoadState loads all stores from the backend, never fails. now is the load time.
func LoadState(ctx context.Context, b Backend, lim Limits, now time.Time) *State {
	return &State{
		Seen:      LoadSeenSet(ctx, b),
		Sellers:   LoadSellerCache(ctx, b, lim.SellerCacheSize),
		Deferred:  LoadDeferralQueue(ctx, b, lim.DeferralCap, now),
		ShortURLs: LoadShortURLs(ctx, b, lim.ShortURLSize),
	}
}

// SaveCaches persists only the caches, used when the run pipeline failed and
// the seen-set and deferral queue may be inconsistent
func (s *State) SaveCaches(ctx context.Context, b Backend) error {
	if err := b.Save(ctx, s.Sellers.Document(), s.ShortURLs.Document()); err != nil {
		return fmt.Errorf("save caches: %w", err)
	}
	return nil
}

// SaveAll persists every store
func (s *State) SaveAll(ctx context.Context, b Backend) error {
	docs := []Document{s.Seen.Document(), s.Sellers.Document(), s.Deferred.Document(), s.ShortURLs.Document()}
	if err := b.Save(ctx, docs...); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
