package domain

import "time"

// Category is the listing kind a scraped item belongs to
type Category string

const (
	CategoryListing Category = "listing"
	CategoryAuction Category = "auction"
)

// Categories lists all known categories in presentation order
var Categories = []Category{CategoryListing, CategoryAuction}

// Rank returns the ordering position of the category, listings first
func (c Category) Rank() int {
	switch c {
	case CategoryListing:
		return 0
	case CategoryAuction:
		return 1
	default:
		return 2
	}
}

// Label returns the human-readable sale format shown on cards
func (c Category) Label() string {
	if c == CategoryAuction {
		return "オークション"
	}
	return "既存販売"
}

// Item represents a single listing produced by a source for one scrape cycle.
// Items are never persisted as entities, only deferred items are stored as snapshots.
type Item struct {
	Title    string   `json:"title"`
	Price    int      `json:"price"`
	BuyNow   *int     `json:"buy_now,omitempty"`
	Thumb    string   `json:"thumb,omitempty"`
	URL      string   `json:"url"`
	Category Category `json:"category"`
	Seller   string   `json:"seller,omitempty"`
}

// Valid reports whether the item has the fields required for processing
func (i Item) Valid() bool {
	return i.URL != "" && i.Title != ""
}

// DeferredItem is an item snapshot held in the quiet-hours queue
type DeferredItem struct {
	Item     Item      `json:"item"`
	QueuedAt time.Time `json:"queued_at"`
}
