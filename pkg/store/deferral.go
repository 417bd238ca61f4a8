package store

import (
	"context"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/lotwatch/pkg/domain"
)

// DefaultDeferralCap is used when the configured cap is not positive
const DefaultDeferralCap = 10

// DeferralQueue holds item snapshots accumulated during quiet hours, one FIFO list
// per category. Each list is capped, items over the cap are rejected, never wrapped.
type DeferralQueue struct {
	queues map[domain.Category][]domain.DeferredItem
	cap    int
}

// NewDeferralQueue makes an empty queue with the given per-category cap
func NewDeferralQueue(capacity int) *DeferralQueue {
	if capacity <= 0 {
		capacity = DefaultDeferralCap
	}
	return &DeferralQueue{queues: map[domain.Category][]domain.DeferredItem{}, cap: capacity}
}

// LoadDeferralQueue loads the queue from the backend, empty on any failure.
// Entries over the cap are kept, they will be drained with the next flush.
// Entries without a queue time get now, so they flush at the next flush instant.
func LoadDeferralQueue(ctx context.Context, b Backend, capacity int, now time.Time) *DeferralQueue {
	q := NewDeferralQueue(capacity)
	var raw map[domain.Category][]domain.DeferredItem
	if loadDoc(ctx, b, DocDeferred, &raw) {
		for cat, items := range raw {
			for _, it := range items {
				if !it.Item.Valid() {
					continue
				}
				if it.QueuedAt.IsZero() {
					lgr.Printf("[WARN] deferred %s has no queue time, using %s", it.Item.URL, now.Format(time.RFC3339))
					it.QueuedAt = now
				}
				q.queues[cat] = append(q.queues[cat], it)
			}
		}
	}
	return q
}

// Enqueue appends an item snapshot to its category list.
// Returns false if the list is full and the item was not added.
func (q *DeferralQueue) Enqueue(item domain.Item, now time.Time) bool {
	if len(q.queues[item.Category]) >= q.cap {
		return false
	}
	q.queues[item.Category] = append(q.queues[item.Category], domain.DeferredItem{Item: item, QueuedAt: now})
	return true
}

// Len returns the total number of queued items
func (q *DeferralQueue) Len() int {
	n := 0
	for _, items := range q.queues {
		n += len(items)
	}
	return n
}

// CategoryLen returns the number of queued items of the category
func (q *DeferralQueue) CategoryLen(cat domain.Category) int {
	return len(q.queues[cat])
}

// Items returns all queued entries, known categories first in presentation order
func (q *DeferralQueue) Items() []domain.DeferredItem {
	res := make([]domain.DeferredItem, 0, q.Len())
	seen := map[domain.Category]bool{}
	for _, cat := range domain.Categories {
		res = append(res, q.queues[cat]...)
		seen[cat] = true
	}
	for cat, items := range q.queues {
		if !seen[cat] {
			res = append(res, items...)
		}
	}
	return res
}

// Oldest returns the earliest queued time, false if the queue is empty
func (q *DeferralQueue) Oldest() (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, items := range q.queues {
		for _, it := range items {
			if !found || it.QueuedAt.Before(oldest) {
				oldest, found = it.QueuedAt, true
			}
		}
	}
	return oldest, found
}

// Clear drops all queued entries
func (q *DeferralQueue) Clear() {
	q.queues = map[domain.Category][]domain.DeferredItem{}
}

// Document returns the persistable snapshot
func (q *DeferralQueue) Document() Document {
	snapshot := make(map[domain.Category][]domain.DeferredItem, len(q.queues))
	for cat, items := range q.queues {
		snapshot[cat] = append([]domain.DeferredItem(nil), items...)
	}
	return Document{Name: DocDeferred, Value: snapshot}
}
