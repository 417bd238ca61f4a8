// Package classifier decides what happens to every scraped item: skipped as seen, filtered,
// excluded, deferred to the quiet-hours queue or allowed with a notification tier.
package classifier

import (
	"context"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/lotwatch/pkg/config"
	"github.com/umputun/lotwatch/pkg/domain"
	"github.com/umputun/lotwatch/pkg/identity"
)

// Disposition is the outcome of classifying an item
type Disposition int

const (
	DispositionSeen Disposition = iota
	DispositionAllowed
	DispositionFiltered
	DispositionExcluded
	DispositionDeferred
)

// String implements fmt.Stringer
func (d Disposition) String() string {
	switch d {
	case DispositionSeen:
		return "seen"
	case DispositionAllowed:
		return "allowed"
	case DispositionFiltered:
		return "filtered"
	case DispositionExcluded:
		return "excluded"
	case DispositionDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Decision is the classification result of one item.
// MarkSeen means the key is committed to the seen-set regardless of delivery,
// allowed items are committed only after a successful send.
type Decision struct {
	Item        domain.Item
	Key         identity.Key
	Disposition Disposition
	Tier        domain.Tier
	MarkSeen    bool
	Reason      string
}

// Seen is the seen-set lookup used by the classifier
type Seen interface {
	Has(key identity.Key) bool
}

// Options defines classifier parameters
type Options struct {
	Priority     config.SellerSet
	Exclude      config.SellerSet
	PriceCeiling int
	Bands        domain.PriceBands
	Content      *ContentFilter // nil disables the content filter
}

// Classifier applies the admission rules to scraped items
type Classifier struct {
	Options
}

// New makes a classifier
func New(opts Options) *Classifier {
	if opts.Priority == nil {
		opts.Priority = config.SellerSet{}
	}
	if opts.Exclude == nil {
		opts.Exclude = config.SellerSet{}
	}
	return &Classifier{Options: opts}
}

// Classify returns a decision per item, in input order. Rules, first match wins:
// seen, priority seller, price above ceiling, unresolved or excluded seller,
// excluded content, quiet hours, price tier.
// Repeated keys within the same call are reported as seen.
func (c *Classifier) Classify(ctx context.Context, items []domain.Item, seen Seen, quiet bool) []Decision {
	res := make([]Decision, len(items))
	decided := make(map[identity.Key]bool, len(items))
	var pending []int // indexes waiting for the content filter

	for i, item := range items {
		key := identity.KeyOf(item.URL)
		d := Decision{Item: item, Key: key}
		switch {
		case seen.Has(key) || decided[key]:
			d.Disposition, d.Reason = DispositionSeen, "already seen"
		case c.Priority.Has(item.Seller):
			d.Disposition, d.Tier, d.Reason = DispositionAllowed, domain.TierPriority, "priority seller"
		case item.Price > c.PriceCeiling:
			d.Disposition, d.MarkSeen, d.Reason = DispositionFiltered, true, "price above ceiling"
		case item.Seller == "":
			d.Disposition, d.MarkSeen, d.Reason = DispositionExcluded, true, "seller unresolved"
		case c.Exclude.Has(item.Seller):
			d.Disposition, d.MarkSeen, d.Reason = DispositionExcluded, true, "excluded seller"
		default:
			pending = append(pending, i)
		}
		decided[key] = true
		res[i] = d
	}

	excluded := make([]bool, len(pending))
	if c.Content != nil && len(pending) > 0 {
		titles := make([]string, len(pending))
		for j, idx := range pending {
			titles[j] = items[idx].Title
		}
		excluded = c.Content.Excluded(ctx, titles)
	}

	for j, idx := range pending {
		d := &res[idx]
		switch {
		case excluded[j]:
			d.Disposition, d.MarkSeen, d.Reason = DispositionExcluded, true, "excluded content"
		case quiet:
			d.Disposition, d.MarkSeen, d.Reason = DispositionDeferred, true, "quiet hours"
		default:
			d.Disposition, d.Tier, d.Reason = DispositionAllowed, domain.TierForPrice(d.Item.Price, c.Bands), "price tier"
		}
	}

	for _, d := range res {
		if d.Disposition != DispositionSeen {
			lgr.Printf("[DEBUG] %s %s: %s (%s), %s", d.Key.Short(), d.Item.URL, d.Disposition, d.Reason, d.Tier)
		}
	}
	return res
}
