// Package admission turns allowed decisions into bounded, ranked notification batches and delivers them
package admission

import (
	"context"
	"io"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/lotwatch/pkg/classifier"
	"github.com/umputun/lotwatch/pkg/domain"
	"github.com/umputun/lotwatch/pkg/identity"
	"github.com/umputun/lotwatch/pkg/notify"
	"github.com/umputun/lotwatch/pkg/store"
)

//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports . Notifier

// Notifier delivers a rendered message, false means it wasn't delivered
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) bool
}

// Marker records delivered keys
type Marker interface {
	Mark(key identity.Key, when time.Time) bool
}

const (
	mention         = "@everyone"
	summaryHeadline = "🌅 深夜帯まとめ通知"
)

// Batch is a ranked set of decisions sent as one message
type Batch struct {
	Decisions []classifier.Decision
	Overflow  []classifier.Decision // allowed but over the cap, not sent and not marked
	Headline  string
	Urgent    bool
}

// Empty reports whether the batch has nothing to send
func (b Batch) Empty() bool {
	return len(b.Decisions) == 0
}

// Options defines controller parameters
type Options struct {
	Cap    int    // cards per message, at most notify.MaxCards
	Brand  string // brand shown in headlines
	DryRun bool   // print batches instead of sending
	Out    io.Writer
	Now    func() time.Time // clock for seen marks and short urls, defaults to time.Now
}

// Controller plans and delivers notification batches
type Controller struct {
	notifier  Notifier
	shortURLs *store.ShortURLs
	opts      Options
	now       func() time.Time
}

// New makes a controller. shortURLs is optional, without it cards link to the item URL.
func New(notifier Notifier, shortURLs *store.ShortURLs, opts Options) *Controller {
	if opts.Cap < 1 || opts.Cap > notify.MaxCards {
		opts.Cap = notify.MaxCards
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{notifier: notifier, shortURLs: shortURLs, opts: opts, now: opts.Now}
}

// Plan ranks allowed decisions and takes the first cap of them into the batch
func (c *Controller) Plan(ds []classifier.Decision) Batch {
	allowed := make([]classifier.Decision, 0, len(ds))
	for _, d := range ds {
		if d.Disposition == classifier.DispositionAllowed {
			allowed = append(allowed, d)
		}
	}
	classifier.Sort(allowed)

	var b Batch
	b.Decisions, b.Overflow = split(allowed, c.opts.Cap)
	if b.Empty() {
		return b
	}

	top := b.Decisions[0].Tier
	b.Urgent = top == domain.TierPriority || top == domain.TierHot
	b.Headline = headline(top, c.opts.Brand)
	if len(b.Overflow) > 0 {
		lgr.Printf("[INFO] %d allowed items over the batch cap of %d, left for the next run", len(b.Overflow), c.opts.Cap)
	}
	return b
}

// Summary builds the quiet-hours summary batch from deferred items, never urgent
func (c *Controller) Summary(items []domain.DeferredItem, bands domain.PriceBands, flushCap int) Batch {
	if flushCap < 1 || flushCap > notify.MaxCards {
		flushCap = notify.MaxCards
	}
	var b Batch
	b.Decisions, b.Overflow = split(classifier.Rank(items, bands), flushCap)
	b.Headline = summaryHeadline
	return b
}

// Message renders the batch
func (c *Controller) Message(b Batch) notify.Message {
	now := c.now()
	msg := notify.Message{Content: b.Headline, Cards: make([]notify.Card, 0, len(b.Decisions))}
	if b.Urgent {
		msg.Content = mention + "\n" + b.Headline
	}
	for _, d := range b.Decisions {
		link := d.Item.URL
		if c.shortURLs != nil {
			link = c.shortURLs.Shorten(d.Item.URL, now)
		}
		msg.Cards = append(msg.Cards, notify.RenderCard(d.Item, d.Tier, link))
	}
	return msg
}

// Deliver sends the batch and, on success, marks every batch key seen.
// Dry runs print the message and never send or mark. Returns true if the batch was delivered.
func (c *Controller) Deliver(ctx context.Context, b Batch, seen Marker) bool {
	if b.Empty() {
		return false
	}
	msg := c.Message(b)

	if c.opts.DryRun {
		if err := notify.Dump(c.opts.Out, msg); err != nil {
			lgr.Printf("[WARN] failed to print dry run batch: %v", err)
		}
		lgr.Printf("[INFO] dry run, %q with %d cards not sent", b.Headline, len(msg.Cards))
		return false
	}

	if !c.notifier.Send(ctx, msg) {
		lgr.Printf("[WARN] delivery of %q failed, %d items will be retried next run", b.Headline, len(b.Decisions))
		return false
	}

	now := c.now()
	for _, d := range b.Decisions {
		seen.Mark(d.Key, now)
	}
	lgr.Printf("[INFO] delivered %q with %d cards", b.Headline, len(b.Decisions))
	return true
}

func split(ds []classifier.Decision, n int) (head, rest []classifier.Decision) {
	if len(ds) <= n {
		return ds, nil
	}
	return ds[:n], ds[n:]
}

func headline(top domain.Tier, brand string) string {
	icon := top.Icon()
	if icon == "" {
		icon = "📝"
	}
	return icon + brand + " " + top.Label() + "通知"
}
