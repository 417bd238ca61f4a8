// Package scheduler runs the scrape, classify and notify pipeline once per invocation,
// guarded by a run lock, with state loaded at start and persisted at the end.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/umputun/lotwatch/pkg/admission"
	"github.com/umputun/lotwatch/pkg/classifier"
	"github.com/umputun/lotwatch/pkg/config"
	"github.com/umputun/lotwatch/pkg/domain"
	"github.com/umputun/lotwatch/pkg/identity"
	"github.com/umputun/lotwatch/pkg/notify"
	"github.com/umputun/lotwatch/pkg/quiet"
	"github.com/umputun/lotwatch/pkg/seller"
	"github.com/umputun/lotwatch/pkg/store"
)

//go:generate moq -out mocks/source.go -pkg mocks -skip-ensure -fmt goimports . Source
//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports . Notifier

// persistTimeout bounds the final state save
const persistTimeout = 30 * time.Second

// Source loads listing pages and item detail pages
type Source interface {
	FetchListing(ctx context.Context, src config.Source) []domain.Item
	FetchSeller(ctx context.Context, itemURL string) string
}

// Notifier delivers rendered messages
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) bool
}

// Params defines runner dependencies and run flags
type Params struct {
	Config   *config.Config
	Source   Source
	Notifier Notifier
	Backend  store.Backend
	Tagger   classifier.Tagger // optional, used when the content filter is enabled

	DryRun     bool // never send and never persist
	ForceNight bool // treat the run as inside quiet hours and skip the summary flush
	ForceDay   bool // treat the run as outside quiet hours
	NoCache    bool // bypass seller cache lookups

	Out io.Writer        // dry run output, defaults to stdout
	Now func() time.Time // clock, defaults to time.Now
}

// Report summarizes a run
type Report struct {
	RunID     string
	Skipped   bool // another run held the lock
	Fetched   int
	Fresh     int // items not seen before
	Sent      int
	Overflow  int
	Deferred  int
	Dropped   int // deferred items rejected by a full queue
	Filtered  int
	Excluded  int
	Flushed   int
	Failed    bool // delivery failed
	Recovered bool // pipeline panicked
}

// Runner executes pipeline runs
type Runner struct {
	Params
	window quiet.Window
}

// NewRunner makes a runner
func NewRunner(p Params) (*Runner, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if p.Source == nil || p.Notifier == nil || p.Backend == nil {
		return nil, fmt.Errorf("source, notifier and backend are required")
	}
	window, err := p.Config.QuietWindow()
	if err != nil {
		return nil, fmt.Errorf("quiet window: %w", err)
	}
	if p.Out == nil {
		p.Out = os.Stdout
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Runner{Params: p, window: window}, nil
}

// Run executes one pipeline run. Runtime failures are logged and reported, the returned
// error is reserved for failures to set up the run.
func (r *Runner) Run(ctx context.Context) (rep Report, err error) {
	rep.RunID = uuid.NewString()
	now := r.Now()

	lock, ok, err := acquireLock(r.lockPath(), r.Config.State.LockStale, now)
	if err != nil {
		return rep, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		lgr.Printf("[INFO] another run is in progress, skipping run %s", rep.RunID)
		rep.Skipped = true
		return rep, nil
	}
	defer lock.release()

	watchdog := time.AfterFunc(r.Config.Run.WarnAfter, func() {
		lgr.Printf("[WARN] run %s is still running after %v", rep.RunID, r.Config.Run.WarnAfter)
	})
	defer watchdog.Stop()

	lgr.Printf("[INFO] run %s started, dry run: %v, quiet hours %s", rep.RunID, r.DryRun, r.window)
	st := store.LoadState(ctx, r.Backend, store.Limits{
		SellerCacheSize: r.Config.Sellers.CacheSize,
		DeferralCap:     r.Config.QuietHours.QueueCap,
		ShortURLSize:    r.Config.Notify.ShortURLSize,
	}, now)
	if pruned := st.Seen.Prune(now, r.Config.Seen.Retention, r.Config.Seen.MaxSize); pruned > 0 {
		lgr.Printf("[DEBUG] pruned %d seen keys", pruned)
	}

	if !r.pipeline(ctx, st, now, &rep) {
		rep.Recovered = true
		r.persist(ctx, st, false)
		return rep, nil
	}
	r.persist(ctx, st, true)

	lgr.Printf("[INFO] run %s done in %v: fetched %d, fresh %d, sent %d, overflow %d, deferred %d, "+
		"filtered %d, excluded %d, flushed %d", rep.RunID, r.Now().Sub(now).Round(time.Millisecond), rep.Fetched, rep.Fresh,
		rep.Sent, rep.Overflow, rep.Deferred, rep.Filtered, rep.Excluded, rep.Flushed)
	return rep, nil
}

// Loop runs the pipeline immediately and then on every tick until the context is canceled
func (r *Runner) Loop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.Run(ctx); err != nil {
		lgr.Printf("[ERROR] run failed: %v", err)
	}
}

// pipeline runs flush, fetch, classify and deliver steps. Returns false if it panicked.
func (r *Runner) pipeline(ctx context.Context, st *store.State, now time.Time, rep *Report) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			lgr.Printf("[ERROR] run %s panicked: %v", rep.RunID, rec)
			ok = false
		}
	}()

	ctrl := admission.New(r.Notifier, st.ShortURLs, admission.Options{
		Cap:    r.Config.Policy.BatchCap,
		Brand:  r.Config.Notify.Brand,
		DryRun: r.DryRun,
		Out:    r.Out,
		Now:    r.Now,
	})

	r.flush(ctx, ctrl, st, now, rep)

	items := r.fetch(ctx)
	rep.Fetched = len(items)
	fresh := r.fresh(items, st.Seen)
	rep.Fresh = len(fresh)

	resolver := seller.NewResolver(r.Source, st.Sellers, seller.Options{
		Workers: r.Config.Fetch.Workers,
		Rate:    rate.Limit(r.Config.Fetch.DetailRate),
		Burst:   r.Config.Fetch.DetailBurst,
		NoCache: r.NoCache,
	})
	urls := make([]string, len(fresh))
	for i, it := range fresh {
		urls[i] = it.URL
	}
	sellers := resolver.ResolveAll(ctx, urls)
	for i := range fresh {
		fresh[i].Seller = sellers[fresh[i].URL]
	}

	decisions := r.newClassifier().Classify(ctx, fresh, st.Seen, r.isQuiet(now))
	for _, d := range decisions {
		switch d.Disposition {
		case classifier.DispositionDeferred:
			if st.Deferred.Enqueue(d.Item, now) {
				rep.Deferred++
			} else {
				rep.Dropped++
				lgr.Printf("[WARN] %s deferral queue is full, %s dropped", d.Item.Category, d.Item.URL)
			}
		case classifier.DispositionFiltered:
			rep.Filtered++
		case classifier.DispositionExcluded:
			rep.Excluded++
		}
		if d.MarkSeen {
			st.Seen.Mark(d.Key, now)
		}
	}

	batch := ctrl.Plan(decisions)
	rep.Overflow = len(batch.Overflow)
	if !batch.Empty() {
		if ctrl.Deliver(ctx, batch, st.Seen) {
			rep.Sent = len(batch.Decisions)
		} else if !r.DryRun {
			rep.Failed = true
		}
	}
	return true
}

// flush sends the quiet-hours summary when a flush time passed since the oldest deferred item
func (r *Runner) flush(ctx context.Context, ctrl *admission.Controller, st *store.State, now time.Time, rep *Report) {
	if r.ForceNight {
		return
	}
	oldest, ok := st.Deferred.Oldest()
	if !ok || !r.window.FlushDue(now, oldest) {
		return
	}

	batch := ctrl.Summary(st.Deferred.Items(), r.Config.Policy.Bands, r.Config.QuietHours.FlushCap)
	if !ctrl.Deliver(ctx, batch, st.Seen) {
		if !r.DryRun {
			rep.Failed = true
		}
		return
	}
	if len(batch.Overflow) > 0 {
		lgr.Printf("[WARN] quiet-hours summary over the cap of %d, %d deferred items dropped", len(batch.Decisions),
			len(batch.Overflow))
	}
	rep.Flushed = len(batch.Decisions)
	st.Deferred.Clear()
}

// fetch loads all configured listing pages concurrently, keeping source order
func (r *Runner) fetch(ctx context.Context) []domain.Item {
	results := make([][]domain.Item, len(r.Config.Sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Config.Fetch.Workers)
	for i, src := range r.Config.Sources {
		g.Go(func() error {
			results[i] = r.Source.FetchListing(gctx, src)
			return nil
		})
	}
	_ = g.Wait() // sources never return errors

	var res []domain.Item
	for _, items := range results {
		res = append(res, items...)
	}
	return res
}

// fresh drops malformed and already seen items, before any detail page lookup
func (r *Runner) fresh(items []domain.Item, seen *store.SeenSet) []domain.Item {
	res := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if !it.Valid() {
			continue
		}
		if seen.Has(identity.KeyOf(it.URL)) {
			continue
		}
		res = append(res, it)
	}
	return res
}

func (r *Runner) newClassifier() *classifier.Classifier {
	opts := classifier.Options{
		Priority:     config.LoadSellerSet(r.Config.Sellers.PriorityFile),
		Exclude:      config.LoadSellerSet(r.Config.Sellers.ExcludeFile),
		PriceCeiling: r.Config.Policy.PriceCeiling,
		Bands:        r.Config.Policy.Bands,
	}
	if r.Config.ContentFilter.Enabled {
		opts.Content = classifier.NewContentFilter(r.Tagger)
	}
	return classifier.New(opts)
}

func (r *Runner) isQuiet(now time.Time) bool {
	switch {
	case r.ForceNight:
		return true
	case r.ForceDay, r.Config.QuietHours.Disabled:
		return false
	default:
		return r.window.Contains(now)
	}
}

// persist writes the state. After a panic only the append-only caches are written.
// The save outlives cancellation of ctx, keys of a delivered batch must be committed.
func (r *Runner) persist(ctx context.Context, st *store.State, complete bool) {
	if r.DryRun {
		lgr.Printf("[DEBUG] dry run, state not saved")
		return
	}
	save := st.SaveAll
	if !complete {
		save = st.SaveCaches
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := save(saveCtx, r.Backend); err != nil {
		lgr.Printf("[ERROR] failed to save state: %v", err)
	}
}

// lockPath resolves a relative lock file against the state directory
func (r *Runner) lockPath() string {
	if filepath.IsAbs(r.Config.State.LockFile) {
		return r.Config.State.LockFile
	}
	return filepath.Join(r.Config.State.Dir, r.Config.State.LockFile)
}
