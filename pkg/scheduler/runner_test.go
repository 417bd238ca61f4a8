package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/lotwatch/pkg/config"
	"github.com/umputun/lotwatch/pkg/domain"
	"github.com/umputun/lotwatch/pkg/identity"
	"github.com/umputun/lotwatch/pkg/notify"
	"github.com/umputun/lotwatch/pkg/scheduler/mocks"
	"github.com/umputun/lotwatch/pkg/store"
)

// testEnv is a runner wired to mocks and a file backend in a temp dir
type testEnv struct {
	cfg      *config.Config
	backend  *store.FileBackend
	source   *mocks.SourceMock
	notifier *mocks.NotifierMock
	listings map[domain.Category][]domain.Item
	sendOK   bool
	mu       sync.Mutex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.State.Dir = filepath.Join(dir, "data")
	cfg.Sellers.PriorityFile = filepath.Join(dir, "special_users.txt")
	cfg.Sellers.ExcludeFile = filepath.Join(dir, "exclude_users.txt")
	require.NoError(t, os.WriteFile(cfg.Sellers.PriorityFile, []byte("# vip sellers\nvip\n"), 0o600))
	require.NoError(t, os.WriteFile(cfg.Sellers.ExcludeFile, []byte("banned\n"), 0o600))

	env := &testEnv{
		cfg:      cfg,
		backend:  store.NewFileBackend(cfg.State.Dir),
		listings: map[domain.Category][]domain.Item{},
		sendOK:   true,
	}
	env.source = &mocks.SourceMock{
		FetchListingFunc: func(_ context.Context, src config.Source) []domain.Item {
			env.mu.Lock()
			defer env.mu.Unlock()
			return append([]domain.Item(nil), env.listings[src.Category]...)
		},
		FetchSellerFunc: func(_ context.Context, itemURL string) string {
			switch {
			case strings.Contains(itemURL, "vip"):
				return "vip"
			case strings.Contains(itemURL, "banned"):
				return "banned"
			case strings.Contains(itemURL, "anon"):
				return ""
			}
			return "alice"
		},
	}
	env.notifier = &mocks.NotifierMock{SendFunc: func(context.Context, notify.Message) bool {
		env.mu.Lock()
		defer env.mu.Unlock()
		return env.sendOK
	}}
	return env
}

func (e *testEnv) runner(t *testing.T, now time.Time, mod func(p *Params)) *Runner {
	t.Helper()
	p := Params{
		Config:   e.cfg,
		Source:   e.source,
		Notifier: e.notifier,
		Backend:  e.backend,
		Now:      func() time.Time { return now },
		Out:      &bytes.Buffer{},
	}
	if mod != nil {
		mod(&p)
	}
	r, err := NewRunner(p)
	require.NoError(t, err)
	return r
}

func (e *testEnv) run(t *testing.T, now time.Time, mod func(p *Params)) Report {
	t.Helper()
	rep, err := e.runner(t, now, mod).Run(context.Background())
	require.NoError(t, err)
	return rep
}

func (e *testEnv) state(t *testing.T) *store.State {
	t.Helper()
	return store.LoadState(context.Background(), e.backend, store.Limits{}, time.Now())
}

func jstTime(t *testing.T, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return time.Date(2025, 3, day, hour, minute, 0, 0, loc)
}

func listing(path string, price int) domain.Item {
	return domain.Item{Title: "item " + path, URL: "https://site/" + path, Price: price, Category: domain.CategoryListing}
}

func auction(path string, price int) domain.Item {
	return domain.Item{Title: "lot " + path, URL: "https://site/" + path, Price: price, Category: domain.CategoryAuction}
}

func TestRunner_DuplicateURLsProduceOneNotification(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/42", 2000), listing("x/42?ref=abc", 2000)}

	rep := env.run(t, jstTime(t, 1, 12, 0), nil)
	assert.Equal(t, 2, rep.Fetched)
	assert.Equal(t, 1, rep.Sent)

	require.Len(t, env.notifier.SendCalls(), 1)
	msg := env.notifier.SendCalls()[0].Msg
	require.Len(t, msg.Cards, 1)
	assert.Equal(t, "@everyone\n🔥つなぐ 特選通知", msg.Content)
	assert.True(t, strings.HasPrefix(msg.Cards[0].URL, "https://site/x/42#s="))

	st := env.state(t)
	assert.True(t, st.Seen.Has(identity.KeyOf("https://site/x/42")))
	assert.Equal(t, identity.KeyOf("https://site/x/42"), identity.KeyOf("https://site/x/42?ref=abc"))
	assert.Equal(t, 1, st.ShortURLs.Len())

	// next run finds nothing new
	env.run(t, jstTime(t, 1, 12, 5), nil)
	assert.Len(t, env.notifier.SendCalls(), 1)
}

func TestRunner_ExpensiveItemFiltered(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/1", 20000)}

	rep := env.run(t, jstTime(t, 1, 12, 0), nil)
	assert.Equal(t, 1, rep.Filtered)
	assert.Equal(t, 0, rep.Sent)
	assert.Empty(t, env.notifier.SendCalls())
	assert.True(t, env.state(t).Seen.Has(identity.KeyOf("https://site/x/1")), "filtered key marked seen")
}

func TestRunner_BatchCapAndOverflow(t *testing.T) {
	env := newTestEnv(t)
	var items []domain.Item
	for i := 15; i >= 1; i-- {
		items = append(items, listing(fmt.Sprintf("x/%d", i), i*1000))
	}
	env.listings[domain.CategoryListing] = items

	rep := env.run(t, jstTime(t, 1, 12, 0), nil)
	assert.Equal(t, 10, rep.Sent)
	assert.Equal(t, 5, rep.Overflow)
	require.Len(t, env.notifier.SendCalls(), 1)
	cards := env.notifier.SendCalls()[0].Msg.Cards
	require.Len(t, cards, 10)
	assert.Equal(t, "item x/1", cards[0].Title)
	assert.Equal(t, "item x/10", cards[9].Title)

	st := env.state(t)
	for i := 1; i <= 15; i++ {
		key := identity.KeyOf(fmt.Sprintf("https://site/x/%d", i))
		assert.Equal(t, i <= 10, st.Seen.Has(key), "item %d", i)
	}

	// overflow reconsidered on the next run
	rep = env.run(t, jstTime(t, 1, 12, 5), nil)
	assert.Equal(t, 5, rep.Sent)
	require.Len(t, env.notifier.SendCalls(), 2)
	cards = env.notifier.SendCalls()[1].Msg.Cards
	require.Len(t, cards, 5)
	assert.Equal(t, "item x/11", cards[0].Title)
	assert.Equal(t, "📝つなぐ 通常通知", env.notifier.SendCalls()[1].Msg.Content)
}

func TestRunner_QuietHoursDeferAndFlush(t *testing.T) {
	env := newTestEnv(t)
	var items []domain.Item
	for i := 1; i <= 12; i++ {
		items = append(items, listing(fmt.Sprintf("x/%d", i), 1000*i))
	}
	env.listings[domain.CategoryListing] = items
	env.listings[domain.CategoryAuction] = []domain.Item{auction("a/1", 900), auction("a/2", 4000), auction("a/3", 9000)}

	rep := env.run(t, jstTime(t, 1, 3, 0), nil)
	assert.Equal(t, 13, rep.Deferred)
	assert.Equal(t, 2, rep.Dropped)
	assert.Equal(t, 0, rep.Sent)
	assert.Empty(t, env.notifier.SendCalls(), "nothing sent during quiet hours")

	st := env.state(t)
	assert.Equal(t, 10, st.Deferred.CategoryLen(domain.CategoryListing))
	assert.Equal(t, 3, st.Deferred.CategoryLen(domain.CategoryAuction))
	assert.Equal(t, 15, st.Seen.Len(), "deferred items marked seen even when the queue is full")

	// still quiet, no flush yet
	env.run(t, jstTime(t, 1, 5, 30), nil)
	assert.Empty(t, env.notifier.SendCalls())

	// first run after the flush time sends the summary
	rep = env.run(t, jstTime(t, 1, 6, 5), nil)
	assert.Equal(t, 10, rep.Flushed)
	assert.Equal(t, 0, rep.Sent, "live items all seen")
	require.Len(t, env.notifier.SendCalls(), 1)
	msg := env.notifier.SendCalls()[0].Msg
	assert.Equal(t, "🌅 深夜帯まとめ通知", msg.Content)
	require.Len(t, msg.Cards, 10)
	assert.Equal(t, "item x/1", msg.Cards[0].Title)
	assert.Equal(t, "lot a/1", msg.Cards[3].Title, "hot listings first, then hot auctions")
	assert.Equal(t, "lot a/2", msg.Cards[6].Title)
	assert.Equal(t, 0, env.state(t).Deferred.Len(), "queues cleared after successful flush")
}

func TestRunner_FailedFlushKeepsQueues(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryAuction] = []domain.Item{auction("a/1", 900), auction("a/2", 4000)}
	env.run(t, jstTime(t, 1, 2, 30), nil)
	require.Equal(t, 2, env.state(t).Deferred.Len())

	env.sendOK = false
	rep := env.run(t, jstTime(t, 1, 7, 0), nil)
	assert.True(t, rep.Failed)
	assert.Equal(t, 0, rep.Flushed)
	require.Len(t, env.notifier.SendCalls(), 1)
	assert.Equal(t, 2, env.state(t).Deferred.Len(), "queues kept after failed flush")

	env.sendOK = true
	rep = env.run(t, jstTime(t, 1, 7, 5), nil)
	assert.Equal(t, 2, rep.Flushed)
	assert.Equal(t, 0, env.state(t).Deferred.Len())
}

func TestRunner_FailedDeliveryMarksNothing(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/1", 1000), listing("x/2", 50000)}
	env.sendOK = false

	rep := env.run(t, jstTime(t, 1, 12, 0), nil)
	assert.True(t, rep.Failed)
	st := env.state(t)
	assert.False(t, st.Seen.Has(identity.KeyOf("https://site/x/1")), "unsent item retried next run")
	assert.True(t, st.Seen.Has(identity.KeyOf("https://site/x/2")), "filtered item committed regardless")

	env.sendOK = true
	rep = env.run(t, jstTime(t, 1, 12, 5), nil)
	assert.Equal(t, 1, rep.Sent)
}

func TestRunner_SellerRules(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{
		listing("vip/1", 40000),
		listing("banned/2", 1000),
		listing("anon/3", 1000),
		listing("x/4", 7000),
	}

	rep := env.run(t, jstTime(t, 1, 3, 0), nil)
	assert.Equal(t, 2, rep.Excluded)
	assert.Equal(t, 1, rep.Deferred)
	assert.Equal(t, 1, rep.Sent, "priority seller sent during quiet hours")
	require.Len(t, env.notifier.SendCalls(), 1)
	msg := env.notifier.SendCalls()[0].Msg
	assert.Equal(t, "@everyone\n💌つなぐ 優先通知", msg.Content)
	require.Len(t, msg.Cards, 1)
	assert.Equal(t, "item vip/1", msg.Cards[0].Title)

	st := env.state(t)
	seller, ok := st.Sellers.Get("https://site/anon/3")
	assert.True(t, ok)
	assert.Empty(t, seller, "negative seller lookup cached")
	assert.Equal(t, 4, st.Sellers.Len())
}

func TestRunner_ForceFlags(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/1", 1000)}

	rep := env.run(t, jstTime(t, 1, 12, 0), func(p *Params) { p.ForceNight = true })
	assert.Equal(t, 1, rep.Deferred)
	assert.Empty(t, env.notifier.SendCalls())

	// force-night suppresses the summary flush even when due
	env.listings[domain.CategoryListing] = nil
	rep = env.run(t, jstTime(t, 2, 12, 0), func(p *Params) { p.ForceNight = true })
	assert.Equal(t, 0, rep.Flushed)
	assert.Equal(t, 1, env.state(t).Deferred.Len())

	env.listings[domain.CategoryListing] = []domain.Item{listing("x/2", 2000)}
	rep = env.run(t, jstTime(t, 3, 3, 0), func(p *Params) { p.ForceDay = true })
	assert.Equal(t, 1, rep.Flushed, "due flush sent")
	assert.Equal(t, 1, rep.Sent, "force-day sends during quiet hours")
	assert.Len(t, env.notifier.SendCalls(), 2)
}

func TestRunner_DryRun(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/1", 1000), listing("x/2", 30000)}
	out := &bytes.Buffer{}

	rep := env.run(t, jstTime(t, 1, 12, 0), func(p *Params) {
		p.DryRun = true
		p.Out = out
	})
	assert.Equal(t, 0, rep.Sent)
	assert.False(t, rep.Failed)
	assert.Empty(t, env.notifier.SendCalls())
	assert.Contains(t, out.String(), "item x/1")

	_, err := os.Stat(filepath.Join(env.cfg.State.Dir, store.DocSeen+".json"))
	assert.True(t, os.IsNotExist(err), "dry run persists nothing")
}

func TestRunner_LockHeld(t *testing.T) {
	env := newTestEnv(t)
	now := jstTime(t, 1, 12, 0)
	lock, ok, err := acquireLock(filepath.Join(env.cfg.State.Dir, env.cfg.State.LockFile), time.Minute, now)
	require.NoError(t, err)
	require.True(t, ok)
	defer lock.release()

	rep := env.run(t, now.Add(time.Second), nil)
	assert.True(t, rep.Skipped)
	assert.Empty(t, env.source.FetchListingCalls())
	assert.NotEmpty(t, rep.RunID)
}

func TestRunner_PanicKeepsCaches(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/1", 1000), listing("x/2", 50000)}
	env.notifier.SendFunc = func(context.Context, notify.Message) bool { panic("boom") }

	rep := env.run(t, jstTime(t, 1, 12, 0), nil)
	assert.True(t, rep.Recovered)

	_, err := os.Stat(filepath.Join(env.cfg.State.Dir, store.DocSeen+".json"))
	assert.True(t, os.IsNotExist(err), "seen-set not written after panic")
	st := env.state(t)
	assert.Equal(t, 2, st.Sellers.Len(), "seller cache persisted")
	_, err = os.Stat(filepath.Join(env.cfg.State.Dir, env.cfg.State.LockFile))
	assert.True(t, os.IsNotExist(err), "lock released")
}

func TestRunner_Loop(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/1", 1000)}
	r := env.runner(t, jstTime(t, 1, 12, 0), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	r.Loop(ctx, 50*time.Millisecond)

	assert.GreaterOrEqual(t, len(env.source.FetchListingCalls()), 4, "two sources per run, at least two runs")
	assert.Len(t, env.notifier.SendCalls(), 1)
}

func TestNewRunner_Errors(t *testing.T) {
	_, err := NewRunner(Params{})
	require.Error(t, err)

	env := newTestEnv(t)
	_, err = NewRunner(Params{Config: env.cfg})
	require.Error(t, err)

	env.cfg.QuietHours.Start = "bad"
	_, err = NewRunner(Params{Config: env.cfg, Source: env.source, Notifier: env.notifier, Backend: env.backend})
	require.Error(t, err)
}

func TestRunner_CancelAfterDeliveryCommitsKeys(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/1", 1000)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.notifier.SendFunc = func(context.Context, notify.Message) bool {
		cancel() // termination signal right after the webhook accepted the message
		return true
	}

	rep, err := env.runner(t, jstTime(t, 1, 12, 0), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.True(t, env.state(t).Seen.Has(identity.KeyOf("https://site/x/1")), "delivered key persisted")

	env.notifier.SendFunc = func(context.Context, notify.Message) bool { return true }
	rep = env.run(t, jstTime(t, 1, 12, 5), nil)
	assert.Equal(t, 0, rep.Sent)
	assert.Len(t, env.notifier.SendCalls(), 1, "item delivered once")
}

func TestRunner_SeenMarksUseRunClock(t *testing.T) {
	env := newTestEnv(t)
	env.listings[domain.CategoryListing] = []domain.Item{listing("x/1", 1000), listing("x/2", 50000)}
	now := jstTime(t, 1, 12, 0)
	env.run(t, now, nil)

	var marks map[identity.Key]int64
	require.NoError(t, env.backend.Load(context.Background(), store.DocSeen, &marks))
	require.Len(t, marks, 2)
	for key, ts := range marks {
		assert.Equal(t, now.Unix(), ts, "key %s", key.Short())
	}
}

func TestRunner_FlushesEntryWithoutQueueTime(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.cfg.State.Dir, 0o750))
	doc := `{"auction":[{"item":{"title":"lot a/1","url":"https://site/a/1","price":900,"category":"auction"}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.State.Dir, store.DocDeferred+".json"), []byte(doc), 0o600))

	// loaded at noon, the entry is stamped with the load time and not flushed yet
	rep := env.run(t, jstTime(t, 1, 12, 0), nil)
	assert.Equal(t, 0, rep.Flushed)
	require.Equal(t, 1, env.state(t).Deferred.Len())

	rep = env.run(t, jstTime(t, 2, 6, 5), nil)
	assert.Equal(t, 1, rep.Flushed)
	assert.Equal(t, 0, env.state(t).Deferred.Len())
}
