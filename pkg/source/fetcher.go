// Package source scrapes marketplace listing pages and item detail pages.
// Fetch failures never reach the caller, they are logged and give empty results.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"

	"github.com/umputun/lotwatch/pkg/config"
	"github.com/umputun/lotwatch/pkg/domain"
)

// ErrMalformed is returned for a scraped record without URL or title
var ErrMalformed = errors.New("malformed item")

// errPermanent marks responses not worth retrying
var errPermanent = errors.New("permanent fetch error")

// maxBodySize limits the size of fetched pages
const maxBodySize = 8 << 20

// Options defines fetcher parameters
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	UserAgent  string
	ProxyURL   string
}

// Fetcher loads listing and detail pages over HTTP
type Fetcher struct {
	client     *http.Client
	userAgent  string
	retries    int
	retryDelay time.Duration
}

// NewFetcher makes a fetcher, a proxy URL overrides the proxy from environment
func NewFetcher(opts Options) (*Fetcher, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Fetcher{
		client:     &http.Client{Timeout: opts.Timeout, Transport: transport},
		userAgent:  opts.UserAgent,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
	}, nil
}

// FetchListing loads a listing page and extracts its items.
// Malformed cards are dropped, any fetch or parse failure gives an empty list.
func (f *Fetcher) FetchListing(ctx context.Context, src config.Source) []domain.Item {
	body, err := f.get(ctx, src.URL)
	if err != nil {
		lgr.Printf("[WARN] failed to fetch %s listing %s: %v", src.Category, src.URL, err)
		return nil
	}

	var items []domain.Item
	switch src.Kind {
	case config.KindRSS:
		items, err = ParseFeed(body, src.Category)
	default:
		items, err = ParseListing(body, src)
	}
	if err != nil {
		lgr.Printf("[WARN] failed to parse %s listing %s: %v", src.Category, src.URL, err)
		return nil
	}
	lgr.Printf("[DEBUG] fetched %d %s items from %s", len(items), src.Category, src.URL)
	return items
}

// FetchSeller loads an item detail page and returns the seller id linked from it.
// Returns empty string when the page can't be loaded or has no profile link.
func (f *Fetcher) FetchSeller(ctx context.Context, itemURL string) string {
	body, err := f.get(ctx, itemURL)
	if err != nil {
		lgr.Printf("[WARN] failed to fetch detail page %s: %v", itemURL, err)
		return ""
	}
	seller, err := SellerFromHTML(body)
	if err != nil {
		lgr.Printf("[WARN] failed to parse detail page %s: %v", itemURL, err)
		return ""
	}
	if seller == "" {
		lgr.Printf("[DEBUG] no seller link on %s", itemURL)
	}
	return seller
}

// get fetches a page body with retries, 4xx responses other than 429 are not retried
func (f *Fetcher) get(ctx context.Context, pageURL string) ([]byte, error) {
	var body []byte
	retrier := repeater.NewBackoff(f.retries, f.retryDelay, repeater.WithMaxDelay(5*time.Second))
	err := retrier.Do(ctx, func() error {
		b, err := f.getOnce(ctx, pageURL)
		if err != nil {
			lgr.Printf("[DEBUG] fetch %s: %v", pageURL, err)
			return err
		}
		body = b
		return nil
	}, errPermanent)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) getOnce(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", err, errPermanent)
	}
	addBrowserHeaders(req, f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("status code %d: %w", resp.StatusCode, errPermanent)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
