package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
)

// ErrPermanent is returned for deliveries rejected by the webhook, not worth retrying
var ErrPermanent = errors.New("permanent delivery failure")

// Options defines webhook parameters
type Options struct {
	URL        string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Webhook posts messages to a chat webhook
type Webhook struct {
	url        string
	client     *http.Client
	retries    int
	retryDelay time.Duration
}

// NewWebhook makes a webhook notifier
func NewWebhook(opts Options) *Webhook {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Webhook{
		url:        opts.URL,
		client:     &http.Client{Timeout: opts.Timeout},
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
	}
}

// Send posts the message and reports success. Failures are logged, never returned.
func (w *Webhook) Send(ctx context.Context, msg Message) bool {
	if err := w.Post(ctx, msg); err != nil {
		lgr.Printf("[WARN] failed to send notification with %d cards: %v", len(msg.Cards), err)
		return false
	}
	lgr.Printf("[DEBUG] sent notification with %d cards", len(msg.Cards))
	return true
}

// Post delivers the message, retrying network errors, 429 and 5xx responses
func (w *Webhook) Post(ctx context.Context, msg Message) error {
	if w.url == "" {
		return fmt.Errorf("webhook url not set: %w", ErrPermanent)
	}
	if len(msg.Cards) > MaxCards {
		return fmt.Errorf("%d cards, at most %d allowed: %w", len(msg.Cards), MaxCards, ErrPermanent)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	retrier := repeater.NewBackoff(w.retries, w.retryDelay, repeater.WithMaxDelay(10*time.Second))
	return retrier.Do(ctx, func() error {
		return w.postOnce(ctx, body)
	}, ErrPermanent)
}

func (w *Webhook) postOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w: %w", err, ErrPermanent)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, respBody)
	default:
		return fmt.Errorf("webhook status %d: %s: %w", resp.StatusCode, respBody, ErrPermanent)
	}
}
