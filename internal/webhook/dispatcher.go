// Package webhook delivers domain events to registered HTTP endpoints.
//
// The dispatcher subscribes to the event bus: every event fans out to the
// enabled registrations for that event type, each delivery running on its own
// goroutine with its own timeout so one slow endpoint never delays another.
// Delivery outcomes are recorded as per-registration counters; they are never
// propagated back to the operation that triggered the event.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Nandanaskartha/acme-product-uploader/internal/event"
	"github.com/Nandanaskartha/acme-product-uploader/internal/store"
)

const userAgent = "AcmeProductUploader/1.0"

// responseBodyLimit bounds how much of an endpoint's response a test
// invocation reports back.
const responseBodyLimit = 500

// RegistrationStore is the slice of webhook storage the dispatcher needs.
type RegistrationStore interface {
	ListEnabledByEvent(ctx context.Context, eventType string) ([]store.Webhook, error)
	GetWebhook(ctx context.Context, id int64) (store.Webhook, error)
	RecordDelivery(ctx context.Context, id int64, success bool, at time.Time) error
}

// Options configures a Dispatcher.
type Options struct {
	// Timeout is the per-attempt HTTP timeout.
	Timeout time.Duration

	// MaxAttempts is the total attempts per delivery, including the first.
	MaxAttempts int

	// Backoff and BackoffMax shape the delay between attempts.
	Backoff    time.Duration
	BackoffMax time.Duration
}

// Dispatcher fans events out to registered endpoints.
type Dispatcher struct {
	regs    RegistrationStore
	client  *http.Client
	backoff backoffPolicy
	maxTry  int

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher reading registrations from regs.
func NewDispatcher(regs RegistrationStore, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Dispatcher{
		regs:    regs,
		client:  &http.Client{Timeout: opts.Timeout},
		backoff: backoffPolicy{Initial: opts.Backoff, Max: opts.BackoffMax},
		maxTry:  opts.MaxAttempts,
	}
}

// HandleEvent implements event.Handler. It selects the enabled registrations
// for the event type and delivers to each concurrently and independently.
func (d *Dispatcher) HandleEvent(evt event.Event) {
	ctx := context.Background()

	regs, err := d.regs.ListEnabledByEvent(ctx, string(evt.Type))
	if err != nil {
		slog.Error("webhook selection failed", "event", evt.Type, "error", err)
		return
	}
	if len(regs) == 0 {
		return
	}

	body, err := json.Marshal(evt)
	if err != nil {
		slog.Error("webhook payload encoding failed", "event", evt.Type, "error", err)
		return
	}

	for _, reg := range regs {
		d.wg.Add(1)
		go func(reg store.Webhook) {
			defer d.wg.Done()
			d.deliver(ctx, reg, evt.Type, body)
		}(reg)
	}
}

// Drain blocks until all in-flight deliveries have finished.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

// deliver attempts the delivery up to maxTry times with exponential backoff.
// Every attempt is recorded against the registration's counters. Failures are
// logged, never returned: nothing upstream depends on delivery outcome.
func (d *Dispatcher) deliver(ctx context.Context, reg store.Webhook, eventType event.Type, body []byte) {
	for attempt := 1; ; attempt++ {
		status, err := d.post(ctx, reg, string(eventType), body)
		success := err == nil && status >= 200 && status < 300

		if recErr := d.regs.RecordDelivery(ctx, reg.ID, success, time.Now().UTC()); recErr != nil {
			slog.Error("webhook counter update failed", "webhook_id", reg.ID, "error", recErr)
		}

		if success {
			slog.Debug("webhook delivered",
				"webhook_id", reg.ID, "event", eventType, "status", status, "attempt", attempt)
			return
		}

		slog.Warn("webhook delivery failed",
			"webhook_id", reg.ID, "event", eventType,
			"status", status, "error", err, "attempt", attempt)

		if attempt >= d.maxTry {
			return
		}
		select {
		case <-time.After(d.backoff.nextDelay(attempt)):
		case <-ctx.Done():
			return
		}
	}
}

// post performs one signed HTTP delivery attempt and returns the response
// status code.
func (d *Dispatcher) post(ctx context.Context, reg store.Webhook, eventType string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", eventType)
	req.Header.Set("X-Webhook-ID", fmt.Sprintf("%d", reg.ID))
	req.Header.Set("User-Agent", userAgent)

	if headers, err := reg.CustomHeaders(); err == nil {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	if reg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(reg.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// Sign computes the payload signature header value: an HMAC-SHA256 over the
// exact serialized body, keyed by the registration secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
