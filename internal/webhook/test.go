package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Nandanaskartha/acme-product-uploader/internal/event"
)

// TestResult is the outcome of an on-demand test invocation.
type TestResult struct {
	Success        bool    `json:"success"`
	StatusCode     *int    `json:"status_code"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
	ResponseBody   string  `json:"response_body,omitempty"`
}

// Test performs one synchronous delivery attempt against the registration
// using a synthetic sample payload for its configured event type. A test is
// observational: it never touches success_count or failure_count, and it runs
// even against a disabled registration.
func (d *Dispatcher) Test(ctx context.Context, id int64) (TestResult, error) {
	reg, err := d.regs.GetWebhook(ctx, id)
	if err != nil {
		return TestResult{}, err
	}

	sample := event.Event{
		Type:       event.Type(reg.EventType),
		OccurredAt: time.Now().UTC(),
		Payload:    samplePayload(event.Type(reg.EventType)),
	}
	body, err := json.Marshal(sample)
	if err != nil {
		return TestResult{}, fmt.Errorf("encode sample payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.URL, bytes.NewReader(body))
	if err != nil {
		return TestResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", reg.EventType)
	req.Header.Set("X-Webhook-ID", fmt.Sprintf("%d", reg.ID))
	req.Header.Set("User-Agent", userAgent)
	if headers, hdrErr := reg.CustomHeaders(); hdrErr == nil {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	if reg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(reg.Secret, body))
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		reason := "connection failed"
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			reason = fmt.Sprintf("request timeout (%s)", d.client.Timeout)
		}
		return TestResult{
			Success:        false,
			ResponseTimeMs: elapsed,
			Error:          reason,
		}, nil
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	io.Copy(io.Discard, resp.Body)

	result := TestResult{
		Success:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:     &resp.StatusCode,
		ResponseTimeMs: elapsed,
		ResponseBody:   string(preview),
	}
	if !result.Success {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result, nil
}

// samplePayload fabricates representative event data for test deliveries.
func samplePayload(t event.Type) map[string]any {
	switch t {
	case event.TypeProductCreated, event.TypeProductUpdated:
		return map[string]any{
			"id":    0,
			"sku":   "sample-sku",
			"name":  "Sample Product",
			"price": "9.99",
			"test":  true,
		}
	case event.TypeProductDeleted:
		return map[string]any{"id": 0, "sku": "sample-sku", "test": true}
	case event.TypeProductBulkDeleted:
		return map[string]any{"ids": []int64{1, 2, 3}, "deleted": 3, "test": true}
	case event.TypeCSVCompleted:
		return map[string]any{"job_id": "00000000-0000-0000-0000-000000000000", "processed": 100, "errors": 0, "test": true}
	default:
		return map[string]any{"test": true}
	}
}
