package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Nandanaskartha/acme-product-uploader/internal/event"
)

// Webhook is a registered outbound endpoint bound to one event type.
// Delivery counters are mutated only by the dispatcher via RecordDelivery;
// edits through UpdateWebhook never reset them.
type Webhook struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	EventType       string     `json:"event_type"`
	Enabled         bool       `json:"enabled"`
	Secret          string     `json:"secret,omitempty"`
	Headers         string     `json:"headers,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	SuccessCount    int64      `json:"success_count"`
	FailureCount    int64      `json:"failure_count"`
}

// CustomHeaders decodes the optional headers JSON into a map.
// Returns nil for an empty column.
func (w *Webhook) CustomHeaders() (map[string]string, error) {
	if strings.TrimSpace(w.Headers) == "" {
		return nil, nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(w.Headers), &headers); err != nil {
		return nil, fmt.Errorf("decode webhook headers: %w", err)
	}
	return headers, nil
}

// WebhookInput carries the writable fields of a registration.
type WebhookInput struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	EventType string `json:"event_type"`
	Enabled   bool   `json:"enabled"`
	Secret    string `json:"secret"`
	Headers   string `json:"headers"`
}

// Validate rejects configuration errors synchronously so they never reach the
// dispatcher: the event type must be in the closed set, the URL must be an
// absolute http(s) URL, and headers must be a JSON object of strings.
func (w *WebhookInput) Validate() error {
	w.Name = strings.TrimSpace(w.Name)
	w.URL = strings.TrimSpace(w.URL)

	if w.Name == "" {
		return ValidationError("name is required")
	}

	if _, err := event.ParseType(w.EventType); err != nil {
		return ValidationError(fmt.Sprintf("event_type must be one of %v", event.Types()))
	}

	u, err := url.Parse(w.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ValidationError(fmt.Sprintf("url must be an absolute URL, got %q", w.URL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError(fmt.Sprintf("url scheme must be http or https, got %q", u.Scheme))
	}

	if strings.TrimSpace(w.Headers) != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(w.Headers), &headers); err != nil {
			return ValidationError("headers must be a JSON object of strings")
		}
	}

	return nil
}

const webhookColumns = `id, name, url, event_type, enabled, coalesce(secret, ''),
	coalesce(headers, ''), created_at, updated_at, last_triggered_at,
	success_count, failure_count`

func scanWebhook(row pgx.Row) (Webhook, error) {
	var w Webhook
	err := row.Scan(&w.ID, &w.Name, &w.URL, &w.EventType, &w.Enabled, &w.Secret,
		&w.Headers, &w.CreatedAt, &w.UpdatedAt, &w.LastTriggeredAt,
		&w.SuccessCount, &w.FailureCount)
	return w, err
}

// CreateWebhook registers a new endpoint.
func (s *Store) CreateWebhook(ctx context.Context, in WebhookInput) (Webhook, error) {
	if err := in.Validate(); err != nil {
		return Webhook{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO webhooks (name, url, event_type, enabled, secret, headers)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING `+webhookColumns,
		in.Name, in.URL, in.EventType, in.Enabled, in.Secret, in.Headers,
	)
	w, err := scanWebhook(row)
	if err != nil {
		return Webhook{}, fmt.Errorf("create webhook: %w", err)
	}
	return w, nil
}

// GetWebhook fetches one registration by ID.
func (s *Store) GetWebhook(ctx context.Context, id int64) (Webhook, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)
	w, err := scanWebhook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Webhook{}, ErrNotFound
	}
	if err != nil {
		return Webhook{}, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

// UpdateWebhook replaces the writable fields. Counters and timestamps are
// untouched except for updated_at.
func (s *Store) UpdateWebhook(ctx context.Context, id int64, in WebhookInput) (Webhook, error) {
	if err := in.Validate(); err != nil {
		return Webhook{}, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE webhooks
		SET name = $2, url = $3, event_type = $4, enabled = $5,
		    secret = NULLIF($6, ''), headers = NULLIF($7, ''), updated_at = now()
		WHERE id = $1
		RETURNING `+webhookColumns,
		id, in.Name, in.URL, in.EventType, in.Enabled, in.Secret, in.Headers,
	)
	w, err := scanWebhook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Webhook{}, ErrNotFound
	}
	if err != nil {
		return Webhook{}, fmt.Errorf("update webhook: %w", err)
	}
	return w, nil
}

// DeleteWebhook removes a registration. Deliveries already dispatched are
// unaffected; the dispatcher will simply find no registration next time.
func (s *Store) DeleteWebhook(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWebhooks returns every registration ordered by creation.
func (s *Store) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	webhooks := []Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// ListEnabledByEvent returns the enabled registrations for one event type.
// This is the dispatcher's selection query: disabled or deleted registrations
// never appear here, so they receive zero deliveries for new events.
func (s *Store) ListEnabledByEvent(ctx context.Context, eventType string) ([]Webhook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE event_type = $1 AND enabled`,
		eventType)
	if err != nil {
		return nil, fmt.Errorf("list enabled webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// ToggleWebhook flips the enabled flag and returns the updated registration.
func (s *Store) ToggleWebhook(ctx context.Context, id int64) (Webhook, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE webhooks
		SET enabled = NOT enabled, updated_at = now()
		WHERE id = $1
		RETURNING `+webhookColumns, id)
	w, err := scanWebhook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Webhook{}, ErrNotFound
	}
	if err != nil {
		return Webhook{}, fmt.Errorf("toggle webhook: %w", err)
	}
	return w, nil
}

// RecordDelivery bumps the delivery counters for one attempt. The increment
// happens in SQL so concurrent deliveries to the same registration serialize
// on the row instead of losing updates.
func (s *Store) RecordDelivery(ctx context.Context, id int64, success bool, at time.Time) error {
	var query string
	if success {
		query = `UPDATE webhooks
			SET success_count = success_count + 1, last_triggered_at = $2
			WHERE id = $1`
	} else {
		query = `UPDATE webhooks
			SET failure_count = failure_count + 1, last_triggered_at = $2
			WHERE id = $1`
	}
	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
