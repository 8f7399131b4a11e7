package store

import (
	"strings"
	"testing"
)

func TestProductInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   ProductInput
		wantErr string
	}{
		{
			name:  "valid",
			input: ProductInput{SKU: "ABC-1", Name: "Widget", Price: "9.99", Active: true},
		},
		{
			name:  "valid zero price",
			input: ProductInput{SKU: "abc-2", Name: "Freebie", Price: "0"},
		},
		{
			name:    "empty sku",
			input:   ProductInput{SKU: "  ", Name: "Widget", Price: "1.00"},
			wantErr: "sku is required",
		},
		{
			name:    "empty name",
			input:   ProductInput{SKU: "abc", Name: "", Price: "1.00"},
			wantErr: "name is required",
		},
		{
			name:    "negative price",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "-1.50"},
			wantErr: "non-negative",
		},
		{
			name:    "unparseable price",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "free"},
			wantErr: "invalid price",
		},
		{
			name:    "infinity price",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "Inf"},
			wantErr: "invalid price",
		},
		{
			name:    "nan price",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "NaN"},
			wantErr: "invalid price",
		},
		{
			name:    "hex float price",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "0x1p4"},
			wantErr: "invalid price",
		},
		{
			name:    "exponent price",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "1e5"},
			wantErr: "invalid price",
		},
		{
			name:    "double dot price",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "1.2.3"},
			wantErr: "invalid price",
		},
		{
			name:    "bare sign price",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "-"},
			wantErr: "invalid price",
		},
		{
			name:    "price overflowing NUMERIC(10,2)",
			input:   ProductInput{SKU: "abc", Name: "Widget", Price: "99999999999"},
			wantErr: "exceeds the maximum",
		},
		{
			name:  "price at column maximum",
			input: ProductInput{SKU: "abc", Name: "Widget", Price: "99999999.99"},
		},
		{
			name:  "price with leading zeros",
			input: ProductInput{SKU: "abc", Name: "Widget", Price: "00000000012.50"},
		},
		{
			name:  "fractional price without integer part",
			input: ProductInput{SKU: "abc", Name: "Widget", Price: ".99"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestProductInput_ValidateNormalizesSKU(t *testing.T) {
	in := ProductInput{SKU: "  ABC-Widget ", Name: "Widget", Price: "2.50"}
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if in.SKU != "abc-widget" {
		t.Errorf("SKU = %q, want lowercased trimmed %q", in.SKU, "abc-widget")
	}
}

func TestWebhookInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   WebhookInput
		wantErr string
	}{
		{
			name:  "valid",
			input: WebhookInput{Name: "orders", URL: "https://example.com/hook", EventType: "product.created"},
		},
		{
			name:  "valid with headers",
			input: WebhookInput{Name: "orders", URL: "http://example.com", EventType: "csv.completed", Headers: `{"X-Env":"prod"}`},
		},
		{
			name:    "missing name",
			input:   WebhookInput{URL: "https://example.com", EventType: "product.created"},
			wantErr: "name is required",
		},
		{
			name:    "unknown event type",
			input:   WebhookInput{Name: "x", URL: "https://example.com", EventType: "product.archived"},
			wantErr: "event_type",
		},
		{
			name:    "relative url",
			input:   WebhookInput{Name: "x", URL: "/hook", EventType: "product.created"},
			wantErr: "absolute",
		},
		{
			name:    "bad scheme",
			input:   WebhookInput{Name: "x", URL: "ftp://example.com", EventType: "product.created"},
			wantErr: "scheme",
		},
		{
			name:    "headers not json",
			input:   WebhookInput{Name: "x", URL: "https://example.com", EventType: "product.created", Headers: "X-Env: prod"},
			wantErr: "JSON object",
		},
		{
			name:    "headers json array",
			input:   WebhookInput{Name: "x", URL: "https://example.com", EventType: "product.created", Headers: `["a"]`},
			wantErr: "JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWebhook_CustomHeaders(t *testing.T) {
	w := Webhook{Headers: `{"X-Token":"abc","X-Env":"prod"}`}
	headers, err := w.CustomHeaders()
	if err != nil {
		t.Fatalf("CustomHeaders() error = %v", err)
	}
	if headers["X-Token"] != "abc" || headers["X-Env"] != "prod" {
		t.Errorf("CustomHeaders() = %v", headers)
	}

	empty := Webhook{}
	headers, err = empty.CustomHeaders()
	if err != nil || headers != nil {
		t.Errorf("CustomHeaders() on empty = %v, %v, want nil, nil", headers, err)
	}
}
