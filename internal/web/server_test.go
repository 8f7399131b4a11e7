package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Nandanaskartha/acme-product-uploader/internal/config"
	"github.com/Nandanaskartha/acme-product-uploader/internal/event"
	"github.com/Nandanaskartha/acme-product-uploader/internal/importer"
	"github.com/Nandanaskartha/acme-product-uploader/internal/store"
)

// nullWriter accepts every batch without storing anything.
type nullWriter struct {
	mu    sync.Mutex
	total int
}

func (n *nullWriter) UpsertProducts(ctx context.Context, batch []store.ProductInput) error {
	n.mu.Lock()
	n.total += len(batch)
	n.mu.Unlock()
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Import.MaxFileSize = 1 << 20
	cfg.Rate.Enabled = false
	return cfg
}

// newImportServer builds a server with a working import pipeline and no
// database, enough to exercise the upload and progress endpoints.
func newImportServer(t *testing.T) *Server {
	t.Helper()
	bus := event.NewBus()
	imports := importer.NewService(&nullWriter{}, bus, importer.Options{
		SpoolDir: t.TempDir(),
	})
	return NewServer(nil, imports, nil, bus, testConfig())
}

// multipartUpload builds a multipart request body carrying one file field.
func multipartUpload(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleUploadValidation(t *testing.T) {
	s := newImportServer(t)

	t.Run("no file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("name", "not-a-file")
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got status %d, want 400", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "no file provided") {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		body, contentType := multipartUpload(t, "products.txt", "whatever")
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got status %d, want 400", rec.Code)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("plain"))
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got status %d, want 400", rec.Code)
		}
	})
}

func TestProgressUnknownJob(t *testing.T) {
	s := newImportServer(t)

	req := httptest.NewRequest(http.MethodGet, "/progress/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestUploadAndStreamProgress(t *testing.T) {
	s := newImportServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	content := "sku,name,price\n" +
		"w-1,Widget,9.99\n" +
		",Nameless,1.00\n" +
		"w-3,Gizmo,5.00\n"

	body, contentType := multipartUpload(t, "products.csv", content)
	resp, err := http.Post(srv.URL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d", resp.StatusCode)
	}

	var started struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if started.JobID == "" {
		t.Fatal("empty job_id")
	}

	stream, err := http.Get(srv.URL + "/progress/" + started.JobID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	defer stream.Body.Close()

	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var (
		sawDone bool
		final   importer.Snapshot
	)
	scanner := bufio.NewScanner(stream.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: done" {
			sawDone = true
			break
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok && data != "{}" {
			if err := json.Unmarshal([]byte(data), &final); err != nil {
				t.Fatalf("bad snapshot %q: %v", data, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read stream: %v", err)
	}

	if !sawDone {
		t.Fatal("stream ended without done event")
	}
	if final.Status != importer.StatusComplete {
		t.Fatalf("final status %q (%s), want complete", final.Status, final.Message)
	}
	if final.Processed != 2 || final.Errors != 1 || final.Percent != 100 {
		t.Errorf("unexpected final snapshot: %+v", final)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Error("third request should be limited")
	}
	// A different client has its own bucket.
	if !rl.allow("5.6.7.8") {
		t.Error("other client should not be limited")
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newImportServer(t)

	req := httptest.NewRequest(http.MethodGet, "/progress/none", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

// failingWriter errors on every write.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestWriteProductsCSV(t *testing.T) {
	products := []store.Product{
		{SKU: "w-1", Name: "Widget", Description: "A widget", Price: "9.99", Active: true},
		{SKU: "w-2", Name: "Gadget", Price: "19.50", Active: false},
	}

	var buf bytes.Buffer
	if err := writeProductsCSV(&buf, products); err != nil {
		t.Fatalf("writeProductsCSV: %v", err)
	}

	want := "sku,name,description,price,active\n" +
		"w-1,Widget,A widget,9.99,true\n" +
		"w-2,Gadget,,19.50,false\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	// A broken sink must surface as an error, not a silent truncation.
	if err := writeProductsCSV(failingWriter{}, products); err == nil {
		t.Error("expected error from failing writer")
	}
}

func TestParseIntParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products?page=3&page_size=abc", nil)

	if got := parseIntParam(req, "page", 1); got != 3 {
		t.Errorf("page = %d, want 3", got)
	}
	if got := parseIntParam(req, "page_size", 50); got != 50 {
		t.Errorf("page_size fallback = %d, want 50", got)
	}
	if got := parseIntParam(req, "missing", 7); got != 7 {
		t.Errorf("missing = %d, want 7", got)
	}
}
