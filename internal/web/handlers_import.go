package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Nandanaskartha/acme-product-uploader/internal/importer"
	"github.com/Nandanaskartha/acme-product-uploader/internal/logging"
)

// handleUpload accepts a multipart CSV or XLSX upload and starts an import
// job. The upload is spooled to disk, so memory stays constant regardless of
// file size. Returns the job ID immediately; progress streams separately.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	jobID, err := s.imports.Start(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrUnsupportedFormat):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, importer.ErrTooManyImports):
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to start import")
		}
		return
	}

	logging.FromContext(r.Context()).Info("import started",
		"job_id", jobID,
		"file", header.Filename,
	)

	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

// handleProgress streams import job progress via Server-Sent Events.
// Supports resumption via the Last-Event-ID header (or lastEventId query
// parameter): the event ID is the progress percentage, so a reconnecting
// client skips percentages it has already rendered.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	snapshots, err := s.imports.Subscribe(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				// Channel closed: the terminal snapshot has been sent.
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			// Skip snapshots the client already received, but never a
			// terminal one: the final state must always be delivered.
			if lastEventIDStr != "" && snap.Percent <= lastEventID && !snap.Status.Terminal() {
				continue
			}

			data, _ := json.Marshal(snap)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", snap.Percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
