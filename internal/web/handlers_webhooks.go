package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Nandanaskartha/acme-product-uploader/internal/logging"
	"github.com/Nandanaskartha/acme-product-uploader/internal/store"
)

// handleListWebhooks returns every webhook registration.
func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.store.ListWebhooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	writeJSON(w, http.StatusOK, webhooks)
}

// handleCreateWebhook registers a new webhook endpoint.
func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var in store.WebhookInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wh, err := s.store.CreateWebhook(r.Context(), in)
	if err != nil {
		writeWebhookError(w, err)
		return
	}

	logging.FromContext(r.Context()).Info("webhook registered",
		"webhook_id", wh.ID,
		"event_type", wh.EventType,
	)
	writeJSON(w, http.StatusCreated, wh)
}

// handleGetWebhook returns one registration by ID.
func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	wh, err := s.store.GetWebhook(r.Context(), id)
	if err != nil {
		writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// handleUpdateWebhook replaces a registration's configuration. Delivery
// counters survive the edit.
func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var in store.WebhookInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wh, err := s.store.UpdateWebhook(r.Context(), id, in)
	if err != nil {
		writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// handleDeleteWebhook removes a registration.
func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteWebhook(r.Context(), id); err != nil {
		writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleToggleWebhook flips the enabled flag.
func (s *Server) handleToggleWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	wh, err := s.store.ToggleWebhook(r.Context(), id)
	if err != nil {
		writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// handleTestWebhook fires a synchronous test delivery and reports the
// outcome. Test invocations never count toward delivery statistics.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	result, err := s.dispatcher.Test(r.Context(), id)
	if err != nil {
		writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeWebhookError maps a store error to a response.
func writeWebhookError(w http.ResponseWriter, err error) {
	var vErr store.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "webhook not found")
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "webhook operation failed")
	}
}
