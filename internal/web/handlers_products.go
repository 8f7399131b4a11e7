package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Nandanaskartha/acme-product-uploader/internal/event"
	"github.com/Nandanaskartha/acme-product-uploader/internal/logging"
	"github.com/Nandanaskartha/acme-product-uploader/internal/store"
)

// productPayload renders a product as an event payload.
func productPayload(p store.Product) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"sku":         p.SKU,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"active":      p.Active,
	}
}

// handleListProducts returns a page of products with optional search.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "page_size", 50)
	search := r.URL.Query().Get("search")

	result, err := s.store.ListProducts(r.Context(), page, pageSize, search)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCreateProduct creates a product and publishes product.created.
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in store.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := s.store.CreateProduct(r.Context(), in)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateSKU) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeProductError(w, err)
		return
	}

	s.bus.Publish(event.New(event.TypeProductCreated, productPayload(p)))
	writeJSON(w, http.StatusCreated, p)
}

// handleGetProduct returns one product by ID.
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	p, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch product")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpdateProduct replaces a product and publishes product.updated.
func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var in store.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := s.store.UpdateProduct(r.Context(), id, in)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, store.ErrDuplicateSKU):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeProductError(w, err)
		}
		return
	}

	s.bus.Publish(event.New(event.TypeProductUpdated, productPayload(p)))
	writeJSON(w, http.StatusOK, p)
}

// handleDeleteProduct removes a product and publishes product.deleted.
func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	// Fetch first so the event payload can carry the SKU of what was removed.
	p, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch product")
		return
	}

	if err := s.store.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}

	s.bus.Publish(event.New(event.TypeProductDeleted, map[string]any{
		"id":  p.ID,
		"sku": p.SKU,
	}))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleBulkDeleteProducts removes a set of products by ID and publishes
// product.bulk_deleted with the count actually removed.
func (s *Server) handleBulkDeleteProducts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	deleted, err := s.store.BulkDeleteProducts(r.Context(), body.IDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete products")
		return
	}

	s.bus.Publish(event.New(event.TypeProductBulkDeleted, map[string]any{
		"ids":     body.IDs,
		"deleted": deleted,
	}))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// handleExportProducts streams all products as a CSV download.
func (s *Server) handleExportProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.AllProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export products")
		return
	}

	filename := fmt.Sprintf("products_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	// Headers are already written, so a mid-stream failure can only be
	// logged; the client sees a truncated file.
	if err := writeProductsCSV(w, products); err != nil {
		logging.FromContext(r.Context()).Error("product export truncated", "error", err)
	}
}

// writeProductsCSV renders products as CSV rows onto w.
func writeProductsCSV(w io.Writer, products []store.Product) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"sku", "name", "description", "price", "active"})
	for _, p := range products {
		cw.Write([]string{p.SKU, p.Name, p.Description, p.Price, strconv.FormatBool(p.Active)})
	}
	cw.Flush()
	return cw.Error()
}

// writeProductError maps a store error to a response, treating validation
// failures as client errors.
func writeProductError(w http.ResponseWriter, err error) {
	var vErr store.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "failed to save product")
}

// parseID extracts and parses the {id} URL parameter.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID")
		return 0, false
	}
	return id, true
}

// parseIntParam reads an integer query parameter with a default.
func parseIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
