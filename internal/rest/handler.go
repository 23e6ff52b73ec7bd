// Package rest is the thin HTTP surface over the core service: admin
// operations for attributes, schemas and classifications, document
// validation and indexing, and index queries.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"attrix/internal/core"
	"attrix/pkg/model"
)

// Default body size limit
const DefaultMaxBodySize = 1 << 20 // 1MB

// Default request timeout
const DefaultRequestTimeout = 30 * time.Second

// APIError represents a structured error response
type APIError struct {
	Code    string                    `json:"code"`
	Message string                    `json:"message"`
	Items   []model.ValidationFailure `json:"items,omitempty"`
}

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Handler serves the REST routes.
type Handler struct {
	service *core.Service
	logger  *slog.Logger
}

// NewHandler creates the REST handler.
func NewHandler(service *core.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger.With("component", "rest")}
}

// RegisterRoutes registers all routes on mux. Tenancy is path-scoped; the
// caller is responsible for authenticating tenants upstream.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.HandleFunc("POST /v1/{tenant}/attributes", h.handleRegisterAttribute)
	mux.HandleFunc("GET /v1/{tenant}/attributes", h.handleListAttributes)
	mux.HandleFunc("GET /v1/{tenant}/attributes/{key}", h.handleGetAttribute)
	mux.HandleFunc("DELETE /v1/{tenant}/attributes/{key}", h.handleDeleteAttribute)

	mux.HandleFunc("PUT /v1/{tenant}/schema", h.handleSetSchema)
	mux.HandleFunc("GET /v1/{tenant}/schema", h.handleGetSchema)

	mux.HandleFunc("POST /v1/{tenant}/classifications", h.handleAddClassification)
	mux.HandleFunc("GET /v1/{tenant}/classifications", h.handleListClassifications)
	mux.HandleFunc("GET /v1/{tenant}/classifications/{id}", h.handleGetClassification)
	mux.HandleFunc("PUT /v1/{tenant}/classifications/{id}", h.handleUpdateClassification)
	mux.HandleFunc("DELETE /v1/{tenant}/classifications/{id}", h.handleDeleteClassification)

	mux.HandleFunc("PUT /v1/{tenant}/documents/{docId}", h.handleIndexDocument)
	mux.HandleFunc("GET /v1/{tenant}/documents/{docId}", h.handleGetDocument)
	mux.HandleFunc("DELETE /v1/{tenant}/documents/{docId}", h.handleDeleteDocument)
	mux.HandleFunc("POST /v1/{tenant}/documents/{docId}/reindex", h.handleReindex)

	mux.HandleFunc("GET /v1/{tenant}/query", h.handleQueryGet)
	mux.HandleFunc("POST /v1/{tenant}/query", h.handleQueryPost)

	mux.HandleFunc("DELETE /v1/{tenant}/index/{indexType}/{indexKey}", h.handleDeleteIndexEntry)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// writeError writes a structured JSON error response
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeServiceError maps a core error to an HTTP response.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if verr, ok := model.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, APIError{
			Code: ErrCodeBadRequest, Message: "Validation failed", Items: verr,
		})
		return
	}

	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, model.ErrExists),
		errors.Is(err, model.ErrFolderNotEmpty),
		errors.Is(err, model.ErrClassificationInUse),
		errors.Is(err, model.ErrAttributeInUse):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, model.ErrTooManyDocumentIDs), errors.Is(err, model.ErrBadToken):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "Internal error")
	}
}

// decodeBody parses a JSON request body with a size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return false
	}
	return true
}
