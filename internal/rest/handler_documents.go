package rest

import (
	"net/http"

	"attrix/internal/core"
	"attrix/internal/reindex"
)

func (h *Handler) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	docID := r.PathValue("docId")

	var req core.IndexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.DocumentID = docID

	attrs, err := h.service.ValidateAndIndexDocument(r.Context(), tenant, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	attrs, err := h.service.DocumentAttributes(r.Context(), r.PathValue("tenant"), r.PathValue("docId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteDocument(r.Context(), r.PathValue("tenant"), r.PathValue("docId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reindexRequest struct {
	Target string `json:"target"`
}

func (h *Handler) handleReindex(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	docID := r.PathValue("docId")

	req := reindexRequest{Target: string(reindex.TargetAttributes)}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.Reindex(r.Context(), tenant, docID, reindex.Target(req.Target)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
