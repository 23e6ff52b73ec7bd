package rest

import (
	"net/http"

	"github.com/gorilla/schema"

	"attrix/pkg/model"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// handleQueryGet evaluates index queries passed as URL parameters, e.g.
// ?path=a/b/c or ?tags.0.key=status&tags.0.eq=active&limit=20.
func (h *Handler) handleQueryGet(w http.ResponseWriter, r *http.Request) {
	var q model.QueryCriteria
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		h.logger.Warn("query: invalid query parameters", "error", err)
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
		return
	}
	h.runQuery(w, r, q)
}

// handleQueryPost evaluates index queries passed as a JSON body, the form
// used for chained tag criteria and ranges.
func (h *Handler) handleQueryPost(w http.ResponseWriter, r *http.Request) {
	var q model.QueryCriteria
	if !decodeBody(w, r, &q) {
		return
	}
	h.runQuery(w, r, q)
}

func (h *Handler) runQuery(w http.ResponseWriter, r *http.Request, q model.QueryCriteria) {
	result, err := h.service.Query(r.Context(), r.PathValue("tenant"), q)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteIndexEntry(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	indexType := model.IndexType(r.PathValue("indexType"))
	indexKey := r.PathValue("indexKey")

	if err := h.service.DeleteIndexEntry(r.Context(), tenant, indexKey, indexType); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
