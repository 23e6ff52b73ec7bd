package rest

import (
	"net/http"

	"attrix/pkg/model"
)

type registerAttributeRequest struct {
	Key      string         `json:"key"`
	DataType model.DataType `json:"dataType"`
}

func (h *Handler) handleRegisterAttribute(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req registerAttributeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.DataType.IsValid() {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid data type")
		return
	}

	attr, err := h.service.RegisterAttribute(r.Context(), tenant, req.Key, req.DataType)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attr)
}

func (h *Handler) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	attrs, err := h.service.ListAttributes(r.Context(), r.PathValue("tenant"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

func (h *Handler) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	attr, err := h.service.GetAttribute(r.Context(), r.PathValue("tenant"), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attr)
}

func (h *Handler) handleDeleteAttribute(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteAttribute(r.Context(), r.PathValue("tenant"), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type schemaRequest struct {
	Name  string            `json:"name"`
	Rules model.SchemaRules `json:"rules"`
}

func (h *Handler) handleSetSchema(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req schemaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.SetSchema(r.Context(), tenant, req.Name, req.Rules); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.service.GetSchema(r.Context(), r.PathValue("tenant"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (h *Handler) handleAddClassification(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req schemaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	class, err := h.service.AddClassification(r.Context(), tenant, req.Name, req.Rules)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (h *Handler) handleListClassifications(w http.ResponseWriter, r *http.Request) {
	classes, err := h.service.ListClassifications(r.Context(), r.PathValue("tenant"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *Handler) handleGetClassification(w http.ResponseWriter, r *http.Request) {
	class, err := h.service.GetClassification(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, class)
}

func (h *Handler) handleUpdateClassification(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	id := r.PathValue("id")

	var req schemaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.UpdateClassification(r.Context(), tenant, id, req.Name, req.Rules); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteClassification(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteClassification(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
