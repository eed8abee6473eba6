package api

import (
	"net/http"
)

// ListStates возвращает ids документов с префиксом.
// GET /api/v1/states?prefix=agents/
func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	prefix := h.stateID(r.URL.Query().Get("prefix"))

	ids, err := h.store.ListIDsWithPrefix(r.Context(), prefix)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}
	if ids == nil {
		ids = []string{}
	}

	List(w, ids, len(ids))
}

// GetState возвращает документ по id.
// GET /api/v1/states/{path...}
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if path == "" {
		BadRequest(w, "state id is required")
		return
	}

	doc, err := h.store.Get(r.Context(), h.stateID(path))
	if HandleStoreError(w, h.logger, err, "state not found") {
		return
	}

	Success(w, StateFromDocument(doc))
}
