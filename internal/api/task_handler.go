package api

import (
	"net/http"
)

// ListTasks возвращает tasks в очереди consumer'а.
// GET /api/v1/tasks?consumer=orchestrator/
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	consumer := r.URL.Query().Get("consumer")
	if consumer == "" {
		BadRequest(w, "consumer is required")
		return
	}

	tasks, err := h.broker.PendingTasks(r.Context(), h.stateID(consumer))
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}

	List(w, result, len(result))
}
