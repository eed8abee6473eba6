package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
)

// SetInstanceProperty ставит SetInstancePropertyTask агенту, на котором
// размещён instance. Свойство появится в документе, когда агент выполнит task.
// POST /api/v1/instance-properties
func (h *Handler) SetInstanceProperty(w http.ResponseWriter, r *http.Request) {
	var req SetPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.InstanceID == "" || req.Key == "" {
		BadRequest(w, "instance_id and key are required")
		return
	}

	id := h.stateID(req.InstanceID)
	inst, _, err := store.Read[domain.ServiceInstanceState](r.Context(), h.store, id)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}
	if inst == nil || inst.AgentID == "" {
		NotFound(w, "service instance not found")
		return
	}

	task, err := domain.NewTask(domain.TaskTypeSetInstanceProperty, inst.AgentID, id,
		domain.SetInstancePropertyPayload{Key: req.Key, Value: req.Value})
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	task.ProducerTimestamp = h.clock.Now()

	posted, err := h.broker.PostNewTask(r.Context(), task)
	if err != nil {
		InternalError(w, h.logger, fmt.Errorf("post %s: %w", task.Type, err))
		return
	}

	telemetry.FromContext(r.Context()).Info("instance property submitted",
		"instance_id", id,
		"agent_id", inst.AgentID,
		"key", req.Key,
	)

	Accepted(w, SetPropertyResponse{
		InstanceID: id,
		AgentID:    inst.AgentID,
		Key:        req.Key,
		Posted:     posted,
	})
}
