package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
)

// State DTOs

// StateResponse — документ сущности с etag.
type StateResponse struct {
	ID    string          `json:"id"`
	Etag  string          `json:"etag"`
	State json.RawMessage `json:"state"`
}

// StateFromDocument конвертирует store.Document в StateResponse.
func StateFromDocument(doc store.Document) StateResponse {
	return StateResponse{
		ID:    doc.ID,
		Etag:  doc.Etag.String(),
		State: json.RawMessage(doc.Body),
	}
}

// Task DTOs

// TaskResponse — task в очереди consumer'а.
type TaskResponse struct {
	ID                uuid.UUID       `json:"id"`
	Type              domain.TaskType `json:"type"`
	ProducerID        string          `json:"producer_id,omitempty"`
	ConsumerID        string          `json:"consumer_id"`
	StateID           string          `json:"state_id"`
	ProducerTimestamp time.Time       `json:"producer_timestamp"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:                t.ID,
		Type:              t.Type,
		ProducerID:        t.ProducerID,
		ConsumerID:        t.ConsumerID,
		StateID:           t.StateID,
		ProducerTimestamp: t.ProducerTimestamp,
		Payload:           t.Payload,
	}
}

// Deployment plan DTOs

// DeploymentPlanResponse — текущий план оркестратора.
type DeploymentPlanResponse struct {
	OrchestratorID string                 `json:"orchestrator_id"`
	Etag           string                 `json:"etag"`
	Plan           *domain.DeploymentPlan `json:"plan"`
}

// SubmitPlanResponse — план принят в очередь оркестратора.
type SubmitPlanResponse struct {
	OrchestratorID string   `json:"orchestrator_id"`
	ServiceIDs     []string `json:"service_ids"`
	AgentIDs       []string `json:"agent_ids"`
}

// Instance property DTOs

// SetPropertyRequest — свойство service instance. Пустой Value удаляет его.
type SetPropertyRequest struct {
	InstanceID string `json:"instance_id"`
	Key        string `json:"key"`
	Value      string `json:"value,omitempty"`
}

// SetPropertyResponse — task поставлена в очередь агента instance.
type SetPropertyResponse struct {
	InstanceID string `json:"instance_id"`
	AgentID    string `json:"agent_id"`
	Key        string `json:"key"`
	Posted     bool   `json:"posted"`
}
