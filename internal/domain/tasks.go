package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskType — тип task, ключ в реестре обработчиков runtime.
type TaskType string

// Служебные tasks.
const (
	// TaskTypeProducer — триггер producer-обработчика (аналог таймера).
	TaskTypeProducer TaskType = "TaskProducerTask"
)

// Tasks оркестратора.
const (
	TaskTypeUpdateDeploymentPlan           TaskType = "UpdateDeploymentPlanTask"
	TaskTypePlanAgent                      TaskType = "PlanAgentTask"
	TaskTypePlanService                    TaskType = "PlanServiceTask"
	TaskTypePlanServiceInstance            TaskType = "PlanServiceInstanceTask"
	TaskTypeServiceInstalling              TaskType = "ServiceInstallingTask"
	TaskTypeServiceInstalled               TaskType = "ServiceInstalledTask"
	TaskTypeServiceUninstalling            TaskType = "ServiceUninstallingTask"
	TaskTypeServiceUninstalled             TaskType = "ServiceUninstalledTask"
	TaskTypeRemoveServiceInstanceFromSvc   TaskType = "RemoveServiceInstanceFromServiceTask"
	TaskTypeUnreachableServiceInstance     TaskType = "UnreachableServiceInstanceTask"
	TaskTypeMarkMachineForTermination      TaskType = "MarkMachineForTerminationTask"
	TaskTypeRemoveServiceInstanceFromAgent TaskType = "RemoveServiceInstanceFromAgentTask"
)

// Tasks machine provisioner'а.
const (
	TaskTypeStartMachine                       TaskType = "StartMachineTask"
	TaskTypeStartAgent                         TaskType = "StartAgentTask"
	TaskTypeTerminateMachine                   TaskType = "TerminateMachineTask"
	TaskTypeTerminateMachineOfNonResponsiveAgt TaskType = "TerminateMachineOfNonResponsiveAgentTask"
)

// Tasks агента.
const (
	TaskTypePingAgent                   TaskType = "PingAgentTask"
	TaskTypeAgentRestarted              TaskType = "AgentRestartedTask"
	TaskTypeInstallServiceInstance      TaskType = "InstallServiceInstanceTask"
	TaskTypeStartServiceInstance        TaskType = "StartServiceInstanceTask"
	TaskTypeStopServiceInstance         TaskType = "StopServiceInstanceTask"
	TaskTypeUninstallServiceInstance    TaskType = "UninstallServiceInstanceTask"
	TaskTypeRecoverServiceInstanceState TaskType = "RecoverServiceInstanceStateTask"
	TaskTypeSetInstanceProperty         TaskType = "SetInstancePropertyTask"
)

// InstanceLifecycleTask возвращает тип task, переводящий instance в progress.
// Второе значение false, если для progress нет task агента.
func InstanceLifecycleTask(progress InstanceProgress) (TaskType, bool) {
	switch progress {
	case InstanceInstalled:
		return TaskTypeInstallServiceInstance, true
	case InstanceStarted:
		return TaskTypeStartServiceInstance, true
	case InstanceStopped:
		return TaskTypeStopServiceInstance, true
	case InstanceUninstalled:
		return TaskTypeUninstallServiceInstance, true
	default:
		return "", false
	}
}

// --- Payloads ---

// UpdateDeploymentPlanPayload — новый план целиком.
type UpdateDeploymentPlanPayload struct {
	Plan DeploymentPlan `json:"plan"`
}

// PlanAgentPayload — instances, размещённые на агенте.
type PlanAgentPayload struct {
	InstanceIDs []string `json:"instance_ids"`
}

// PlanServicePayload — конфигурация сервиса и полный набор instance ids.
type PlanServicePayload struct {
	Config      ServiceConfig `json:"config"`
	InstanceIDs []string      `json:"instance_ids"`
}

// PlanServiceInstancePayload — привязка instance к сервису и агенту.
type PlanServiceInstancePayload struct {
	ServiceID string `json:"service_id"`
	AgentID   string `json:"agent_id"`
}

// RecoverServiceInstanceStatePayload — что агент должен восстановить.
type RecoverServiceInstanceStatePayload struct {
	ServiceID string `json:"service_id"`
	AgentID   string `json:"agent_id"`
}

// InstanceRefPayload — ссылка на instance (remove-from-service/agent).
type InstanceRefPayload struct {
	InstanceID string `json:"instance_id"`
}

// SetInstancePropertyPayload — свойство instance. Пустой Value удаляет его.
type SetInstancePropertyPayload struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// StartAgentPayload — адрес машины, на которой поднимается агент.
type StartAgentPayload struct {
	IPAddress string `json:"ip_address"`
}

// PingAgentPayload — поколение агента на момент отправки ping.
type PingAgentPayload struct {
	Generation AgentGeneration `json:"generation"`
}

// AgentGeneration — счётчики перезапусков агента.
//
// Ответ на ping сопоставляется с поколением, против которого ping был
// отправлен: если счётчики изменились, ping устарел.
type AgentGeneration struct {
	MachineStarts   int `json:"machine_starts"`
	MachineRestarts int `json:"machine_restarts"`
	AgentStarts     int `json:"agent_starts"`
	AgentRestarts   int `json:"agent_restarts"`
}

// TaskRecord — запись в tasksHistory.
type TaskRecord struct {
	ID                uuid.UUID `json:"id"`
	Type              TaskType  `json:"type"`
	ProducerID        string    `json:"producer_id,omitempty"`
	ProducerTimestamp time.Time `json:"producer_timestamp"`
}
