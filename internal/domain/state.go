package domain

import (
	"fmt"
	"slices"
	"time"
)

// ConsumerState — базовая запись каждого executor'а.
//
// Runtime перед выполнением task записывает её в ExecutingTask,
// после выполнения очищает поле и дописывает task в TasksHistory.
// Документы всех сущностей встраивают ConsumerState.
type ConsumerState struct {
	// ExecutingTask — task в процессе выполнения (не более одной).
	ExecutingTask *Task `json:"executing_task,omitempty"`

	// TasksHistory — выполненные tasks, только дописывается.
	TasksHistory []TaskRecord `json:"tasks_history,omitempty"`

	// Properties — произвольные свойства.
	Properties map[string]string `json:"properties,omitempty"`
}

// AgentState — документ агента.
type AgentState struct {
	ConsumerState

	Progress           AgentProgress `json:"progress"`
	ServiceInstanceIDs []string      `json:"service_instance_ids,omitempty"`
	IPAddress          string        `json:"ip_address,omitempty"`
	MachineID          string        `json:"machine_id,omitempty"`

	NumberOfMachineStarts   int `json:"number_of_machine_starts"`
	NumberOfMachineRestarts int `json:"number_of_machine_restarts"`
	NumberOfAgentStarts     int `json:"number_of_agent_starts"`
	NumberOfAgentRestarts   int `json:"number_of_agent_restarts"`

	// LastPingSourceTimestamp — ProducerTimestamp последнего обработанного ping.
	LastPingSourceTimestamp *time.Time `json:"last_ping_source_timestamp,omitempty"`
}

// Generation возвращает текущие счётчики перезапусков агента.
func (s *AgentState) Generation() AgentGeneration {
	if s == nil {
		return AgentGeneration{}
	}
	return AgentGeneration{
		MachineStarts:   s.NumberOfMachineStarts,
		MachineRestarts: s.NumberOfMachineRestarts,
		AgentStarts:     s.NumberOfAgentStarts,
		AgentRestarts:   s.NumberOfAgentRestarts,
	}
}

// HasInstance проверяет, зарегистрирован ли instance на агенте.
func (s *AgentState) HasInstance(instanceID string) bool {
	return slices.Contains(s.ServiceInstanceIDs, instanceID)
}

// ServiceState — документ сервиса.
type ServiceState struct {
	ConsumerState

	Progress    ServiceProgress `json:"progress"`
	InstanceIDs []string        `json:"instance_ids,omitempty"`
	Config      ServiceConfig   `json:"config"`
}

// HasInstance проверяет, входит ли instance в сервис.
func (s *ServiceState) HasInstance(instanceID string) bool {
	return slices.Contains(s.InstanceIDs, instanceID)
}

// ServiceInstanceState — документ service instance.
type ServiceInstanceState struct {
	ConsumerState

	Progress  InstanceProgress `json:"progress"`
	AgentID   string           `json:"agent_id"`
	ServiceID string           `json:"service_id"`
}

// IsUnreachable возвращает true для instance на потерянной машине.
func (s *ServiceInstanceState) IsUnreachable() bool {
	return s.Progress == InstanceUnreachable
}

// ServiceConfig — конфигурация сервиса из плана.
type ServiceConfig struct {
	ServiceID        string `json:"service_id"`
	DisplayName      string `json:"display_name"`
	PlannedInstances int    `json:"planned_instances"`
	MinInstances     int    `json:"min_instances"`
	MaxInstances     int    `json:"max_instances"`
}

// InstancePlan — размещение одного instance.
type InstancePlan struct {
	InstanceID string `json:"instance_id"`
	AgentID    string `json:"agent_id"`

	// DesiredLifecycle — целевой progress (по умолчанию INSTANCE_STARTED).
	DesiredLifecycle InstanceProgress `json:"desired_lifecycle,omitempty"`
}

// Desired возвращает целевой progress instance.
func (p InstancePlan) Desired() InstanceProgress {
	if p.DesiredLifecycle == "" {
		return InstanceStarted
	}
	return p.DesiredLifecycle
}

// ServicePlan — сервис и размещение его instances.
type ServicePlan struct {
	Config    ServiceConfig  `json:"config"`
	Instances []InstancePlan `json:"instances"`
}

// InstanceIDs возвращает ids запланированных instances в порядке плана.
func (p ServicePlan) InstanceIDs() []string {
	ids := make([]string, len(p.Instances))
	for i, inst := range p.Instances {
		ids[i] = inst.InstanceID
	}
	return ids
}

// DeploymentPlan — желаемая топология. Заменяется целиком.
type DeploymentPlan struct {
	Services []ServicePlan `json:"services"`
}

// Service возвращает план сервиса по id.
func (p *DeploymentPlan) Service(serviceID string) (ServicePlan, bool) {
	for _, svc := range p.Services {
		if svc.Config.ServiceID == serviceID {
			return svc, true
		}
	}
	return ServicePlan{}, false
}

// ServiceIDs возвращает ids сервисов в порядке плана.
func (p *DeploymentPlan) ServiceIDs() []string {
	ids := make([]string, 0, len(p.Services))
	for _, svc := range p.Services {
		ids = append(ids, svc.Config.ServiceID)
	}
	return ids
}

// AgentIDs возвращает ids всех агентов плана без повторов, в порядке плана.
func (p *DeploymentPlan) AgentIDs() []string {
	var ids []string
	for _, svc := range p.Services {
		for _, inst := range svc.Instances {
			if !slices.Contains(ids, inst.AgentID) {
				ids = append(ids, inst.AgentID)
			}
		}
	}
	return ids
}

// InstancesOfAgent возвращает запланированные на агенте instances.
func (p *DeploymentPlan) InstancesOfAgent(agentID string) []InstancePlan {
	var result []InstancePlan
	for _, svc := range p.Services {
		for _, inst := range svc.Instances {
			if inst.AgentID == agentID {
				result = append(result, inst)
			}
		}
	}
	return result
}

// Instance возвращает план instance и id его сервиса.
func (p *DeploymentPlan) Instance(instanceID string) (InstancePlan, string, bool) {
	for _, svc := range p.Services {
		for _, inst := range svc.Instances {
			if inst.InstanceID == instanceID {
				return inst, svc.Config.ServiceID, true
			}
		}
	}
	return InstancePlan{}, "", false
}

// OrchestratorState — документ оркестратора.
type OrchestratorState struct {
	ConsumerState

	// Plan — текущий план (nil, пока план не получен).
	Plan *DeploymentPlan `json:"plan,omitempty"`

	// SyncedStateWithDeploymentBefore — был ли уже хотя бы один проход sync.
	SyncedStateWithDeploymentBefore bool `json:"synced_state_with_deployment_before"`

	// ServiceIDsToUninstall — сервисы, выпавшие из плана, но ещё не удалённые.
	ServiceIDsToUninstall []string `json:"service_ids_to_uninstall,omitempty"`

	// AgentIDsToTerminate — агенты, выпавшие из плана, но ещё не уничтоженные.
	AgentIDsToTerminate []string `json:"agent_ids_to_terminate,omitempty"`
}

// Validate проверяет план: непустые и уникальные ids сервисов и instances,
// у каждого instance есть агент.
func (p *DeploymentPlan) Validate() error {
	services := make(map[string]bool)
	instances := make(map[string]bool)

	for _, svc := range p.Services {
		id := svc.Config.ServiceID
		if id == "" {
			return fmt.Errorf("%w: service without id", ErrInvalidPlan)
		}
		if services[id] {
			return fmt.Errorf("%w: duplicate service %s", ErrInvalidPlan, id)
		}
		services[id] = true

		for _, inst := range svc.Instances {
			if inst.InstanceID == "" || inst.AgentID == "" {
				return fmt.Errorf("%w: service %s has instance without id or agent", ErrInvalidPlan, id)
			}
			if instances[inst.InstanceID] {
				return fmt.Errorf("%w: duplicate instance %s", ErrInvalidPlan, inst.InstanceID)
			}
			instances[inst.InstanceID] = true
		}
	}

	return nil
}

// RemoveInstance убирает instance с агента. Возвращает false, если его не было.
func (s *AgentState) RemoveInstance(instanceID string) bool {
	n := len(s.ServiceInstanceIDs)
	s.ServiceInstanceIDs = slices.DeleteFunc(s.ServiceInstanceIDs, func(id string) bool { return id == instanceID })
	return len(s.ServiceInstanceIDs) != n
}

// RemoveInstance убирает instance из сервиса. Возвращает false, если его не было.
func (s *ServiceState) RemoveInstance(instanceID string) bool {
	n := len(s.InstanceIDs)
	s.InstanceIDs = slices.DeleteFunc(s.InstanceIDs, func(id string) bool { return id == instanceID })
	return len(s.InstanceIDs) != n
}

// AddInstances добавляет недостающие ids в конец. Возвращает false,
// если все уже были.
func (s *ServiceState) AddInstances(instanceIDs []string) bool {
	changed := false
	for _, id := range instanceIDs {
		if !slices.Contains(s.InstanceIDs, id) {
			s.InstanceIDs = append(s.InstanceIDs, id)
			changed = true
		}
	}
	return changed
}

// CoversInstances проверяет, что все instanceIDs уже входят в сервис.
func (s *ServiceState) CoversInstances(instanceIDs []string) bool {
	for _, id := range instanceIDs {
		if !s.HasInstance(id) {
			return false
		}
	}
	return true
}
