package orchestrator

import (
	"github.com/shaiso/ServiceGrid/internal/domain"
)

// syncStateWithDeploymentPlan сверяет документы с планом и создаёт
// tasks, без которых план нельзя выполнять дальше: документы новых
// агентов, сервисов и instances, восстановление instances после
// failover, пометку instances потерянных машин.
//
// Возвращает true, если ни одной task не понадобилось и доступность
// каждого агента плана определена. Только тогда проход двигает
// сущности по жизненным циклам.
func (c *cycle) syncStateWithDeploymentPlan() bool {
	before := len(c.tasks)
	determined := true

	for _, agentID := range c.plan.AgentIDs() {
		switch c.liveness[agentID] {
		case Reachable:
			c.recoverInstances(agentID)
		case Unreachable:
			c.replanAgent(agentID)
		default:
			// Ждём, пока доступность агента прояснится
			determined = false
		}
	}

	for _, svc := range c.plan.Services {
		c.syncService(svc)
	}

	return determined && len(c.tasks) == before
}

// recoverInstances восстанавливает документы instances на доступном агенте:
// отсутствующие и помеченные недоступными снова становятся PLANNED.
// Новые instances агента дописываются в его документ.
func (c *cycle) recoverInstances(agentID string) {
	agent := c.agents[agentID]
	var missing []string
	for _, inst := range c.plan.InstancesOfAgent(agentID) {
		if !agent.HasInstance(inst.InstanceID) {
			missing = append(missing, inst.InstanceID)
		}
	}
	if len(missing) > 0 {
		c.emit(domain.TaskTypePlanAgent, c.o.ID(), agentID, domain.PlanAgentPayload{InstanceIDs: missing})
	}

	for _, svc := range c.plan.Services {
		for _, inst := range svc.Instances {
			if inst.AgentID != agentID {
				continue
			}

			doc := c.instances[inst.InstanceID]
			if doc != nil && !doc.IsUnreachable() {
				continue
			}

			c.emit(domain.TaskTypeRecoverServiceInstanceState, agentID, inst.InstanceID,
				domain.RecoverServiceInstanceStatePayload{
					ServiceID: svc.Config.ServiceID,
					AgentID:   agentID,
				})
		}
	}
}

// replanAgent обрабатывает недоступного агента, машины которого уже нет.
//
//  1. Его instances помечаются недоступными.
//  2. Когда помечать больше нечего, агент планируется заново под тем же id:
//     provisioner поднимет новую машину.
//
// Агент с живой (по документу) машиной сначала уничтожается в
// orchestrateAgents, сюда он попадёт на следующих проходах.
func (c *cycle) replanAgent(agentID string) {
	agent := c.agents[agentID]
	if agent != nil && !agent.Progress.IsTornDown() {
		return
	}

	planned := c.plan.InstancesOfAgent(agentID)
	plannedIDs := make([]string, len(planned))
	for i, inst := range planned {
		plannedIDs[i] = inst.InstanceID
	}

	// 1. Instances потерянной машины
	candidates := plannedIDs
	if agent != nil {
		candidates = union(agent.ServiceInstanceIDs, plannedIDs)
	}

	marked := false
	for _, id := range candidates {
		doc := c.instances[id]
		if doc == nil || doc.AgentID != agentID || doc.IsUnreachable() || doc.Progress == domain.InstanceUninstalled {
			continue
		}
		c.emit(domain.TaskTypeUnreachableServiceInstance, c.o.ID(), id, nil)
		marked = true
	}
	if marked {
		return
	}

	// 2. Новая машина под тем же agent id. TERMINATING_MACHINE сначала
	// доводится до конца в orchestrateAgents.
	if agent != nil && agent.Progress != domain.AgentMachineTerminated {
		return
	}

	c.emit(domain.TaskTypePlanAgent, c.o.ID(), agentID, domain.PlanAgentPayload{InstanceIDs: plannedIDs})

	for _, svc := range c.plan.Services {
		for _, inst := range svc.Instances {
			if inst.AgentID != agentID || c.instances[inst.InstanceID] != nil {
				continue
			}
			c.emit(domain.TaskTypePlanServiceInstance, c.o.ID(), inst.InstanceID,
				domain.PlanServiceInstancePayload{
					ServiceID: svc.Config.ServiceID,
					AgentID:   agentID,
				})
		}
	}
}

// syncService создаёт или обновляет документ сервиса из плана.
func (c *cycle) syncService(svc domain.ServicePlan) {
	id := svc.Config.ServiceID
	doc := c.services[id]

	if doc != nil &&
		doc.Config == svc.Config &&
		doc.CoversInstances(svc.InstanceIDs()) &&
		doc.Progress != domain.ServiceUninstalling &&
		doc.Progress != domain.ServiceUninstalled {
		return
	}

	c.emit(domain.TaskTypePlanService, c.o.ID(), id, domain.PlanServicePayload{
		Config:      svc.Config,
		InstanceIDs: svc.InstanceIDs(),
	})
}
