package orchestrator

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/lifecycle"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// orchestrate — producer оркестратора, один проход reconciliation.
//
//  1. sync: документы приводятся в соответствие с планом.
//  2. Если sync ничего не потребовал, агенты, instances и сервисы
//     сдвигаются на один шаг по своим жизненным циклам.
//  3. Агентам отправляются pings.
//  4. Из списков на удаление убираются разобранные сущности.
func (o *Orchestrator) orchestrate(ctx context.Context, now time.Time, own *worker.Handle[domain.OrchestratorState]) ([]*domain.Task, error) {
	state, err := own.Get(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil || state.Plan == nil {
		return nil, nil
	}

	c, err := o.newCycle(ctx, now, state)
	if err != nil {
		return nil, err
	}

	// 1. Sync
	synced := c.syncStateWithDeploymentPlan()
	telemetry.OrchestratorCycles.WithLabelValues(strconv.FormatBool(synced)).Inc()

	// 2. Жизненные циклы
	if synced {
		c.orchestrateAgents()
		c.orchestrateInstances()
		c.orchestrateServices()
	}

	// 3. Pings
	c.pingAgents()

	if c.err != nil {
		return nil, c.err
	}

	// 4. Собственный документ
	changed := false
	if c.firstPass {
		state.SyncedStateWithDeploymentBefore = true
		changed = true
	}
	if c.prune() {
		changed = true
	}
	if changed {
		if err := own.Put(ctx, state); err != nil {
			return nil, err
		}
	}

	o.logger.Debug("reconciliation cycle",
		"synced", synced,
		"tasks", len(c.tasks),
	)

	return c.tasks, nil
}

// orchestrateAgents двигает агентов плана к AGENT_STARTED,
// а выпавших из плана к MACHINE_TERMINATED.
func (c *cycle) orchestrateAgents() {
	for _, id := range c.plan.AgentIDs() {
		c.driveAgent(id, domain.AgentStarted)
	}
	for _, id := range c.state.AgentIDsToTerminate {
		c.driveAgent(id, domain.AgentMachineTerminated)
	}
}

// driveAgent создаёт task следующего шага агента к desired.
func (c *cycle) driveAgent(id string, desired domain.AgentProgress) {
	agent := c.agents[id]
	if agent == nil {
		return
	}

	provisioner := c.o.scheme.Provisioner()

	// Недоступный запущенный агент уничтожается без дренажа
	if c.liveness[id] == Unreachable && agent.Progress.IsAgentRunning() {
		c.emit(domain.TaskTypeTerminateMachineOfNonResponsiveAgt, provisioner, id, nil)
		return
	}

	next, ok := lifecycle.Next(c.o.agentLifecycle, agent.Progress, desired)
	if !ok || next == agent.Progress {
		return
	}

	switch next {
	case domain.AgentMachineStarted:
		c.emit(domain.TaskTypeStartMachine, provisioner, id, nil)

	case domain.AgentStarted:
		c.emit(domain.TaskTypeStartAgent, provisioner, id, domain.StartAgentPayload{IPAddress: agent.IPAddress})

	case domain.AgentMachineMarkedForTermination:
		// Сначала с агента уходят все instances
		if len(agent.ServiceInstanceIDs) == 0 {
			c.emit(domain.TaskTypeMarkMachineForTermination, c.o.ID(), id, nil)
		}

	case domain.AgentTerminatingMachine, domain.AgentMachineTerminated:
		c.emit(domain.TaskTypeTerminateMachine, provisioner, id, nil)

	case domain.AgentPlanned:
		// Новая машина планируется в sync
	}
}

// orchestrateInstances двигает запланированные instances к их целевому
// progress, а выпавшие из плана разбирает.
func (c *cycle) orchestrateInstances() {
	for _, svc := range c.plan.Services {
		for _, inst := range svc.Instances {
			c.driveInstance(inst.InstanceID, inst.Desired())
		}
	}

	for _, id := range c.removedInstances() {
		c.removeInstance(id)
	}
}

// driveInstance создаёт task агента для следующего шага instance к desired.
func (c *cycle) driveInstance(id string, desired domain.InstanceProgress) {
	doc := c.instances[id]
	if doc == nil || doc.IsUnreachable() {
		return
	}

	// Машина агента уничтожена, instance потерян вместе с ней
	if c.agentTornDown(doc.AgentID) {
		if doc.Progress != domain.InstanceUninstalled {
			c.emit(domain.TaskTypeUnreachableServiceInstance, c.o.ID(), id, nil)
		}
		return
	}

	agent := c.agents[doc.AgentID]
	if agent.Progress != domain.AgentStarted || c.liveness[doc.AgentID] != Reachable {
		return
	}

	next, ok := lifecycle.Next(c.o.instanceLifecycle, doc.Progress, desired)
	if !ok || next == doc.Progress {
		return
	}

	taskType, ok := domain.InstanceLifecycleTask(next)
	if !ok {
		return
	}
	c.emit(taskType, doc.AgentID, id, nil)
}

// removedInstances возвращает instances, которые числятся за сервисами
// или агентами, но отсутствуют в плане.
func (c *cycle) removedInstances() []string {
	var ids []string
	for _, id := range union(c.plan.ServiceIDs(), c.state.ServiceIDsToUninstall) {
		if svc := c.services[id]; svc != nil {
			ids = union(ids, svc.InstanceIDs)
		}
	}
	for _, id := range union(c.plan.AgentIDs(), c.state.AgentIDsToTerminate) {
		if agent := c.agents[id]; agent != nil {
			ids = union(ids, agent.ServiceInstanceIDs)
		}
	}

	return slices.DeleteFunc(ids, func(id string) bool {
		_, _, planned := c.plannedInstance(id)
		return planned
	})
}

// removeInstance разбирает instance, выпавший из плана.
//
//  1. Instance доводится до INSTANCE_UNINSTALLED.
//  2. Удалённый или потерянный instance убирается из документов агента
//     и сервиса. Если агент недоступен, его документ правит оркестратор.
func (c *cycle) removeInstance(id string) {
	doc := c.instances[id]

	// 1. Деинсталляция
	if doc != nil && doc.Progress != domain.InstanceUninstalled && !doc.IsUnreachable() {
		c.driveInstance(id, domain.InstanceUninstalled)
		return
	}

	// 2. Ссылки на instance
	ref := domain.InstanceRefPayload{InstanceID: id}

	for _, agentID := range union(c.plan.AgentIDs(), c.state.AgentIDsToTerminate) {
		agent := c.agents[agentID]
		if agent == nil || !agent.HasInstance(id) {
			continue
		}

		consumer := c.o.ID()
		if agent.Progress.IsAgentRunning() && c.liveness[agentID] == Reachable {
			consumer = agentID
		}
		c.emit(domain.TaskTypeRemoveServiceInstanceFromAgent, consumer, agentID, ref)
	}

	for _, serviceID := range union(c.plan.ServiceIDs(), c.state.ServiceIDsToUninstall) {
		svc := c.services[serviceID]
		if svc == nil || !svc.HasInstance(id) {
			continue
		}
		c.emit(domain.TaskTypeRemoveServiceInstanceFromSvc, c.o.ID(), serviceID, ref)
	}
}

// orchestrateServices двигает сервисы плана к SERVICE_INSTALLED,
// выпавшие из плана к SERVICE_UNINSTALLED.
func (c *cycle) orchestrateServices() {
	for _, svc := range c.plan.Services {
		target := domain.ServiceInstalling
		if c.serviceReady(svc) {
			target = domain.ServiceInstalled
		}
		c.driveService(svc.Config.ServiceID, target)
	}

	for _, id := range c.state.ServiceIDsToUninstall {
		c.driveService(id, domain.ServiceUninstalled)
	}
}

// serviceReady: сервис знает обо всех запланированных instances,
// лишних за ним не числится, и каждый instance достиг целевого progress.
func (c *cycle) serviceReady(svc domain.ServicePlan) bool {
	doc := c.services[svc.Config.ServiceID]
	if doc == nil || !doc.CoversInstances(svc.InstanceIDs()) {
		return false
	}

	for _, id := range doc.InstanceIDs {
		inst, _, planned := c.plannedInstance(id)
		if !planned {
			return false
		}
		instance := c.instances[id]
		if instance == nil || instance.Progress != inst.Desired() {
			return false
		}
	}
	return true
}

// driveService создаёт task следующего шага сервиса к target.
func (c *cycle) driveService(id string, target domain.ServiceProgress) {
	doc := c.services[id]
	if doc == nil {
		return
	}

	next, ok := lifecycle.Next(c.o.serviceLifecycle, doc.Progress, target)
	if !ok || next == doc.Progress {
		return
	}

	switch next {
	case domain.ServiceInstalling:
		c.emit(domain.TaskTypeServiceInstalling, c.o.ID(), id, nil)
	case domain.ServiceInstalled:
		c.emit(domain.TaskTypeServiceInstalled, c.o.ID(), id, nil)
	case domain.ServiceUninstalling:
		c.emit(domain.TaskTypeServiceUninstalling, c.o.ID(), id, nil)
	case domain.ServiceUninstalled:
		// Сначала из сервиса уходят все instances
		if len(doc.InstanceIDs) == 0 {
			c.emit(domain.TaskTypeServiceUninstalled, c.o.ID(), id, nil)
		}
	}
}

// pingAgents отправляет ping агентам, от которых не было ответа
// дольше половины unreachableTimeout.
//
// Ping несёт поколение агента: ответ на ping прошлого поколения
// не подтверждает доступность перезапущенного агента.
func (c *cycle) pingAgents() {
	ids := c.plan.AgentIDs()
	for _, id := range c.state.AgentIDsToTerminate {
		if !c.agentTornDown(id) {
			ids = union(ids, []string{id})
		}
	}

	for _, id := range ids {
		agent := c.agents[id]
		if agent != nil && agent.LastPingSourceTimestamp != nil &&
			c.now.Sub(*agent.LastPingSourceTimestamp) <= c.o.unreachableTimeout/2 {
			continue
		}
		c.emit(domain.TaskTypePingAgent, id, id, domain.PingAgentPayload{Generation: agent.Generation()})
	}
}

// prune убирает из списков на удаление уничтоженных агентов и удалённые
// сервисы. Возвращает true, если списки изменились.
func (c *cycle) prune() bool {
	agents := slices.DeleteFunc(slices.Clone(c.state.AgentIDsToTerminate), func(id string) bool {
		agent := c.agents[id]
		return agent == nil || agent.Progress == domain.AgentMachineTerminated
	})
	services := slices.DeleteFunc(slices.Clone(c.state.ServiceIDsToUninstall), func(id string) bool {
		svc := c.services[id]
		return svc == nil || svc.Progress == domain.ServiceUninstalled
	})

	if len(agents) == len(c.state.AgentIDsToTerminate) && len(services) == len(c.state.ServiceIDsToUninstall) {
		return false
	}

	c.state.AgentIDsToTerminate = agents
	c.state.ServiceIDsToUninstall = services
	return true
}
