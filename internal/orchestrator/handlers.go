package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// planAgent создаёт документ агента или планирует его заново.
//
// Отсутствующий или уничтоженный агент получает PLANNED и список
// instances из payload; у уничтоженного растёт счётчик перезапусков
// машины. Живому агенту недостающие instances дописываются.
func (o *Orchestrator) planAgent(ctx context.Context, task *domain.Task, state *worker.Handle[domain.AgentState]) error {
	payload, err := domain.ParsePayload[domain.PlanAgentPayload](task)
	if err != nil {
		return err
	}

	agent, err := state.Get(ctx)
	if err != nil {
		return err
	}

	logger := telemetry.WithAgentID(telemetry.FromContext(ctx), state.ID())

	switch {
	case agent == nil || agent.Progress == "" || agent.Progress == domain.AgentMachineTerminated:
		if agent == nil {
			agent = &domain.AgentState{}
		}
		if agent.Progress == domain.AgentMachineTerminated {
			agent.NumberOfMachineRestarts++
		}

		agent.Progress = domain.AgentPlanned
		agent.ServiceInstanceIDs = slices.Clone(payload.InstanceIDs)
		agent.IPAddress = ""
		agent.MachineID = ""
		agent.LastPingSourceTimestamp = nil

		logger.Info("agent planned",
			"instances", len(agent.ServiceInstanceIDs),
			"machine_restarts", agent.NumberOfMachineRestarts,
		)

	case agent.Progress == domain.AgentTerminatingMachine:
		return nil

	default:
		changed := false
		for _, id := range payload.InstanceIDs {
			if !agent.HasInstance(id) {
				agent.ServiceInstanceIDs = append(agent.ServiceInstanceIDs, id)
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}

	return state.Put(ctx, agent)
}

// markMachineForTermination помечает запущенного агента без instances
// на уничтожение машины.
func (o *Orchestrator) markMachineForTermination(ctx context.Context, _ *domain.Task, state *worker.Handle[domain.AgentState]) error {
	agent, err := state.Get(ctx)
	if err != nil || agent == nil {
		return err
	}
	if agent.Progress != domain.AgentStarted || len(agent.ServiceInstanceIDs) > 0 {
		return nil
	}

	agent.Progress = domain.AgentMachineMarkedForTermination
	telemetry.WithAgentID(telemetry.FromContext(ctx), state.ID()).Info("machine marked for termination")

	return state.Put(ctx, agent)
}

// RemoveServiceInstanceFromAgent убирает instance из документа агента.
//
// Выполняет сам агент, а если он недоступен, оркестратор от его имени.
func RemoveServiceInstanceFromAgent(ctx context.Context, task *domain.Task, state *worker.Handle[domain.AgentState]) error {
	payload, err := domain.ParsePayload[domain.InstanceRefPayload](task)
	if err != nil {
		return err
	}

	agent, err := state.Get(ctx)
	if err != nil || agent == nil {
		return err
	}
	if !agent.RemoveInstance(payload.InstanceID) {
		return nil
	}

	telemetry.FromContext(ctx).Info("instance removed from agent", "instance_id", payload.InstanceID)
	return state.Put(ctx, agent)
}

// planService создаёт документ сервиса или обновляет его из плана.
//
// Сервис, который удалялся и снова появился в плане, возвращается
// в INSTALLING_SERVICE.
func (o *Orchestrator) planService(ctx context.Context, task *domain.Task, state *worker.Handle[domain.ServiceState]) error {
	payload, err := domain.ParsePayload[domain.PlanServicePayload](task)
	if err != nil {
		return err
	}

	svc, err := state.Get(ctx)
	if err != nil {
		return err
	}

	changed := false
	if svc == nil {
		svc = &domain.ServiceState{Progress: domain.ServiceInstalling}
		changed = true
	}

	switch svc.Progress {
	case domain.ServiceUninstalling, domain.ServiceUninstalled:
		svc.Progress = domain.ServiceInstalling
		changed = true
	}

	if svc.AddInstances(payload.InstanceIDs) {
		changed = true
	}
	if svc.Config != payload.Config {
		svc.Config = payload.Config
		changed = true
	}

	if !changed {
		return nil
	}

	telemetry.FromContext(ctx).Info("service planned",
		"service_id", state.ID(),
		"progress", svc.Progress,
		"instances", len(svc.InstanceIDs),
	)
	return state.Put(ctx, svc)
}

// serviceTransition возвращает обработчик перехода сервиса в target.
//
// Переход выполняется только на соседнее состояние графа, поэтому
// повторная или устаревшая task ничего не меняет.
func (o *Orchestrator) serviceTransition(target domain.ServiceProgress) worker.HandlerFunc {
	return worker.Consumer(func(ctx context.Context, _ *domain.Task, state *worker.Handle[domain.ServiceState]) error {
		svc, err := state.Get(ctx)
		if err != nil || svc == nil {
			return err
		}
		if svc.Progress == target || !slices.Contains(o.serviceLifecycle.Successors(string(svc.Progress)), string(target)) {
			return nil
		}
		if target == domain.ServiceUninstalled && len(svc.InstanceIDs) > 0 {
			return nil
		}

		telemetry.FromContext(ctx).Info("service transition",
			"service_id", state.ID(),
			"from", svc.Progress,
			"progress", target,
		)

		svc.Progress = target
		return state.Put(ctx, svc)
	})
}

// removeServiceInstanceFromService убирает instance из документа сервиса.
func (o *Orchestrator) removeServiceInstanceFromService(ctx context.Context, task *domain.Task, state *worker.Handle[domain.ServiceState]) error {
	payload, err := domain.ParsePayload[domain.InstanceRefPayload](task)
	if err != nil {
		return err
	}

	svc, err := state.Get(ctx)
	if err != nil || svc == nil {
		return err
	}
	if !svc.RemoveInstance(payload.InstanceID) {
		return nil
	}

	telemetry.FromContext(ctx).Info("instance removed from service",
		"service_id", state.ID(),
		"instance_id", payload.InstanceID,
	)
	return state.Put(ctx, svc)
}

// planServiceInstance создаёт документ instance, если его ещё нет.
func (o *Orchestrator) planServiceInstance(ctx context.Context, task *domain.Task, state *worker.Handle[domain.ServiceInstanceState]) error {
	payload, err := domain.ParsePayload[domain.PlanServiceInstancePayload](task)
	if err != nil {
		return err
	}
	if payload.AgentID == "" || payload.ServiceID == "" {
		return fmt.Errorf("%w: instance %s without service or agent", domain.ErrInvalidTask, state.ID())
	}

	inst, err := state.Get(ctx)
	if err != nil || inst != nil {
		return err
	}

	return state.Put(ctx, &domain.ServiceInstanceState{
		Progress:  domain.InstancePlanned,
		AgentID:   payload.AgentID,
		ServiceID: payload.ServiceID,
	})
}

// unreachableServiceInstance помечает instance потерянной машины.
// Удалённый instance не трогается.
func (o *Orchestrator) unreachableServiceInstance(ctx context.Context, _ *domain.Task, state *worker.Handle[domain.ServiceInstanceState]) error {
	inst, err := state.Get(ctx)
	if err != nil || inst == nil {
		return err
	}
	if inst.IsUnreachable() || inst.Progress == domain.InstanceUninstalled {
		return nil
	}

	telemetry.FromContext(ctx).Warn("instance unreachable",
		"instance_id", state.ID(),
		"agent_id", inst.AgentID,
		"from", inst.Progress,
	)

	inst.Progress = domain.InstanceUnreachable
	return state.Put(ctx, inst)
}
