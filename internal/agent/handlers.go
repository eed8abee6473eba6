package agent

import (
	"context"
	"fmt"
	"slices"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/effector"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// ping отвечает на ping оркестратора: LastPingSourceTimestamp
// становится временем отправки ping.
//
// Если документа нет или от него осталась только служебная часть
// (хранилище сброшено), агент восстанавливает его из локальной копии.
func (a *Agent) ping(ctx context.Context, task *domain.Task, state *worker.Handle[domain.AgentState]) error {
	current, err := state.Get(ctx)
	if err != nil {
		return err
	}

	if current == nil || current.Progress == "" {
		restored, err := a.recall(ctx)
		if err != nil {
			return err
		}
		if restored == nil {
			telemetry.FromContext(ctx).Warn("own state lost and nothing to restore")
			return nil
		}
		if current != nil {
			restored.ConsumerState = current.ConsumerState
		}
		telemetry.FromContext(ctx).Warn("own state restored from local copy", "progress", restored.Progress)
		current = restored
	}

	ts := task.ProducerTimestamp
	if current.LastPingSourceTimestamp == nil || ts.After(*current.LastPingSourceTimestamp) {
		current.LastPingSourceTimestamp = &ts
	}

	if err := state.Put(ctx, current); err != nil {
		return err
	}
	return a.remember(ctx, current)
}

// restarted увеличивает счётчик перезапусков процесса агента.
func (a *Agent) restarted(ctx context.Context, _ *domain.Task, state *worker.Handle[domain.AgentState]) error {
	current, err := state.Get(ctx)
	if err != nil || current == nil {
		return err
	}

	current.NumberOfAgentRestarts++
	if err := state.Put(ctx, current); err != nil {
		return err
	}
	return a.remember(ctx, current)
}

// removeServiceInstance убирает instance из собственного документа.
func (a *Agent) removeServiceInstance(ctx context.Context, task *domain.Task, state *worker.Handle[domain.AgentState]) error {
	payload, err := domain.ParsePayload[domain.InstanceRefPayload](task)
	if err != nil {
		return err
	}

	current, err := state.Get(ctx)
	if err != nil || current == nil {
		return err
	}
	if !current.RemoveInstance(payload.InstanceID) {
		return nil
	}

	if err := state.Put(ctx, current); err != nil {
		return err
	}

	telemetry.FromContext(ctx).Info("instance removed", "instance_id", payload.InstanceID)
	return a.remember(ctx, current)
}

// transition возвращает обработчик перехода instance в target.
//
// Instance чужого агента, уже достигший target или не соседний с ним
// по графу, не трогается. Иначе effector выполняет переход, и только
// после этого записывается новый progress.
func (a *Agent) transition(target domain.InstanceProgress) worker.HandlerFunc {
	return worker.Consumer(func(ctx context.Context, _ *domain.Task, state *worker.Handle[domain.ServiceInstanceState]) error {
		inst, err := state.Get(ctx)
		if err != nil || inst == nil {
			return err
		}

		if inst.AgentID != a.id || inst.Progress == target {
			return nil
		}
		if !slices.Contains(a.instanceLifecycle.Successors(string(inst.Progress)), string(target)) {
			return nil
		}

		t := effector.Transition{
			InstanceID: state.ID(),
			ServiceID:  inst.ServiceID,
			AgentID:    a.id,
			From:       inst.Progress,
			To:         target,
		}
		if err := a.effector.Apply(ctx, t); err != nil {
			return fmt.Errorf("%s %s -> %s: %w", a.effector.Type(), t.From, t.To, err)
		}

		telemetry.FromContext(ctx).Info("instance transition",
			"instance_id", state.ID(),
			"from", inst.Progress,
			"progress", target,
		)

		inst.Progress = target
		if err := state.Put(ctx, inst); err != nil {
			return err
		}
		return a.rememberInstance(ctx, state.ID(), inst)
	})
}

// recoverServiceInstanceState восстанавливает потерянный или недоступный
// instance на этом агенте.
//
// Если instance уже был на этой машине, документ восстанавливается
// из локальной копии вместе с progress, и effectors не повторяются.
// Иначе instance начинает жизненный цикл заново с PLANNED.
func (a *Agent) recoverServiceInstanceState(ctx context.Context, task *domain.Task, state *worker.Handle[domain.ServiceInstanceState]) error {
	payload, err := domain.ParsePayload[domain.RecoverServiceInstanceStatePayload](task)
	if err != nil {
		return err
	}

	inst, err := state.Get(ctx)
	if err != nil {
		return err
	}
	if inst != nil && !inst.IsUnreachable() {
		return nil
	}

	recovered := &domain.ServiceInstanceState{
		Progress:  domain.InstancePlanned,
		AgentID:   a.id,
		ServiceID: payload.ServiceID,
	}
	if inst != nil {
		recovered.ConsumerState = inst.ConsumerState
	}

	known, err := a.recallInstance(ctx, state.ID())
	if err != nil {
		return err
	}
	if known != nil && known.ServiceID == payload.ServiceID && !known.IsUnreachable() {
		recovered.Progress = known.Progress
		if known.Properties != nil {
			recovered.Properties = known.Properties
		}
	}

	telemetry.FromContext(ctx).Info("instance recovered",
		"instance_id", state.ID(),
		"progress", recovered.Progress,
	)

	if err := state.Put(ctx, recovered); err != nil {
		return err
	}
	return a.rememberInstance(ctx, state.ID(), recovered)
}

// setInstanceProperty записывает свойство своего instance.
// Пустое значение удаляет свойство.
func (a *Agent) setInstanceProperty(ctx context.Context, task *domain.Task, state *worker.Handle[domain.ServiceInstanceState]) error {
	payload, err := domain.ParsePayload[domain.SetInstancePropertyPayload](task)
	if err != nil {
		return err
	}

	inst, err := state.Get(ctx)
	if err != nil || inst == nil {
		return err
	}
	if inst.AgentID != a.id {
		return nil
	}

	if payload.Value == "" {
		if _, ok := inst.Properties[payload.Key]; !ok {
			return nil
		}
		delete(inst.Properties, payload.Key)
	} else {
		if inst.Properties[payload.Key] == payload.Value {
			return nil
		}
		if inst.Properties == nil {
			inst.Properties = make(map[string]string)
		}
		inst.Properties[payload.Key] = payload.Value
	}

	if err := state.Put(ctx, inst); err != nil {
		return err
	}
	return a.rememberInstance(ctx, state.ID(), inst)
}
