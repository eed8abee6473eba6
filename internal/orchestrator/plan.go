package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// updateDeploymentPlan заменяет план целиком.
//
// Сервисы и агенты, выпавшие из плана, попадают в списки на удаление:
// в новом плане их уже нет, но разобрать их всё равно нужно.
// Вернувшиеся в план ids из этих списков убираются.
func (o *Orchestrator) updateDeploymentPlan(ctx context.Context, task *domain.Task, state *worker.Handle[domain.OrchestratorState]) error {
	payload, err := domain.ParsePayload[domain.UpdateDeploymentPlanPayload](task)
	if err != nil {
		return err
	}

	plan := payload.Plan
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPlanRejected, err)
	}

	current, err := state.Get(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		current = &domain.OrchestratorState{}
	}

	// 1. Что выпало из старого плана
	if current.Plan != nil {
		current.ServiceIDsToUninstall = appendMissing(current.ServiceIDsToUninstall,
			difference(current.Plan.ServiceIDs(), plan.ServiceIDs()))
		current.AgentIDsToTerminate = appendMissing(current.AgentIDsToTerminate,
			difference(current.Plan.AgentIDs(), plan.AgentIDs()))
	}

	// 2. Что вернулось в новый план
	current.ServiceIDsToUninstall = difference(current.ServiceIDsToUninstall, plan.ServiceIDs())
	current.AgentIDsToTerminate = difference(current.AgentIDsToTerminate, plan.AgentIDs())

	current.Plan = &plan

	telemetry.FromContext(ctx).Info("deployment plan updated",
		"services", len(plan.Services),
		"agents", len(plan.AgentIDs()),
		"services_to_uninstall", len(current.ServiceIDsToUninstall),
		"agents_to_terminate", len(current.AgentIDsToTerminate),
	)

	return state.Put(ctx, current)
}

// difference возвращает элементы a, которых нет в b, в порядке a.
func difference(a, b []string) []string {
	var result []string
	for _, id := range a {
		if !slices.Contains(b, id) {
			result = append(result, id)
		}
	}
	return result
}

// appendMissing добавляет в dst элементы src, которых там ещё нет.
func appendMissing(dst, src []string) []string {
	for _, id := range src {
		if !slices.Contains(dst, id) {
			dst = append(dst, id)
		}
	}
	return dst
}
