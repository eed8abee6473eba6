package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
)

// cycle — один проход reconciliation.
//
// Снимок документов читается один раз в начале прохода и дальше
// не обновляется: tasks, созданные на этом проходе, увидит следующий.
type cycle struct {
	o   *Orchestrator
	ctx context.Context
	now time.Time

	state *domain.OrchestratorState
	plan  *domain.DeploymentPlan

	// firstPass — sync ещё ни разу не проходил.
	firstPass bool

	// Снимок документов; nil-значение означает, что документа нет.
	agents    map[string]*domain.AgentState
	services  map[string]*domain.ServiceState
	instances map[string]*domain.ServiceInstanceState

	liveness map[string]Liveness

	tasks []*domain.Task
	err   error
}

// newCycle читает документы всех сущностей, которых касается план
// или списки на удаление, и классифицирует доступность агентов.
func (o *Orchestrator) newCycle(ctx context.Context, now time.Time, state *domain.OrchestratorState) (*cycle, error) {
	c := &cycle{
		o:         o,
		ctx:       ctx,
		now:       now,
		state:     state,
		plan:      state.Plan,
		firstPass: !state.SyncedStateWithDeploymentBefore,
		agents:    make(map[string]*domain.AgentState),
		services:  make(map[string]*domain.ServiceState),
		instances: make(map[string]*domain.ServiceInstanceState),
		liveness:  make(map[string]Liveness),
	}

	// 1. Агенты и сервисы
	for _, id := range union(c.plan.AgentIDs(), state.AgentIDsToTerminate) {
		if err := c.loadAgent(id); err != nil {
			return nil, err
		}
	}
	for _, id := range union(c.plan.ServiceIDs(), state.ServiceIDsToUninstall) {
		doc, _, err := store.Read[domain.ServiceState](ctx, o.store, id)
		if err != nil {
			return nil, err
		}
		c.services[id] = doc
	}

	// 2. Instances: из плана и из документов
	var instanceIDs []string
	for _, svc := range c.plan.Services {
		instanceIDs = union(instanceIDs, svc.InstanceIDs())
	}
	for _, svc := range c.services {
		if svc != nil {
			instanceIDs = union(instanceIDs, svc.InstanceIDs)
		}
	}
	for _, agent := range c.agents {
		if agent != nil {
			instanceIDs = union(instanceIDs, agent.ServiceInstanceIDs)
		}
	}
	for _, id := range instanceIDs {
		doc, _, err := store.Read[domain.ServiceInstanceState](ctx, o.store, id)
		if err != nil {
			return nil, err
		}
		c.instances[id] = doc

		// Instance мог быть перенесён с агента, которого уже нет в плане
		if doc != nil && doc.AgentID != "" {
			if _, ok := c.agents[doc.AgentID]; !ok {
				if err := c.loadAgent(doc.AgentID); err != nil {
					return nil, err
				}
			}
		}
	}

	// 3. Доступность агентов
	counts := make(map[Liveness]int)
	for id, agent := range c.agents {
		pending, err := o.broker.PendingTasks(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("pending tasks of %s: %w", id, err)
		}
		l := o.classify(now, agent, pending, c.firstPass)
		c.liveness[id] = l
		counts[l]++
	}
	for _, l := range []Liveness{Reachable, Unreachable, Undetermined} {
		telemetry.Agents.WithLabelValues(l.String()).Set(float64(counts[l]))
	}

	return c, nil
}

func (c *cycle) loadAgent(id string) error {
	doc, _, err := store.Read[domain.AgentState](c.ctx, c.o.store, id)
	if err != nil {
		return err
	}
	c.agents[id] = doc
	return nil
}

// emit добавляет task в результат прохода. Первая ошибка запоминается,
// остальные tasks после неё не создаются.
func (c *cycle) emit(taskType domain.TaskType, consumerID, stateID string, payload any) {
	if c.err != nil {
		return
	}

	task, err := domain.NewTask(taskType, consumerID, stateID, payload)
	if err != nil {
		c.err = err
		return
	}
	task.ProducerTimestamp = c.now
	c.tasks = append(c.tasks, task)
}

// plannedInstance возвращает план instance, если instance есть в текущем плане.
func (c *cycle) plannedInstance(id string) (domain.InstancePlan, string, bool) {
	return c.plan.Instance(id)
}

// agentTornDown: документа агента нет или его машина уничтожена.
func (c *cycle) agentTornDown(id string) bool {
	agent := c.agents[id]
	return agent == nil || agent.Progress.IsTornDown()
}

// union возвращает a с добавленными в конец элементами b, без повторов.
func union(a, b []string) []string {
	result := slices.Clone(a)
	for _, id := range b {
		if !slices.Contains(result, id) {
			result = append(result, id)
		}
	}
	return result
}
