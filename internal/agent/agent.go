package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/effector"
	"github.com/shaiso/ServiceGrid/internal/lifecycle"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// Agent — executor на машине агента.
//
// Agent отвечает на pings оркестратора, двигает свои service instances
// по жизненному циклу через effector и восстанавливает их документы
// после failover.
//
// Копии собственного документа и документов своих instances агент
// держит в локальном состоянии машины. Если хранилище grid потеряло
// документы, агент восстанавливает их оттуда, не повторяя переходов.
type Agent struct {
	id                string
	store             store.Store
	local             store.Store
	broker            broker.Broker
	effector          effector.Effector
	instanceLifecycle *lifecycle.StateMachine
	clock             worker.Clock
	logger            *slog.Logger
}

// Config — конфигурация Agent.
type Config struct {
	// ID — id агента (очередь и документ).
	ID string

	Store  store.Store
	Broker broker.Broker

	// Local — состояние на машине агента: переживает рестарт процесса
	// агента, но не потерю машины (default: в памяти процесса).
	Local store.Store

	// Effector выполняет переходы instances (default: effector.Nop).
	Effector effector.Effector

	// Clock (опционально; по умолчанию worker.SystemClock).
	Clock worker.Clock

	Logger *slog.Logger
}

// New создаёт новый Agent.
func New(cfg Config) *Agent {
	eff := cfg.Effector
	if eff == nil {
		eff = effector.Nop{}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = worker.SystemClock{}
	}

	local := cfg.Local
	if local == nil {
		local = store.NewMemoryStore()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		id:                cfg.ID,
		store:             cfg.Store,
		local:             local,
		broker:            cfg.Broker,
		effector:          eff,
		instanceLifecycle: lifecycle.MustParse(domain.InstanceLifecycle),
		clock:             clock,
		logger:            telemetry.WithAgentID(logger, cfg.ID),
	}
}

// ID возвращает id агента.
func (a *Agent) ID() string {
	return a.id
}

// Register привязывает обработчики агента к реестру runtime.
func (a *Agent) Register(r *worker.Registry) {
	// Собственный документ
	r.Register(domain.TaskTypePingAgent, worker.Consumer(a.ping), worker.NoHistory())
	r.Register(domain.TaskTypeAgentRestarted, worker.Consumer(a.restarted))
	r.Register(domain.TaskTypeRemoveServiceInstanceFromAgent, worker.Consumer(a.removeServiceInstance))

	// Документы instances
	r.RegisterImpersonating(domain.TaskTypeInstallServiceInstance, a.transition(domain.InstanceInstalled))
	r.RegisterImpersonating(domain.TaskTypeStartServiceInstance, a.transition(domain.InstanceStarted))
	r.RegisterImpersonating(domain.TaskTypeStopServiceInstance, a.transition(domain.InstanceStopped))
	r.RegisterImpersonating(domain.TaskTypeUninstallServiceInstance, a.transition(domain.InstanceUninstalled))
	r.RegisterImpersonating(domain.TaskTypeRecoverServiceInstanceState, worker.Consumer(a.recoverServiceInstanceState))
	r.RegisterImpersonating(domain.TaskTypeSetInstanceProperty, worker.Consumer(a.setInstanceProperty))
}

// Registry создаёт реестр с обработчиками агента.
func (a *Agent) Registry() *worker.Registry {
	r := worker.NewRegistry()
	a.Register(r)
	return r
}

// Boot вызывается при старте процесса агента.
//
// Если документ говорит, что агент уже работал и отвечал на pings,
// процесс перезапустился на той же машине: агент сообщает об этом
// себе AgentRestartedTask, и pings прошлого поколения устаревают.
func (a *Agent) Boot(ctx context.Context) error {
	state, _, err := store.Read[domain.AgentState](ctx, a.store, a.id)
	if err != nil {
		return fmt.Errorf("read own state: %w", err)
	}
	if state == nil {
		return nil
	}

	if err := a.remember(ctx, state); err != nil {
		return err
	}

	if state.Progress != domain.AgentStarted || state.LastPingSourceTimestamp == nil {
		return nil
	}

	task, err := domain.NewTask(domain.TaskTypeAgentRestarted, a.id, a.id, nil)
	if err != nil {
		return err
	}
	task.ProducerID = a.id
	task.ProducerTimestamp = a.clock.Now()

	if _, err := a.broker.PostNewTask(ctx, task); err != nil {
		return fmt.Errorf("post %s: %w", task.Type, err)
	}

	a.logger.Warn("agent process restarted", "agent_restarts", state.NumberOfAgentRestarts)
	return nil
}

// remember сохраняет копию собственного документа на машине.
func (a *Agent) remember(ctx context.Context, state *domain.AgentState) error {
	c := *state
	c.ExecutingTask = nil
	c.TasksHistory = nil
	return a.keep(ctx, a.id, &c)
}

// recall возвращает последнюю сохранённую копию собственного документа.
func (a *Agent) recall(ctx context.Context) (*domain.AgentState, error) {
	state, _, err := store.Read[domain.AgentState](ctx, a.local, a.id)
	return state, err
}

// rememberInstance сохраняет копию документа своего instance.
func (a *Agent) rememberInstance(ctx context.Context, id string, inst *domain.ServiceInstanceState) error {
	c := *inst
	c.ExecutingTask = nil
	c.TasksHistory = nil
	return a.keep(ctx, id, &c)
}

// recallInstance возвращает копию документа instance, если он был на этой машине.
func (a *Agent) recallInstance(ctx context.Context, id string) (*domain.ServiceInstanceState, error) {
	inst, _, err := store.Read[domain.ServiceInstanceState](ctx, a.local, id)
	if err != nil || inst == nil || inst.AgentID != a.id {
		return nil, err
	}
	return inst, nil
}

// keep перезаписывает документ в локальном состоянии. Пишет в него
// только runtime агента, по одной task, поэтому etag берётся как есть.
func (a *Agent) keep(ctx context.Context, id string, v any) error {
	etag := store.EmptyEtag
	doc, err := a.local.Get(ctx, id)
	switch {
	case err == nil:
		etag = doc.Etag
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("read local %s: %w", id, err)
	}

	if _, err := store.Write(ctx, a.local, id, v, etag); err != nil {
		return fmt.Errorf("write local %s: %w", id, err)
	}
	return nil
}
