package orchestrator

import (
	"log/slog"
	"time"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/lifecycle"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// Default configuration values.
const (
	defaultUnreachableTimeout = 30 * time.Second
)

// Orchestrator приводит фактическое состояние grid к deployment plan.
//
// Orchestrator не хранит состояние в памяти: на каждом проходе
// reconciliation он читает документы агентов, сервисов и instances
// из store, сравнивает их с планом и возвращает корректирующие tasks.
// Сам Orchestrator — набор обработчиков для worker.Runtime.
type Orchestrator struct {
	scheme domain.Scheme
	store  store.Store
	broker broker.Broker

	// Графы жизненных циклов
	agentLifecycle    *lifecycle.StateMachine
	instanceLifecycle *lifecycle.StateMachine
	serviceLifecycle  *lifecycle.StateMachine

	// Configuration
	unreachableTimeout time.Duration
	bootstrapTimeout   time.Duration

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Scheme — ids оркестратора, provisioner'а и сущностей.
	Scheme domain.Scheme

	// Store — чтение документов сущностей.
	Store store.Store

	// Broker — только чтение pending pings для определения доступности.
	Broker broker.Broker

	// UnreachableTimeout — сколько агент может молчать (default: 30s).
	UnreachableTimeout time.Duration

	// BootstrapTimeout — сколько ждать ответа от ни разу не запущенного
	// агента после первого прохода sync (default: 0).
	BootstrapTimeout time.Duration

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	unreachableTimeout := cfg.UnreachableTimeout
	if unreachableTimeout <= 0 {
		unreachableTimeout = defaultUnreachableTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		scheme:             cfg.Scheme,
		store:              cfg.Store,
		broker:             cfg.Broker,
		agentLifecycle:     lifecycle.MustParse(domain.AgentLifecycle),
		instanceLifecycle:  lifecycle.MustParse(domain.InstanceLifecycle),
		serviceLifecycle:   lifecycle.MustParse(domain.ServiceLifecycle),
		unreachableTimeout: unreachableTimeout,
		bootstrapTimeout:   max(cfg.BootstrapTimeout, 0),
		logger:             logger,
	}
}

// ID возвращает id оркестратора (очередь и собственный документ).
func (o *Orchestrator) ID() string {
	return o.scheme.Orchestrator()
}

// Register привязывает обработчики оркестратора к реестру runtime.
func (o *Orchestrator) Register(r *worker.Registry) {
	// Собственный документ
	r.Register(domain.TaskTypeUpdateDeploymentPlan, worker.Consumer(o.updateDeploymentPlan), worker.Persistent())
	r.RegisterProducer(worker.Producer(o.orchestrate))

	// Документы агентов
	r.RegisterImpersonating(domain.TaskTypePlanAgent, worker.Consumer(o.planAgent))
	r.RegisterImpersonating(domain.TaskTypeMarkMachineForTermination, worker.Consumer(o.markMachineForTermination))
	r.RegisterImpersonating(domain.TaskTypeRemoveServiceInstanceFromAgent, worker.Consumer(RemoveServiceInstanceFromAgent))

	// Документы сервисов
	r.RegisterImpersonating(domain.TaskTypePlanService, worker.Consumer(o.planService))
	r.RegisterImpersonating(domain.TaskTypeServiceInstalling, o.serviceTransition(domain.ServiceInstalling))
	r.RegisterImpersonating(domain.TaskTypeServiceInstalled, o.serviceTransition(domain.ServiceInstalled))
	r.RegisterImpersonating(domain.TaskTypeServiceUninstalling, o.serviceTransition(domain.ServiceUninstalling))
	r.RegisterImpersonating(domain.TaskTypeServiceUninstalled, o.serviceTransition(domain.ServiceUninstalled))
	r.RegisterImpersonating(domain.TaskTypeRemoveServiceInstanceFromSvc, worker.Consumer(o.removeServiceInstanceFromService))

	// Документы instances
	r.RegisterImpersonating(domain.TaskTypePlanServiceInstance, worker.Consumer(o.planServiceInstance))
	r.RegisterImpersonating(domain.TaskTypeUnreachableServiceInstance, worker.Consumer(o.unreachableServiceInstance))
}

// Registry создаёт реестр с обработчиками оркестратора.
func (o *Orchestrator) Registry() *worker.Registry {
	r := worker.NewRegistry()
	o.Register(r)
	return r
}
