package grid

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shaiso/ServiceGrid/internal/agent"
	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/cloud"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/effector"
	"github.com/shaiso/ServiceGrid/internal/orchestrator"
	"github.com/shaiso/ServiceGrid/internal/provisioner"
	"github.com/shaiso/ServiceGrid/internal/scheduler"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// Default configuration values.
const (
	defaultMaxRounds    = 100
	defaultPollInterval = 200 * time.Millisecond
)

// Grid — весь service grid в одном процессе: оркестратор, provisioner
// с локальным драйвером машин и агенты, которых драйвер поднимает.
//
// Grid работает в двух режимах:
//   - Step: один проход reconciliation и выполнение всех порождённых
//     tasks синхронно (симуляция и тесты)
//   - Start: scheduler и фоновый цикл, разбирающий очереди
//
// Очереди всех consumer'ов разбирает одна горутина: агент и provisioner
// пишут один и тот же документ агента и не должны делать это одновременно.
type Grid struct {
	scheme domain.Scheme
	store  store.Store
	broker broker.Broker
	log    broker.Broker
	clock  worker.Clock
	logger *slog.Logger

	newEffector func(agentID string) effector.Effector

	orch        *orchestrator.Orchestrator
	orchRuntime *worker.Runtime
	prov        *provisioner.Provisioner
	provRuntime *worker.Runtime
	driver      *cloud.LocalDriver

	pollInterval time.Duration
	schedule     string
	maxRounds    int

	mu     sync.Mutex
	agents map[string]*agentProcess
	disks  map[string]*store.MemoryStore
	sched  *scheduler.Scheduler
	cancel context.CancelFunc
	errCh  chan error
	wg     sync.WaitGroup
}

// agentProcess — запущенный на локальной машине агент.
type agentProcess struct {
	agent   *agent.Agent
	runtime *worker.Runtime
}

// Config — конфигурация Grid.
type Config struct {
	Scheme domain.Scheme

	// Store и Broker (default: в памяти).
	Store  store.Store
	Broker broker.Broker

	// PersistedLog — журнал persistent tasks оркестратора (опционально).
	PersistedLog broker.Broker

	// Clock (default: worker.SystemClock).
	Clock worker.Clock

	UnreachableTimeout time.Duration
	BootstrapTimeout   time.Duration

	// Effector создаёт effector агента (default: effector.Nop).
	Effector func(agentID string) effector.Effector

	// Для режима Start: расписание тиков оркестратора и интервал
	// разбора очередей (default: 200ms).
	Schedule     string
	PollInterval time.Duration

	// MaxRounds — предел раундов выполнения tasks в одном Step (default: 100).
	MaxRounds int

	Logger *slog.Logger
}

// New создаёт Grid.
func New(cfg Config) *Grid {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Grid{
		scheme:       cfg.Scheme,
		store:        cfg.Store,
		broker:       cfg.Broker,
		log:          cfg.PersistedLog,
		clock:        cfg.Clock,
		logger:       logger,
		newEffector:  cfg.Effector,
		pollInterval: cfg.PollInterval,
		schedule:     cfg.Schedule,
		maxRounds:    cfg.MaxRounds,
		agents:       make(map[string]*agentProcess),
		disks:        make(map[string]*store.MemoryStore),
	}
	if g.store == nil {
		g.store = store.NewMemoryStore()
	}
	if g.broker == nil {
		g.broker = broker.NewMemoryBroker()
	}
	if g.clock == nil {
		g.clock = worker.SystemClock{}
	}
	if g.newEffector == nil {
		g.newEffector = func(string) effector.Effector { return effector.Nop{} }
	}
	if g.pollInterval <= 0 {
		g.pollInterval = defaultPollInterval
	}
	if g.maxRounds <= 0 {
		g.maxRounds = defaultMaxRounds
	}

	g.orch = orchestrator.New(orchestrator.Config{
		Scheme:             cfg.Scheme,
		Store:              g.store,
		Broker:             g.broker,
		UnreachableTimeout: cfg.UnreachableTimeout,
		BootstrapTimeout:   cfg.BootstrapTimeout,
		Logger:             logger,
	})
	g.orchRuntime = worker.NewRuntime(worker.RuntimeConfig{
		ConsumerID:   g.orch.ID(),
		Kind:         "orchestrator",
		Store:        g.store,
		Broker:       g.broker,
		PersistedLog: g.log,
		Registry:     g.orch.Registry(),
		Clock:        g.clock,
		Logger:       logger,
	})

	g.driver = cloud.NewLocalDriver(cloud.LocalConfig{
		OnAgentStart:  g.spawnAgent,
		OnMachineStop: g.stopAgent,
		Logger:        logger,
	})
	g.prov = provisioner.New(provisioner.Config{
		Scheme: cfg.Scheme,
		Driver: g.driver,
		Logger: logger,
	})
	g.provRuntime = worker.NewRuntime(worker.RuntimeConfig{
		ConsumerID: g.prov.ID(),
		Kind:       "provisioner",
		Store:      g.store,
		Broker:     g.broker,
		Registry:   g.prov.Registry(),
		Clock:      g.clock,
		Logger:     logger,
	})

	return g
}

// Store возвращает хранилище grid.
func (g *Grid) Store() store.Store {
	return g.store
}

// Broker возвращает брокер grid.
func (g *Grid) Broker() broker.Broker {
	return g.broker
}

// Driver возвращает локальный драйвер машин.
func (g *Grid) Driver() *cloud.LocalDriver {
	return g.driver
}

// OrchestratorID возвращает id оркестратора.
func (g *Grid) OrchestratorID() string {
	return g.orch.ID()
}

// ApplyPlan отправляет оркестратору новый deployment plan.
func (g *Grid) ApplyPlan(ctx context.Context, plan domain.DeploymentPlan) error {
	return SubmitPlan(ctx, g.broker, g.scheme, plan, g.clock.Now())
}

// SubmitPlan отправляет UpdateDeploymentPlanTask в очередь оркестратора.
func SubmitPlan(ctx context.Context, b broker.Broker, scheme domain.Scheme, plan domain.DeploymentPlan, now time.Time) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	task, err := domain.NewTask(domain.TaskTypeUpdateDeploymentPlan, scheme.Orchestrator(), scheme.Orchestrator(),
		domain.UpdateDeploymentPlanPayload{Plan: plan})
	if err != nil {
		return err
	}
	task.ProducerTimestamp = now

	if _, err := b.PostNewTask(ctx, task); err != nil {
		return fmt.Errorf("post deployment plan: %w", err)
	}
	return nil
}

// Agents возвращает ids агентов, процессы которых сейчас работают.
func (g *Grid) Agents() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.agentIDsLocked()
}

func (g *Grid) agentIDsLocked() []string {
	ids := make([]string, 0, len(g.agents))
	for id := range g.agents {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// KillMachine теряет машину агента: процесс агента пропадает,
// документ агента остаётся как был.
func (g *Grid) KillMachine(agentID string) bool {
	return g.driver.Kill(agentID)
}

// RestartAgent перезапускает процесс агента на той же машине.
func (g *Grid) RestartAgent(ctx context.Context, agentID string) error {
	g.mu.Lock()
	p, ok := g.agents[agentID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s is not running", agentID)
	}

	g.removeProcess(agentID, p)
	return g.spawnAgent(ctx, cloud.Machine{AgentID: agentID})
}

// spawnAgent поднимает процесс агента. Вызывается драйвером из StartAgentTask.
func (g *Grid) spawnAgent(ctx context.Context, m cloud.Machine) error {
	a := agent.New(agent.Config{
		ID:       m.AgentID,
		Store:    g.store,
		Broker:   g.broker,
		Local:    g.disk(m.AgentID),
		Effector: g.newEffector(m.AgentID),
		Clock:    g.clock,
		Logger:   g.logger,
	})
	p := &agentProcess{
		agent: a,
		runtime: worker.NewRuntime(worker.RuntimeConfig{
			ConsumerID: m.AgentID,
			Kind:       "agent",
			Store:      g.store,
			Broker:     g.broker,
			Registry:   a.Registry(),
			Clock:      g.clock,
			Logger:     g.logger,
		}),
	}

	if err := a.Boot(ctx); err != nil {
		return fmt.Errorf("boot agent %s: %w", m.AgentID, err)
	}

	g.mu.Lock()
	g.agents[m.AgentID] = p
	g.mu.Unlock()

	g.logger.Info("agent process started", "agent_id", m.AgentID, "ip_address", m.IPAddress)
	return nil
}

// stopAgent убирает процесс агента. Вызывается драйвером,
// когда машина уничтожена или потеряна.
func (g *Grid) stopAgent(m cloud.Machine) {
	g.mu.Lock()
	p, ok := g.agents[m.AgentID]
	delete(g.disks, m.AgentID)
	g.mu.Unlock()

	if ok {
		g.removeProcess(m.AgentID, p)
		g.logger.Info("agent process stopped", "agent_id", m.AgentID)
	}
}

// disk возвращает локальное состояние машины агента. Оно переживает
// RestartAgent и пропадает вместе с машиной.
func (g *Grid) disk(agentID string) *store.MemoryStore {
	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.disks[agentID]
	if !ok {
		d = store.NewMemoryStore()
		g.disks[agentID] = d
	}
	return d
}

func (g *Grid) removeProcess(agentID string, p *agentProcess) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.agents[agentID] == p {
		delete(g.agents, agentID)
	}
}
