package provisioner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/ServiceGrid/internal/cloud"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// Provisioner выполняет tasks машин агентов через cloud.Driver.
//
// Все tasks impersonating: provisioner пишет документ агента.
// Каждый обработчик сначала проверяет progress агента, поэтому
// повторная task ничего не делает.
type Provisioner struct {
	scheme domain.Scheme
	driver cloud.Driver
	logger *slog.Logger
}

// Config — конфигурация Provisioner.
type Config struct {
	Scheme domain.Scheme
	Driver cloud.Driver
	Logger *slog.Logger
}

// New создаёт новый Provisioner.
func New(cfg Config) *Provisioner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provisioner{
		scheme: cfg.Scheme,
		driver: cfg.Driver,
		logger: logger,
	}
}

// ID возвращает id provisioner'а.
func (p *Provisioner) ID() string {
	return p.scheme.Provisioner()
}

// Register привязывает обработчики provisioner'а к реестру runtime.
func (p *Provisioner) Register(r *worker.Registry) {
	r.RegisterImpersonating(domain.TaskTypeStartMachine, worker.Consumer(p.startMachine))
	r.RegisterImpersonating(domain.TaskTypeStartAgent, worker.Consumer(p.startAgent))
	r.RegisterImpersonating(domain.TaskTypeTerminateMachine, p.terminate(
		domain.AgentMachineMarkedForTermination,
		domain.AgentMachineStarted,
		domain.AgentTerminatingMachine,
	))
	r.RegisterImpersonating(domain.TaskTypeTerminateMachineOfNonResponsiveAgt, p.terminate(
		domain.AgentStarted,
		domain.AgentMachineMarkedForTermination,
		domain.AgentTerminatingMachine,
	))
}

// Registry создаёт реестр с обработчиками provisioner'а.
func (p *Provisioner) Registry() *worker.Registry {
	r := worker.NewRegistry()
	p.Register(r)
	return r
}

// startMachine выделяет машину агенту в PLANNED.
//
// Новая машина — новое поколение агента: счётчик запусков агента
// сбрасывается, старые ответы на ping забываются.
func (p *Provisioner) startMachine(ctx context.Context, _ *domain.Task, state *worker.Handle[domain.AgentState]) error {
	agent, err := state.Get(ctx)
	if err != nil || agent == nil {
		return err
	}
	if agent.Progress != domain.AgentPlanned {
		return nil
	}

	m, err := p.driver.StartMachine(ctx, state.ID())
	if err != nil {
		return fmt.Errorf("start machine: %w", err)
	}

	agent.MachineID = m.ID
	agent.IPAddress = m.IPAddress
	agent.NumberOfMachineStarts++
	agent.NumberOfAgentStarts = 0
	agent.LastPingSourceTimestamp = nil
	agent.Progress = domain.AgentMachineStarted

	telemetry.WithAgentID(telemetry.FromContext(ctx), state.ID()).Info("machine started",
		"machine_id", m.ID,
		"ip_address", m.IPAddress,
		"machine_starts", agent.NumberOfMachineStarts,
	)

	return state.Put(ctx, agent)
}

// startAgent запускает процесс агента на машине в MACHINE_STARTED.
func (p *Provisioner) startAgent(ctx context.Context, _ *domain.Task, state *worker.Handle[domain.AgentState]) error {
	agent, err := state.Get(ctx)
	if err != nil || agent == nil {
		return err
	}
	if agent.Progress != domain.AgentMachineStarted {
		return nil
	}

	m := cloud.Machine{ID: agent.MachineID, AgentID: state.ID(), IPAddress: agent.IPAddress}
	if err := p.driver.StartAgent(ctx, m); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	agent.NumberOfAgentStarts++
	agent.Progress = domain.AgentStarted

	telemetry.WithAgentID(telemetry.FromContext(ctx), state.ID()).Info("agent started",
		"machine_id", m.ID,
		"agent_starts", agent.NumberOfAgentStarts,
	)

	return state.Put(ctx, agent)
}

// terminate возвращает обработчик уничтожения машины агента
// в одном из состояний from.
//
//  1. Агент переводится в TERMINATING_MACHINE.
//  2. Машина уничтожается.
//  3. Агент переводится в MACHINE_TERMINATED.
//
// Агент в PLANNED машины не имеет и сразу становится MACHINE_TERMINATED.
func (p *Provisioner) terminate(from ...domain.AgentProgress) worker.HandlerFunc {
	return worker.Consumer(func(ctx context.Context, _ *domain.Task, state *worker.Handle[domain.AgentState]) error {
		agent, err := state.Get(ctx)
		if err != nil || agent == nil {
			return err
		}

		logger := telemetry.WithAgentID(telemetry.FromContext(ctx), state.ID())

		if agent.Progress == domain.AgentPlanned {
			agent.Progress = domain.AgentMachineTerminated
			logger.Info("planned agent dropped without machine")
			return state.Put(ctx, agent)
		}

		allowed := false
		for _, progress := range from {
			if agent.Progress == progress {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil
		}

		// 1. Помечаем
		if agent.Progress != domain.AgentTerminatingMachine {
			agent.Progress = domain.AgentTerminatingMachine
			if err := state.Put(ctx, agent); err != nil {
				return err
			}
		}

		// 2. Уничтожаем
		if agent.MachineID != "" {
			if err := p.driver.TerminateMachine(ctx, agent.MachineID); err != nil {
				return fmt.Errorf("terminate machine %s: %w", agent.MachineID, err)
			}
		}

		// 3. Готово
		agent.Progress = domain.AgentMachineTerminated
		logger.Info("machine terminated", "machine_id", agent.MachineID)

		return state.Put(ctx, agent)
	})
}
