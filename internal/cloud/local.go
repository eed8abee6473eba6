package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// AgentHook запускает или останавливает процесс агента на локальной машине.
type AgentHook func(ctx context.Context, m Machine) error

// LocalConfig — конфигурация LocalDriver.
type LocalConfig struct {
	// OnAgentStart вызывается из StartAgent (опционально).
	OnAgentStart AgentHook

	// OnMachineStop вызывается, когда машина уничтожена или потеряна (опционально).
	OnMachineStop func(m Machine)

	Logger *slog.Logger
}

// LocalDriver — машины в памяти процесса.
//
// IP-адреса выдаются последовательно из 10.0.0.0/16. Kill имитирует
// потерю машины: процесс агента останавливается, но документ агента
// об этом не знает.
type LocalDriver struct {
	mu       sync.Mutex
	machines map[string]Machine
	nextIP   int

	onAgentStart  AgentHook
	onMachineStop func(m Machine)
	logger        *slog.Logger
}

// NewLocalDriver создаёт LocalDriver.
func NewLocalDriver(cfg LocalConfig) *LocalDriver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalDriver{
		machines:      make(map[string]Machine),
		onAgentStart:  cfg.OnAgentStart,
		onMachineStop: cfg.OnMachineStop,
		logger:        logger,
	}
}

// StartMachine выделяет машину с новым id и адресом.
func (d *LocalDriver) StartMachine(_ context.Context, agentID string) (Machine, error) {
	d.mu.Lock()
	d.nextIP++
	m := Machine{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		IPAddress: fmt.Sprintf("10.0.%d.%d", d.nextIP/256, d.nextIP%256),
	}
	d.machines[m.ID] = m
	d.mu.Unlock()

	d.logger.Info("machine started", "agent_id", agentID, "machine_id", m.ID, "ip_address", m.IPAddress)
	return m, nil
}

// StartAgent вызывает OnAgentStart для живой машины.
func (d *LocalDriver) StartAgent(ctx context.Context, m Machine) error {
	d.mu.Lock()
	_, ok := d.machines[m.ID]
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrMachineNotFound, m.ID)
	}
	if d.onAgentStart == nil {
		return nil
	}
	return d.onAgentStart(ctx, m)
}

// TerminateMachine уничтожает машину. Отсутствующая машина не ошибка.
func (d *LocalDriver) TerminateMachine(_ context.Context, machineID string) error {
	m, ok := d.remove(machineID)
	if !ok {
		return nil
	}

	d.logger.Info("machine terminated", "agent_id", m.AgentID, "machine_id", m.ID)
	return nil
}

// Kill теряет машину агента без участия provisioner'а.
// Возвращает false, если у агента нет живой машины.
func (d *LocalDriver) Kill(agentID string) bool {
	d.mu.Lock()
	var machineID string
	for id, m := range d.machines {
		if m.AgentID == agentID {
			machineID = id
			break
		}
	}
	d.mu.Unlock()

	if machineID == "" {
		return false
	}

	d.remove(machineID)
	d.logger.Warn("machine lost", "agent_id", agentID, "machine_id", machineID)
	return true
}

// Machines возвращает живые машины.
func (d *LocalDriver) Machines() []Machine {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Machine, 0, len(d.machines))
	for _, m := range d.machines {
		result = append(result, m)
	}
	return result
}

func (d *LocalDriver) remove(machineID string) (Machine, bool) {
	d.mu.Lock()
	m, ok := d.machines[machineID]
	delete(d.machines, machineID)
	d.mu.Unlock()

	if ok && d.onMachineStop != nil {
		d.onMachineStop(m)
	}
	return m, ok
}
