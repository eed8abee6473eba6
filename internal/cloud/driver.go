package cloud

import (
	"context"
	"errors"
)

// Ошибки драйвера.
var (
	// ErrMachineNotFound — машины нет или она уже уничтожена.
	ErrMachineNotFound = errors.New("machine not found")
)

// Machine — машина, выделенная агенту.
type Machine struct {
	ID        string
	AgentID   string
	IPAddress string
}

// Driver — управление машинами агентов.
//
// Все операции идемпотентны по смыслу: повторное уничтожение
// уничтоженной машины не ошибка.
type Driver interface {
	// StartMachine выделяет новую машину для агента.
	StartMachine(ctx context.Context, agentID string) (Machine, error)

	// StartAgent запускает процесс агента на машине.
	StartAgent(ctx context.Context, m Machine) error

	// TerminateMachine уничтожает машину.
	TerminateMachine(ctx context.Context, machineID string) error
}
