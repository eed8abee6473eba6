package domain

// AgentProgress — стадия жизненного цикла агента и его машины.
//
// Жизненный цикл:
//
//	PLANNED → MACHINE_STARTED → AGENT_STARTED → MACHINE_MARKED_FOR_TERMINATION
//	        → TERMINATING_MACHINE → MACHINE_TERMINATED
//	MACHINE_TERMINATED → PLANNED (failover, тот же agent id)
//
// Недоступный AGENT_STARTED уничтожается в обход графа
// (TerminateMachineOfNonResponsiveAgentTask), без дренажа instances.
type AgentProgress string

const (
	AgentPlanned                     AgentProgress = "PLANNED"
	AgentMachineStarted              AgentProgress = "MACHINE_STARTED"
	AgentStarted                     AgentProgress = "AGENT_STARTED"
	AgentMachineMarkedForTermination AgentProgress = "MACHINE_MARKED_FOR_TERMINATION"
	AgentTerminatingMachine          AgentProgress = "TERMINATING_MACHINE"
	AgentMachineTerminated           AgentProgress = "MACHINE_TERMINATED"
)

// IsAgentRunning возвращает true, если процесс агента был запущен на текущей машине.
func (p AgentProgress) IsAgentRunning() bool {
	switch p {
	case AgentStarted, AgentMachineMarkedForTermination:
		return true
	default:
		return false
	}
}

// IsTornDown возвращает true, если машина агента уже уничтожается или уничтожена.
func (p AgentProgress) IsTornDown() bool {
	switch p {
	case AgentTerminatingMachine, AgentMachineTerminated:
		return true
	default:
		return false
	}
}

// InstanceProgress — стадия жизненного цикла service instance.
//
// Жизненный цикл:
//
//	PLANNED → INSTANCE_INSTALLED → INSTANCE_STARTED
//	INSTANCE_STARTED → INSTANCE_STOPPED → INSTANCE_UNINSTALLED (удаление)
//	любое (машина агента уничтожена) → INSTANCE_UNREACHABLE
type InstanceProgress string

const (
	InstancePlanned     InstanceProgress = "PLANNED"
	InstanceInstalled   InstanceProgress = "INSTANCE_INSTALLED"
	InstanceStarted     InstanceProgress = "INSTANCE_STARTED"
	InstanceStopped     InstanceProgress = "INSTANCE_STOPPED"
	InstanceUninstalled InstanceProgress = "INSTANCE_UNINSTALLED"
	InstanceUnreachable InstanceProgress = "INSTANCE_UNREACHABLE"
)

// ServiceProgress — стадия жизненного цикла сервиса.
//
// Жизненный цикл:
//
//	INSTALLING_SERVICE ⇄ SERVICE_INSTALLED → UNINSTALLING_SERVICE → SERVICE_UNINSTALLED
type ServiceProgress string

const (
	ServiceInstalling   ServiceProgress = "INSTALLING_SERVICE"
	ServiceInstalled    ServiceProgress = "SERVICE_INSTALLED"
	ServiceUninstalling ServiceProgress = "UNINSTALLING_SERVICE"
	ServiceUninstalled  ServiceProgress = "SERVICE_UNINSTALLED"
)

// Графы переходов в DSL lifecycle-машины.
const (
	AgentLifecycle = "PLANNED->MACHINE_STARTED->AGENT_STARTED->MACHINE_MARKED_FOR_TERMINATION" +
		"->TERMINATING_MACHINE->MACHINE_TERMINATED->PLANNED " +
		"MACHINE_STARTED->TERMINATING_MACHINE PLANNED->MACHINE_TERMINATED"

	InstanceLifecycle = "PLANNED->INSTANCE_INSTALLED->INSTANCE_STARTED->INSTANCE_STOPPED->INSTANCE_UNINSTALLED " +
		"INSTANCE_STOPPED->INSTANCE_STARTED, INSTANCE_INSTALLED->INSTANCE_UNINSTALLED->INSTANCE_INSTALLED, " +
		"PLANNED->INSTANCE_UNINSTALLED, INSTANCE_UNREACHABLE"

	ServiceLifecycle = "INSTALLING_SERVICE<->SERVICE_INSTALLED->UNINSTALLING_SERVICE->SERVICE_UNINSTALLED " +
		"INSTALLING_SERVICE->UNINSTALLING_SERVICE"
)
