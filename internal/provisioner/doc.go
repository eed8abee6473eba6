// Package provisioner поднимает и уничтожает машины агентов.
//
// Provisioner — consumer tasks StartMachineTask, StartAgentTask,
// TerminateMachineTask и TerminateMachineOfNonResponsiveAgentTask.
// Сами машины выделяет cloud.Driver.
package provisioner
