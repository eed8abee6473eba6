// Package agent — executor процесса агента на машине.
//
// Agent отвечает за:
//   - Ответы на pings оркестратора
//   - Установку, запуск, остановку и удаление service instances
//   - Восстановление документов instances после failover
//   - Сообщение о собственном перезапуске (AgentRestartedTask)
package agent
