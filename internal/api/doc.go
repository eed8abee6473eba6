// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go       — Handler с DI (store, broker, clock, logger)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - state_handler.go — обработчики для /states
//   - task_handler.go  — обработчики для /tasks
//   - plan_handler.go  — обработчики для /deployment-plan
//
// API только читает документы и очереди. Единственная запись —
// UpdateDeploymentPlanTask в очередь оркестратора.
package api
