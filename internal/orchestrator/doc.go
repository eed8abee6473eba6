// Package orchestrator приводит service grid к deployment plan.
//
// Orchestrator отвечает за:
//   - Приём нового плана (UpdateDeploymentPlanTask) и вычисление
//     сервисов и агентов, выпавших из плана
//   - Определение доступности агентов по pings
//   - Sync: документы агентов, сервисов и instances, failover
//     потерянных машин под тем же agent id
//   - Движение агентов, instances и сервисов по их жизненным циклам
//     на один шаг за проход
//   - Разбор instances, сервисов и машин, выпавших из плана
//
// Orchestrator — набор обработчиков worker.Runtime: состояние хранится
// только в store, каждый проход пересчитывает всё заново.
package orchestrator
