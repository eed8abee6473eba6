// Package domain содержит модель данных service grid.
//
// Включает:
//   - task.go, tasks.go — Task, типы tasks и их payloads
//   - state.go          — документы состояния (агент, сервис, instance, оркестратор) и DeploymentPlan
//   - status.go         — стадии жизненных циклов и их графы переходов
//   - ids.go            — иерархические ids документов
//
// Все документы хранятся в Versioned State Store в виде JSON
// и встраивают ConsumerState.
package domain
