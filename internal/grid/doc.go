// Package grid собирает service grid в одном процессе.
//
// Оркестратор, provisioner и агенты работают над общими store и broker.
// Машины выделяет cloud.LocalDriver, процессы агентов поднимаются
// в этом же процессе. Grid используется для симуляции и для тестов
// сходимости, failover и масштабирования.
package grid
