// Package telemetry обеспечивает наблюдаемость service grid.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (reconciliation, broker, runtime)
//
// Все бинарники используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
