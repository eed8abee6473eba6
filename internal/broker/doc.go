// Package broker определяет Task Broker — очереди tasks по consumer'ам.
//
// PostNewTask не добавляет task, если эквивалентная (те же type, producer,
// consumer, state и payload) уже ожидает в очереди. Поэтому цикл
// reconciliation может выдавать одни и те же корректирующие tasks
// на каждом проходе, не переполняя очереди.
//
// Реализации:
//   - MemoryBroker   — в памяти
//   - repo.TaskRepo  — PostgreSQL (дедупликация через unique fingerprint)
//
// Notifying добавляет метрики и уведомления через RabbitMQ.
package broker
