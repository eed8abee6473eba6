// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// RabbitMQ в service grid не хранит tasks, он только будит workers:
// после PostNewTask consumer получает task.posted и сразу разбирает
// свою очередь, не дожидаясь очередного poll.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — обменники, DLQ, очереди уведомлений consumer'ов
//   - publisher.go  — событие TaskPosted и его публикация (реализует broker.Notifier)
//   - consumer.go   — Listener: подписка на очередь consumer'а и разбор TaskPosted
//
// Exchanges:
//   - servicegrid.tasks — уведомления task.posted, routing key — xxhash id consumer'а
//   - servicegrid.dlq   — dead letter queue
package mq
