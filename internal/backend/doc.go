// Package backend открывает хранилище состояний, очереди tasks
// и уведомления RabbitMQ по конфигурации процесса.
package backend
