package broker

import (
	"context"
	"log/slog"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
)

// Notifier сообщает consumer'у, что в его очереди появилась task.
//
// Реализация: mq.Publisher (RabbitMQ). Уведомление — только ускорение,
// consumer всё равно периодически опрашивает очередь.
type Notifier interface {
	NotifyTaskPosted(ctx context.Context, consumerID string, taskType domain.TaskType) error
}

// Notifying оборачивает Broker: считает метрики и рассылает уведомления
// о новых tasks.
type Notifying struct {
	Broker

	notifier Notifier
	logger   *slog.Logger
}

// NewNotifying создаёт Notifying. notifier может быть nil (только метрики).
func NewNotifying(b Broker, notifier Notifier, logger *slog.Logger) *Notifying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifying{Broker: b, notifier: notifier, logger: logger}
}

// PostNewTask публикует task и, если она новая, уведомляет consumer'а.
func (n *Notifying) PostNewTask(ctx context.Context, task *domain.Task) (bool, error) {
	posted, err := n.Broker.PostNewTask(ctx, task)
	if err != nil {
		return false, err
	}

	if !posted {
		telemetry.TasksDeduplicated.WithLabelValues(string(task.Type)).Inc()
		return false, nil
	}
	telemetry.TasksPosted.WithLabelValues(string(task.Type)).Inc()

	if n.notifier != nil {
		if err := n.notifier.NotifyTaskPosted(ctx, task.ConsumerID, task.Type); err != nil {
			// Не критично: consumer заберёт task при следующем poll
			n.logger.Warn("failed to notify consumer",
				"consumer_id", task.ConsumerID,
				"task_type", task.Type,
				"error", err,
			)
		}
	}

	return true, nil
}
