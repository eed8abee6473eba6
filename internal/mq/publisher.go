package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

// TaskPostedType — AMQP type уведомления о новой task.
const TaskPostedType = "task.posted"

// TaskPosted — уведомление: в очереди consumer'а появилась task.
// Саму task оно не несёт, её забирают из broker.
type TaskPosted struct {
	ID         string          `json:"id"`
	ConsumerID string          `json:"consumer_id"`
	TaskType   domain.TaskType `json:"task_type"`
	PostedAt   time.Time       `json:"posted_at"`
}

// Publisher рассылает TaskPosted. Реализует broker.Notifier.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// NotifyTaskPosted будит worker consumer'а.
func (p *Publisher) NotifyTaskPosted(ctx context.Context, consumerID string, taskType domain.TaskType) error {
	event := TaskPosted{
		ID:         uuid.New().String(),
		ConsumerID: consumerID,
		TaskType:   taskType,
		PostedAt:   time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", TaskPostedType, err)
	}

	key := ConsumerRoutingKey(consumerID)
	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// Transient: потеря уведомления только откладывает разбор до poll
		err := ch.PublishWithContext(ctx, string(ExchangeTasks), string(key), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Type:         TaskPostedType,
			MessageId:    event.ID,
			Timestamp:    event.PostedAt,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish %s for %s: %w", TaskPostedType, consumerID, err)
		}

		p.logger.Debug("task.posted sent",
			"consumer_id", consumerID,
			"task_type", taskType,
			"routing_key", key,
		)
		return nil
	})
}
