package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrUnknownEvent — сообщение не является TaskPosted.
var ErrUnknownEvent = errors.New("unknown event")

// TaskPostedHandler получает разобранное уведомление.
type TaskPostedHandler func(ctx context.Context, event TaskPosted) error

// Listener слушает очередь уведомлений одного consumer'а
// и переживает переподключения Connection.
type Listener struct {
	conn   *Connection
	logger *slog.Logger
	queue  Queue
	handle TaskPostedHandler
}

// NewListener создаёт Listener очереди queue.
func NewListener(conn *Connection, logger *slog.Logger, queue Queue, handle TaskPostedHandler) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		conn:   conn,
		logger: logger.With("queue", queue),
		queue:  queue,
		handle: handle,
	}
}

// Listen разбирает уведомления, пока не отменён ctx.
// После обрыва канала ждёт переподключения и подписывается заново.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		deliveries, err := l.subscribe()
		if err != nil {
			l.logger.Error("subscribe failed", "error", err)
		} else {
			l.logger.Info("listening for task.posted")
			l.receive(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.conn.ReconnectNotify():
			l.logger.Info("reconnected, subscribing again")
		}
	}
}

// subscribe открывает подписку. Одно уведомление в полёте:
// следующее всё равно ничего не добавит, пока очередь разбирается.
func (l *Listener) subscribe() (<-chan amqp.Delivery, error) {
	ch := l.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(string(l.queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", l.queue, err)
	}
	return deliveries, nil
}

// receive обрабатывает доставки до закрытия канала или отмены ctx.
func (l *Listener) receive(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				l.logger.Warn("deliveries channel closed")
				return
			}
			l.dispatch(ctx, raw)
		}
	}
}

// dispatch передаёт уведомление обработчику.
//
// Нераспознанное сообщение уходит в DLQ. Ошибка обработчика возвращает
// уведомление в очередь только при первой доставке.
func (l *Listener) dispatch(ctx context.Context, raw amqp.Delivery) {
	event, err := DecodeTaskPosted(raw.Type, raw.Body)
	if err != nil {
		l.logger.Error("dropping message", "message_id", raw.MessageId, "error", err)
		_ = raw.Nack(false, false)
		return
	}

	if err := l.handle(ctx, event); err != nil {
		l.logger.Warn("task.posted handler failed",
			"event_id", event.ID,
			"task_type", event.TaskType,
			"redelivered", raw.Redelivered,
			"error", err,
		)
		_ = raw.Nack(false, !raw.Redelivered)
		return
	}
	_ = raw.Ack(false)
}

// DecodeTaskPosted разбирает тело доставки. Пустой AMQP type
// допускается для сообщений, опубликованных вручную.
func DecodeTaskPosted(amqpType string, body []byte) (TaskPosted, error) {
	var event TaskPosted
	if amqpType != "" && amqpType != TaskPostedType {
		return event, fmt.Errorf("%w: %s", ErrUnknownEvent, amqpType)
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("decode %s: %w", TaskPostedType, err)
	}
	if event.ConsumerID == "" {
		return event, fmt.Errorf("%w: %s without consumer_id", ErrUnknownEvent, TaskPostedType)
	}
	return event, nil
}
