package mq

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks Exchange = "servicegrid.tasks"
	ExchangeDLQ   Exchange = "servicegrid.dlq"
)

// Queues — имена общих очередей.
const (
	QueueDLQNotifications Queue = "dlq.notifications"
)

// Routing keys.
const (
	RoutingKeyDLQNotifications RoutingKey = "notifications"
)

// consumerQueuePrefix — префикс очередей уведомлений consumer'ов.
const consumerQueuePrefix = "consumer."

// consumerQueueExpires — сколько живёт очередь уведомлений без
// подписчика (мс). Уведомления ничего не стоят: consumer, который
// долго не работал, всё равно разберёт очередь tasks целиком.
const consumerQueueExpires = 10 * 60 * 1000

// ConsumerRoutingKey возвращает routing key уведомлений consumer'а.
//
// ID consumer'ов — URL произвольной длины, в ключ идёт их xxhash.
func ConsumerRoutingKey(consumerID string) RoutingKey {
	return RoutingKey(fmt.Sprintf("%016x", xxhash.Sum64String(consumerID)))
}

// ConsumerQueue возвращает имя очереди уведомлений consumer'а.
func ConsumerQueue(consumerID string) Queue {
	return Queue(consumerQueuePrefix + string(ConsumerRoutingKey(consumerID)))
}

// SetupTopology объявляет общие обменники и очереди.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. DLQ
		_, err := ch.QueueDeclare(
			string(QueueDLQNotifications), // name
			true,                          // durable
			false,                         // delete when unused
			false,                         // exclusive
			false,                         // no-wait
			nil,                           // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueDLQNotifications, err)
		}

		// 3. Привязываем DLQ
		err = ch.QueueBind(
			string(QueueDLQNotifications),      // queue name
			string(RoutingKeyDLQNotifications), // routing key
			string(ExchangeDLQ),                // exchange
			false,                              // no-wait
			nil,                                // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueDLQNotifications, ExchangeDLQ, err)
		}

		return nil
	})
}

// DeclareConsumerQueue объявляет очередь уведомлений consumer'а
// и привязывает её к ExchangeTasks.
//
// Очередь не durable и удаляется, если consumer пропал надолго.
func DeclareConsumerQueue(ctx context.Context, conn *Connection, consumerID string) (Queue, error) {
	queue := ConsumerQueue(consumerID)
	key := ConsumerRoutingKey(consumerID)

	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		args := amqp.Table{
			"x-expires":                 int32(consumerQueueExpires),
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQNotifications),
		}
		if _, err := ch.QueueDeclare(string(queue), false, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		if err := ch.QueueBind(string(queue), string(key), string(ExchangeTasks), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", queue, ExchangeTasks, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return queue, nil
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  ServiceGrid RabbitMQ Topology:

    servicegrid.tasks (direct)
    └── consumer.<xxhash(consumer id)> [routing: xxhash(consumer id)]
            Consumer: worker этого consumer'а (task.posted)
            DLQ: dlq.notifications

    servicegrid.dlq (direct)
    └── dlq.notifications [routing: notifications]
            Manual processing
  `
}
