package mq

import (
	"context"
	"fmt"

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
	ExchangeEvents Exchange = "flows.events"
	ExchangeDLQ    Exchange = "flows.dlq"
)

// Queues — имена очередей.
const (
	QueueRunEvents Queue = "flows.run-events"
	QueueDLQEvents Queue = "dlq.events"
)

// Routing keys. Ключ события совпадает с его MessageType.
const (
	RoutingKeyRuns      RoutingKey = "run.#"
	RoutingKeyTasks     RoutingKey = "task.#"
	RoutingKeyDLQEvents RoutingKey = "events"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Операции идемпотентны, вызывать можно при каждом старте.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
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

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// flows.run-events — с DLQ (необработанные события не теряются)
		{QueueRunEvents, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
		}},
		{QueueDLQEvents, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRunEvents, RoutingKeyRuns, ExchangeEvents},
		{QueueRunEvents, RoutingKeyTasks, ExchangeEvents},
		{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// DeclareWatchQueue создаёт временную эксклюзивную очередь с именем
// от брокера и привязывает её к событиям по keys.
// Очередь удаляется вместе с соединением.
func DeclareWatchQueue(ctx context.Context, conn *Connection, keys ...RoutingKey) (Queue, error) {
	if len(keys) == 0 {
		keys = []RoutingKey{RoutingKeyRuns, RoutingKeyTasks}
	}

	var name Queue
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return fmt.Errorf("declare watch queue: %w", err)
		}
		for _, key := range keys {
			if err := ch.QueueBind(q.Name, string(key), string(ExchangeEvents), false, nil); err != nil {
				return fmt.Errorf("bind watch queue to %s: %w", key, err)
			}
		}
		name = Queue(q.Name)
		return nil
	})
	return name, err
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  flows RabbitMQ topology:

    flows.events (topic)
    ├── flows.run-events [routing: run.#, task.#]
    │       DLQ: dlq.events
    └── <watch queue>    [exclusive, flowctl events watch]

    flows.dlq (direct)
    └── dlq.events [routing: events]
            Manual processing
`
}
