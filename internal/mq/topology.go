package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// ExchangePipeline — topic обменник обновлений pipeline.
const ExchangePipeline Exchange = "flume.pipeline"

// QueuePipelineUpdates — общая очередь всех обновлений.
const QueuePipelineUpdates Queue = "pipeline.updates"

// Routing keys.
const (
	RoutingKeyStarted   RoutingKey = "pipeline.started"
	RoutingKeyCompleted RoutingKey = "pipeline.completed"
	RoutingKeyFailed    RoutingKey = "pipeline.failed"
	RoutingKeyCancelled RoutingKey = "pipeline.cancelled"

	// RoutingKeyAll — шаблон привязки для всех обновлений.
	RoutingKeyAll RoutingKey = "pipeline.*"
)

// SetupTopology объявляет обменник и общую очередь обновлений.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangePipeline), // name
			"topic",                  // type
			true,                     // durable
			false,                    // auto-deleted
			false,                    // internal
			false,                    // no-wait
			nil,                      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangePipeline, err)
		}

		_, err = ch.QueueDeclare(
			string(QueuePipelineUpdates), // name
			true,                         // durable
			false,                        // delete when unused
			false,                        // exclusive
			false,                        // no-wait
			nil,                          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueuePipelineUpdates, err)
		}

		return bind(ch, string(QueuePipelineUpdates), RoutingKeyAll)
	})
}

// DeclareWatchQueue создаёт временную эксклюзивную очередь,
// получающую все обновления.
func DeclareWatchQueue(ctx context.Context, conn *Connection) (Queue, error) {
	var name string
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // сгенерированное имя
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare watch queue: %w", err)
		}
		name = q.Name
		return bind(ch, name, RoutingKeyAll)
	})
	return Queue(name), err
}

func bind(ch *amqp.Channel, queue string, key RoutingKey) error {
	err := ch.QueueBind(
		queue,                    // queue name
		string(key),              // routing key
		string(ExchangePipeline), // exchange
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, ExchangePipeline, err)
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	var b strings.Builder
	b.WriteString("Flume RabbitMQ topology:\n")
	b.WriteString("  " + string(ExchangePipeline) + " (topic)\n")
	b.WriteString("  └── " + string(QueuePipelineUpdates) + " [routing: " + string(RoutingKeyAll) + "]\n")
	for _, key := range []RoutingKey{RoutingKeyStarted, RoutingKeyCompleted, RoutingKeyFailed, RoutingKeyCancelled} {
		b.WriteString("        " + string(key) + "\n")
	}
	return b.String()
}
