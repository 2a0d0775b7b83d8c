package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Flume/internal/executor"
	"github.com/shaiso/Flume/internal/telemetry"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeStarted   MessageType = "pipeline.started"
	MessageTypeCompleted MessageType = "pipeline.completed"
	MessageTypeFailed    MessageType = "pipeline.failed"
	MessageTypeCancelled MessageType = "pipeline.cancelled"
)

// defaultPublishTimeout — предел публикации одного обновления из OnUpdate.
const defaultPublishTimeout = 2 * time.Second

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// StartedPayload — pipeline запущен.
type StartedPayload struct {
	PipelineID string `json:"pipeline_id"`
	Name       string `json:"name,omitempty"`
	Stages     int    `json:"stages"`
}

// UpdatePayload — видимое обновление pipeline.
type UpdatePayload struct {
	PipelineID string    `json:"pipeline_id"`
	Kind       string    `json:"kind"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher публикует обновления pipeline в RabbitMQ.
//
// Publisher реализует executor.UpdateObserver: каждое обновление
// completion channel'а уходит в обменник flume.pipeline.
type Publisher struct {
	conn    *Connection
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:    conn,
		logger:  telemetry.Component(logger, "mq_publisher"),
		timeout: defaultPublishTimeout,
	}
}

// Publish публикует сообщение в обменник pipeline.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangePipeline), // exchange
			string(routingKey),       // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangePipeline, routingKey, err)
		}

		p.logger.Debug("published message",
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishStarted сообщает о запуске pipeline.
func (p *Publisher) PublishStarted(ctx context.Context, payload StartedPayload) error {
	return p.Publish(ctx, RoutingKeyStarted, newMessage(MessageTypeStarted, payload))
}

// PublishUpdate публикует обновление completion channel'а.
func (p *Publisher) PublishUpdate(ctx context.Context, u executor.Update) error {
	msgType, key := route(u.Kind)
	return p.Publish(ctx, key, newMessage(msgType, updatePayload(u)))
}

// OnUpdate реализует executor.UpdateObserver. Ошибки публикации
// только логируются: брокер не влияет на исход pipeline.
func (p *Publisher) OnUpdate(u executor.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.PublishUpdate(ctx, u); err != nil {
		p.logger.Warn("publish update failed",
			"pipeline_id", u.PipelineID,
			"kind", u.Kind,
			"error", err,
		)
	}
}

func newMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// route выбирает тип сообщения и ключ маршрутизации для обновления.
func route(kind executor.UpdateKind) (MessageType, RoutingKey) {
	switch kind {
	case executor.UpdateCompleted:
		return MessageTypeCompleted, RoutingKeyCompleted
	case executor.UpdateCancelled:
		return MessageTypeCancelled, RoutingKeyCancelled
	default:
		return MessageTypeFailed, RoutingKeyFailed
	}
}

func updatePayload(u executor.Update) UpdatePayload {
	payload := UpdatePayload{
		PipelineID: u.PipelineID,
		Kind:       string(u.Kind),
		At:         u.At,
	}
	if u.Err != nil {
		payload.Error = u.Err.Error()
	}
	return payload
}
