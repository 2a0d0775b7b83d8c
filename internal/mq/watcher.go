package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Flume/internal/telemetry"
)

// ErrUnknownMessageType — в очереди сообщение неизвестного типа.
var ErrUnknownMessageType = errors.New("unknown message type")

// Event — обновление pipeline, прочитанное из очереди наблюдения.
//
// Для pipeline.started заполнены Name и Stages, для остальных
// типов Kind, Error и At.
type Event struct {
	ID         string      `json:"id"`
	Type       MessageType `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	PipelineID string      `json:"pipeline_id"`

	Name   string `json:"name,omitempty"`
	Stages int    `json:"stages,omitempty"`

	Kind  string    `json:"kind,omitempty"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at,omitzero"`
}

// EventFunc обрабатывает одно событие. Ошибка отбрасывает сообщение.
type EventFunc func(ctx context.Context, ev Event) error

// envelope — Message с отложенным разбором payload.
type envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeEvent разбирает тело сообщения в Event по его типу.
func DecodeEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("unmarshal message: %w", err)
	}

	ev := Event{ID: env.ID, Type: env.Type, Timestamp: env.Timestamp}

	switch env.Type {
	case MessageTypeStarted:
		var p StartedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
		}
		ev.PipelineID, ev.Name, ev.Stages = p.PipelineID, p.Name, p.Stages

	case MessageTypeCompleted, MessageTypeFailed, MessageTypeCancelled:
		var p UpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
		}
		ev.PipelineID, ev.Kind, ev.Error, ev.At = p.PipelineID, p.Kind, p.Error, p.At

	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	return ev, nil
}

// WatcherConfig — конфигурация Watcher.
type WatcherConfig struct {
	// Queue — очередь наблюдения (DeclareWatchQueue).
	Queue Queue

	// OnEvent — обработчик событий.
	OnEvent EventFunc

	// Prefetch — число неподтверждённых сообщений (default: 16).
	Prefetch int
}

// Watcher читает обновления pipeline для flume watch.
//
// Сообщения не возвращаются в очередь: нераспознанные и те, на
// которых обработчик вернул ошибку, отбрасываются с записью в лог.
type Watcher struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	onEvent  EventFunc
	prefetch int
}

// NewWatcher создаёт Watcher.
func NewWatcher(conn *Connection, logger *slog.Logger, cfg WatcherConfig) *Watcher {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 16
	}

	return &Watcher{
		conn:     conn,
		logger:   telemetry.Component(logger, "mq_watcher"),
		queue:    cfg.Queue,
		onEvent:  cfg.OnEvent,
		prefetch: prefetch,
	}
}

// Run читает очередь до отмены ctx. После обрыва соединения
// ждёт переподключения и продолжает.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		deliveries, err := w.subscribe()
		if err != nil {
			w.logger.Error("subscribe failed", "queue", w.queue, "error", err)
		} else {
			w.logger.Info("watching", "queue", w.queue)
			w.receive(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.conn.ReconnectNotify():
			w.logger.Info("reconnected, resubscribing", "queue", w.queue)
		}
	}
}

func (w *Watcher) subscribe() (<-chan amqp.Delivery, error) {
	ch := w.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(w.queue), // queue
		"",              // consumer tag
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// receive обрабатывает доставки, пока канал открыт.
func (w *Watcher) receive(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("deliveries channel closed", "queue", w.queue)
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, d amqp.Delivery) {
	ev, err := DecodeEvent(d.Body)
	if err != nil {
		w.logger.Warn("dropping message",
			"queue", w.queue,
			"message_id", d.MessageId,
			"error", err,
		)
		w.reject(d)
		return
	}

	if err := w.onEvent(ctx, ev); err != nil {
		w.logger.Error("event handler failed",
			"queue", w.queue,
			"message_id", ev.ID,
			"type", ev.Type,
			"error", err,
		)
		w.reject(d)
		return
	}

	if err := d.Ack(false); err != nil {
		w.logger.Warn("ack failed", "message_id", ev.ID, "error", err)
	}
}

func (w *Watcher) reject(d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		w.logger.Warn("nack failed", "message_id", d.MessageId, "error", err)
	}
}
