package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/batchflows/internal/domain"
)

// MessageType — тип события. Используется и как routing key.
type MessageType string

// Типы событий.
const (
	MessageTypeRunStarted    MessageType = "run.started"
	MessageTypeRunSucceeded  MessageType = "run.succeeded"
	MessageTypeRunFailed     MessageType = "run.failed"
	MessageTypeTaskSucceeded MessageType = "task.succeeded"
	MessageTypeTaskFailed    MessageType = "task.failed"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка (RunPayload или TaskPayload).
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunPayload — событие run.
type RunPayload struct {
	RunID          uuid.UUID  `json:"run_id"`
	Flow           string     `json:"flow"`
	Status         string     `json:"status"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// TaskPayload — событие завершения задачи.
type TaskPayload struct {
	TaskID       uuid.UUID `json:"task_id"`
	RunID        uuid.UUID `json:"run_id"`
	Flow         string    `json:"flow"`
	StepID       string    `json:"step_id"`
	Backend      string    `json:"backend"`
	Status       string    `json:"status"` // SUCCEEDED или FAILED
	Attempt      int       `json:"attempt"`
	JobID        string    `json:"job_id,omitempty"`
	ArtifactsRef string    `json:"artifacts_ref,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// publishFunc отправляет публикацию в exchange.
type publishFunc func(ctx context.Context, exchange Exchange, key RoutingKey, msg amqp.Publishing) error

// Publisher публикует события runs в RabbitMQ.
type Publisher struct {
	publish publishFunc
	logger  *slog.Logger
	now     func() time.Time
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return newPublisher(func(ctx context.Context, exchange Exchange, key RoutingKey, msg amqp.Publishing) error {
		return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
			return ch.PublishWithContext(ctx, string(exchange), string(key), false, false, msg)
		})
	}, logger)
}

func newPublisher(fn publishFunc, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{publish: fn, logger: logger, now: time.Now}
}

// Publish публикует сообщение в обменник событий с ключом msg.Type.
func (p *Publisher) Publish(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := RoutingKey(msg.Type)
	err = p.publish(ctx, ExchangeEvents, key, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Type:         string(msg.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", ExchangeEvents, key, err)
	}

	p.logger.Debug("published message",
		"exchange", ExchangeEvents,
		"routing_key", key,
		"message_id", msg.ID,
	)
	return nil
}

// RunChanged публикует событие о смене статуса run.
// PENDING не публикуется: run ещё не начат.
func (p *Publisher) RunChanged(ctx context.Context, run *domain.Run) error {
	var msgType MessageType
	switch run.Status {
	case domain.RunStatusRunning:
		msgType = MessageTypeRunStarted
	case domain.RunStatusSucceeded:
		msgType = MessageTypeRunSucceeded
	case domain.RunStatusFailed:
		msgType = MessageTypeRunFailed
	default:
		return nil
	}

	return p.Publish(ctx, p.message(msgType, RunPayload{
		RunID:          run.ID,
		Flow:           run.Flow,
		Status:         string(run.Status),
		IdempotencyKey: run.IdempotencyKey,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		Error:          run.Error,
	}))
}

// TaskChanged публикует событие о завершении задачи.
func (p *Publisher) TaskChanged(ctx context.Context, flowName string, task *domain.Task) error {
	var msgType MessageType
	switch task.Status {
	case domain.TaskStatusSucceeded:
		msgType = MessageTypeTaskSucceeded
	case domain.TaskStatusFailed:
		msgType = MessageTypeTaskFailed
	default:
		return nil
	}

	return p.Publish(ctx, p.message(msgType, TaskPayload{
		TaskID:       task.ID,
		RunID:        task.RunID,
		Flow:         flowName,
		StepID:       task.StepID,
		Backend:      task.Backend,
		Status:       string(task.Status),
		Attempt:      task.Attempt,
		JobID:        task.JobID,
		ArtifactsRef: task.ArtifactsRef,
		Error:        task.Error,
	}))
}

func (p *Publisher) message(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: p.now(),
	}
}
