package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/platefull/jobqueue/internal/queue/domain"
	"github.com/platefull/jobqueue/shared/rabbitmq"
)

// Enqueuer is the slice of the queue manager the consumer needs.
type Enqueuer interface {
	Enqueue(jobType domain.JobType, priority domain.Priority, ownerID string, payload json.RawMessage, maxAttempts int) (string, error)
}

// EnqueueMessage is the wire format other services publish to submit jobs.
type EnqueueMessage struct {
	JobType     string          `json:"job_type"`
	Priority    string          `json:"priority,omitempty"`
	OwnerID     string          `json:"owner_id"`
	Payload     json.RawMessage `json:"payload"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
}

// Consumer bridges RabbitMQ enqueue requests into the in-process queue.
// Malformed or permanently invalid messages are nacked without requeue so
// they end up in the dead-letter queue instead of looping forever.
type Consumer struct {
	logger        *slog.Logger
	client        *rabbitmq.Client
	enqueuer      Enqueuer
	prefetchCount int
	consumerID    string
}

// NewConsumer creates an ingress consumer.
func NewConsumer(logger *slog.Logger, client *rabbitmq.Client, enqueuer Enqueuer, prefetchCount int) *Consumer {
	return &Consumer{
		logger:        logger,
		client:        client,
		enqueuer:      enqueuer,
		prefetchCount: prefetchCount,
		consumerID:    fmt.Sprintf("jobqueue-ingest-%s", uuid.New().String()[:8]),
	}
}

// Run consumes enqueue requests until ctx is canceled or the delivery
// channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.client.Consume(c.consumerID, c.prefetchCount)
	if err != nil {
		return fmt.Errorf("failed to start ingress consumer: %w", err)
	}

	c.logger.Info("Enqueue ingress started",
		slog.String("consumer_id", c.consumerID),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Enqueue ingress stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return nil
			}
			c.handleDelivery(delivery)
		}
	}
}

func (c *Consumer) handleDelivery(delivery amqp.Delivery) {
	var msg EnqueueMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Error("Failed to parse enqueue message",
			slog.String("error", err.Error()),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
		)
		c.nack(delivery, false)
		return
	}

	jobID, err := c.enqueuer.Enqueue(
		domain.JobType(msg.JobType),
		domain.Priority(msg.Priority),
		msg.OwnerID,
		msg.Payload,
		msg.MaxAttempts,
	)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownJobType), errors.Is(err, domain.ErrInvalidPriority):
			c.logger.Error("Rejecting invalid enqueue message",
				slog.String("job_type", msg.JobType),
				slog.String("error", err.Error()),
			)
			c.nack(delivery, false)
		default:
			// Queue shutting down or otherwise unable to accept; let
			// another consumer pick the message up.
			c.logger.Warn("Requeuing enqueue message",
				slog.String("job_type", msg.JobType),
				slog.String("error", err.Error()),
			)
			c.nack(delivery, true)
		}
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("Failed to ACK enqueue message",
			slog.String("job_id", jobID),
			slog.String("error", ackErr.Error()),
		)
		return
	}

	c.logger.Debug("Job enqueued from broker",
		slog.String("job_id", jobID),
		slog.String("job_type", msg.JobType),
		slog.String("owner_id", msg.OwnerID),
	)
}

func (c *Consumer) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}
