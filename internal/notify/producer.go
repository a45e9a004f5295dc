// Package notify publishes flood notification jobs to the message broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
	"github.com/DevenJnando/flood-notifications-producer/internal/observability"
)

const (
	// QueueTasks carries the per-run job-count barrier message so consumers
	// know how many email jobs make up one batch.
	QueueTasks = "tasks"
	// QueueEmail carries one job per (flood, subscriber) pair.
	QueueEmail = "email"

	// attemptLimit bounds publishes of one message. A message nacked this
	// many times in a row goes to the dead-letter log instead.
	attemptLimit = 5
)

// confirmation is the broker acknowledgement for one publish.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// broker is the publishing surface of an AMQP channel. The indirection exists
// so producer behavior is testable without a live broker.
type broker interface {
	publish(ctx context.Context, queue string, body []byte) (confirmation, error)
}

// amqpBroker adapts *amqp.Channel to the broker interface.
type amqpBroker struct {
	ch *amqp.Channel
}

func (b *amqpBroker) publish(ctx context.Context, queue string, body []byte) (confirmation, error) {
	return b.ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    domain.Now(),
		Body:         body,
	})
}

// Producer publishes notification jobs with publisher confirms. Its
// connection is scoped to one pipeline run: acquired by Dial, released by
// Close. The channel is single-owner; callers must not publish concurrently.
type Producer struct {
	conn    *amqp.Connection
	broker  broker
	dlq     *DeadLetter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Dial connects to the broker, enables confirm mode and declares the tasks
// and email queues as durable quorum queues.
func Dial(url string, dlq *DeadLetter, logger *slog.Logger, metrics *observability.Metrics) (*Producer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBrokerUnavailable, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: open channel: %w", domain.ErrBrokerUnavailable, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: enable confirms: %w", domain.ErrBrokerUnavailable, err)
	}

	quorum := amqp.Table{"x-queue-type": "quorum"}
	for _, queue := range []string{QueueTasks, QueueEmail} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, quorum); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: declare queue %s: %w", domain.ErrBrokerUnavailable, queue, err)
		}
	}

	return &Producer{
		conn:    conn,
		broker:  &amqpBroker{ch: ch},
		dlq:     dlq,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Close releases the broker connection. Safe on a producer whose connection
// was never established.
func (p *Producer) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// Publish delivers one mandatory, confirmed message to a queue, retrying
// nacked publishes up to the attempt limit. An exhausted message is logged
// at error level and written to the dead-letter log; it is not requeued.
// The returned error is non-nil only when the context ends mid-publish.
func (p *Producer) Publish(ctx context.Context, queue string, body []byte) error {
	for attempt := 1; attempt <= attemptLimit; attempt++ {
		if attempt > 1 {
			p.metrics.PublishRetries.Inc()
			p.logger.Warn("publish not confirmed, retrying",
				"queue", queue, "attempt", attempt, "limit", attemptLimit)
		}

		confirm, err := p.broker.publish(ctx, queue, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("publish failed", "queue", queue, "attempt", attempt, "error", err)
			continue
		}

		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return err
		}
		if acked {
			p.metrics.MessagesPublished.WithLabelValues(queue).Inc()
			return nil
		}
	}

	p.logger.Error("publish retries exhausted, dead-lettering message", "queue", queue)
	p.metrics.DeadLetters.Inc()
	if err := p.dlq.Record(queue, body, attemptLimit); err != nil {
		p.logger.Error("dead-letter write failed", "queue", queue, "error", err)
	}
	return nil
}

type taskCountMessage struct {
	NoOfTasks int `json:"no_of_tasks"`
}

type emailJobMessage struct {
	Flood           domain.FloodWarning `json:"flood"`
	SubscriberID    string              `json:"subscriber_id"`
	SubscriberEmail string              `json:"subscriber_email"`
}

// PrepareConsumers publishes the job-count barrier to the tasks queue.
func (p *Producer) PrepareConsumers(ctx context.Context, taskCount int) error {
	body, err := json.Marshal(taskCountMessage{NoOfTasks: taskCount})
	if err != nil {
		return fmt.Errorf("marshal task count: %w", err)
	}
	return p.Publish(ctx, QueueTasks, body)
}

// NotifyAll publishes one email job per (flood, subscriber) pair. Per-pair
// granularity keeps every job independently retryable.
func (p *Producer) NotifyAll(ctx context.Context, notifications []domain.Notification) error {
	for _, notification := range notifications {
		for _, subscriber := range notification.Subscribers {
			body, err := json.Marshal(emailJobMessage{
				Flood:           notification.Flood,
				SubscriberID:    subscriber.ID,
				SubscriberEmail: subscriber.Email,
			})
			if err != nil {
				return fmt.Errorf("marshal email job for flood %s: %w", notification.Flood.FloodAreaID, err)
			}
			if err := p.Publish(ctx, QueueEmail, body); err != nil {
				return err
			}
		}
	}
	return nil
}

// JobCount returns the number of email jobs the notifications will produce.
func JobCount(notifications []domain.Notification) int {
	var n int
	for _, notification := range notifications {
		n += len(notification.Subscribers)
	}
	return n
}
