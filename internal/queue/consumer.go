package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Handler runs one task.  args is the raw Args of the envelope.
type Handler func(ctx context.Context, args json.RawMessage) error

// Outcome is what the consumer does with a delivery.
type Outcome int

const (
	Ack     Outcome = iota // processed
	Requeue                // failed once, try again
	Drop                   // malformed, unknown or failed twice
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	}
	return "drop"
}

// Consumer reads tasks from a durable queue and dispatches them to
// registered handlers.  Delivery is at least once: a handler may see the
// same task again after a crash or a requeue, so handlers must tolerate
// repeats.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	handlers map[string]Handler
	log      logrus.FieldLogger
}

func NewConsumer(url, queue string, prefetch int, log logrus.FieldLogger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if prefetch < 1 {
		prefetch = 1
	}
	return &Consumer{
		url:      url,
		queue:    queue,
		prefetch: prefetch,
		handlers: make(map[string]Handler),
		log:      log.WithField("component", "consumer"),
	}
}

// Register binds a handler to a task name.  It is not safe to call once
// Run has started.
func (c *Consumer) Register(name string, h Handler) { c.handlers[name] = h }

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("broker dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.WithField("queue", c.queue).Info("consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			switch c.Dispatch(ctx, d.Body, d.Redelivered) {
			case Ack:
				_ = d.Ack(false)
			case Requeue:
				_ = d.Nack(false, true)
			default:
				_ = d.Nack(false, false)
			}
		}
	}
}

// Dispatch decodes one envelope and runs its handler.  A handler failure
// is retried once through a requeue; the redelivered copy is dropped if it
// fails again.
func (c *Consumer) Dispatch(ctx context.Context, body []byte, redelivered bool) Outcome {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil || t.Name == "" {
		c.log.WithError(err).Error("malformed task envelope dropped")
		return Drop
	}
	entry := c.log.WithFields(logrus.Fields{"task": t.Name, "job_id": t.ID})
	h, ok := c.handlers[t.Name]
	if !ok {
		entry.Error("unknown task dropped")
		return Drop
	}

	start := time.Now()
	if err := h(ctx, t.Args); err != nil {
		if redelivered {
			entry.WithError(err).Error("task failed again, dropping")
			return Drop
		}
		entry.WithError(err).Warn("task failed, requeueing")
		return Requeue
	}
	entry.WithField("took_ms", time.Since(start).Milliseconds()).Info("task done")
	return Ack
}
