package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// settlement is what the consumer does with a delivery once handled.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	default:
		return "dead-letter"
	}
}

// settleAfterHandler retries a failed dispatch once, then dead-letters it.
func settleAfterHandler(err error, redelivered bool) settlement {
	switch {
	case err == nil:
		return settleAck
	case redelivered:
		return settleDeadLetter
	default:
		return settleRequeue
	}
}

// decodeDelivery parses and validates a broker payload.
func decodeDelivery(body []byte) (DispatchMessage, error) {
	var msg DispatchMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return DispatchMessage{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return DispatchMessage{}, err
	}
	return msg, nil
}

type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{client: client, prefetch: prefetch, logger: logger}
}

// Consume delivers messages to handler until ctx is done, resubscribing after
// connection loss.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	wait := reconnectBackoff
	for ctx.Err() == nil {
		err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("dispatch subscription lost",
			zap.String("queue", queue),
			zap.Duration("retryIn", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
	return nil
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handle(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handle(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := decodeDelivery(d.Body)
	if err != nil {
		c.logger.Warn("dead-lettering undecodable dispatch message",
			zap.String("messageId", d.MessageId),
			zap.Error(err),
		)
		return settle(d, settleDeadLetter)
	}

	handlerErr := handler(ctx, msg)
	action := settleAfterHandler(handlerErr, d.Redelivered)
	if handlerErr != nil {
		c.logger.Warn("dispatch message failed",
			zap.String("messageId", msg.ID),
			zap.String("settlement", action.String()),
			zap.Error(handlerErr),
		)
	}
	return settle(d, action)
}

func settle(d amqp.Delivery, action settlement) error {
	var err error
	switch action {
	case settleAck:
		err = d.Ack(false)
	case settleRequeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		return fmt.Errorf("failed to %s delivery: %w", action, err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
