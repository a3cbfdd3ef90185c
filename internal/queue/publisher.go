package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultMessageTTL bounds how long a dispatch may wait in the queue. A
// new-video alert delivered hours late is noise.
const DefaultMessageTTL = time.Hour

var errPublishNacked = errors.New("broker did not confirm the message")

// RabbitMQPublisher publishes dispatch messages with publisher confirms so a
// failed publish can fall back to an inline dispatch.
type RabbitMQPublisher struct {
	client *RabbitMQ
	ttl    time.Duration
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, ttl: DefaultMessageTTL, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg DispatchMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}

	publishing, err := p.publishing(msg)
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish to %q: %w", queue, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm publish to %q: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("publish to %q: %w", queue, errPublishNacked)
	}
	return nil
}

func (p *RabbitMQPublisher) publishing(msg DispatchMessage) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid dispatch message: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     p.now().UTC(),
		MessageId:     msg.ID,
		CorrelationId: msg.CorrelationID,
		Type:          msg.Trigger,
		Body:          body,
	}
	if p.ttl > 0 {
		publishing.Expiration = strconv.FormatInt(p.ttl.Milliseconds(), 10)
	}
	return publishing, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
