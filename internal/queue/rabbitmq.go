package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName = "storybird.dlx"

	// Dead-lettered dispatches are kept a week for inspection.
	deadLetterTTL = 7 * 24 * time.Hour

	dialTimeout      = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ owns the broker connection. The dispatch topology is declared
// once per connection and again after every reconnect.
type RabbitMQ struct {
	url  string
	dial func(url string) (*amqp.Connection, error)

	mu       sync.Mutex
	conn     *amqp.Connection
	declared bool
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url, dial: amqp.Dial}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	ch, err := r.channel(ctx)
	if err != nil {
		return nil, err
	}
	_ = ch.Close()

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declared = false
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// channel opens a channel on a live connection, reconnecting with backoff
// until ctx is done.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	wait := reconnectBackoff
	for {
		ch, err := r.tryChannel()
		if err == nil {
			return ch, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq unavailable: %w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

func (r *RabbitMQ) tryChannel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		conn, err := r.dial(r.url)
		if err != nil {
			return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
		}
		r.conn = conn
		r.declared = false
	}

	ch, err := r.conn.Channel()
	if err != nil {
		_ = r.conn.Close()
		r.conn = nil
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if !r.declared {
		if err := declareTopology(ch); err != nil {
			_ = ch.Close()
			return nil, err
		}
		r.declared = true
	}

	return ch, nil
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// topologyArgs returns the arguments of the dispatch queue and its
// dead-letter queue.
func topologyArgs() (work amqp.Table, deadLetter amqp.Table) {
	work = amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": dispatchRoutingKey,
	}
	deadLetter = amqp.Table{
		"x-message-ttl": deadLetterTTL.Milliseconds(),
	}
	return work, deadLetter
}

func declareTopology(ch *amqp.Channel) error {
	workArgs, deadLetterArgs := topologyArgs()
	dlq := DLQName(DispatchQueue)

	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", dlxExchangeName, err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, deadLetterArgs); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, dispatchRoutingKey, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", dlq, err)
	}
	if _, err := ch.QueueDeclare(DispatchQueue, true, false, false, false, workArgs); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", DispatchQueue, err)
	}
	return nil
}
