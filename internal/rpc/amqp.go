package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/edusmart-auth/internal/logging"
)

// ResolveFunc receives replies; Gateway.Resolve satisfies it.
type ResolveFunc func(correlationID string, body []byte) bool

// AMQPTransport publishes requests on the default exchange and listens on
// a server-named exclusive reply queue.  Run keeps the connection alive.
type AMQPTransport struct {
	url string
	log logging.Logger

	mu         sync.RWMutex
	ch         *amqp.Channel
	replyQueue string
	pubMu      sync.Mutex
}

func NewAMQPTransport(url string, log logging.Logger) *AMQPTransport {
	return &AMQPTransport{url: url, log: log}
}

func (t *AMQPTransport) Publish(ctx context.Context, req Request) error {
	t.mu.RLock()
	ch, replyTo := t.ch, t.replyQueue
	t.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected
	}

	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	return ch.PublishWithContext(ctx,
		"",        // default exchange
		req.Queue, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: req.CorrelationID,
			ReplyTo:       replyTo,
			Timestamp:     time.Now().UTC(),
			Body:          req.Body,
		},
	)
}

// Run dials the broker and pumps replies into resolve until ctx is done,
// reconnecting with exponential backoff.
func (t *AMQPTransport) Run(ctx context.Context, resolve ResolveFunc) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(t.url)
		if err != nil {
			t.log.Warn(ctx, "rpc: dial broker failed", "err", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = t.serve(ctx, conn, resolve)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.log.Warn(ctx, "rpc: reply loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (t *AMQPTransport) serve(ctx context.Context, conn *amqp.Connection, resolve ResolveFunc) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Empty name: the broker picks one.  Exclusive + auto-delete so it dies
	// with the connection.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("reply queue declare: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("reply queue consume: %w", err)
	}

	t.mu.Lock()
	t.ch, t.replyQueue = ch, q.Name
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.ch, t.replyQueue = nil, ""
		t.mu.Unlock()
	}()
	t.log.Info(ctx, "rpc: connected", "reply_queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("reply deliveries channel closed")
			}
			if d.CorrelationId == "" {
				t.log.Warn(ctx, "rpc: reply without correlation id")
				continue
			}
			resolve(d.CorrelationId, d.Body)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
