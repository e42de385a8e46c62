package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/edusmart-auth/internal/logging"
	"github.com/iliyamo/edusmart-auth/internal/queue"
)

// Publisher sends SendKeyEvents to the notifier.  Each publish opens its
// own connection, so a broker outage never leaves a stale channel behind.
// Errors are logged and returned; the saga ignores them because the
// registration has already committed.
type Publisher struct {
	url   string
	queue string
	log   logging.Logger
}

func NewPublisher(url, queueName string, log logging.Logger) *Publisher {
	if queueName == "" {
		queueName = queue.SendKeyQueue
	}
	return &Publisher{url: url, queue: queueName, log: log}
}

func (p *Publisher) PublishSendKey(ctx context.Context, ev queue.SendKeyEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Error(ctx, "rabbitmq: dial failed", "err", err)
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Error(ctx, "rabbitmq: channel open failed", "err", err)
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so pending emails survive a broker restart.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		p.log.Error(ctx, "rabbitmq: queue declare failed", "queue", p.queue, "err", err)
		return fmt.Errorf("declare %s: %w", p.queue, err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal send-key event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.log.Error(ctx, "rabbitmq: publish failed", "queue", p.queue, "err", err)
		return fmt.Errorf("publish %s: %w", p.queue, err)
	}
	return nil
}
