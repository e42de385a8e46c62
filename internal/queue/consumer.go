package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/edusmart-auth/internal/logging"
	"github.com/iliyamo/edusmart-auth/internal/mail"
	"github.com/iliyamo/edusmart-auth/internal/token"
)

// KeyDecoder recovers the recipient from a verification key.
type KeyDecoder interface {
	Decode(tok string) (token.Claims, error)
}

// Mailer delivers the verification email.
type Mailer interface {
	SendVerificationEmail(to string, data mail.VerificationEmail) error
}

// SendKeyConsumer turns SendKeyEvents into verification emails.
type SendKeyConsumer struct {
	URL       string
	Queue     string
	VerifyURL string
	ValidFor  time.Duration
	Keys      KeyDecoder
	Mail      Mailer
	Log       logging.Logger
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes until
// ctx is done, reconnecting with backoff.  A message that cannot be
// handled is rejected without requeue so it cannot spin.
func (s *SendKeyConsumer) Run(ctx context.Context) error {
	if s.Queue == "" {
		s.Queue = SendKeyQueue
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(s.URL)
		if err != nil {
			s.Log.Warn(ctx, "send-key consumer: dial broker failed", "err", err, "retry_in", backoff.String())
			if !wait(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = s.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Log.Warn(ctx, "send-key consumer: consume loop ended, reconnecting", "err", err)
		if !wait(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (s *SendKeyConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		s.Log.Warn(ctx, "send-key consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(s.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(s.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	s.Log.Info(ctx, "send-key consumer: listening", "queue", s.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := s.Handle(d.Body); err != nil {
				s.Log.Error(ctx, "send-key consumer: handle message failed", "err", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body.
func (s *SendKeyConsumer) Handle(body []byte) error {
	var ev SendKeyEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Key == "" {
		return errors.New("empty key")
	}
	claims, err := s.Keys.Decode(ev.Key)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	link, err := verifyLink(s.VerifyURL, ev.Key)
	if err != nil {
		return err
	}
	return s.Mail.SendVerificationEmail(claims.Email, mail.VerificationEmail{
		Email:    claims.Email,
		Link:     link,
		ValidFor: s.ValidFor.String(),
	})
}

func verifyLink(base, key string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("verify url: %w", err)
	}
	q := u.Query()
	q.Set("token", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
