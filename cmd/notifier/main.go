// Command notifier consumes SendKey events and mails the verification link.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/iliyamo/edusmart-auth/internal/config"
	"github.com/iliyamo/edusmart-auth/internal/logging"
	"github.com/iliyamo/edusmart-auth/internal/mail"
	"github.com/iliyamo/edusmart-auth/internal/model"
	"github.com/iliyamo/edusmart-auth/internal/queue"
	"github.com/iliyamo/edusmart-auth/internal/token"
)

func main() {
	cfg := config.LoadNotifier()
	logger := logging.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codec, err := token.NewCodec(token.Config{Key: []byte(cfg.Token.Key), IV: []byte(cfg.Token.IV)})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	c := &queue.SendKeyConsumer{
		URL:       cfg.Broker.URL,
		Queue:     cfg.Broker.SendKeyQueue,
		VerifyURL: cfg.VerifyURL,
		ValidFor:  model.VerificationWindow,
		Keys:      codec,
		Mail:      mail.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom),
		Log:       logger,
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("notifier: %v", err)
	}
	logger.Info(context.Background(), "notifier stopped")
}
