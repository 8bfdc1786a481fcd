package main

import (
	"context"

	"go.uber.org/zap"
)

// Mail is one outbound message addressed to a batch of recipients.
type Mail struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	To      []string `json:"to"`
}

// MailTransport is the contract of the external mail delivery
// collaborator. Implementations must honor the context deadline.
type MailTransport interface {
	Send(ctx context.Context, mail Mail) error
}

var (
	_ MailTransport = (*logMailTransport)(nil)
	_ MailTransport = (*redisOutboxTransport)(nil)
)

// logMailTransport writes outbound mails to the application logs.
// It is the development transport and the terminal delegate of the
// outbox consumer.
type logMailTransport struct {
	logger *zap.Logger
}

func NewLogMailTransport(logger *zap.Logger) MailTransport {
	return &logMailTransport{logger: logger}
}

func (lt *logMailTransport) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lt.logger.Info("mailer: outbound mail",
		zap.String("mail.id", mail.ID),
		zap.String("mail.from", mail.From),
		zap.String("mail.subject", mail.Subject),
		zap.Strings("mail.to", mail.To),
	)
	return nil
}

// redisOutboxTransport hands mails over to the redis outbox queue.
// Actual delivery happens asynchronously in the outbox consumer.
type redisOutboxTransport struct {
	queue Queuer
}

func NewRedisOutboxTransport(queue Queuer) MailTransport {
	return &redisOutboxTransport{queue: queue}
}

func (rt *redisOutboxTransport) Send(ctx context.Context, mail Mail) error {
	return rt.queue.Push(ctx, OutboxQueue, mail)
}
