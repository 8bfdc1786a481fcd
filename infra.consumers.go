package main

import (
	"context"

	"go.uber.org/zap"
)

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

// outboxConsumer drains the mails outbox queue and delivers each mail
// through its delegate transport. Delivery failures are logged and the
// mail is dropped, retries belong to an external relay if any.
type outboxConsumer struct {
	logger    *zap.Logger
	config    *Config
	queue     Queuer
	transport MailTransport
}

func NewOutboxConsumer(logger *zap.Logger, config *Config, q Queuer, transport MailTransport) Consumer {
	return &outboxConsumer{logger, config, q, transport}
}

func (oc *outboxConsumer) Consume(ctx context.Context, qids ...string) error {
	var mail Mail
	var err error
	var qid string
	for {
		qid, mail, err = oc.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			oc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			oc.logger.Error("consumer: error on queue pop call", zap.Error(err))
			continue
		}

		switch qid {
		case OutboxQueue:
			oc.deliver(ctx, mail)
		default:
			oc.logger.Warn("consumer: received mail on unknown queue id", zap.String("qid", qid), zap.String("mail.id", mail.ID))
		}
	}
}

func (oc *outboxConsumer) deliver(ctx context.Context, mail Mail) {
	sendCtx, cancel := context.WithTimeout(ctx, oc.config.Mail.SendTimeout)
	defer cancel()
	if err := oc.transport.Send(sendCtx, mail); err != nil {
		oc.logger.Error("consumer: failed to deliver mail",
			zap.String("mail.id", mail.ID),
			zap.Int("mail.recipients", len(mail.To)),
			zap.Error(err),
		)
		return
	}
	oc.logger.Info("consumer: mail delivered",
		zap.String("mail.id", mail.ID),
		zap.Int("mail.recipients", len(mail.To)),
	)
}
