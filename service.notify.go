package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NotifierProvider is the contract of the notification dispatcher.
type NotifierProvider interface {
	Notify(ctx context.Context, message string, recipients []string) error
}

// NotificationDispatcher composes exactly one outbound mail per call,
// addressed to the whole recipients batch, and hands it to the mail
// transport under a bounded timeout. An empty recipients list is still
// dispatched, the transport decides what an empty batch means.
type NotificationDispatcher struct {
	logger    *zap.Logger
	config    *Config
	ids       UIDHandler
	transport MailTransport
}

func NewNotificationDispatcher(logger *zap.Logger, config *Config, ids UIDHandler, transport MailTransport) NotifierProvider {
	return &NotificationDispatcher{
		logger:    logger,
		config:    config,
		ids:       ids,
		transport: transport,
	}
}

// Notify sends one mail with the given body to all recipients at once.
func (nd *NotificationDispatcher) Notify(ctx context.Context, message string, recipients []string) error {
	mail := Mail{
		ID:      nd.ids.Generate(MailIDPrefix),
		From:    nd.config.Mail.Sender,
		Subject: nd.config.Mail.Subject,
		Body:    message,
		To:      recipients,
	}

	sendCtx, cancel := context.WithTimeout(ctx, nd.config.Mail.SendTimeout)
	defer cancel()

	if err := nd.transport.Send(sendCtx, mail); err != nil {
		nd.logger.Error("notifier: failed to hand mail to transport",
			zap.String("mail.id", mail.ID),
			zap.Int("mail.recipients", len(mail.To)),
			zap.Error(err),
		)
		return fmt.Errorf("notifier: transport failed for mail %s: %w", mail.ID, err)
	}

	nd.logger.Info("notifier: mail dispatched",
		zap.String("mail.id", mail.ID),
		zap.Int("mail.recipients", len(mail.To)),
	)
	return nil
}
