package mail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/config"
)

// Message is one rendered notice email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text"`
	HTMLBody string `json:"html,omitempty"`
}

func (m Message) validate() error {
	if m.To == "" {
		return errors.New("message has no recipient address")
	}
	return nil
}

// Transport hands a message to an external delivery system.
// A returned error is scoped to that one message; callers log it and move on.
// Mocking this interface in tests gives full control over delivery outcomes.
type Transport interface {
	SendMail(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message) error

func (f TransportFunc) SendMail(ctx context.Context, msg Message) error { return f(ctx, msg) }

// New builds the transport selected by MAIL_TRANSPORT.
func New(cfg *config.Config, logger *zap.Logger) (Transport, error) {
	switch cfg.MailTransport {
	case config.MailSMTP:
		return NewSMTPTransport(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}), nil
	case config.MailPostmark:
		return NewPostmarkTransport(cfg.PostmarkServer, cfg.PostmarkAccount, cfg.MailFrom)
	case config.MailWebhook:
		if cfg.WebhookURL == "" {
			return nil, errors.New("MAIL_WEBHOOK_URL is required for the webhook transport")
		}
		return NewWebhookTransport(cfg.WebhookURL, cfg.WebhookTimeout), nil
	case config.MailLog:
		return NewLogTransport(logger), nil
	}
	return nil, fmt.Errorf("unsupported mail transport %q", cfg.MailTransport)
}

// LogTransport writes messages to the log instead of delivering them.
// Useful in development and as the default when no provider is configured.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger.Named("mail")}
}

func (t *LogTransport) SendMail(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	t.logger.Info("mail",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("text_bytes", len(msg.TextBody)),
		zap.Int("html_bytes", len(msg.HTMLBody)),
	)
	return nil
}

// compile-time checks that every transport implements Transport
var (
	_ Transport = (*LogTransport)(nil)
	_ Transport = (*SMTPTransport)(nil)
	_ Transport = (*PostmarkTransport)(nil)
	_ Transport = (*WebhookTransport)(nil)
	_ Transport = TransportFunc(nil)
)
