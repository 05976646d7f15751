package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkTransport delivers through Postmark's transactional API.
type PostmarkTransport struct {
	client *postmark.Client
	from   string
}

// NewPostmarkTransport requires both tokens and a sender address so that a
// misconfigured deployment fails at startup rather than on the first send.
func NewPostmarkTransport(serverToken, accountToken, from string) (*PostmarkTransport, error) {
	if serverToken == "" {
		return nil, errors.New("POSTMARK_SERVER_TOKEN is required")
	}
	if accountToken == "" {
		return nil, errors.New("POSTMARK_ACCOUNT_TOKEN is required")
	}
	if from == "" {
		return nil, errors.New("MAIL_FROM is required")
	}
	return &PostmarkTransport{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
	}, nil
}

// WithBaseURL points the client at another API host (tests, proxies).
func (t *PostmarkTransport) WithBaseURL(url string) *PostmarkTransport {
	t.client.BaseURL = url
	return t
}

func (t *PostmarkTransport) SendMail(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	resp, err := t.client.SendEmail(ctx, postmark.Email{
		From:     t.from,
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.TextBody,
		HTMLBody: msg.HTMLBody,
		Tag:      "notice",
	})
	if err != nil {
		return fmt.Errorf("postmark send to %s: %w", msg.To, err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}
