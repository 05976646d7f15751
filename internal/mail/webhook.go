package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookTransport delivers mail by POSTing the message as JSON to an HTTP
// relay. The URL is injected from config so tests can point to a local mock.
type WebhookTransport struct {
	url        string
	httpClient *http.Client
}

func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendMail posts the message and treats any 2xx status as accepted.
func (t *WebhookTransport) SendMail(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected relay status: %d", resp.StatusCode)
	}
	return nil
}
