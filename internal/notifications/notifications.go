// Package notifications delivers operator alerts raised by the worker, e.g.
// when a prune run ends with partial failures.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Notifier interface {
	SendAlert(ctx context.Context, userID string, severity string, message string) error
}

type ConsoleNotifier struct{}

func (n *ConsoleNotifier) SendAlert(_ context.Context, userID, severity, message string) error {
	fmt.Printf("[ALERT][%s] User: %s - %s\n", severity, userID, message)
	return nil
}

// WebhookNotifier POSTs alerts to a Slack-compatible incoming webhook.
type WebhookNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		WebhookURL: url,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (n *WebhookNotifier) SendAlert(ctx context.Context, userID, severity, message string) error {
	body, err := json.Marshal(webhookPayload{
		Text: fmt.Sprintf("[%s] user %s: %s", severity, userID, message),
	})
	if err != nil {
		return fmt.Errorf("notifications: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifications: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notifications: post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifications: webhook returned %d", resp.StatusCode)
	}
	return nil
}
