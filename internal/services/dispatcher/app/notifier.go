package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	dispatcherdomain "github.com/tryst-app/tryst/internal/services/dispatcher/domain"
	engagements "github.com/tryst-app/tryst/internal/services/engagements/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookNotifier posts rendered notifications to the external notification
// collaborator as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier builds a notifier for the collaborator endpoint. A nil
// client uses a default with a request timeout.
func NewWebhookNotifier(url string, client *http.Client) (*WebhookNotifier, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &WebhookNotifier{url: url, client: client}, nil
}

type webhookPayload struct {
	RecipientID string          `json:"recipient_id"`
	Kind        string          `json:"kind"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// SendNotification delivers one notification. A 4xx response other than 429
// is permanent; everything else is retryable.
func (n *WebhookNotifier) SendNotification(ctx context.Context, recipientID string, kind engagements.NotificationKind, title string, body string, payloadJSON string) error {
	message := webhookPayload{
		RecipientID: recipientID,
		Kind:        string(kind),
		Title:       title,
		Body:        body,
	}
	if strings.TrimSpace(payloadJSON) != "" {
		message.Payload = json.RawMessage(payloadJSON)
	}
	encoded, err := json.Marshal(message)
	if err != nil {
		return dispatcherdomain.Permanent(fmt.Errorf("encode webhook payload: %w", err))
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(encoded))
	if err != nil {
		return dispatcherdomain.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := n.client.Do(request)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return nil
	case response.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook rate limited: %s", response.Status)
	case response.StatusCode >= 400 && response.StatusCode < 500:
		return dispatcherdomain.Permanent(fmt.Errorf("webhook rejected notification: %s", response.Status))
	default:
		return fmt.Errorf("webhook returned %s", response.Status)
	}
}

// LogNotifier writes notifications to the process log. It stands in for the
// collaborator when no webhook is configured, keeping local runs observable.
type LogNotifier struct{}

// SendNotification logs one notification.
func (LogNotifier) SendNotification(_ context.Context, recipientID string, kind engagements.NotificationKind, title string, body string, _ string) error {
	log.Printf("notify %s [%s]: %s: %s", recipientID, kind, title, body)
	return nil
}

var _ dispatcherdomain.Notifier = (*WebhookNotifier)(nil)
var _ dispatcherdomain.Notifier = LogNotifier{}
