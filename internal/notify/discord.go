package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DiscordSender posts messages to a webhook.
type DiscordSender struct {
	webhookURL string
	http       *http.Client
}

// NewDiscordSender creates a Discord sender.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Sender.
func (s *DiscordSender) Name() string { return "discord" }

// Send implements Sender.
func (s *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload, err := json.Marshal(map[string]any{
		"embeds": []map[string]string{{
			"title":       title,
			"description": message,
		}},
	})
	if err != nil {
		return fmt.Errorf("notify: marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: discord returned %d", resp.StatusCode)
	}
	return nil
}
