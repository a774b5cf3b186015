package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramSender posts messages to a chat via the Bot API.
type TelegramSender struct {
	token  string
	chatID string
	http   *http.Client
}

// NewTelegramSender creates a Telegram sender.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Sender.
func (s *TelegramSender) Name() string { return "telegram" }

// Send implements Sender.
func (s *TelegramSender) Send(ctx context.Context, title, message string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": s.chatID,
		"text":    fmt.Sprintf("*%s*\n%s", title, message),
		// Markdown keeps titles bold without HTML escaping concerns.
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("notify: marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: telegram returned %d", resp.StatusCode)
	}
	return nil
}
