package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTelegramBase = "https://api.telegram.org"

// Sender delivers one plain-text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramSender posts messages through the Telegram Bot API.
type TelegramSender struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramSender constructs a Telegram sender.
func NewTelegramSender(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = defaultTelegramBase
	}

	return &TelegramSender{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram_sender").Logger(),
	}
}

// Send calls sendMessage with link previews disabled.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	s.logger.Debug().Int64("chat_id", chatID).Int("bytes", len(text)).Msg("message sent")
	return nil
}

var _ Sender = (*TelegramSender)(nil)
