package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gridbot/internal/core"
)

// LogChannel writes notifications to the bot log. Always installed.
type LogChannel struct {
	logger core.ILogger
}

// NewLogChannel creates a log-backed channel.
func NewLogChannel(logger core.ILogger) *LogChannel {
	return &LogChannel{logger: logger.WithField("component", "notifications")}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, payload Payload) error {
	fields := []interface{}{"type", payload.Type}
	for k, v := range payload.Fields {
		fields = append(fields, k, v)
	}
	c.logger.Info(payload.Message, fields...)
	return nil
}

// TelegramChannel posts notifications to a Telegram chat.
type TelegramChannel struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramChannel creates a Telegram channel.
func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, payload Payload) error {
	if t.botToken == "" || t.chatID == "" {
		return nil
	}

	text := fmt.Sprintf("*[%s]* %s", payload.Type, payload.Message)
	for k, v := range payload.Fields {
		text += fmt.Sprintf("\n- *%s*: %s", k, v)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	body := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	return t.post(ctx, url, body)
}

func (t *TelegramChannel) post(ctx context.Context, url string, body map[string]interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram api failed with status: %d", resp.StatusCode)
	}
	return nil
}

// SlackChannel posts notifications to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackChannel creates a Slack webhook channel.
func NewSlackChannel(webhookURL, channel string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, payload Payload) error {
	if s.webhookURL == "" {
		return nil
	}

	text := fmt.Sprintf("*[%s]* %s", payload.Type, payload.Message)
	for k, v := range payload.Fields {
		text += fmt.Sprintf("\n• *%s*: %s", k, v)
	}

	body := map[string]interface{}{"text": text}
	if s.channel != "" {
		body["channel"] = s.channel
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook failed with status: %d", resp.StatusCode)
	}
	return nil
}
