package alert

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TelegramTransport sends notifications via the Telegram Bot HTTP API,
// the chat transport named in the original deployment this service
// replaces.
type TelegramTransport struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramTransport builds a transport for the given bot token and
// chat identifier, both of which are read from configured environment
// variables by the caller.
func NewTelegramTransport(botToken, chatID string) *TelegramTransport {
	return &TelegramTransport{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts text to the configured chat using HTML parse mode with
// link previews disabled, matching the original alerting behavior.
func (t *TelegramTransport) Send(text string) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	resp, err := t.client.PostForm(endpoint, form)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// TestConnection verifies the bot token by calling getMe, matching the
// original's startup connectivity check.
func (t *TelegramTransport) TestConnection() error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/getMe", t.botToken)
	resp, err := t.client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram getMe: unexpected status %d", resp.StatusCode)
	}
	return nil
}
