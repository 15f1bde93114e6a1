package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// telegramClient is a minimal Telegram Bot API client covering the two
// long-poll control plane methods: getUpdates and sendMessage.
type telegramClient struct {
	apiBase string
	http    *http.Client
}

func newTelegramClient(token string, pollTimeout time.Duration) *telegramClient {
	return &telegramClient{
		apiBase: fmt.Sprintf("https://api.telegram.org/bot%s", token),
		http:    &http.Client{Timeout: pollTimeout + 5*time.Second},
	}
}

// Update is one Telegram update relevant to the control plane: a message
// or edited_message event.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message"`
	Edited   *TelegramMessage `json:"edited_message"`
}

// TelegramMessage is the subset of a Telegram message the control plane
// reads.
type TelegramMessage struct {
	Text string `json:"text"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
}

// EffectiveMessage returns the update's message or edited_message, or nil
// if neither is present.
func (u Update) EffectiveMessage() *TelegramMessage {
	if u.Message != nil {
		return u.Message
	}
	return u.Edited
}

// Actor returns the update's user-facing actor label: "@username" or a
// numeric id fallback.
func (m TelegramMessage) Actor() string {
	if m.From.Username != "" {
		return "@" + m.From.Username
	}
	return fmt.Sprintf("%d", m.From.ID)
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

// GetUpdates long-polls Telegram for new updates starting at offset, with
// a server-side wait of pollTimeout.
func (c *telegramClient) GetUpdates(ctx context.Context, offset int, pollTimeoutSeconds int) ([]Update, error) {
	form := url.Values{
		"timeout":         {fmt.Sprintf("%d", pollTimeoutSeconds)},
		"offset":          {fmt.Sprintf("%d", offset)},
		"allowed_updates": {`["message","edited_message"]`},
	}
	var out getUpdatesResponse
	if err := c.call(ctx, "getUpdates", form, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// SendMessage sends a best-effort reply to chatID, truncated to Telegram's
// message length limit.
func (c *telegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	if len(text) > 4000 {
		text = text[:4000]
	}
	form := url.Values{
		"chat_id":                  {fmt.Sprintf("%d", chatID)},
		"text":                     {text},
		"disable_web_page_preview": {"true"},
	}
	var out struct {
		OK bool `json:"ok"`
	}
	return c.call(ctx, "sendMessage", form, &out)
}

func (c *telegramClient) call(ctx context.Context, method string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	return nil
}
