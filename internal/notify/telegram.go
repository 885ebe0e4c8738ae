package notify

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender posts alerts to one chat through the Bot API. The bot is
// created on first send so a bad token does not block startup.
type TelegramSender struct {
	token    string
	chatID   int64
	endpoint string

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramSender creates a TelegramSender.
func NewTelegramSender(token string, chatID int64) *TelegramSender {
	return &TelegramSender{token: token, chatID: chatID, endpoint: tgbotapi.APIEndpoint}
}

// WithEndpoint overrides the Bot API endpoint format, e.g. for a local
// Bot API server.
func (t *TelegramSender) WithEndpoint(endpoint string) *TelegramSender {
	t.endpoint = endpoint
	return t
}

func (t *TelegramSender) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// Send posts a Markdown message with the title in bold. The Bot API client
// has no context support; ctx is checked before the request.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.client()
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("*%s*\n%s", title, message))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }
