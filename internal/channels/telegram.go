package channels

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/config"
)

// TelegramChannel sends messages through the Bot API. The bot is created on
// first use because construction calls getMe.
type TelegramChannel struct {
	token    string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel creates the channel. Without a token it is
// unconfigured.
func NewTelegramChannel(cfg config.TelegramConfig) *TelegramChannel {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramChannel{
		token:    strings.TrimSpace(cfg.BotToken),
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *TelegramChannel) Name() string     { return "telegram" }
func (t *TelegramChannel) Configured() bool { return t.token != "" }
func (t *TelegramChannel) Close() error     { return nil }

func (t *TelegramChannel) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// Send delivers msg to a chat id, as a reply when ThreadID holds a message
// id.
func (t *TelegramChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if !t.Configured() {
		return nil
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", msg.ChatID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.botAPI()
	if err != nil {
		return err
	}
	out := tgbotapi.NewMessage(chatID, msg.Content)
	if id, err := strconv.Atoi(msg.ThreadID); err == nil && id > 0 {
		out.ReplyToMessageID = id
	}
	if _, err := bot.Send(out); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
