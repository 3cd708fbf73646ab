package adapter

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/harunnryd/koe/internal/concurrency"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramAdapter struct {
	token         string
	updateTimeout int
	eventHandler  EventHandler

	mu   sync.RWMutex
	bot  *tgbotapi.BotAPI
	done chan struct{}
}

func NewTelegramAdapter(token string, eventHandler EventHandler, updateTimeout int) *TelegramAdapter {
	if updateTimeout <= 0 {
		updateTimeout = config.DefaultTelegramUpdateTimeout
	}
	return &TelegramAdapter{
		token:         token,
		updateTimeout: updateTimeout,
		eventHandler:  eventHandler,
	}
}

func (t *TelegramAdapter) Name() string {
	return "telegram"
}

func (t *TelegramAdapter) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return errors.Wrap(err, "failed to init telegram bot")
	}

	slog.Info("Telegram adapter started", "user", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.updateTimeout
	updates := bot.GetUpdatesChan(u)

	done := make(chan struct{})
	t.mu.Lock()
	t.bot = bot
	t.done = done
	t.mu.Unlock()

	concurrency.SafeGo(func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}, nil)

	return nil
}

func (t *TelegramAdapter) Stop(ctx context.Context) error {
	t.mu.RLock()
	bot := t.bot
	t.mu.RUnlock()
	if bot != nil {
		bot.StopReceivingUpdates()
	}
	return nil
}

func (t *TelegramAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	metadata := map[string]string{
		"chat_id": strconv.FormatInt(msg.Chat.ID, 10),
		"msg_id":  strconv.Itoa(msg.MessageID),
	}
	if msg.From != nil {
		metadata["user_id"] = strconv.FormatInt(msg.From.ID, 10)
		metadata["user_name"] = msg.From.UserName
	}

	if t.eventHandler == nil {
		return
	}
	in := Inbound{
		ID:       "update:" + strconv.Itoa(update.UpdateID),
		Source:   "telegram",
		Content:  msg.Text,
		Metadata: metadata,
	}
	if err := t.eventHandler(ctx, in); err != nil {
		slog.Error("Failed to handle Telegram message", "error", err)
	}
}

// Send replies in the chat recorded on the session.
func (t *TelegramAdapter) Send(ctx context.Context, out Outbound) error {
	chatID, err := strconv.ParseInt(out.Metadata["chat_id"], 10, 64)
	if err != nil {
		return errors.InvalidInput("session has no telegram chat id: " + out.SessionID)
	}

	t.mu.RLock()
	bot := t.bot
	t.mu.RUnlock()
	if bot == nil {
		return errors.Transient("Telegram bot not initialized")
	}

	if _, err := bot.Send(tgbotapi.NewMessage(chatID, out.Content)); err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}

	slog.Debug("Telegram message sent", "chat_id", chatID)
	return nil
}

func (t *TelegramAdapter) Health(ctx context.Context) error {
	t.mu.RLock()
	bot := t.bot
	t.mu.RUnlock()
	if bot == nil {
		return errors.Transient("Telegram bot not initialized")
	}
	if _, err := bot.GetMe(); err != nil {
		return errors.Transient("Telegram connection failed: " + err.Error())
	}
	return nil
}
