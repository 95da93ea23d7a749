package alerting

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sink delivers a rendered message to one recipient chat. All delivery
// failures are equivalent for the caller: the dispatch failed and the
// subscriber must not be marked notified.
type Sink interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

// TelegramSink pushes messages through the Telegram Bot API.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	logger zerolog.Logger
}

// NewTelegramSink wraps an authorized bot client.
func NewTelegramSink(bot *tgbotapi.BotAPI, logger zerolog.Logger) *TelegramSink {
	return &TelegramSink{
		bot:    bot,
		logger: logger.With().Str("component", "telegram_sink").Logger(),
	}
}

// Deliver sends one Markdown message to the chat.
func (s *TelegramSink) Deliver(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	start := time.Now()
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	s.logger.Debug().Int64("chat_id", chatID).Dur("took", time.Since(start)).Msg("message delivered")
	return nil
}

var _ Sink = (*TelegramSink)(nil)
