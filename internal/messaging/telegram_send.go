package messaging

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// TelegramAPI is the slice of *bot.Bot the sender needs.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramSender sends chat messages through the Telegram Bot API. User ids
// are Telegram chat ids.
type TelegramSender struct {
	api    TelegramAPI
	logger *logging.Logger
}

func NewTelegramSender(api TelegramAPI, logger *logging.Logger) *TelegramSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelegramSender{api: api, logger: logger}
}

// NewTelegramSenderFromToken builds a send-only bot client.
func NewTelegramSenderFromToken(token string, logger *logging.Logger) (*TelegramSender, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("messaging: telegram client: %w", err)
	}
	return NewTelegramSender(b, logger), nil
}

func (s *TelegramSender) Send(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("messaging: telegram chat id %q: %w", userID, err)
	}
	if _, err := s.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("messaging: telegram send: %w", err)
	}
	return nil
}
