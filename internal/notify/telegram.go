package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nutrition-coach/internal/models"
)

// ChatSender is the part of *tgbotapi.BotAPI used to deliver messages.
type ChatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramSender struct {
	bot ChatSender
}

func NewTelegramSender(bot ChatSender) *TelegramSender {
	return &TelegramSender{bot: bot}
}

func (s *TelegramSender) Channel() models.Channel { return models.ChannelTelegram }

func (s *TelegramSender) Send(_ context.Context, target string, msg Message) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid chat id %q", ErrGone, target)
	}

	text := msg.Body
	if msg.Title != "" {
		text = fmt.Sprintf("🔔 %s\n\n%s", msg.Title, msg.Body)
	}

	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		var tgErr *tgbotapi.Error
		// 403: the user blocked the bot or deleted the chat.
		if errors.As(err, &tgErr) && tgErr.Code == http.StatusForbidden {
			return fmt.Errorf("%w: %s", ErrGone, tgErr.Message)
		}
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
