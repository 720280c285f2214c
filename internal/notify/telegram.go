package notify

import (
	"context"
	"fmt"

	"mailbridge/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Messenger delivers a rendered notification to a routing target. The
// implementation owns connection and session lifecycle.
type Messenger interface {
	Send(ctx context.Context, target domain.Target, text string) error
}

// Telegram sends notifications through the Bot API. The self target maps to
// the configured owner chat.
type Telegram struct {
	bot         *tgbotapi.BotAPI
	ownerChatID int64
	log         *logrus.Entry
}

var _ Messenger = (*Telegram)(nil)

func NewTelegram(token string, ownerChatID int64, log *logrus.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return &Telegram{
		bot:         bot,
		ownerChatID: ownerChatID,
		log:         log.WithField("component", "telegram"),
	}, nil
}

// Bot exposes the underlying client for the command worker.
func (t *Telegram) Bot() *tgbotapi.BotAPI {
	return t.bot
}

func (t *Telegram) OwnerChatID() int64 {
	return t.ownerChatID
}

func (t *Telegram) Send(ctx context.Context, target domain.Target, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID := target.ChatID
	if target.Kind == domain.TargetSelf {
		chatID = t.ownerChatID
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %s: %w", target, err)
	}
	t.log.WithField("target", target.String()).Debug("notification sent")
	return nil
}
