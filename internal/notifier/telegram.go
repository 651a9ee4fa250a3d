package notifier

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "aircheck/pkg/logx"
)

// TelegramSender pushes messages to a single chat. The bot does no polling;
// it is send-only.
type TelegramSender struct {
	bot  *tele.Bot
	chat tele.ChatID
	log  logx.Logger
}

func NewTelegramSender(token string, chatID int64, log logx.Logger) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TelegramSender{bot: b, chat: tele.ChatID(chatID), log: log}, nil
}

func (t *TelegramSender) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(t.chat, text)
	return err
}
