package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"
)

var templates = map[string]string{
	"reservation_requested": "Новый запрос на тренировку %s",
	"reservation_confirmed": "Тренировка подтверждена: %s",
	"reservation_refused":   "Тренировка отклонена: %s",
	"reservation_cancelled": "Тренировка отменена: %s",
	"reservation_reminder":  "Напоминание: у вас тренировка %s",
}

// Telegram delivers state-transition notifications through a bot chat. The
// recipient address is the chat id.
type Telegram struct {
	log *logrus.Entry
	bot *tele.Bot
}

func NewTelegram(log *logrus.Logger, token string) (*Telegram, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("new bot faild: %w", err)
	}
	return &Telegram{
		log: log.WithField("component", "notifier"),
		bot: bot,
	}, nil
}

func (n *Telegram) Notify(_ context.Context, recipient, template string, data map[string]string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", recipient, err)
	}
	text, ok := templates[template]
	if !ok {
		return fmt.Errorf("unknown template %q", template)
	}
	if _, err = n.bot.Send(tele.ChatID(chatID), fmt.Sprintf(text, data["slot"])); err != nil {
		return fmt.Errorf("tg send message faild: %w", err)
	}
	return nil
}
