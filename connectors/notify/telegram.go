package notify

import (
	"errors"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hannesrauhe/bttimeout/base"
	"github.com/sirupsen/logrus"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends notifications as chat messages to a fixed list of chats
type TelegramNotifier struct {
	config TelegramConfig
	log    logrus.FieldLogger
	newBot func(token string) (telegramSender, error)

	lck sync.Mutex
	bot telegramSender
}

var _ Notifier = &TelegramNotifier{}

// NewTelegramNotifier logs in on the first notification, so a daemon started without network
// still comes up
func NewTelegramNotifier(logger logrus.FieldLogger, config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		config: config,
		log:    logger.WithField("component", "telegram"),
		newBot: func(token string) (telegramSender, error) {
			bot, err := tgbotapi.NewBotAPI(token)
			if err != nil {
				return nil, err
			}
			return bot, nil
		},
	}
}

func (t *TelegramNotifier) sender() (telegramSender, error) {
	t.lck.Lock()
	defer t.lck.Unlock()
	if t.bot == nil {
		bot, err := t.newBot(t.config.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram: cannot log in: %w", err)
		}
		t.bot = bot
	}
	return t.bot, nil
}

func (t *TelegramNotifier) Notify(ctx *base.Context, n Notification) error {
	bot, err := t.sender()
	if err != nil {
		return err
	}
	var errs []error
	for _, chatID := range t.config.ChatIDs {
		msg := tgbotapi.NewMessage(chatID, n.Title+"\n"+n.Body)
		msg.DisableNotification = n.Kind == KindPoweredOff
		if _, err := bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("telegram: sending to chat %d failed: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}
