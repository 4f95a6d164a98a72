package gateway

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway pushes plan notices to one operator chat. It never
// receives commands; approval input stays on the local console so a
// hijacked chat cannot run a plan.
type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	ChatID int64
}

func NewTelegramGateway(token string, chatID int64) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram gateway requires an operator chat id")
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{Bot: bot, ChatID: chatID}, nil
}

func (tg *TelegramGateway) Send(text string) error {
	msg := tgbotapi.NewMessage(tg.ChatID, text)
	msg.ParseMode = "Markdown"
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
