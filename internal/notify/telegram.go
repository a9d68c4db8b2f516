package notify

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polypaper/internal/trader"
)

// Telegram sends trade alerts to a single chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram returns nil when the token or chat ID is missing.
func NewTelegram(token string, chatID int64) *Telegram {
	if token == "" || chatID == 0 {
		return nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warn().Err(err).Msg("telegram init failed, channel disabled")
		return nil
	}
	log.Info().Str("bot", api.Self.UserName).Msg("📱 Telegram notifications enabled")
	return &Telegram{api: api, chatID: chatID}
}

func (t *Telegram) NotifyTrade(ev trader.Event) {
	t.NotifyText(formatTrade(ev))
}

func (t *Telegram) NotifyText(msg string) {
	if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, msg)); err != nil {
		warnDelivery("telegram", err)
	}
}
