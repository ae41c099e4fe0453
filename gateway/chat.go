package gateway

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// ChatGateway posts follow-up messages to a configured chat, used by
// DigDeeperHandler to prompt discussion and by SyncIntegrationHandler to
// report sync outcomes.
type ChatGateway interface {
	// PostMessage sends text to chatID and returns an opaque reference to
	// the posted message (provider message id), suitable for storing in
	// content metadata as a thread pointer.
	PostMessage(ctx context.Context, chatID int64, text string) (messageRef string, err error)
}

type telegramGateway struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramGateway builds a ChatGateway backed by the Telegram Bot API.
func NewTelegramGateway(token string) (ChatGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize telegram bot")
	}
	return &telegramGateway{bot: bot}, nil
}

func (g *telegramGateway) PostMessage(ctx context.Context, chatID int64, text string) (string, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := g.bot.Send(msg)
	if err != nil {
		return "", errors.Wrapf(err, "failed to send telegram message to chat %d", chatID)
	}
	return messageRef(sent.Chat.ID, sent.MessageID), nil
}

func messageRef(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}
