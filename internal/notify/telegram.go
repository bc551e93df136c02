package notify

import (
	"context"

	"github.com/bathanov/lingogate/internal/messages"
	"github.com/go-telegram/bot"
)

// TelegramNotifier delivers engine notifications over the bot's private chat
// with the user. Private chat ids equal user ids on Telegram.
type TelegramNotifier struct {
	bot *bot.Bot
}

func NewTelegramNotifier(b *bot.Bot) *TelegramNotifier {
	return &TelegramNotifier{bot: b}
}

func (n *TelegramNotifier) Notify(ctx context.Context, userID int64, text string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
	return err
}
