package middleware

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/bathanov/lingogate/internal/contextkeys"
)

type Middlewares struct{}

func NewMessageAnalyzer() *Middlewares {
	return &Middlewares{}
}

// AnalyzeMessageMiddleware classifies each update before dispatch: slash
// commands, dot-prefixed owner commands, or plain text to translate.
func (ma *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		text := strings.TrimSpace(update.Message.Text)
		var msgType contextkeys.MessageType
		switch {
		case text == "":
			msgType = contextkeys.MessageTypeUnknown
		case strings.HasPrefix(text, "/"):
			msgType = contextkeys.MessageTypeCommand
		case strings.HasPrefix(text, "."):
			msgType = contextkeys.MessageTypeOwnerCommand
		default:
			msgType = contextkeys.MessageTypeText
		}

		next(contextkeys.WithMessageType(ctx, msgType), b, update)
	}
}
