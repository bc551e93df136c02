package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bathanov/lingogate/internal/messages"
	"github.com/bathanov/lingogate/internal/translate"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// HandleText runs the gated translation flow: entitlement check first, then
// detect, translate to the remaining target languages and log the message.
func (h *Handlers) HandleText(ctx context.Context, b *bot.Bot, update *models.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	entitled, err := h.engine.IsEntitled(ctx, userID)
	if err != nil {
		log.Printf("Entitlement check for user %d: %v", userID, err)
		return
	}
	if !entitled {
		// Groups stay quiet; a private chat gets a pointer to /register.
		if chatID == userID {
			h.reply(ctx, b, chatID, messages.NotEntitled())
		}
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	src, err := h.translator.Detect(ctx, text)
	if err != nil {
		log.Printf("Detect language for user %d: %v", userID, err)
		h.reply(ctx, b, chatID, messages.ErrorDefault())
		return
	}

	targets := h.targetsFor(userID, src)
	if len(targets) == 0 {
		return
	}

	lines := make([]string, 0, len(targets))
	for _, target := range targets {
		translated, err := h.translator.Translate(ctx, text, target)
		if err != nil {
			log.Printf("Translate to %s for user %d: %v", target, userID, err)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", target, messages.Escape(translated)))
	}
	if len(lines) == 0 {
		h.reply(ctx, b, chatID, messages.ErrorDefault())
		return
	}

	if err := h.engine.LogChat(ctx, userID, text); err != nil {
		log.Printf("Log chat for user %d: %v", userID, err)
	}

	h.reply(ctx, b, chatID, strings.Join(lines, "\n"))
}

func (h *Handlers) targetsFor(userID int64, src string) []string {
	pool := translate.Languages
	if h.prefs != nil {
		if langs, err := h.prefs.GetLanguages(userID); err == nil && len(langs) > 0 {
			pool = langs
		}
	}

	targets := make([]string, 0, len(pool))
	for _, lang := range pool {
		if lang != src {
			targets = append(targets, lang)
		}
	}
	return targets
}
