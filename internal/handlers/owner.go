package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/bathanov/lingogate/internal/messages"
	"github.com/bathanov/lingogate/store"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Owner commands are dot-prefixed messages. Everything except .auth requires
// a row in the owners table; unauthorized callers get silence, matching the
// bot's behavior of not advertising the owner surface.
func (h *Handlers) HandleOwnerCommand(ctx context.Context, b *bot.Bot, update *models.Update) {
	fields := strings.Fields(strings.TrimSpace(update.Message.Text))
	if len(fields) == 0 {
		return
	}

	handler, ok := h.ownerCommands[strings.ToLower(fields[0])]
	if !ok {
		return
	}

	if fields[0] != ".auth" {
		isOwner, err := h.engine.IsOwner(ctx, update.Message.From.ID)
		if err != nil {
			log.Printf("Owner check for user %d: %v", update.Message.From.ID, err)
			return
		}
		if !isOwner {
			return
		}
	}

	handler(ctx, b, update, fields[1:])
}

func (h *Handlers) handleOwnerAuth(ctx context.Context, b *bot.Bot, update *models.Update, args []string) {
	from := update.Message.From
	if h.ownerPassword == "" || len(args) == 0 {
		h.reply(ctx, b, update.Message.Chat.ID, messages.OwnerAuthFail())
		return
	}
	if subtle.ConstantTimeCompare([]byte(args[0]), []byte(h.ownerPassword)) != 1 {
		h.reply(ctx, b, update.Message.Chat.ID, messages.OwnerAuthFail())
		return
	}

	if err := h.engine.AddOwner(ctx, from.ID, from.Username); err != nil {
		log.Printf("Add owner %d: %v", from.ID, err)
		h.reply(ctx, b, update.Message.Chat.ID, messages.ErrorDefault())
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, messages.OwnerAuthOK())
}

func (h *Handlers) handleOwnerAddCode(ctx context.Context, b *bot.Bot, update *models.Update, args []string) {
	chatID := update.Message.Chat.ID
	if len(args) < 2 {
		h.reply(ctx, b, chatID, messages.OwnerCommands())
		return
	}
	code := args[0]
	days, err := strconv.Atoi(args[1])
	if err != nil || days <= 0 {
		h.reply(ctx, b, chatID, messages.OwnerCommands())
		return
	}

	err = h.engine.CreateCode(ctx, code, days, update.Message.From.Username)
	switch {
	case errors.Is(err, store.ErrCodeExists):
		h.reply(ctx, b, chatID, messages.OwnerCodeExists(code))
	case err != nil:
		log.Printf("Create code %q: %v", code, err)
		h.reply(ctx, b, chatID, messages.ErrorDefault())
	default:
		h.reply(ctx, b, chatID, messages.OwnerCodeSaved(code, days))
	}
}

func (h *Handlers) handleOwnerListCodes(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	codes, err := h.engine.ListCodes(ctx)
	if err != nil {
		log.Printf("List codes: %v", err)
		h.reply(ctx, b, update.Message.Chat.ID, messages.ErrorDefault())
		return
	}

	lines := make([]string, 0, len(codes))
	for _, c := range codes {
		lines = append(lines, messages.OwnerCodeLine(c))
	}
	if len(lines) == 0 {
		h.reply(ctx, b, update.Message.Chat.ID, messages.OwnerNothing())
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, strings.Join(lines, "\n"))
}

func (h *Handlers) handleOwnerDelete(ctx context.Context, b *bot.Bot, update *models.Update, args []string) {
	chatID := update.Message.Chat.ID
	if len(args) < 2 {
		h.reply(ctx, b, chatID, messages.OwnerCommands())
		return
	}

	switch strings.ToLower(args[0]) {
	case "user":
		userID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			h.reply(ctx, b, chatID, messages.OwnerCommands())
			return
		}
		if err := h.engine.PurgeIdentity(ctx, userID); err != nil {
			log.Printf("Purge user %d: %v", userID, err)
			h.reply(ctx, b, chatID, messages.ErrorDefault())
			return
		}
	case "code":
		if err := h.engine.DeleteCode(ctx, args[1]); err != nil {
			log.Printf("Delete code %q: %v", args[1], err)
			h.reply(ctx, b, chatID, messages.ErrorDefault())
			return
		}
	default:
		h.reply(ctx, b, chatID, messages.OwnerCommands())
		return
	}
	h.reply(ctx, b, chatID, messages.OwnerDeleted())
}

func (h *Handlers) handleOwnerListUsers(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	ents, err := h.engine.ListEntitlements(ctx)
	if err != nil {
		log.Printf("List entitlements: %v", err)
		h.reply(ctx, b, update.Message.Chat.ID, messages.ErrorDefault())
		return
	}

	lines := make([]string, 0, len(ents))
	for _, e := range ents {
		lines = append(lines, messages.OwnerUserLine(e))
	}
	if len(lines) == 0 {
		h.reply(ctx, b, update.Message.Chat.ID, messages.OwnerNothing())
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, strings.Join(lines, "\n"))
}

func (h *Handlers) handleOwnerChats(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	chats, err := h.engine.RecentChats(ctx, 20)
	if err != nil {
		log.Printf("Recent chats: %v", err)
		h.reply(ctx, b, update.Message.Chat.ID, messages.ErrorDefault())
		return
	}

	lines := make([]string, 0, len(chats))
	for _, m := range chats {
		lines = append(lines, messages.OwnerChatLine(m))
	}
	if len(lines) == 0 {
		h.reply(ctx, b, update.Message.Chat.ID, messages.OwnerNothing())
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, strings.Join(lines, "\n"))
}

func (h *Handlers) handleOwnerCommands(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	h.reply(ctx, b, update.Message.Chat.ID, messages.OwnerCommands())
}
