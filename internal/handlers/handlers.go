package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/bathanov/lingogate/internal/contextkeys"
	"github.com/bathanov/lingogate/internal/ledger"
	"github.com/bathanov/lingogate/internal/messages"
	"github.com/bathanov/lingogate/internal/metrics"
	"github.com/bathanov/lingogate/internal/plans"
	"github.com/bathanov/lingogate/internal/translate"
	"github.com/bathanov/lingogate/store"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type commandFunc func(ctx context.Context, b *bot.Bot, update *models.Update, args []string)

// PrefStore keeps per-user target language choices.
type PrefStore interface {
	GetLanguages(userID int64) ([]string, error)
	SetLanguages(userID int64, langs []string) error
	ClearLanguages(userID int64) error
}

type Handlers struct {
	engine        *ledger.Engine
	translator    *translate.Client
	prefs         PrefStore
	ownerPassword string
	commands      map[string]commandFunc
	ownerCommands map[string]commandFunc
}

func NewHandlers(engine *ledger.Engine, translator *translate.Client, prefs PrefStore, ownerPassword string) *Handlers {
	h := &Handlers{
		engine:        engine,
		translator:    translator,
		prefs:         prefs,
		ownerPassword: ownerPassword,
	}

	h.commands = map[string]commandFunc{
		"/start":     h.handleStart,
		"/help":      h.handleHelp,
		"/register":  h.handleRegister,
		"/stop":      h.handleStop,
		"/extend":    h.handleExtend,
		"/code":      h.handleCode,
		"/languages": h.handleLanguages,
	}

	h.ownerCommands = map[string]commandFunc{
		".auth":     h.handleOwnerAuth,
		".addcode":  h.handleOwnerAddCode,
		".codes":    h.handleOwnerListCodes,
		".delete":   h.handleOwnerDelete,
		".users":    h.handleOwnerListUsers,
		".chats":    h.handleOwnerChats,
		".commands": h.handleOwnerCommands,
	}

	return h
}

func (h *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	messageType, _ := contextkeys.GetMessageType(ctx)
	switch messageType {
	case contextkeys.MessageTypeCommand:
		h.HandleCommand(ctx, b, update)
	case contextkeys.MessageTypeOwnerCommand:
		h.HandleOwnerCommand(ctx, b, update)
	case contextkeys.MessageTypeText:
		h.HandleText(ctx, b, update)
	default:
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, b *bot.Bot, update *models.Update) {
	fields := strings.Fields(strings.TrimSpace(update.Message.Text))
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.Contains(cmd, "@") {
		cmd = strings.SplitN(cmd, "@", 2)[0]
	}

	handler, ok := h.commands[cmd]
	if !ok {
		h.reply(ctx, b, update.Message.Chat.ID, messages.ErrorUnknownCommand())
		return
	}
	handler(ctx, b, update, fields[1:])
}

func (h *Handlers) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
	if err != nil {
		log.Printf("Error sending message to chat %d: %v", chatID, err)
	}
}

func (h *Handlers) handleStart(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	h.reply(ctx, b, update.Message.Chat.ID, messages.StartWelcome())
}

func (h *Handlers) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	h.reply(ctx, b, update.Message.Chat.ID, messages.Help())
}

func (h *Handlers) handleRegister(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	from := update.Message.From
	ent, err := h.engine.Register(ctx, from.ID, from.Username)
	if errors.Is(err, ledger.ErrAlreadyRegistered) {
		h.reply(ctx, b, update.Message.Chat.ID, messages.AlreadyRegistered())
		return
	}
	if err != nil {
		log.Printf("Register user %d: %v", from.ID, err)
		h.reply(ctx, b, update.Message.Chat.ID, messages.ErrorDefault())
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, messages.Registered(ent.ExpiresAt))
}

func (h *Handlers) handleStop(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	if err := h.engine.Deactivate(ctx, update.Message.From.ID); err != nil {
		log.Printf("Deactivate user %d: %v", update.Message.From.ID, err)
		h.reply(ctx, b, update.Message.Chat.ID, messages.ErrorDefault())
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, messages.Stopped())
}

func (h *Handlers) handleCode(ctx context.Context, b *bot.Bot, update *models.Update, args []string) {
	chatID := update.Message.Chat.ID
	if len(args) == 0 {
		h.reply(ctx, b, chatID, messages.CodeUsage())
		return
	}

	// The chat is the usage scope: in groups the whole chat shares the limit,
	// in private chats chat id and user id coincide.
	res, err := h.engine.RedeemCode(ctx, chatID, update.Message.From.ID, args[0])
	switch {
	case errors.Is(err, store.ErrNoSuchCode):
		h.reply(ctx, b, chatID, messages.CodeInvalid())
	case errors.Is(err, store.ErrLimitReached):
		h.reply(ctx, b, chatID, messages.CodeLimitReached())
	case err != nil:
		log.Printf("Redeem code for user %d: %v", update.Message.From.ID, err)
		h.reply(ctx, b, chatID, messages.ErrorDefault())
	default:
		metrics.CodesRedeemed.Inc()
		h.reply(ctx, b, chatID, messages.CodeApplied(res.Days, res.NewExpiry))
	}
}

func (h *Handlers) handleExtend(ctx context.Context, b *bot.Bot, update *models.Update, _ []string) {
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	rows := make([][]models.InlineKeyboardButton, 0, 2)
	for _, plan := range plans.All() {
		order, err := h.engine.CreatePendingOrder(ctx, userID, plan.Days, plan.AmountUSDT)
		if err != nil {
			log.Printf("Create order for user %d (%d days): %v", userID, plan.Days, err)
			h.reply(ctx, b, chatID, messages.ExtendUnavailable())
			return
		}
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: plan.Label, URL: order.HostedURL},
		})
	}

	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        messages.ExtendTitle(),
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		log.Printf("Error sending extend options to chat %d: %v", chatID, err)
	}
}

func (h *Handlers) handleLanguages(ctx context.Context, b *bot.Bot, update *models.Update, args []string) {
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	if h.prefs == nil {
		h.reply(ctx, b, chatID, messages.LanguagesUsage(translate.Languages))
		return
	}

	if len(args) == 0 {
		current, _ := h.prefs.GetLanguages(userID)
		if len(current) == 0 {
			current = translate.Languages
		}
		h.reply(ctx, b, chatID, messages.LanguagesUsage(current))
		return
	}

	arg := strings.ToLower(strings.TrimSpace(args[0]))
	if arg == "auto" {
		if err := h.prefs.ClearLanguages(userID); err != nil {
			log.Printf("Clear languages for user %d: %v", userID, err)
		}
		h.reply(ctx, b, chatID, messages.LanguagesSet(translate.Languages))
		return
	}

	var langs []string
	for _, part := range strings.Split(arg, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !translate.IsSupported(part) {
			h.reply(ctx, b, chatID, messages.LanguagesInvalid())
			return
		}
		langs = append(langs, part)
	}
	if len(langs) == 0 {
		h.reply(ctx, b, chatID, messages.LanguagesInvalid())
		return
	}

	if err := h.prefs.SetLanguages(userID, langs); err != nil {
		log.Printf("Set languages for user %d: %v", userID, err)
		h.reply(ctx, b, chatID, messages.ErrorDefault())
		return
	}
	h.reply(ctx, b, chatID, messages.LanguagesSet(langs))
}
