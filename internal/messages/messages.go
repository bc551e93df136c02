package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/bathanov/lingogate/types"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func date(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func ErrorDefault() string {
	return "🚫 <b>Something went wrong</b>\nPlease try again."
}

func ErrorUnknownCommand() string {
	return "❓ <b>Unknown command</b>\nSend /help for the list."
}

func StartWelcome() string {
	return "👋 <b>Hi!</b>\nI translate group messages between Korean, Chinese, Vietnamese and Khmer.\n\n" +
		"📝 /register — start a trial subscription\n" +
		"💳 /extend — extend with crypto\n" +
		"🎟 /code &lt;token&gt; — redeem a code\n" +
		"ℹ️ /help — details"
}

func Help() string {
	return "ℹ️ <b>How it works</b>\n" +
		"Supported languages: ko, zh, vi, km.\n" +
		"I detect the language of your message and translate it to the other three.\n\n" +
		"Commands:\n" +
		"/register — trial subscription\n" +
		"/stop — pause translation (paid time is kept)\n" +
		"/extend — payment options\n" +
		"/code &lt;token&gt; — redeem a code\n" +
		"/languages ko,zh — choose your target languages"
}

func Registered(until time.Time) string {
	return fmt.Sprintf("✅ <b>Registered</b>\nTranslation is on until <b>%s</b>.", date(until))
}

func AlreadyRegistered() string {
	return "⚠️ <b>Already registered</b>\nUse /extend or /code to add time."
}

func Stopped() string {
	return "🛑 <b>Translation paused</b>\nYour remaining time is kept. /register or /code to resume."
}

func CodeUsage() string {
	return "🎟 Usage: /code &lt;token&gt;"
}

func CodeInvalid() string {
	return "🚫 <b>Invalid code</b>"
}

func CodeLimitReached() string {
	return "⚠️ <b>Code already used</b>\nThis code cannot be redeemed again here."
}

func CodeApplied(days int, until time.Time) string {
	return fmt.Sprintf("🎟 <b>Code applied</b>\n+%d days, active until <b>%s</b>.", days, date(until))
}

func ExtendTitle() string {
	return "💳 <b>Choose an option</b>\nPay the invoice and your time is added automatically."
}

func ExtendUnavailable() string {
	return "🚫 <b>Payments are unavailable right now</b>\nPlease try again later."
}

func PaymentSettled(days int, until time.Time) string {
	return fmt.Sprintf("✅ <b>Payment received</b>\n+%d days, active until <b>%s</b>.", days, date(until))
}

func NotEntitled() string {
	return "🔒 <b>Subscription required</b>\n/register for a trial or /extend to pay."
}

func LanguagesUsage(current []string) string {
	return fmt.Sprintf("🌐 Targets: <b>%s</b>\nUsage: /languages ko,zh (from: ko, zh, vi, km) or /languages auto", Escape(strings.Join(current, ", ")))
}

func LanguagesSet(langs []string) string {
	return fmt.Sprintf("🌐 <b>Targets updated:</b> %s", Escape(strings.Join(langs, ", ")))
}

func LanguagesInvalid() string {
	return "🚫 <b>Unsupported language</b>\nPick from: ko, zh, vi, km."
}

func OwnerAuthOK() string {
	return "🔑 <b>Owner access granted</b>"
}

func OwnerAuthFail() string {
	return "🚫 <b>Authentication failed</b>"
}

func OwnerCodeSaved(code string, days int) string {
	return fmt.Sprintf("💾 Code <code>%s</code> saved (%d days)", Escape(code), days)
}

func OwnerCodeExists(code string) string {
	return fmt.Sprintf("⚠️ Code <code>%s</code> already exists", Escape(code))
}

func OwnerDeleted() string {
	return "🗑 Deleted"
}

func OwnerNothing() string {
	return "— nothing —"
}

func OwnerCodeLine(c types.Code) string {
	return fmt.Sprintf("<code>%s</code> / %d days by %s", Escape(c.Code), c.Days, Escape(c.CreatedBy))
}

func OwnerUserLine(e types.Entitlement) string {
	state := "active"
	if !e.IsActive {
		state = "stopped"
	}
	return fmt.Sprintf("%d / %s / %s / %s", e.UserID, Escape(e.Username), date(e.ExpiresAt), state)
}

func OwnerChatLine(m types.ChatMessage) string {
	return fmt.Sprintf("%d: %s @ %s", m.UserID, Escape(m.Message), m.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
}

func OwnerCommands() string {
	return ".auth &lt;password&gt;\n" +
		".addcode &lt;code&gt; &lt;days&gt;\n" +
		".codes\n" +
		".delete user|code &lt;value&gt;\n" +
		".users\n" +
		".chats\n" +
		".commands"
}
