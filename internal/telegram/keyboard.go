package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ykvlv/redeem-bot/internal/bot"
)

// mainMenuKeyboard is attached to the /start greeting.
func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎁 Redeem Request", bot.ActionRedeem),
			tgbotapi.NewInlineKeyboardButtonData("⭐ Buy Premium", bot.ActionBuy),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Service", bot.ActionService),
			tgbotapi.NewInlineKeyboardButtonData("👨‍💻 Dev", bot.ActionDev),
		),
	)
}
