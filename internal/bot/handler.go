package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	text := update.Message.Text
	l := zerolog.Ctx(ctx)

	l.Debug().
		Int64("user_id", userID).
		Str("username", update.Message.From.UserName).
		Str("text", text).
		Msg("Handling message")

	if b.isAdmin(userID) && b.handleAdminCommand(ctx, update) {
		return
	}

	state := b.getUserState(ctx, userID)

	switch {
	case text == "/start" || strings.EqualFold(text, "сброс") || strings.EqualFold(text, "reset"):
		b.clearUserState(ctx, userID)
		b.handleStart(ctx, update)

	case strings.HasPrefix(text, "/lang"):
		b.handleLanguage(ctx, update)

	case text == "📝 Записаться на урок":
		b.handleBeginBooking(ctx, update)

	case text == "📋 Мои уроки":
		b.showUserBookings(ctx, update)

	case text == "❌ Отмена" || text == "⬅️ Назад в меню":
		b.clearUserState(ctx, userID)
		b.handleMainMenu(ctx, update)

	case state != nil && state.CurrentStep == StateWaitingDate:
		b.handleDateInput(ctx, update, text)

	case state != nil && state.CurrentStep == StateWaitingTime:
		b.handleTimeInput(ctx, update, text)

	case state != nil && state.CurrentStep == StateWaitingPurpose:
		b.handlePurposeInput(ctx, update, text)

	case state != nil && state.CurrentStep == StateConfirmation && text == "✅ Подтвердить запись":
		b.finalizeBooking(ctx, update)

	default:
		b.handleMainMenu(ctx, update)
	}
}
