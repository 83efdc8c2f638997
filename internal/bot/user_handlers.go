package bot

import (
	"context"
	"fmt"
	"strings"

	"lessonbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleStart saves the user on first contact and shows the main menu.
func (b *Bot) handleStart(ctx context.Context, update tgbotapi.Update) {
	from := update.Message.From

	user := &models.User{
		ID:        from.ID,
		FirstName: from.FirstName,
		Username:  from.UserName,
		Language:  from.LanguageCode,
	}
	if err := b.users.SaveUser(ctx, user); err != nil {
		b.logger.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to save user")
	}

	b.handleMainMenu(ctx, update)
}

func (b *Bot) handleMainMenu(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	msg := tgbotapi.NewMessage(chatID, "Добро пожаловать в школу! Выберите действие:")

	var rows [][]tgbotapi.KeyboardButton
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("📝 Записаться на урок"),
		tgbotapi.NewKeyboardButton("📋 Мои уроки"),
	))
	if b.isAdmin(userID) {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📅 Все уроки"),
			tgbotapi.NewKeyboardButton("🚫 Закрытые даты"),
		))
	}
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(rows...)

	b.setUserState(ctx, userID, StateMainMenu, nil)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send main menu")
	}
}

// handleLanguage switches the user's language: /lang ru or /lang en.
func (b *Bot) handleLanguage(ctx context.Context, update tgbotapi.Update) {
	parts := strings.Fields(update.Message.Text)
	if len(parts) != 2 || (parts[1] != "ru" && parts[1] != "en") {
		b.sendMessage(update.Message.Chat.ID, "Использование: /lang ru или /lang en")
		return
	}

	if err := b.users.SetLanguage(ctx, update.Message.From.ID, parts[1]); err != nil {
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}
	b.sendMessage(update.Message.Chat.ID, "✅ Язык обновлён")
}

func (b *Bot) handleBeginBooking(ctx context.Context, update tgbotapi.Update) {
	b.setUserState(ctx, update.Message.From.ID, StateWaitingDate, nil)

	msg := tgbotapi.NewMessage(update.Message.Chat.ID,
		"Введите дату урока в формате ДД.ММ.ГГГГ (например, 25.12.2026):")
	msg.ReplyMarkup = cancelKeyboard()
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send date prompt")
	}
}

func (b *Bot) handleDateInput(ctx context.Context, update tgbotapi.Update, text string) {
	date, err := parseUserDate(text)
	if err != nil {
		b.sendMessage(update.Message.Chat.ID,
			"Неверный формат даты. Используйте ДД.ММ.ГГГГ (например, 25.12.2026)")
		return
	}

	b.setUserState(ctx, update.Message.From.ID, StateWaitingTime, map[string]interface{}{
		"date": date,
	})

	msg := tgbotapi.NewMessage(update.Message.Chat.ID,
		"Введите время урока в формате ЧЧ:ММ (например, 15:30):")
	msg.ReplyMarkup = cancelKeyboard()
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send time prompt")
	}
}

func (b *Bot) handleTimeInput(ctx context.Context, update tgbotapi.Update, text string) {
	state := b.getUserState(ctx, update.Message.From.ID)
	if state == nil || state.GetString("date") == "" {
		b.sendMessage(update.Message.Chat.ID, "Сессия устарела. Начните заново.")
		b.handleMainMenu(ctx, update)
		return
	}

	hhmm, err := parseUserTime(text)
	if err != nil {
		b.sendMessage(update.Message.Chat.ID,
			"Неверный формат времени. Используйте ЧЧ:ММ (например, 15:30)")
		return
	}

	free, err := b.bookings.IsSlotFree(ctx, state.GetString("date"), hhmm)
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}
	if !free {
		b.sendMessage(update.Message.Chat.ID,
			"⚠️ Это время уже занято. Введите другое время:")
		return
	}

	state.TempData["time"] = hhmm
	b.setUserState(ctx, update.Message.From.ID, StateWaitingPurpose, state.TempData)

	msg := tgbotapi.NewMessage(update.Message.Chat.ID,
		"Укажите цель урока (например, вокал) или нажмите «Пропустить»:")
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("Пропустить"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("❌ Отмена"),
		),
	)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send purpose prompt")
	}
}

func (b *Bot) handlePurposeInput(ctx context.Context, update tgbotapi.Update, text string) {
	state := b.getUserState(ctx, update.Message.From.ID)
	if state == nil || state.GetString("date") == "" || state.GetString("time") == "" {
		b.sendMessage(update.Message.Chat.ID, "Сессия устарела. Начните заново.")
		b.handleMainMenu(ctx, update)
		return
	}

	purpose := strings.TrimSpace(text)
	if purpose == "Пропустить" {
		purpose = ""
	}
	state.TempData["purpose"] = purpose
	b.setUserState(ctx, update.Message.From.ID, StateConfirmation, state.TempData)

	summary := fmt.Sprintf("📋 Подтверждение записи:\n\n📅 Дата: %s\n🕐 Время: %s",
		state.GetString("date"), state.GetString("time"))
	if purpose != "" {
		summary += fmt.Sprintf("\n💬 Цель: %s", purpose)
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, summary)
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("✅ Подтвердить запись"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("❌ Отмена"),
		),
	)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send confirmation prompt")
	}
}

func (b *Bot) finalizeBooking(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	state := b.getUserState(ctx, userID)
	if state == nil || state.GetString("date") == "" || state.GetString("time") == "" {
		b.sendMessage(update.Message.Chat.ID, "Сессия устарела. Начните заново.")
		b.handleMainMenu(ctx, update)
		return
	}

	booking, err := b.bookings.Reserve(ctx, userID,
		state.GetString("date"), state.GetString("time"), "", state.GetString("purpose"))
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}

	b.clearUserState(ctx, userID)
	b.sendMessage(update.Message.Chat.ID,
		fmt.Sprintf("✅ Вы записаны на урок #%d: %s в %s. Мы напомним вам заранее.",
			booking.ID, state.GetString("date"), state.GetString("time")))
	b.handleMainMenu(ctx, update)
}

// showUserBookings lists the user's upcoming lessons, each with an inline
// cancel button.
func (b *Bot) showUserBookings(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID

	bookings, err := b.bookings.ListForUser(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to list user bookings")
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}

	if len(bookings) == 0 {
		b.sendMessage(update.Message.Chat.ID, "У вас пока нет записей на уроки.")
		return
	}

	loc := b.config.Location()
	for _, booking := range bookings {
		msg := tgbotapi.NewMessage(update.Message.Chat.ID,
			fmt.Sprintf("%s Урок #%d\n%s", statusEmoji(booking.Status), booking.ID, formatBookingLine(booking, loc)))
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", fmt.Sprintf("cancel_booking:%d", booking.ID)),
			),
		)
		msg.ReplyMarkup = &keyboard
		if _, err := b.tg.Send(msg); err != nil {
			b.logger.Error().Err(err).Msg("Failed to send booking entry")
		}
	}
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("❌ Отмена"),
		),
	)
}
