package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleAdminCommand dispatches operator-only commands. Returns true when
// the message was consumed.
func (b *Bot) handleAdminCommand(ctx context.Context, update tgbotapi.Update) bool {
	text := strings.TrimSpace(update.Message.Text)
	chatID := update.Message.Chat.ID

	switch {
	case text == "📅 Все уроки" || text == "/upcoming":
		b.sendUpcomingPage(ctx, chatID, 0)
		return true

	case text == "🚫 Закрытые даты" || text == "/closed":
		b.showClosedDates(ctx, chatID)
		return true

	case strings.HasPrefix(text, "/close"):
		b.handleCloseDate(ctx, update)
		return true

	case strings.HasPrefix(text, "/open"):
		b.handleOpenDate(ctx, update)
		return true

	case strings.HasPrefix(text, "/move"):
		b.handleMoveBooking(ctx, update)
		return true

	case strings.HasPrefix(text, "/export_users"):
		b.handleExportUsers(ctx, chatID)
		return true

	case strings.HasPrefix(text, "/export"):
		b.handleExportSchedule(ctx, update)
		return true

	case text == "/purge":
		removed, err := b.bookings.PurgePast(ctx)
		if err != nil {
			b.sendMessage(chatID, b.getErrorMessage(err))
			return true
		}
		b.sendMessage(chatID, fmt.Sprintf("🧹 Удалено прошедших уроков: %d", removed))
		return true
	}

	return false
}

// sendUpcomingPage renders one page of all upcoming lessons with inline
// navigation.
func (b *Bot) sendUpcomingPage(ctx context.Context, chatID int64, page int) {
	bookings, total, err := b.bookings.ListUpcoming(ctx, page)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if total == 0 {
		b.sendMessage(chatID, "Предстоящих уроков нет.")
		return
	}

	pageSize := b.config.Booking.PaginationSize
	pages := (total + pageSize - 1) / pageSize

	var message strings.Builder
	message.WriteString(fmt.Sprintf("📅 Предстоящие уроки (стр. %d из %d, всего %d):\n\n", page+1, pages, total))

	loc := b.config.Location()
	for _, booking := range bookings {
		message.WriteString(fmt.Sprintf("#%d ученик %d\n%s\n\n", booking.ID, booking.UserID, formatBookingLine(booking, loc)))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("upcoming_page:%d", page-1)))
	}
	if page+1 < pages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Вперед ➡️", fmt.Sprintf("upcoming_page:%d", page+1)))
	}

	msg := tgbotapi.NewMessage(chatID, message.String())
	if len(nav) > 0 {
		keyboard := tgbotapi.NewInlineKeyboardMarkup(nav)
		msg.ReplyMarkup = &keyboard
	}
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send upcoming page")
	}
}

// editUpcomingPage swaps the page in place when an admin taps the nav.
func (b *Bot) editUpcomingPage(ctx context.Context, callback *tgbotapi.CallbackQuery, page int) {
	bookings, total, err := b.bookings.ListUpcoming(ctx, page)
	if err != nil || total == 0 {
		return
	}

	pageSize := b.config.Booking.PaginationSize
	pages := (total + pageSize - 1) / pageSize

	var message strings.Builder
	message.WriteString(fmt.Sprintf("📅 Предстоящие уроки (стр. %d из %d, всего %d):\n\n", page+1, pages, total))

	loc := b.config.Location()
	for _, booking := range bookings {
		message.WriteString(fmt.Sprintf("#%d ученик %d\n%s\n\n", booking.ID, booking.UserID, formatBookingLine(booking, loc)))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("upcoming_page:%d", page-1)))
	}
	if page+1 < pages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Вперед ➡️", fmt.Sprintf("upcoming_page:%d", page+1)))
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(nav)
	edit := tgbotapi.NewEditMessageTextAndMarkup(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		message.String(),
		markup,
	)
	if _, err := b.tg.Send(edit); err != nil {
		b.logger.Error().Err(err).Msg("Failed to edit upcoming page")
	}
}

func (b *Bot) showClosedDates(ctx context.Context, chatID int64) {
	dates, err := b.bookings.ListClosedDates(ctx)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	var message strings.Builder
	message.WriteString("🚫 Закрытые даты:\n\n")
	for _, d := range dates {
		if d.Reason != "" {
			message.WriteString(fmt.Sprintf("• %s (%s)\n", d.Date, d.Reason))
		} else {
			message.WriteString(fmt.Sprintf("• %s\n", d.Date))
		}
	}
	if len(dates) == 0 {
		message.WriteString("нет\n")
	}
	message.WriteString("\nЗакрыть: /close ГГГГ-ММ-ДД [причина]\nОткрыть: /open ГГГГ-ММ-ДД")

	b.sendMessage(chatID, message.String())
}

// handleCloseDate closes a date: /close 2026-09-10 ремонт. Every student
// whose lesson was cancelled by the closure gets a personal message.
func (b *Bot) handleCloseDate(ctx context.Context, update tgbotapi.Update) {
	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		b.sendMessage(update.Message.Chat.ID, "Использование: /close ГГГГ-ММ-ДД [причина]")
		return
	}

	date, err := parseUserDate(parts[1])
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, "Неверный формат даты. Используйте ГГГГ-ММ-ДД")
		return
	}
	reason := strings.Join(parts[2:], " ")

	removed, err := b.bookings.CloseDate(ctx, date, reason)
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}

	for _, booking := range removed {
		text := fmt.Sprintf("❌ Ваш урок %s в %s отменён: школа закрыта в этот день.", booking.Date, booking.Time)
		if reason != "" {
			text += fmt.Sprintf(" Причина: %s.", reason)
		}
		b.sendMessage(booking.UserID, text)
	}

	b.sendMessage(update.Message.Chat.ID,
		fmt.Sprintf("🚫 Дата %s закрыта. Отменено уроков: %d", date, len(removed)))
}

func (b *Bot) handleOpenDate(ctx context.Context, update tgbotapi.Update) {
	parts := strings.Fields(update.Message.Text)
	if len(parts) != 2 {
		b.sendMessage(update.Message.Chat.ID, "Использование: /open ГГГГ-ММ-ДД")
		return
	}

	date, err := parseUserDate(parts[1])
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, "Неверный формат даты. Используйте ГГГГ-ММ-ДД")
		return
	}

	if err := b.bookings.OpenDate(ctx, date); err != nil {
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}
	b.sendMessage(update.Message.Chat.ID, fmt.Sprintf("✅ Дата %s снова открыта для записи", date))
}

// handleMoveBooking reschedules a lesson: /move 12 2026-09-11 16:00.
func (b *Bot) handleMoveBooking(ctx context.Context, update tgbotapi.Update) {
	parts := strings.Fields(update.Message.Text)
	if len(parts) != 4 {
		b.sendMessage(update.Message.Chat.ID, "Использование: /move ID ГГГГ-ММ-ДД ЧЧ:ММ")
		return
	}

	bookingID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, "Неверный ID урока")
		return
	}
	date, err := parseUserDate(parts[2])
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, "Неверный формат даты. Используйте ГГГГ-ММ-ДД")
		return
	}
	hhmm, err := parseUserTime(parts[3])
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, "Неверный формат времени. Используйте ЧЧ:ММ")
		return
	}

	booking, err := b.bookings.Reschedule(ctx, bookingID, date, hhmm)
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}

	b.sendMessage(booking.UserID,
		fmt.Sprintf("🔄 Ваш урок #%d перенесён на %s в %s.", booking.ID, date, hhmm))
	b.sendMessage(update.Message.Chat.ID,
		fmt.Sprintf("✅ Урок #%d перенесён на %s %s", booking.ID, date, hhmm))
}

// handleExportSchedule builds an Excel schedule: /export 2026-09-01 2026-09-30.
func (b *Bot) handleExportSchedule(ctx context.Context, update tgbotapi.Update) {
	if b.exporter == nil {
		b.sendMessage(update.Message.Chat.ID, "Экспорт не настроен")
		return
	}

	parts := strings.Fields(update.Message.Text)
	if len(parts) != 3 {
		b.sendMessage(update.Message.Chat.ID, "Использование: /export ГГГГ-ММ-ДД ГГГГ-ММ-ДД")
		return
	}

	from, err1 := parseUserDate(parts[1])
	to, err2 := parseUserDate(parts[2])
	if err1 != nil || err2 != nil {
		b.sendMessage(update.Message.Chat.ID, "Неверный формат даты. Используйте ГГГГ-ММ-ДД")
		return
	}

	filePath, err := b.exporter.ExportSchedule(ctx, from, to)
	if err != nil {
		b.logger.Error().Err(err).Msg("Schedule export failed")
		b.sendMessage(update.Message.Chat.ID, "Ошибка при создании файла экспорта")
		return
	}

	b.sendDocument(update.Message.Chat.ID, filePath, "📊 Экспорт расписания")
}

func (b *Bot) handleExportUsers(ctx context.Context, chatID int64) {
	if b.exporter == nil {
		b.sendMessage(chatID, "Экспорт не настроен")
		return
	}

	filePath, err := b.exporter.ExportUsers(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Users export failed")
		b.sendMessage(chatID, "Ошибка при создании файла экспорта")
		return
	}

	b.sendDocument(chatID, filePath, "📊 Экспорт пользователей")
}

func (b *Bot) sendDocument(chatID int64, filePath, caption string) {
	file, err := os.Open(filePath)
	if err != nil {
		b.logger.Error().Err(err).Str("file_path", filePath).Msg("Error opening export file")
		b.sendMessage(chatID, "Ошибка при открытии файла")
		return
	}
	defer file.Close()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{
		Name:   filepath.Base(filePath),
		Reader: file,
	})
	doc.Caption = caption

	if _, err := b.tg.Send(doc); err != nil {
		b.logger.Error().Err(err).Msg("Error sending document")
		b.sendMessage(chatID, "Ошибка при отправке файла")
	}
}
