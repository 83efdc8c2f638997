package bot

import (
	"errors"

	"lessonbot/internal/database"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, database.ErrSlotTaken) {
		return "⚠️ Это время уже занято. Пожалуйста, выберите другое."
	}

	if errors.Is(err, database.ErrPastSlot) {
		return "⚠️ Нельзя записаться на прошедшее время."
	}

	if errors.Is(err, database.ErrDateClosed) {
		return "⚠️ В этот день школа не работает. Выберите другую дату."
	}

	if errors.Is(err, database.ErrQuotaExceeded) {
		return "⚠️ Вы достигли лимита уроков на эту неделю."
	}

	if errors.Is(err, database.ErrNotFound) {
		return "⚠️ Запись не найдена. Возможно, она уже отменена."
	}

	return "❌ Произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте позже."
}
