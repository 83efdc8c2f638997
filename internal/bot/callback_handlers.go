package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, update tgbotapi.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	l := zerolog.Ctx(ctx)
	l.Debug().
		Int64("user_id", callback.From.ID).
		Str("data", callback.Data).
		Msg("Handling callback query")

	data := callback.Data

	switch {
	case strings.HasPrefix(data, "cancel_booking:"):
		b.handleCancelBooking(ctx, callback)

	case strings.HasPrefix(data, "upcoming_page:"):
		pageStr := strings.TrimPrefix(data, "upcoming_page:")
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			b.logger.Error().Err(err).Str("page_str", pageStr).Msg("Error parsing page")
			break
		}
		if b.isAdmin(callback.From.ID) {
			b.editUpcomingPage(ctx, callback, page)
		}

	default:
		b.logger.Warn().Str("callback_data", data).Msg("Unknown callback data")
	}

	b.answerCallback(callback.ID, "")
}

// handleCancelBooking cancels a lesson from the inline button. Students can
// cancel only their own lessons; admins can cancel any.
func (b *Bot) handleCancelBooking(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	idStr := strings.TrimPrefix(callback.Data, "cancel_booking:")
	bookingID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.logger.Error().Err(err).Str("id_str", idStr).Msg("Error parsing booking ID")
		return
	}

	booking, err := b.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		b.sendMessage(callback.Message.Chat.ID, b.getErrorMessage(err))
		return
	}

	if booking.UserID != callback.From.ID && !b.isAdmin(callback.From.ID) {
		b.answerCallback(callback.ID, "Это не ваш урок")
		return
	}

	if err := b.bookings.Cancel(ctx, bookingID); err != nil {
		b.sendMessage(callback.Message.Chat.ID, b.getErrorMessage(err))
		return
	}

	edit := tgbotapi.NewEditMessageText(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		fmt.Sprintf("❌ Урок #%d отменён", bookingID),
	)
	if _, err := b.tg.Send(edit); err != nil {
		b.logger.Error().Err(err).Msg("Failed to edit cancelled booking message")
	}
}
