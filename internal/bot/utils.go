package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lessonbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Dialog state helpers. State lives in the repository (Redis with a memory
// fallback), so a restarted process picks up dialogs where they were.

func (b *Bot) setUserState(ctx context.Context, userID int64, step string, tempData map[string]interface{}) {
	if tempData == nil {
		tempData = make(map[string]interface{})
	}
	err := b.state.SetState(ctx, &models.UserState{
		UserID:      userID,
		CurrentStep: step,
		TempData:    tempData,
	})
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to save user state")
	}
}

func (b *Bot) getUserState(ctx context.Context, userID int64) *models.UserState {
	state, err := b.state.GetState(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to get user state")
		return nil
	}
	return state
}

func (b *Bot) clearUserState(ctx context.Context, userID int64) {
	if err := b.state.ClearState(ctx, userID); err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to clear user state")
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.users.IsAdmin(userID)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Error().Err(err).Msg("Failed to answer callback")
	}
}

// parseUserDate accepts ДД.ММ.ГГГГ as typed by users and the ISO form, and
// returns the storage form YYYY-MM-DD.
func parseUserDate(input string) (string, error) {
	input = strings.TrimSpace(input)
	if t, err := time.Parse("02.01.2006", input); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if t, err := time.Parse("2006-01-02", input); err == nil {
		return t.Format("2006-01-02"), nil
	}
	return "", fmt.Errorf("invalid date: %q", input)
}

// parseUserTime validates HH:MM wall time and normalizes it to two digits.
func parseUserTime(input string) (string, error) {
	input = strings.TrimSpace(input)
	t, err := time.Parse("15:04", input)
	if err != nil {
		return "", fmt.Errorf("invalid time: %q", input)
	}
	return t.Format("15:04"), nil
}

func formatBookingLine(booking *models.Booking, loc *time.Location) string {
	local := booking.StartsAt.In(loc)
	line := fmt.Sprintf("📅 %s", local.Format("02.01.2006 15:04"))
	if booking.Branch != "" {
		line += fmt.Sprintf(", 📍 %s", booking.Branch)
	}
	if booking.Purpose != "" {
		line += fmt.Sprintf(" (%s)", booking.Purpose)
	}
	return line
}

func statusEmoji(status string) string {
	switch status {
	case models.StatusActive:
		return "✅"
	case models.StatusCancelled:
		return "❌"
	default:
		return "⏳"
	}
}
