package notify

import (
	"context"
	"fmt"
	"time"

	"lessonbot/internal/metrics"
	"lessonbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender is the slice of the Telegram client the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier delivers reminders and operator escalations through the
// bot API. A global limiter keeps it under Telegram's 30 msg/s ceiling.
type TelegramNotifier struct {
	sender    Sender
	operators []int64
	location  *time.Location
	limiter   *rate.Limiter
	logger    *zerolog.Logger
}

func NewTelegramNotifier(sender Sender, operators []int64, loc *time.Location, logger *zerolog.Logger) *TelegramNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramNotifier{
		sender:    sender,
		operators: operators,
		location:  loc,
		limiter:   rate.NewLimiter(rate.Limit(25), 25),
		logger:    logger,
	}
}

func (n *TelegramNotifier) send(ctx context.Context, chatID int64, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.sender.Send(msg); err != nil {
		metrics.IncReminderFailure()
		return classify(err)
	}
	return nil
}

// SendReminder delivers one reminder intent. Student reminders go to the
// booking owner, operator reminders fan out to the operator chats.
func (n *TelegramNotifier) SendReminder(ctx context.Context, r *models.Reminder, booking *models.Booking) error {
	text := formatReminder(r, booking, n.location)

	var err error
	if r.Role == models.RoleOperator {
		err = n.NotifyOperators(ctx, text)
	} else {
		err = n.send(ctx, r.UserID, text)
	}
	if err != nil {
		return err
	}
	metrics.IncReminderSent(r.Role, r.LeadTag)
	return nil
}

// NotifyOperators fans a message out to every operator chat. A failure for
// one operator does not stop delivery to the rest.
func (n *TelegramNotifier) NotifyOperators(ctx context.Context, text string) error {
	var firstErr error
	for _, chatID := range n.operators {
		if err := n.send(ctx, chatID, text); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to notify operator")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func formatReminder(r *models.Reminder, booking *models.Booking, loc *time.Location) string {
	local := booking.StartsAt.In(loc)
	when := local.Format("02.01.2006 15:04")

	if r.Role == models.RoleOperator {
		return fmt.Sprintf("Скоро урок: %s, ученик %d, филиал %s.", when, booking.UserID, booking.Branch)
	}

	switch r.LeadTag {
	case models.Lead4Hours:
		return fmt.Sprintf("Напоминание: сегодня в %s у вас урок (%s).", local.Format("15:04"), booking.Branch)
	case models.Lead30Min:
		return fmt.Sprintf("Через 30 минут начнётся ваш урок (%s, %s).", when, booking.Branch)
	default:
		return fmt.Sprintf("Напоминание об уроке: %s (%s).", when, booking.Branch)
	}
}
