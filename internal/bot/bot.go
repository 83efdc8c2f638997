// Package bot is the Telegram presentation layer: a dialog-driven booking
// flow for students and command-driven administration for operators. All
// booking policy lives in the service layer; handlers only translate.
package bot

import (
	"context"
	"os"
	"time"

	"lessonbot/internal/config"
	"lessonbot/internal/domain"
	"lessonbot/internal/export"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Bot struct {
	tg       TelegramAPI
	config   *config.Config
	state    domain.StateRepository
	bookings domain.BookingService
	users    domain.UserService
	exporter *export.Exporter
	logger   *zerolog.Logger
}

func NewBot(
	tg TelegramAPI,
	cfg *config.Config,
	state domain.StateRepository,
	bookings domain.BookingService,
	users domain.UserService,
	exporter *export.Exporter,
	logger *zerolog.Logger,
) *Bot {
	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	return &Bot{
		tg:       tg,
		config:   cfg,
		state:    state,
		bookings: bookings,
		users:    users,
		exporter: exporter,
		logger:   logger,
	}
}

// Dialog steps for the booking flow.
const (
	StateMainMenu       = "main_menu"
	StateWaitingDate    = "waiting_date"
	StateWaitingTime    = "waiting_time"
	StateWaitingPurpose = "waiting_purpose"
	StateConfirmation   = "confirmation"
)

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) Stop() {
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		var userID int64
		if update.Message != nil {
			userID = update.Message.From.ID
		} else if update.CallbackQuery != nil {
			userID = update.CallbackQuery.From.ID
		}
		if userID == 0 {
			return
		}

		if !b.isAdmin(userID) {
			allowed, err := b.state.CheckRateLimit(updateCtx, userID,
				b.config.Booking.RateLimitMessages,
				time.Duration(b.config.Booking.RateLimitWindow)*time.Second)
			if err != nil {
				b.logger.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
			} else if !allowed {
				b.logger.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
				if update.Message != nil {
					b.sendMessage(update.Message.Chat.ID, "⚠️ Вы отправляете сообщения слишком часто. Пожалуйста, подождите немного.")
				}
				return
			}
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update)
			return
		}
		if update.Message == nil {
			return
		}
		b.handleMessage(updateCtx, update)
	})
}
