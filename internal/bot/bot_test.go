package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lessonbot/internal/config"
	"lessonbot/internal/database"
	"lessonbot/internal/models"
	"lessonbot/internal/repository"
	"lessonbot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelegram struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeTelegram) StopReceivingUpdates() {}

func (f *fakeTelegram) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "lessonbot_test"}
}

// texts returns the plain message texts sent so far.
func (f *fakeTelegram) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeTelegram) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

const (
	testStudentID = int64(100)
	testAdminID   = int64(900)
)

func newTestBot(t *testing.T) (*Bot, *fakeTelegram, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.RunPending(context.Background())
	require.NoError(t, err)

	cfg := &config.Config{
		Booking: config.BookingConfig{
			Timezone:          "UTC",
			PaginationSize:    2,
			RateLimitMessages: 100,
			RateLimitWindow:   60,
		},
		Admins: []int64{testAdminID},
	}

	state := repository.NewMemoryStateRepository(time.Hour)
	bookings := service.NewBookingService(db, nil, nil, nil, time.UTC, 0, 2, &logger)
	users := service.NewUserService(db, cfg.Admins, &logger)

	tg := &fakeTelegram{}
	b := NewBot(tg, cfg, state, bookings, users, nil, &logger)
	return b, tg, db
}

func messageUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID, FirstName: "Алия", UserName: "aliya"},
			Chat: &tgbotapi.Chat{ID: userID},
			Text: text,
		},
	}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			From: &tgbotapi.User{ID: userID},
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: 42,
				Chat:      &tgbotapi.Chat{ID: userID},
			},
		},
	}
}

func TestBookingDialogFlow(t *testing.T) {
	b, tg, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, messageUpdate(testStudentID, "/start"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "📝 Записаться на урок"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "10.09.2030"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "09:00"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "вокал"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "✅ Подтвердить запись"))

	bookings, err := db.ListActiveForUser(ctx, testStudentID, time.Now())
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "2030-09-10", bookings[0].Date)
	assert.Equal(t, "09:00", bookings[0].Time)
	assert.Equal(t, "вокал", bookings[0].Purpose)

	texts := tg.texts()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-2], "Вы записаны")

	// The dialog state is gone after confirmation.
	assert.Equal(t, StateMainMenu, b.getUserState(ctx, testStudentID).CurrentStep)
}

func TestBookingDialogRejectsBadInput(t *testing.T) {
	b, tg, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, messageUpdate(testStudentID, "📝 Записаться на урок"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "завтра"))
	assert.Contains(t, tg.lastText(), "Неверный формат даты")

	// Still waiting for a date.
	assert.Equal(t, StateWaitingDate, b.getUserState(ctx, testStudentID).CurrentStep)

	b.handleMessage(ctx, messageUpdate(testStudentID, "10.09.2030"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "полдень"))
	assert.Contains(t, tg.lastText(), "Неверный формат времени")
	assert.Equal(t, StateWaitingTime, b.getUserState(ctx, testStudentID).CurrentStep)
}

func TestBookingDialogBusySlot(t *testing.T) {
	b, tg, _ := newTestBot(t)
	ctx := context.Background()

	_, err := b.bookings.Reserve(ctx, 200, "2030-09-10", "09:00", "", "")
	require.NoError(t, err)

	b.handleMessage(ctx, messageUpdate(testStudentID, "📝 Записаться на урок"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "10.09.2030"))
	b.handleMessage(ctx, messageUpdate(testStudentID, "09:00"))

	assert.Contains(t, tg.lastText(), "уже занято")
	assert.Equal(t, StateWaitingTime, b.getUserState(ctx, testStudentID).CurrentStep)
}

func TestCancelViaCallback(t *testing.T) {
	b, _, db := newTestBot(t)
	ctx := context.Background()

	booking, err := b.bookings.Reserve(ctx, testStudentID, "2030-09-10", "09:00", "", "")
	require.NoError(t, err)

	cancelData := fmt.Sprintf("cancel_booking:%d", booking.ID)

	// A stranger cannot cancel someone else's lesson.
	b.handleCallbackQuery(ctx, callbackUpdate(555, cancelData))
	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)

	// The owner can.
	b.handleCallbackQuery(ctx, callbackUpdate(testStudentID, cancelData))
	got, err = db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestAdminCloseDate(t *testing.T) {
	b, tg, db := newTestBot(t)
	ctx := context.Background()

	_, err := b.bookings.Reserve(ctx, testStudentID, "2030-09-10", "09:00", "", "")
	require.NoError(t, err)

	b.handleMessage(ctx, messageUpdate(testAdminID, "/close 2030-09-10 ремонт"))

	closed, err := db.IsDateClosed(ctx, "2030-09-10")
	require.NoError(t, err)
	assert.True(t, closed)

	bookings, err := db.ListActiveForUser(ctx, testStudentID, time.Now())
	require.NoError(t, err)
	assert.Empty(t, bookings)

	// The student whose lesson was dropped got a personal notice.
	found := false
	for _, c := range tg.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == testStudentID {
			found = true
			assert.Contains(t, m.Text, "отменён")
		}
	}
	assert.True(t, found)
}

func TestAdminCommandsIgnoredForStudents(t *testing.T) {
	b, _, db := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, messageUpdate(testStudentID, "/close 2030-09-10"))

	closed, err := db.IsDateClosed(ctx, "2030-09-10")
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestAdminUpcomingPagination(t *testing.T) {
	b, tg, _ := newTestBot(t)
	ctx := context.Background()

	for i, hhmm := range []string{"09:00", "10:00", "11:00"} {
		_, err := b.bookings.Reserve(ctx, int64(100+i), "2030-09-10", hhmm, "", "")
		require.NoError(t, err)
	}

	b.handleMessage(ctx, messageUpdate(testAdminID, "📅 Все уроки"))
	assert.Contains(t, tg.lastText(), "стр. 1 из 2")
	assert.Contains(t, tg.lastText(), "всего 3")

	b.handleCallbackQuery(ctx, callbackUpdate(testAdminID, "upcoming_page:1"))
	assert.Contains(t, tg.lastText(), "стр. 2 из 2")
}

func TestRateLimitThrottlesStudents(t *testing.T) {
	b, tg, _ := newTestBot(t)
	b.config.Booking.RateLimitMessages = 2
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.processUpdate(ctx, messageUpdate(testStudentID, "/start"))
	}
	assert.Contains(t, tg.lastText(), "слишком часто")

	// Admins are exempt.
	tgBefore := len(tg.texts())
	for i := 0; i < 5; i++ {
		b.processUpdate(ctx, messageUpdate(testAdminID, "/closed"))
	}
	texts := tg.texts()
	assert.Greater(t, len(texts), tgBefore)
	assert.NotContains(t, texts[len(texts)-1], "слишком часто")
}
