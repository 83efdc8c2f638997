package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lessonbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []tgbotapi.MessageConfig
	errBy map[int64]error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if err := f.errBy[msg.ChatID]; err != nil {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) chatIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, m := range f.sent {
		ids = append(ids, m.ChatID)
	}
	return ids
}

func testBooking() *models.Booking {
	return &models.Booking{
		ID:       1,
		UserID:   100,
		Date:     "2026-09-10",
		Time:     "09:00",
		StartsAt: time.Date(2026, 9, 10, 4, 0, 0, 0, time.UTC),
		Branch:   "Центр",
		Status:   models.StatusActive,
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	blocked := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	err := classify(blocked)
	assert.True(t, IsPermanent(err))
	// The original API error stays reachable through the wrapper.
	var apiErr *tgbotapi.Error
	assert.True(t, errors.As(err, &apiErr))

	badRequest := &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	assert.True(t, IsPermanent(classify(badRequest)))

	tooMany := &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}
	assert.False(t, IsPermanent(classify(tooMany)))

	assert.False(t, IsPermanent(classify(errors.New("connection reset"))))
}

func TestSendReminderToStudent(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{900, 901}, time.UTC, &logger)

	r := &models.Reminder{BookingID: 1, UserID: 100, Role: models.RoleStudent, LeadTag: models.Lead30Min}
	require.NoError(t, n.SendReminder(context.Background(), r, testBooking()))

	assert.Equal(t, []int64{100}, sender.chatIDs())
	assert.Contains(t, sender.sent[0].Text, "30 минут")
}

func TestSendReminderFansOutToOperators(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{900, 901}, time.UTC, &logger)

	r := &models.Reminder{BookingID: 1, UserID: 100, Role: models.RoleOperator, LeadTag: models.Lead10Min}
	require.NoError(t, n.SendReminder(context.Background(), r, testBooking()))

	assert.Equal(t, []int64{900, 901}, sender.chatIDs())
}

func TestNotifyOperatorsContinuesPastFailures(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{errBy: map[int64]error{900: errors.New("connection reset")}}
	n := NewTelegramNotifier(sender, []int64{900, 901}, time.UTC, &logger)

	err := n.NotifyOperators(context.Background(), "привет")
	assert.Error(t, err)
	// The second operator still got the message.
	assert.Equal(t, []int64{901}, sender.chatIDs())
}

func TestFormatReminderUsesLocalTime(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tashkent")
	require.NoError(t, err)

	booking := testBooking()

	r := &models.Reminder{Role: models.RoleStudent, LeadTag: models.Lead4Hours}
	text := formatReminder(r, booking, loc)
	assert.Contains(t, text, "09:00")

	r = &models.Reminder{Role: models.RoleOperator, LeadTag: models.Lead60Min}
	text = formatReminder(r, booking, loc)
	assert.Contains(t, text, "10.09.2026 09:00")
	assert.Contains(t, text, "ученик 100")
}
