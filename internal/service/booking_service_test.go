package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"lessonbot/internal/database"
	"lessonbot/internal/events"
	"lessonbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	mu        sync.Mutex
	db        *database.DB
	scheduled []int64
	cancelled []int64
	err       error
}

// Schedule records the call and persists one intent row, like the real
// dispatcher, so date-level reminder queries see the booking.
func (f *fakeScheduler) Schedule(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, booking.ID)
	if f.db != nil {
		r := &models.Reminder{
			BookingID:   booking.ID,
			UserID:      booking.UserID,
			Role:        models.RoleStudent,
			LeadTag:     models.Lead30Min,
			ScheduledAt: booking.StartsAt.Add(-30 * time.Minute),
		}
		if err := f.db.SaveReminder(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeScheduler) CancelForBooking(bookingID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, bookingID)
}

func (f *fakeScheduler) Replay(ctx context.Context) error { return nil }

func newTestService(t *testing.T) (*BookingService, *database.DB, *fakeScheduler) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.RunPending(context.Background())
	require.NoError(t, err)

	sched := &fakeScheduler{db: db}
	svc := NewBookingService(db, sched, events.NewEventBus(), nil, time.UTC, 3, 2, &logger)
	svc.now = func() time.Time { return time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC) }
	return svc, db, sched
}

func TestReserve(t *testing.T) {
	svc, _, sched := newTestService(t)
	ctx := context.Background()

	b, err := svc.Reserve(ctx, 100, "2026-09-10", "09:00", "main", "lesson")
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.True(t, b.StartsAt.Equal(time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, []int64{b.ID}, sched.scheduled)

	// The slot is taken now, even for the same user.
	_, err = svc.Reserve(ctx, 200, "2026-09-10", "09:00", "main", "lesson")
	assert.ErrorIs(t, err, database.ErrSlotTaken)

	free, err := svc.IsSlotFree(ctx, "2026-09-10", "09:00")
	require.NoError(t, err)
	assert.False(t, free)
}

func TestReserveRejectsPastSlot(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Reserve(context.Background(), 100, "2026-09-06", "09:00", "main", "")
	assert.ErrorIs(t, err, database.ErrPastSlot)

	_, err = svc.Reserve(context.Background(), 100, "2026-09-07", "00:00", "main", "")
	assert.ErrorIs(t, err, database.ErrPastSlot)
}

func TestReserveRejectsClosedDate(t *testing.T) {
	svc, db, sched := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.CloseDate(ctx, "2026-09-10", "holiday"))

	_, err := svc.Reserve(ctx, 100, "2026-09-10", "09:00", "main", "")
	assert.ErrorIs(t, err, database.ErrDateClosed)
	assert.Empty(t, sched.scheduled)
}

func TestReserveEnforcesWeeklyQuota(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Quota is 3 in the test service; all slots sit in the same Monday week.
	for _, hhmm := range []string{"09:00", "10:00", "11:00"} {
		_, err := svc.Reserve(ctx, 100, "2026-09-10", hhmm, "main", "")
		require.NoError(t, err)
	}

	_, err := svc.Reserve(ctx, 100, "2026-09-11", "09:00", "main", "")
	assert.ErrorIs(t, err, database.ErrQuotaExceeded)

	// The next Monday week opens a fresh window.
	_, err = svc.Reserve(ctx, 100, "2026-09-14", "09:00", "main", "")
	assert.NoError(t, err)

	// Other users are unaffected.
	_, err = svc.Reserve(ctx, 200, "2026-09-11", "09:00", "main", "")
	assert.NoError(t, err)
}

func TestCancelFreesQuotaAndSlot(t *testing.T) {
	svc, db, sched := newTestService(t)
	ctx := context.Background()

	for _, hhmm := range []string{"09:00", "10:00", "11:00"} {
		_, err := svc.Reserve(ctx, 100, "2026-09-10", hhmm, "main", "")
		require.NoError(t, err)
	}
	_, err := svc.Reserve(ctx, 100, "2026-09-11", "09:00", "main", "")
	require.ErrorIs(t, err, database.ErrQuotaExceeded)

	victim, err := svc.ListForUser(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, victim[0].ID))
	assert.Contains(t, sched.cancelled, victim[0].ID)

	// The cancelled booking keeps no reminder intents behind.
	left, err := db.RemindersForBooking(ctx, victim[0].ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = svc.Reserve(ctx, 100, "2026-09-11", "09:00", "main", "")
	assert.NoError(t, err)
}

func TestCancelMissingBooking(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Cancel(context.Background(), 12345)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestReschedule(t *testing.T) {
	svc, db, sched := newTestService(t)
	ctx := context.Background()

	b, err := svc.Reserve(ctx, 100, "2026-09-10", "09:00", "main", "")
	require.NoError(t, err)
	before, err := db.RemindersForBooking(ctx, b.ID)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, 200, "2026-09-10", "10:00", "main", "")
	require.NoError(t, err)

	// Cannot move onto the occupied slot.
	_, err = svc.Reschedule(ctx, b.ID, "2026-09-10", "10:00")
	assert.ErrorIs(t, err, database.ErrSlotTaken)

	moved, err := svc.Reschedule(ctx, b.ID, "2026-09-10", "11:00")
	require.NoError(t, err)
	assert.True(t, moved.StartsAt.Equal(time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC)))
	assert.Contains(t, sched.cancelled, b.ID)

	// Intents from the old slot are gone; Schedule ran again for the new one.
	after, err := db.RemindersForBooking(ctx, b.ID)
	require.NoError(t, err)
	for _, old := range before {
		for _, cur := range after {
			assert.NotEqual(t, old.ID, cur.ID)
		}
	}
	times := 0
	for _, id := range sched.scheduled {
		if id == b.ID {
			times++
		}
	}
	assert.Equal(t, 2, times, "reminders scheduled on reserve and again on reschedule")
}

func TestListUpcomingPagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	hours := []string{"09:00", "10:00", "11:00"}
	for i, hhmm := range hours {
		_, err := svc.Reserve(ctx, int64(100+i), "2026-09-10", hhmm, "main", "")
		require.NoError(t, err)
	}

	page, total, err := svc.ListUpcoming(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "09:00", page[0].Time)

	page, _, err = svc.ListUpcoming(ctx, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "11:00", page[0].Time)
}

func TestCloseDateBulkCancels(t *testing.T) {
	svc, db, sched := newTestService(t)
	ctx := context.Background()

	a, err := svc.Reserve(ctx, 100, "2026-09-10", "09:00", "main", "")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, 200, "2026-09-11", "09:00", "main", "")
	require.NoError(t, err)

	removed, err := svc.CloseDate(ctx, "2026-09-10", "renovation")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, a.ID, removed[0].ID)
	assert.Contains(t, sched.cancelled, a.ID)

	// The date stays closed for new reservations.
	_, err = svc.Reserve(ctx, 300, "2026-09-10", "12:00", "main", "")
	assert.ErrorIs(t, err, database.ErrDateClosed)

	dates, err := svc.ListClosedDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, "renovation", dates[0].Reason)

	require.NoError(t, svc.OpenDate(ctx, "2026-09-10"))
	_, err = svc.Reserve(ctx, 300, "2026-09-10", "12:00", "main", "")
	assert.NoError(t, err)

	// The bulk-cancelled booking is really gone.
	_, err = db.GetBooking(ctx, a.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestPurgePast(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	old := &models.Booking{
		UserID: 100, Date: "2026-09-01", Time: "09:00",
		StartsAt: time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.ReserveSlot(ctx, old))
	_, err := svc.Reserve(ctx, 100, "2026-09-10", "09:00", "main", "")
	require.NoError(t, err)

	removed, err := svc.PurgePast(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestReserveSurvivesSchedulerFailure(t *testing.T) {
	svc, db, sched := newTestService(t)
	sched.err = assert.AnError

	b, err := svc.Reserve(context.Background(), 100, "2026-09-10", "09:00", "main", "")
	require.NoError(t, err)

	got, err := db.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}
