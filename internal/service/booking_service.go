package service

import (
	"context"
	"errors"
	"time"

	"lessonbot/internal/database"
	"lessonbot/internal/domain"
	"lessonbot/internal/events"
	"lessonbot/internal/metrics"
	"lessonbot/internal/models"
	"lessonbot/internal/timeparse"

	"github.com/rs/zerolog"
)

// BookingService wraps the repository with booking policy: past and closed
// dates are rejected, the weekly quota is enforced, and every accepted
// reservation gets reminder intents armed before the call returns.
type BookingService struct {
	repo       domain.BookingRepository
	scheduler  domain.ReminderScheduler
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	location   *time.Location
	quota      int
	pageSize   int
	logger     *zerolog.Logger

	now func() time.Time
}

func NewBookingService(
	repo domain.BookingRepository,
	scheduler domain.ReminderScheduler,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	location *time.Location,
	quota, pageSize int,
	logger *zerolog.Logger,
) *BookingService {
	if location == nil {
		location = time.UTC
	}
	if quota <= 0 {
		quota = models.DefaultWeeklyQuota
	}
	if pageSize <= 0 {
		pageSize = models.DefaultPaginationSize
	}
	return &BookingService{
		repo:       repo,
		scheduler:  scheduler,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		location:   location,
		quota:      quota,
		pageSize:   pageSize,
		logger:     logger,
		now:        time.Now,
	}
}

// Reserve books a slot for the user. Checks run in order: slot validity,
// closed date, weekly quota, then the atomic slot reservation itself.
func (s *BookingService) Reserve(ctx context.Context, userID int64, date, hhmm, branch, purpose string) (*models.Booking, error) {
	instant, err := timeparse.CanonicalInstant(date, hhmm, s.location)
	if err != nil {
		return nil, err
	}
	if !instant.After(s.now()) {
		metrics.IncBookingRejected("past")
		return nil, database.ErrPastSlot
	}

	closed, err := s.repo.IsDateClosed(ctx, date)
	if err != nil {
		return nil, err
	}
	if closed {
		metrics.IncBookingRejected("closed")
		return nil, database.ErrDateClosed
	}

	// The quota window is the Monday week containing the target slot.
	start, end := timeparse.WeekWindow(instant, s.location)
	count, err := s.repo.CountActiveForUserInWindow(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	if count >= s.quota {
		metrics.IncBookingRejected("quota")
		return nil, database.ErrQuotaExceeded
	}

	booking := &models.Booking{
		UserID:   userID,
		Date:     date,
		Time:     hhmm,
		StartsAt: instant,
		Branch:   branch,
		Purpose:  purpose,
	}
	if err := s.repo.ReserveSlot(ctx, booking); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncBookingRejected("slot_taken")
		}
		return nil, err
	}
	metrics.IncBookingReserved()

	// The booking stands even if scheduling reminders fails; the sweep
	// cannot recover intents that were never persisted, so log loudly.
	s.scheduleReminders(ctx, booking)

	s.publishEvent(events.EventBookingCreated, booking)
	s.enqueueSync(ctx, models.SyncTaskBookingCreated, booking)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("user_id", userID).
		Str("date", date).
		Str("time", hhmm).
		Msg("Booking reserved")
	return booking, nil
}

// Cancel soft-cancels a booking, disarms its reminder timers and drops the
// persisted intents.
func (s *BookingService) Cancel(ctx context.Context, bookingID int64) error {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	if err := s.repo.CancelBooking(ctx, bookingID); err != nil {
		return err
	}
	s.cancelReminders(bookingID)
	if err := s.repo.DeleteRemindersForBooking(ctx, bookingID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("Failed to delete reminders")
	}

	booking.Status = models.StatusCancelled
	s.publishEvent(events.EventBookingCancelled, booking)
	s.enqueueSync(ctx, models.SyncTaskBookingCancelled, booking)

	s.logger.Info().Int64("booking_id", bookingID).Msg("Booking cancelled")
	return nil
}

// HardDelete removes the booking row and its reminder intents entirely.
func (s *BookingService) HardDelete(ctx context.Context, bookingID int64) error {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteBooking(ctx, bookingID); err != nil {
		return err
	}
	s.cancelReminders(bookingID)

	booking.Status = models.StatusCancelled
	s.publishEvent(events.EventBookingCancelled, booking)
	s.enqueueSync(ctx, models.SyncTaskBookingCancelled, booking)
	return nil
}

// Reschedule moves an active booking to a new slot and rebuilds its
// reminder intents for the new time.
func (s *BookingService) Reschedule(ctx context.Context, bookingID int64, date, hhmm string) (*models.Booking, error) {
	instant, err := timeparse.CanonicalInstant(date, hhmm, s.location)
	if err != nil {
		return nil, err
	}
	if !instant.After(s.now()) {
		return nil, database.ErrPastSlot
	}

	closed, err := s.repo.IsDateClosed(ctx, date)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, database.ErrDateClosed
	}

	if err := s.repo.UpdateBookingSlot(ctx, bookingID, date, hhmm, instant); err != nil {
		return nil, err
	}

	// Old intents target the old instant; replace them wholesale.
	s.cancelReminders(bookingID)
	if err := s.repo.DeleteRemindersForBooking(ctx, bookingID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("Failed to drop stale reminders")
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.scheduleReminders(ctx, booking)

	s.publishEvent(events.EventBookingMoved, booking)
	s.enqueueSync(ctx, models.SyncTaskBookingMoved, booking)

	s.logger.Info().Int64("booking_id", bookingID).Str("date", date).Str("time", hhmm).Msg("Booking rescheduled")
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) IsSlotFree(ctx context.Context, date, hhmm string) (bool, error) {
	instant, err := timeparse.CanonicalInstant(date, hhmm, s.location)
	if err != nil {
		return false, err
	}
	return s.repo.IsSlotFree(ctx, instant)
}

func (s *BookingService) ListForUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return s.repo.ListActiveForUser(ctx, userID, s.now())
}

// ListUpcoming returns one zero-based page of upcoming bookings and the
// total upcoming count.
func (s *BookingService) ListUpcoming(ctx context.Context, page int) ([]*models.Booking, int, error) {
	if page < 0 {
		page = 0
	}
	return s.repo.ListUpcomingActive(ctx, s.now(), page*s.pageSize, s.pageSize)
}

// CloseDate closes a date and bulk-cancels the bookings already on it.
// The removed bookings are returned so the caller can notify their owners.
func (s *BookingService) CloseDate(ctx context.Context, date, reason string) ([]*models.Booking, error) {
	if err := s.repo.CloseDate(ctx, date, reason); err != nil {
		return nil, err
	}

	// Timers are disarmed before the rows vanish, so none can fire between
	// the select and the cascading delete below.
	if intents, err := s.repo.UnsentRemindersForDate(ctx, date); err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to list pending reminders for closed date")
	} else {
		disarmed := make(map[int64]bool, len(intents))
		for _, r := range intents {
			if !disarmed[r.BookingID] {
				disarmed[r.BookingID] = true
				s.cancelReminders(r.BookingID)
			}
		}
	}

	removed, err := s.repo.BulkCancelOnDate(ctx, date)
	if err != nil {
		return nil, err
	}
	for _, b := range removed {
		s.enqueueSync(ctx, models.SyncTaskBookingCancelled, b)
	}

	s.publishJSON(events.EventDateClosed, events.DateEventPayload{Date: date, Reason: reason, Cancelled: len(removed)})
	s.logger.Info().Str("date", date).Int("cancelled", len(removed)).Msg("Date closed")
	return removed, nil
}

func (s *BookingService) OpenDate(ctx context.Context, date string) error {
	if err := s.repo.OpenDate(ctx, date); err != nil {
		return err
	}
	s.publishJSON(events.EventDateOpened, events.DateEventPayload{Date: date})
	return nil
}

func (s *BookingService) ListClosedDates(ctx context.Context) ([]*models.ClosedDate, error) {
	return s.repo.ListClosedDates(ctx)
}

// PurgePast drops bookings whose start already passed, with their reminders.
func (s *BookingService) PurgePast(ctx context.Context) (int, error) {
	return s.repo.PurgePast(ctx, s.now())
}

func (s *BookingService) scheduleReminders(ctx context.Context, booking *models.Booking) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Schedule(ctx, booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("Failed to schedule reminders")
	}
}

func (s *BookingService) cancelReminders(bookingID int64) {
	if s.scheduler == nil {
		return
	}
	s.scheduler.CancelForBooking(bookingID)
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking) {
	s.publishJSON(eventType, events.BookingEventPayload{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Date:      booking.Date,
		Time:      booking.Time,
		StartsAt:  booking.StartsAt,
		Status:    booking.Status,
		Branch:    booking.Branch,
		Purpose:   booking.Purpose,
	})
}

func (s *BookingService) publishJSON(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, taskType string, booking *models.Booking) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueTask(ctx, taskType, booking.ID, booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
