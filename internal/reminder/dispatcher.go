// Package reminder arms in-memory timers for persisted reminder intents and
// backs them with a periodic sweep. The database row is the source of truth;
// timers are an optimization that a restart may lose and the sweep restores.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lessonbot/internal/domain"
	"lessonbot/internal/events"
	"lessonbot/internal/metrics"
	"lessonbot/internal/models"
	"lessonbot/internal/notify"

	"github.com/rs/zerolog"
)

type Dispatcher struct {
	repo     domain.BookingRepository
	notifier domain.Notifier
	bus      domain.EventPublisher
	interval time.Duration
	logger   *zerolog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu       sync.Mutex
	timers   map[int64]*time.Timer
	owners   map[int64]int64 // reminder id -> booking id, while armed
	inFlight map[int64]bool
}

func NewDispatcher(repo domain.BookingRepository, notifier domain.Notifier, bus domain.EventPublisher, interval time.Duration, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		notifier: notifier,
		bus:      bus,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		timers:   make(map[int64]*time.Timer),
		owners:   make(map[int64]int64),
		inFlight: make(map[int64]bool),
	}
}

// Schedule persists a reminder intent for every configured lead and arms a
// timer for the ones still ahead. Leads whose instant already passed are
// persisted unarmed; the next sweep decides whether they still go out.
func (d *Dispatcher) Schedule(ctx context.Context, booking *models.Booking) error {
	now := d.now()

	plan := []struct {
		role string
		tags []string
	}{
		{models.RoleStudent, models.StudentLeads},
		{models.RoleOperator, models.OperatorLeads},
	}

	for _, p := range plan {
		for _, tag := range p.tags {
			lead, ok := models.LeadDuration(tag)
			if !ok {
				continue
			}

			r := &models.Reminder{
				BookingID:   booking.ID,
				UserID:      booking.UserID,
				Role:        p.role,
				LeadTag:     tag,
				ScheduledAt: booking.StartsAt.Add(-lead),
			}
			if err := d.repo.SaveReminder(ctx, r); err != nil {
				return err
			}
			if r.ScheduledAt.After(now) {
				d.arm(r)
			}
		}
	}
	return nil
}

func (d *Dispatcher) arm(r *models.Reminder) {
	delay := r.ScheduledAt.Sub(d.now())
	if delay < 0 {
		delay = 0
	}

	id := r.ID

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.timers[id]; ok {
		old.Stop()
	}
	d.timers[id] = time.AfterFunc(delay, func() {
		d.fire(context.Background(), id, false)
	})
	d.owners[id] = r.BookingID
}

// fire delivers one intent. The in-flight guard plus a re-read of the sent
// flag keeps a timer and a concurrent sweep from double-delivering.
func (d *Dispatcher) fire(ctx context.Context, reminderID int64, fromSweep bool) {
	d.mu.Lock()
	if d.inFlight[reminderID] {
		d.mu.Unlock()
		return
	}
	d.inFlight[reminderID] = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inFlight, reminderID)
		d.mu.Unlock()
	}()

	r, err := d.repo.GetReminder(ctx, reminderID)
	if err != nil {
		d.logger.Debug().Err(err).Int64("reminder_id", reminderID).Msg("Reminder gone before delivery")
		d.disarm(reminderID)
		return
	}
	if r.Sent {
		d.disarm(reminderID)
		return
	}

	booking, err := d.repo.GetBooking(ctx, r.BookingID)
	if err != nil || !booking.IsActive() {
		d.disarm(reminderID)
		return
	}

	if err := d.notifier.SendReminder(ctx, r, booking); err != nil {
		if notify.IsPermanent(err) {
			d.logger.Warn().Err(err).
				Int64("reminder_id", r.ID).
				Int64("user_id", r.UserID).
				Msg("Reminder undeliverable, giving up")
			if markErr := d.repo.MarkReminderSent(ctx, r.ID); markErr != nil {
				d.logger.Error().Err(markErr).Int64("reminder_id", r.ID).Msg("Failed to mark reminder sent")
			}
			d.disarm(reminderID)
			d.escalate(ctx, r, booking)
			return
		}
		// Transient failure: leave the row unsent so the next sweep retries.
		d.logger.Error().Err(err).Int64("reminder_id", r.ID).Msg("Reminder delivery failed, will retry on sweep")
		return
	}

	if err := d.repo.MarkReminderSent(ctx, r.ID); err != nil {
		d.logger.Error().Err(err).Int64("reminder_id", r.ID).Msg("Failed to mark reminder sent")
	}
	if fromSweep {
		metrics.IncSweepRecovered()
	}
	_ = d.bus.PublishJSON(events.EventReminderSent, events.ReminderEventPayload{
		ReminderID: r.ID,
		BookingID:  r.BookingID,
		UserID:     r.UserID,
		Role:       r.Role,
		LeadTag:    r.LeadTag,
	})
	d.disarm(reminderID)

	d.logger.Info().
		Int64("reminder_id", r.ID).
		Int64("booking_id", r.BookingID).
		Str("role", r.Role).
		Str("lead", r.LeadTag).
		Bool("from_sweep", fromSweep).
		Msg("Reminder delivered")
}

// escalate tells the operators a student turned out to be unreachable, so
// they can follow up by phone.
func (d *Dispatcher) escalate(ctx context.Context, r *models.Reminder, booking *models.Booking) {
	if r.Role == models.RoleOperator {
		return
	}
	text := fmt.Sprintf("Не удалось доставить напоминание ученику %d об уроке #%d (%s %s).",
		r.UserID, booking.ID, booking.Date, booking.Time)
	if err := d.notifier.NotifyOperators(ctx, text); err != nil {
		d.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("Operator escalation failed")
	}
}

func (d *Dispatcher) disarm(reminderID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disarmLocked(reminderID)
}

func (d *Dispatcher) disarmLocked(reminderID int64) {
	if t, ok := d.timers[reminderID]; ok {
		t.Stop()
		delete(d.timers, reminderID)
	}
	delete(d.owners, reminderID)
}

// CancelForBooking stops armed timers for a booking. Deleting the intent
// rows is the caller's business.
func (d *Dispatcher) CancelForBooking(bookingID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, owner := range d.owners {
		if owner == bookingID {
			d.disarmLocked(id)
		}
	}
}

// RunSweep delivers every due unsent intent for active bookings. It is the
// safety net behind lost timers, restarts and transient send failures.
func (d *Dispatcher) RunSweep(ctx context.Context) {
	started := time.Now()
	defer func() { metrics.ObserveSweep(time.Since(started).Seconds()) }()

	due, err := d.repo.DueReminders(ctx, d.now())
	if err != nil {
		d.logger.Error().Err(err).Msg("Reminder sweep query failed")
		return
	}
	for _, r := range due {
		d.fire(ctx, r.ID, true)
	}
}

// Replay re-arms timers for unsent future intents after a restart. Intents
// already due are left to the first sweep.
func (d *Dispatcher) Replay(ctx context.Context) error {
	unsent, err := d.repo.UnsentReminders(ctx)
	if err != nil {
		return err
	}

	now := d.now()
	armed := 0
	for _, r := range unsent {
		if r.ScheduledAt.After(now) {
			d.arm(r)
			armed++
		}
	}
	d.logger.Info().Int("armed", armed).Int("unsent", len(unsent)).Msg("Reminder replay complete")
	return nil
}

// Start replays persisted intents, then sweeps on the configured interval
// until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	if err := d.Replay(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Reminder replay failed")
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.stopAll()
			return
		case <-ticker.C:
			d.RunSweep(ctx)
		}
	}
}

func (d *Dispatcher) stopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	d.owners = make(map[int64]int64)
}
