package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/availability"
	"github.com/wolfman30/dental-whatsapp-bot/internal/calendar"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

var (
	// ErrNotFound means no active appointment matches the request.
	ErrNotFound = errors.New("booking: appointment not found")
	// ErrSlotTaken means the target slot is held by someone else.
	ErrSlotTaken = errors.New("booking: slot taken")
	// ErrPast means the target slot already started.
	ErrPast = errors.New("booking: slot in the past")
)

// SlotFreedNotifier is told whenever a cancellation opens a slot.
type SlotFreedNotifier interface {
	SlotFreed(ctx context.Context, start time.Time)
}

// Coordinator moves and cancels existing appointments.
type Coordinator struct {
	ledger   appointments.Ledger
	calendar calendar.Calendar
	oracle   *availability.Oracle
	clinic   *clinic.Clinic
	clock    clock.Clock
	notifier SlotFreedNotifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewCoordinator wires the coordinator.
func NewCoordinator(ledger appointments.Ledger, cal calendar.Calendar, oracle *availability.Oracle, c *clinic.Clinic, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		ledger:   ledger,
		calendar: cal,
		oracle:   oracle,
		clinic:   c,
		clock:    clock.New(),
		logger:   logger,
	}
}

// WithClock swaps the time source.
func (c *Coordinator) WithClock(clk clock.Clock) *Coordinator {
	if clk != nil {
		c.clock = clk
	}
	return c
}

// WithMetrics records calendar drift.
func (c *Coordinator) WithMetrics(m *metrics.BookingMetrics) *Coordinator {
	c.metrics = m
	return c
}

// SetNotifier registers the receiver of freed slots. The waitlist scheduler
// depends on the coordinator, so it is attached after construction.
func (c *Coordinator) SetNotifier(n SlotFreedNotifier) {
	c.notifier = n
}

// Find returns the active appointment of phone at start.
func (c *Coordinator) Find(ctx context.Context, phone string, start time.Time) (appointments.Record, error) {
	row, err := c.findActive(ctx, start, phone)
	if err != nil {
		return appointments.Record{}, err
	}
	return row.Record, nil
}

// HasFutureAppointment reports whether phone holds an active appointment
// that has not started yet.
func (c *Coordinator) HasFutureAppointment(ctx context.Context, phone string) (bool, error) {
	rows, err := c.ledger.List(ctx)
	if err != nil {
		return false, fmt.Errorf("booking: future appointment: %w", err)
	}
	return appointments.HasFuture(rows, phone, c.clock.Now()), nil
}

// Reschedule moves the appointment identified by key to newStart. The key
// is kept, so calendar lookups keep working after the move.
func (c *Coordinator) Reschedule(ctx context.Context, key appointments.Key, newStart time.Time) (appointments.Record, error) {
	if !newStart.After(c.clock.Now()) {
		return appointments.Record{}, ErrPast
	}
	rows, err := c.ledger.List(ctx)
	if err != nil {
		return appointments.Record{}, fmt.Errorf("booking: reschedule: %w", err)
	}
	row, ok := appointments.FindByKey(rows, key)
	if !ok || !row.Record.Active() {
		return appointments.Record{}, ErrNotFound
	}

	free, err := c.oracle.IsFree(ctx, newStart, availability.ExcludeKey(key))
	if err != nil {
		return appointments.Record{}, fmt.Errorf("booking: reschedule: %w", err)
	}
	if !free {
		return appointments.Record{}, ErrSlotTaken
	}

	rec := row.Record
	previous := rec.StartTime
	rec.StartTime = newStart.In(c.clinic.TimeZone)
	rec.FollowUpDate = FollowUpDate(newStart)
	rec.Confirm3hSent = false
	rec.ReminderAck = false
	rec.Nudge2hSent = false
	if err := c.ledger.Update(ctx, row.Index, rec); err != nil {
		return appointments.Record{}, fmt.Errorf("booking: reschedule: %w", err)
	}

	c.patchEvent(ctx, rec)
	c.logger.Info("booking: appointment rescheduled",
		"appt_key", key.String(),
		"from", c.clinic.FormatSlot(previous),
		"to", c.clinic.FormatSlot(rec.StartTime),
	)
	return rec, nil
}

func (c *Coordinator) patchEvent(ctx context.Context, rec appointments.Record) {
	key := rec.Key().String()
	event, err := c.calendar.FindEventByKey(ctx, key)
	if err != nil {
		c.logger.Warn("booking: event lookup failed", "appt_key", key, "error", err)
		c.metrics.ObserveReconcileNeeded("patch_event")
		return
	}
	if event == nil {
		c.logger.Info("booking: no calendar event to move", "appt_key", key)
		return
	}
	want := EventFor(c.clinic, rec)
	patch := calendar.Event{Start: want.Start, End: want.End}
	if err := c.calendar.PatchEvent(ctx, event.ID, patch); err != nil {
		c.logger.Warn("booking: event not moved", "appt_key", key, "event_id", event.ID, "error", err)
		c.metrics.ObserveReconcileNeeded("patch_event")
	}
}

// Cancel cancels the active appointment at start. An empty phone cancels
// whichever appointment holds the slot.
func (c *Coordinator) Cancel(ctx context.Context, start time.Time, phone string) (appointments.Record, error) {
	row, err := c.findActive(ctx, start, phone)
	if err != nil {
		return appointments.Record{}, err
	}
	rec := row.Record
	rec.Status = appointments.Cancelled
	if err := c.ledger.Update(ctx, row.Index, rec); err != nil {
		return appointments.Record{}, fmt.Errorf("booking: cancel: %w", err)
	}
	deleteEventByKey(ctx, c.calendar, rec.Key(), c.logger, c.metrics)
	c.logger.Info("booking: appointment cancelled", "appt_key", rec.Key().String(), "slot", c.clinic.FormatSlot(start))

	if c.notifier != nil && start.After(c.clock.Now()) {
		c.notifier.SlotFreed(ctx, start)
	}
	return rec, nil
}

// AcknowledgeReminder records that the patient confirmed attendance.
func (c *Coordinator) AcknowledgeReminder(ctx context.Context, start time.Time, phone string) (appointments.Record, error) {
	row, err := c.findActive(ctx, start, phone)
	if err != nil {
		return appointments.Record{}, err
	}
	rec := row.Record
	if rec.ReminderAck {
		return rec, nil
	}
	rec.ReminderAck = true
	if err := c.ledger.Update(ctx, row.Index, rec); err != nil {
		return appointments.Record{}, fmt.Errorf("booking: acknowledge: %w", err)
	}
	return rec, nil
}

func (c *Coordinator) findActive(ctx context.Context, start time.Time, phone string) (appointments.Row, error) {
	rows, err := c.ledger.List(ctx)
	if err != nil {
		return appointments.Row{}, fmt.Errorf("booking: read ledger: %w", err)
	}
	row, ok := appointments.FindActive(rows, start, phone)
	if !ok {
		return appointments.Row{}, ErrNotFound
	}
	return row, nil
}
