// Package availability answers whether a start time can still be booked by
// consulting both the appointment ledger and the clinic calendar.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/calendar"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// DefaultWindow is the span after a start time that must be free of
// calendar events.
const DefaultWindow = 30 * time.Minute

// Oracle decides slot availability. It fails closed: when a collaborator
// errors the slot is reported as taken together with the error.
type Oracle struct {
	ledger   appointments.Ledger
	calendar calendar.Calendar
	clinic   *clinic.Clinic
	window   time.Duration
	logger   *logging.Logger
}

// NewOracle builds an oracle. A non-positive window selects DefaultWindow.
func NewOracle(ledger appointments.Ledger, cal calendar.Calendar, c *clinic.Clinic, window time.Duration, logger *logging.Logger) *Oracle {
	if logger == nil {
		logger = logging.Default()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Oracle{ledger: ledger, calendar: cal, clinic: c, window: window, logger: logger}
}

// Option tunes a single availability check.
type Option func(*checkOptions)

type checkOptions struct {
	exclude appointments.Key
}

// ExcludeKey ignores the appointment's own ledger row and calendar event, so
// a reschedule does not collide with itself.
func ExcludeKey(key appointments.Key) Option {
	return func(o *checkOptions) { o.exclude = key }
}

// IsFree reports whether start is bookable.
func (o *Oracle) IsFree(ctx context.Context, start time.Time, opts ...Option) (bool, error) {
	var co checkOptions
	for _, opt := range opts {
		opt(&co)
	}

	rows, err := o.ledger.List(ctx)
	if err != nil {
		return false, fmt.Errorf("availability: read ledger: %w", err)
	}
	if conflictingRow(rows, start, co.exclude) {
		return false, nil
	}

	events, err := o.calendar.ListEventsByDate(ctx, o.clinic.LocalDate(start))
	if err != nil {
		return false, fmt.Errorf("availability: read calendar: %w", err)
	}
	return !o.conflictingEvent(events, start, co.exclude), nil
}

// FreeSlots returns the open start times ("15:04") of a local date and
// period, at most the clinic's MaxSlots, each checked like IsFree.
func (o *Oracle) FreeSlots(ctx context.Context, date string, period clinic.Period) ([]string, error) {
	rows, err := o.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("availability: read ledger: %w", err)
	}
	events, err := o.calendar.ListEventsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("availability: read calendar: %w", err)
	}

	var free []string
	for _, hour := range o.clinic.SlotTimes(period) {
		start, err := o.clinic.Slot(date, hour)
		if err != nil {
			return nil, err
		}
		if conflictingRow(rows, start, appointments.Key{}) || o.conflictingEvent(events, start, appointments.Key{}) {
			continue
		}
		free = append(free, hour)
		if o.clinic.MaxSlots > 0 && len(free) == o.clinic.MaxSlots {
			break
		}
	}
	o.logger.Debug("free slots computed", "date", date, "period", period, "count", len(free))
	return free, nil
}

func conflictingRow(rows []appointments.Row, start time.Time, exclude appointments.Key) bool {
	for _, row := range appointments.ActiveAt(rows, start) {
		if !exclude.IsZero() && row.Record.Key() == exclude {
			continue
		}
		return true
	}
	return false
}

func (o *Oracle) conflictingEvent(events []calendar.Event, start time.Time, exclude appointments.Key) bool {
	end := start.Add(o.window)
	for _, e := range events {
		if !exclude.IsZero() && e.Key == exclude.String() {
			continue
		}
		if e.Overlaps(start, end) {
			return true
		}
	}
	return false
}
