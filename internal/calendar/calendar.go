// Package calendar mirrors appointments as calendar events. Events carry the
// appointment key in a private property so they can be found again after a
// reschedule.
package calendar

import (
	"context"
	"time"
)

// Event is a calendar entry. AllDay events cover the whole local day.
type Event struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	ColorID     string
	// Key is the appointment key stored in the private extended property.
	Key string
	// Reminders are popup offsets before Start.
	Reminders []time.Duration
}

// Overlaps reports whether the event intersects [start, end).
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// Calendar is the event store collaborator.
type Calendar interface {
	CreateEvent(ctx context.Context, e Event) (Event, error)
	// ListEventsByDate returns every event intersecting the local date
	// ("2006-01-02"), all-day events included.
	ListEventsByDate(ctx context.Context, date string) ([]Event, error)
	// FindEventByKey returns nil without error when no event carries key.
	FindEventByKey(ctx context.Context, key string) (*Event, error)
	PatchEvent(ctx context.Context, id string, e Event) error
	DeleteEvent(ctx context.Context, id string) error
}

// KeyProperty is the private extended property holding the appointment key.
const KeyProperty = "apptKey"
