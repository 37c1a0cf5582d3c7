package gsuite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/dental-whatsapp-bot/internal/calendar"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

var calendarTracer = otel.Tracer("dental.internal.gsuite.calendar")

// Calendar mirrors appointments in a Google Calendar.
type Calendar struct {
	events     *calendarapi.EventsService
	calendarID string
	loc        *time.Location
	logger     *logging.Logger
}

// NewCalendar connects to calendarID. Event times are written with the
// location's IANA name.
func NewCalendar(ctx context.Context, calendarID string, loc *time.Location, logger *logging.Logger, opts ...option.ClientOption) (*Calendar, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("gsuite: calendar id required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	svc, err := calendarapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gsuite: calendar service: %w", err)
	}
	return &Calendar{events: svc.Events, calendarID: calendarID, loc: loc, logger: logger}, nil
}

func (c *Calendar) CreateEvent(ctx context.Context, e calendar.Event) (calendar.Event, error) {
	ctx, span := calendarTracer.Start(ctx, "gsuite.calendar.insert")
	defer span.End()

	body := &calendarapi.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		ColorId:     e.ColorID,
		Start:       c.dateTime(e.Start),
		End:         c.dateTime(e.End),
	}
	if e.Key != "" {
		body.ExtendedProperties = &calendarapi.EventExtendedProperties{
			Private: map[string]string{calendar.KeyProperty: e.Key},
		}
	}
	if len(e.Reminders) > 0 {
		overrides := make([]*calendarapi.EventReminder, 0, len(e.Reminders))
		for _, d := range e.Reminders {
			overrides = append(overrides, &calendarapi.EventReminder{Method: "popup", Minutes: int64(d / time.Minute)})
		}
		body.Reminders = &calendarapi.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		}
	}

	created, err := c.events.Insert(c.calendarID, body).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return calendar.Event{}, fmt.Errorf("gsuite: insert event: %w", err)
	}
	return c.toEvent(created), nil
}

func (c *Calendar) ListEventsByDate(ctx context.Context, date string) ([]calendar.Event, error) {
	ctx, span := calendarTracer.Start(ctx, "gsuite.calendar.list_by_date")
	defer span.End()
	span.SetAttributes(attribute.String("dental.date", date))

	dayStart, err := time.ParseInLocation("2006-01-02", date, c.loc)
	if err != nil {
		return nil, fmt.Errorf("gsuite: invalid date %q: %w", date, err)
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	var out []calendar.Event
	call := c.events.List(c.calendarID).
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		SingleEvents(true).
		MaxResults(2500)
	err = call.Pages(ctx, func(page *calendarapi.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			out = append(out, c.toEvent(item))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("gsuite: list events for %s: %w", date, err)
	}
	c.logger.Debug("calendar events listed", "date", date, "count", len(out))
	return out, nil
}

func (c *Calendar) FindEventByKey(ctx context.Context, key string) (*calendar.Event, error) {
	ctx, span := calendarTracer.Start(ctx, "gsuite.calendar.find_by_key")
	defer span.End()

	resp, err := c.events.List(c.calendarID).
		PrivateExtendedProperty(calendar.KeyProperty + "=" + key).
		SingleEvents(true).
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("gsuite: find event by key: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	e := c.toEvent(resp.Items[0])
	return &e, nil
}

func (c *Calendar) PatchEvent(ctx context.Context, id string, e calendar.Event) error {
	ctx, span := calendarTracer.Start(ctx, "gsuite.calendar.patch")
	defer span.End()

	body := &calendarapi.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		ColorId:     e.ColorID,
	}
	if !e.Start.IsZero() {
		body.Start = c.dateTime(e.Start)
	}
	if !e.End.IsZero() {
		body.End = c.dateTime(e.End)
	}
	if _, err := c.events.Patch(c.calendarID, id, body).Context(ctx).Do(); err != nil {
		span.RecordError(err)
		if isNotFound(err) {
			return calendar.ErrEventNotFound
		}
		return fmt.Errorf("gsuite: patch event %s: %w", id, err)
	}
	return nil
}

func (c *Calendar) DeleteEvent(ctx context.Context, id string) error {
	ctx, span := calendarTracer.Start(ctx, "gsuite.calendar.delete")
	defer span.End()

	if err := c.events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil {
		span.RecordError(err)
		if isNotFound(err) {
			return calendar.ErrEventNotFound
		}
		return fmt.Errorf("gsuite: delete event %s: %w", id, err)
	}
	return nil
}

func (c *Calendar) dateTime(t time.Time) *calendarapi.EventDateTime {
	dt := &calendarapi.EventDateTime{DateTime: t.In(c.loc).Format(time.RFC3339)}
	if name := c.loc.String(); name != "" && name != "Local" && name != "UTC" {
		if _, err := time.LoadLocation(name); err == nil {
			dt.TimeZone = name
		}
	}
	return dt
}

func (c *Calendar) toEvent(item *calendarapi.Event) calendar.Event {
	e := calendar.Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		ColorID:     item.ColorId,
	}
	if item.ExtendedProperties != nil {
		e.Key = item.ExtendedProperties.Private[calendar.KeyProperty]
	}
	e.Start, e.AllDay = c.parseDateTime(item.Start)
	e.End, _ = c.parseDateTime(item.End)
	if e.End.Before(e.Start) {
		e.End = e.Start
	}
	return e
}

// parseDateTime handles timed and all-day boundaries. An all-day end date is
// exclusive in the API, so it already marks the next local midnight.
func (c *Calendar) parseDateTime(dt *calendarapi.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t.In(c.loc), false
		}
	}
	if dt.Date != "" {
		if t, err := time.ParseInLocation("2006-01-02", dt.Date, c.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

var _ calendar.Calendar = (*Calendar)(nil)
