// Package booking turns confirmed funnel selections into ledger rows and
// calendar events, and moves or cancels them afterwards.
//
// Two patients may confirm the same slot at once: both pass the availability
// pre-check, both rows get appended, and the reconcile step that follows every
// append keeps the earliest created row and cancels the rest.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/availability"
	"github.com/wolfman30/dental-whatsapp-bot/internal/calendar"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Reason explains why a booking did not go through.
type Reason string

const (
	ReasonPast        Reason = "past"
	ReasonTakenPre    Reason = "taken-pre"
	ReasonTakenPost   Reason = "taken-post"
	ReasonUnavailable Reason = "unavailable"
	ReasonFailed      Reason = "failed"
)

// DefaultConfirmationDelay separates the location pin from the final text so
// WhatsApp renders them in order.
const DefaultConfirmationDelay = 900 * time.Millisecond

// followUpMonths is how long after the visit the check-up invitation goes out.
const followUpMonths = 6

// The reconcile read is retried before the booking is reported as failed.
const (
	reconcileAttempts = 3
	reconcileBackoff  = 250 * time.Millisecond
)

var eventReminders = []time.Duration{60 * time.Minute, 10 * time.Minute}

// Request is a fully collected booking.
type Request struct {
	Phone     string
	Name      string
	Procedure clinic.ProcedureCode
	Start     time.Time
	Language  clinic.Language
}

// Result is the outcome of Finalize. Record is set when OK.
type Result struct {
	OK     bool
	Reason Reason
	Record appointments.Record
}

// Finalizer books slots.
type Finalizer struct {
	ledger   appointments.Ledger
	calendar calendar.Calendar
	oracle   *availability.Oracle
	clinic   *clinic.Clinic
	catalog  *messages.Catalog
	sender   whatsapp.Sender
	clock    clock.Clock
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger

	confirmDelay time.Duration

	// appendMu keeps creation stamps strictly increasing and in ledger
	// order.
	appendMu    sync.Mutex
	lastCreated time.Time
}

// NewFinalizer wires the booking collaborators.
func NewFinalizer(ledger appointments.Ledger, cal calendar.Calendar, oracle *availability.Oracle, c *clinic.Clinic, catalog *messages.Catalog, sender whatsapp.Sender, logger *logging.Logger) *Finalizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Finalizer{
		ledger:       ledger,
		calendar:     cal,
		oracle:       oracle,
		clinic:       c,
		catalog:      catalog,
		sender:       sender,
		clock:        clock.New(),
		logger:       logger,
		confirmDelay: DefaultConfirmationDelay,
	}
}

// WithClock swaps the time source.
func (f *Finalizer) WithClock(c clock.Clock) *Finalizer {
	if c != nil {
		f.clock = c
	}
	return f
}

// WithMetrics records booking outcomes.
func (f *Finalizer) WithMetrics(m *metrics.BookingMetrics) *Finalizer {
	f.metrics = m
	return f
}

// WithConfirmationDelay overrides the pause before the final confirmation.
func (f *Finalizer) WithConfirmationDelay(d time.Duration) *Finalizer {
	if d >= 0 {
		f.confirmDelay = d
	}
	return f
}

// Finalize books req.Start for req.Phone. The patient always receives either
// the success sequence or a corrective message. A non-nil error accompanies
// the unavailable and failed reasons.
func (f *Finalizer) Finalize(ctx context.Context, req Request) (Result, error) {
	log := f.logger.With("phone", req.Phone, "slot", f.clinic.FormatSlot(req.Start))

	if !req.Start.After(f.clock.Now()) {
		f.send(ctx, f.catalog.SlotPast(req.Phone, req.Language))
		return f.reject(ReasonPast), nil
	}

	free, err := f.oracle.IsFree(ctx, req.Start)
	if err != nil {
		log.Error("booking: availability check failed", "error", err)
		f.send(ctx, f.catalog.ServiceUnavailable(req.Phone, req.Language))
		return f.reject(ReasonUnavailable), fmt.Errorf("booking: finalize: %w", err)
	}
	if !free {
		log.Info("booking: slot taken before append")
		f.send(ctx, f.catalog.SlotTaken(req.Phone, req.Language))
		return f.reject(ReasonTakenPre), nil
	}

	rec, err := f.appendRecord(ctx, req)
	if err != nil {
		log.Error("booking: ledger append failed", "error", err)
		f.send(ctx, f.catalog.ServiceUnavailable(req.Phone, req.Language))
		return f.reject(ReasonFailed), fmt.Errorf("booking: finalize: %w", err)
	}
	log = log.With("appt_key", rec.Key().String())

	event, err := f.calendar.CreateEvent(ctx, f.eventFor(rec))
	if err != nil {
		log.Error("booking: calendar event not created", "error", err)
		f.metrics.ObserveReconcileNeeded("create_event")
	}

	won, err := f.reconcile(ctx, rec)
	if err != nil {
		// Without a ledger read the slot may still hold a rival row, so the
		// patient is not told it is confirmed. The row stays for staff to
		// settle.
		log.Error("booking: reconcile failed, booking not confirmed", "error", err)
		f.metrics.ObserveReconcileNeeded("reconcile")
		f.send(ctx, f.catalog.ServiceUnavailable(req.Phone, req.Language))
		return f.reject(ReasonUnavailable), fmt.Errorf("booking: finalize: %w", err)
	}
	if !won {
		// Our own reconcile or the rival's may already have removed it.
		if event.ID != "" {
			if err := f.calendar.DeleteEvent(ctx, event.ID); err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
				log.Warn("booking: losing event not deleted", "event_id", event.ID, "error", err)
				f.metrics.ObserveReconcileNeeded("delete_event")
			}
		}
		log.Info("booking: slot lost to earlier booking")
		f.send(ctx, f.catalog.SlotTaken(req.Phone, req.Language))
		return f.reject(ReasonTakenPost), nil
	}

	f.send(ctx, f.catalog.PreAppointmentDoc(req.Phone, req.Language, rec.Procedure))
	f.send(ctx, f.catalog.ClinicPin(req.Phone))
	if err := f.clock.Sleep(ctx, f.confirmDelay); err != nil {
		log.Warn("booking: confirmation delay interrupted", "error", err)
	}
	f.send(ctx, f.catalog.Confirmation(req.Phone, req.Language, rec.Name, rec.Procedure, rec.StartTime))

	f.metrics.ObserveBooking("ok")
	log.Info("booking: appointment confirmed", "procedure", rec.Procedure)
	return Result{OK: true, Record: rec}, nil
}

func (f *Finalizer) appendRecord(ctx context.Context, req Request) (appointments.Record, error) {
	f.appendMu.Lock()
	defer f.appendMu.Unlock()

	created := f.clock.Now()
	if !created.After(f.lastCreated) {
		created = f.lastCreated.Add(time.Nanosecond)
	}

	rec := appointments.Record{
		CreatedAt:    appointments.StampCreatedAt(created),
		Name:         req.Name,
		Phone:        req.Phone,
		StartTime:    req.Start.In(f.clinic.TimeZone),
		Procedure:    req.Procedure,
		Status:       appointments.Confirmed,
		Language:     req.Language,
		DocumentKey:  clinic.PostDocumentKey,
		FollowUpDate: FollowUpDate(req.Start),
	}
	if err := f.ledger.Append(ctx, rec); err != nil {
		return appointments.Record{}, err
	}
	f.lastCreated = created
	return rec, nil
}

// reconcile settles every active row at rec's start. It reports whether rec
// is the surviving booking.
func (f *Finalizer) reconcile(ctx context.Context, rec appointments.Record) (bool, error) {
	rows, err := f.readLedger(ctx)
	if err != nil {
		return false, err
	}
	active := appointments.ActiveAt(rows, rec.StartTime)
	if len(active) == 0 {
		// Our row is already cancelled by a concurrent reconcile.
		return false, nil
	}

	winner := active[0].Record.Key()
	for _, loser := range active[1:] {
		lost := loser.Record
		lost.Status = appointments.Cancelled
		if err := f.ledger.Update(ctx, loser.Index, lost); err != nil {
			f.logger.Error("booking: cancel duplicate row failed", "row", loser.Index, "error", err)
			f.metrics.ObserveReconcileNeeded("cancel_duplicate")
			continue
		}
		f.logger.Warn("booking: duplicate booking cancelled",
			"slot", f.clinic.FormatSlot(rec.StartTime),
			"winner", winner.String(),
			"loser", lost.Key().String(),
		)
		f.deleteEventByKey(ctx, lost.Key())
	}
	return winner == rec.Key(), nil
}

func (f *Finalizer) readLedger(ctx context.Context) ([]appointments.Row, error) {
	var err error
	for attempt := 1; attempt <= reconcileAttempts; attempt++ {
		var rows []appointments.Row
		if rows, err = f.ledger.List(ctx); err == nil {
			return rows, nil
		}
		f.logger.Warn("booking: reconcile read failed", "attempt", attempt, "error", err)
		if attempt < reconcileAttempts {
			if serr := f.clock.Sleep(ctx, reconcileBackoff*time.Duration(attempt)); serr != nil {
				break
			}
		}
	}
	return nil, fmt.Errorf("read ledger: %w", err)
}

func (f *Finalizer) deleteEventByKey(ctx context.Context, key appointments.Key) {
	deleteEventByKey(ctx, f.calendar, key, f.logger, f.metrics)
}

func (f *Finalizer) eventFor(rec appointments.Record) calendar.Event {
	return EventFor(f.clinic, rec)
}

func (f *Finalizer) reject(reason Reason) Result {
	f.metrics.ObserveBooking(string(reason))
	return Result{Reason: reason}
}

func (f *Finalizer) send(ctx context.Context, msg whatsapp.Message) {
	if err := f.sender.Send(ctx, msg); err != nil {
		f.logger.Warn("booking: message not delivered", "to", msg.To, "type", msg.Type, "error", err)
	}
}

// EventFor renders the calendar mirror of an appointment.
func EventFor(c *clinic.Clinic, rec appointments.Record) calendar.Event {
	duration := 30 * time.Minute
	color := ""
	if p, ok := c.Procedure(rec.Procedure); ok {
		if p.Duration > 0 {
			duration = p.Duration
		}
		color = p.ColorID
	}
	label := c.Label(rec.Procedure, clinic.Spanish)
	return calendar.Event{
		Summary: fmt.Sprintf("%s – %s – %s", label, rec.Name, rec.Phone),
		Description: fmt.Sprintf("Paciente: %s\nTeléfono: %s\nProcedimiento: %s\nIdioma: %s",
			rec.Name, rec.Phone, label, rec.Language),
		Location:  fmt.Sprintf("%s, %s", c.Location.Name, c.Location.Address),
		Start:     rec.StartTime,
		End:       rec.StartTime.Add(duration),
		ColorID:   color,
		Key:       rec.Key().String(),
		Reminders: eventReminders,
	}
}

// FollowUpDate is when the check-up invitation for a visit at start is due.
func FollowUpDate(start time.Time) time.Time {
	return start.AddDate(0, followUpMonths, 0)
}

func deleteEventByKey(ctx context.Context, cal calendar.Calendar, key appointments.Key, logger *logging.Logger, m *metrics.BookingMetrics) {
	event, err := cal.FindEventByKey(ctx, key.String())
	if err != nil {
		logger.Warn("booking: event lookup failed", "appt_key", key.String(), "error", err)
		m.ObserveReconcileNeeded("delete_event")
		return
	}
	if event == nil {
		return
	}
	if err := cal.DeleteEvent(ctx, event.ID); err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
		logger.Warn("booking: event not deleted", "appt_key", key.String(), "event_id", event.ID, "error", err)
		m.ObserveReconcileNeeded("delete_event")
	}
}
