package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	"github.com/wolfman30/dental-whatsapp-bot/internal/funnel"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

const (
	// Tolerance is how far from the ideal lead time a reminder still goes out.
	Tolerance = 5 * time.Minute

	confirmLead   = 3 * time.Hour
	lastCallLead  = 2 * time.Hour
	completeAfter = time.Hour
	followUpHour  = 9
)

// Job names.
const (
	Confirm3hJob    = "confirm-3h"
	Nudge2hJob      = "nudge-2h"
	FunnelNudgesJob = "funnel-nudges"
	CompleteJob     = "complete"
	FollowUpJob     = "follow-up"
)

// Reminders implements the ledger sweeps.
type Reminders struct {
	ledger  appointments.Ledger
	clinic  *clinic.Clinic
	catalog *messages.Catalog
	sender  whatsapp.Sender
	clock   clock.Clock
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewReminders wires the sweeps.
func NewReminders(ledger appointments.Ledger, c *clinic.Clinic, catalog *messages.Catalog, sender whatsapp.Sender, logger *logging.Logger) *Reminders {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reminders{
		ledger:  ledger,
		clinic:  c,
		catalog: catalog,
		sender:  sender,
		clock:   clock.New(),
		logger:  logger,
	}
}

// WithClock swaps the time source.
func (r *Reminders) WithClock(c clock.Clock) *Reminders {
	if c != nil {
		r.clock = c
	}
	return r
}

// WithMetrics counts notifications.
func (r *Reminders) WithMetrics(m *metrics.BookingMetrics) *Reminders {
	r.metrics = m
	return r
}

// Schedule holds the sweep intervals.
type Schedule struct {
	Sweep    time.Duration
	Complete time.Duration
}

// Jobs returns every sweep ready for a Runner. A nil nudger leaves out the
// funnel nudges.
func Jobs(r *Reminders, nudger *funnel.Nudger, s Schedule) []Job {
	if s.Sweep <= 0 {
		s.Sweep = 5 * time.Minute
	}
	if s.Complete <= 0 {
		s.Complete = 10 * time.Minute
	}
	jobs := []Job{
		{Name: Confirm3hJob, Interval: s.Sweep, Run: r.Confirm3h},
		{Name: Nudge2hJob, Interval: s.Sweep, Run: r.Nudge2h},
		{Name: CompleteJob, Interval: s.Complete, Run: r.Complete},
		{Name: FollowUpJob, Interval: s.Complete, Run: r.FollowUp},
	}
	if nudger != nil {
		jobs = append(jobs, Job{Name: FunnelNudgesJob, Interval: s.Sweep, Run: func(ctx context.Context) error {
			stats, err := nudger.Sweep(ctx)
			if err == nil && (stats.Nudged > 0 || stats.Dropped > 0) {
				r.logger.Info("funnel sweep", "nudged", stats.Nudged, "dropped", stats.Dropped, "failed", stats.Failed)
			}
			return err
		}})
	}
	return jobs
}

// sweep applies visit to every row and saves the rows it changed.
func (r *Reminders) sweep(ctx context.Context, job string, visit func(rec *appointments.Record) bool) error {
	rows, err := r.ledger.List(ctx)
	if err != nil {
		return fmt.Errorf("jobs: %s: %w", job, err)
	}
	for _, row := range rows {
		rec := row.Record
		if !visit(&rec) {
			continue
		}
		if err := r.ledger.Update(ctx, row.Index, rec); err != nil {
			r.logger.Error("jobs: row not updated", "job", job, "row", row.Index, "phone", rec.Phone, "error", err)
		}
	}
	return nil
}

func due(start, now time.Time, lead time.Duration) bool {
	d := start.Sub(now) - lead
	if d < 0 {
		d = -d
	}
	return d <= Tolerance
}

// Confirm3h asks patients three hours ahead to confirm, move or cancel.
// When the interactive message fails the approved template is tried.
func (r *Reminders) Confirm3h(ctx context.Context) error {
	now := r.clock.Now()
	return r.sweep(ctx, Confirm3hJob, func(rec *appointments.Record) bool {
		if rec.Status != appointments.Confirmed || rec.Confirm3hSent || !due(rec.StartTime, now, confirmLead) {
			return false
		}
		err := r.sender.Send(ctx, r.catalog.Reminder3h(rec.Phone, rec.Language, rec.Name, rec.StartTime))
		if err != nil {
			r.logger.Warn("jobs: interactive reminder failed, trying template", "phone", rec.Phone, "error", err)
			err = r.sender.Send(ctx, r.catalog.Reminder3hTemplate(rec.Phone, rec.Language, rec.Name, rec.StartTime))
		}
		if err != nil {
			r.logger.Error("jobs: reminder not delivered", "phone", rec.Phone, "error", err)
			return false
		}
		rec.Confirm3hSent = true
		r.metrics.ObserveNotification(Confirm3hJob)
		return true
	})
}

// Nudge2h is the last call for reminded patients who did not answer.
func (r *Reminders) Nudge2h(ctx context.Context) error {
	now := r.clock.Now()
	return r.sweep(ctx, Nudge2hJob, func(rec *appointments.Record) bool {
		if rec.Status != appointments.Confirmed || !rec.Confirm3hSent || rec.ReminderAck || rec.Nudge2hSent {
			return false
		}
		if !due(rec.StartTime, now, lastCallLead) {
			return false
		}
		if err := r.sender.Send(ctx, r.catalog.Nudge2h(rec.Phone, rec.Language, rec.StartTime)); err != nil {
			r.logger.Error("jobs: 2h nudge not delivered", "phone", rec.Phone, "error", err)
			return false
		}
		rec.Nudge2hSent = true
		r.metrics.ObserveNotification(Nudge2hJob)
		return true
	})
}

// Complete closes visits that ended and sends the after-care document.
func (r *Reminders) Complete(ctx context.Context) error {
	now := r.clock.Now()
	return r.sweep(ctx, CompleteJob, func(rec *appointments.Record) bool {
		changed := false
		if rec.Status == appointments.Confirmed && now.Sub(rec.StartTime) > completeAfter {
			rec.Status = appointments.Completed
			changed = true
		}
		if rec.Status != appointments.Completed || rec.PDFSent {
			return changed
		}
		msg := r.catalog.PostAppointmentDoc(rec.Phone, rec.Language, rec.DocumentKey, rec.Procedure)
		if err := r.sender.Send(ctx, msg); err != nil {
			r.logger.Error("jobs: after-care document not delivered", "phone", rec.Phone, "error", err)
			return changed
		}
		rec.PDFSent = true
		r.metrics.ObserveNotification("post_document")
		return true
	})
}

// FollowUp invites patients back on their follow-up date, from 09:00 local.
func (r *Reminders) FollowUp(ctx context.Context) error {
	now := r.clock.Now().In(r.clinic.TimeZone)
	if now.Hour() < followUpHour {
		return nil
	}
	today := r.clinic.LocalDate(now)
	return r.sweep(ctx, FollowUpJob, func(rec *appointments.Record) bool {
		if rec.Status == appointments.Cancelled || rec.FollowUpSent || rec.FollowUpDate.IsZero() {
			return false
		}
		if r.clinic.LocalDate(rec.FollowUpDate) != today {
			return false
		}
		if err := r.sender.Send(ctx, r.catalog.FollowUpTemplate(rec.Phone, rec.Language, rec.Name)); err != nil {
			r.logger.Error("jobs: follow-up not delivered", "phone", rec.Phone, "error", err)
			return false
		}
		rec.FollowUpSent = true
		r.metrics.ObserveNotification(FollowUpJob)
		return true
	})
}
