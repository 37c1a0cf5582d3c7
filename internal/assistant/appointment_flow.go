package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/actions"
	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/booking"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/waitlist"
)

// slotOf parses the start time an appointment button carries.
func (h *Handler) slotOf(ctx context.Context, phone string, lang clinic.Language, raw string) (time.Time, bool) {
	start, err := h.clinic.ParseSlot(raw)
	if err != nil {
		h.logger.Warn("assistant: bad slot in reply", "phone", phone, "slot", raw, "error", err)
		h.send(ctx, h.catalog.AppointmentNotFound(phone, lang))
		return time.Time{}, false
	}
	return start, true
}

func recordLanguage(rec appointments.Record, fallback clinic.Language) clinic.Language {
	if rec.Language != "" {
		return rec.Language
	}
	return fallback
}

func (h *Handler) acknowledge(ctx context.Context, phone string, lang clinic.Language, a actions.Action) {
	start, ok := h.slotOf(ctx, phone, lang, a.Slot)
	if !ok {
		return
	}
	h.reset(ctx, phone)
	rec, err := h.appointments.AcknowledgeReminder(ctx, start, phone)
	if err != nil {
		h.logger.Warn("assistant: reminder not acknowledged", "phone", phone, "slot", a.Slot, "error", err)
		h.send(ctx, h.catalog.AppointmentNotFound(phone, lang))
		return
	}
	h.send(ctx, h.catalog.AttendanceConfirmed(phone, recordLanguage(rec, lang)))
}

func (h *Handler) cancelAppointment(ctx context.Context, phone string, lang clinic.Language, a actions.Action) {
	start, ok := h.slotOf(ctx, phone, lang, a.Slot)
	if !ok {
		return
	}
	h.reset(ctx, phone)
	rec, err := h.appointments.Cancel(ctx, start, phone)
	if err != nil {
		if !errors.Is(err, booking.ErrNotFound) {
			h.logger.Error("assistant: cancel failed", "phone", phone, "slot", a.Slot, "error", err)
			h.send(ctx, h.catalog.ServiceUnavailable(phone, lang))
			return
		}
		h.send(ctx, h.catalog.AppointmentNotFound(phone, lang))
		return
	}
	h.logger.Info("assistant: appointment cancelled by patient", "phone", phone, "slot", a.Slot)
	h.send(ctx, h.catalog.AppointmentCancelled(phone, recordLanguage(rec, lang), start))
}

// startReschedule opens the day list for an existing appointment. Later
// choices carry the original start so the hour pick moves it.
func (h *Handler) startReschedule(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	start, ok := h.slotOf(ctx, phone, lang, a.Slot)
	if !ok {
		return nil
	}
	rec, err := h.appointments.Find(ctx, phone, start)
	if err != nil {
		h.reset(ctx, phone)
		h.send(ctx, h.catalog.AppointmentNotFound(phone, lang))
		return nil
	}
	return h.offerDays(ctx, phone, recordLanguage(rec, lang), actions.Action{
		Procedure:  string(rec.Procedure),
		Reschedule: true,
		From:       h.clinic.FormatSlot(rec.StartTime),
	})
}

func (h *Handler) moveAppointment(ctx context.Context, phone string, lang clinic.Language, a actions.Action, newStart time.Time) error {
	from, err := h.clinic.ParseSlot(a.From)
	if err != nil {
		h.reset(ctx, phone)
		h.send(ctx, h.catalog.AppointmentNotFound(phone, lang))
		return nil
	}
	rec, err := h.appointments.Find(ctx, phone, from)
	if err != nil {
		h.reset(ctx, phone)
		h.send(ctx, h.catalog.AppointmentNotFound(phone, lang))
		return nil
	}

	moved, err := h.appointments.Reschedule(ctx, rec.Key(), newStart)
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		h.send(ctx, h.catalog.SlotTaken(phone, lang))
		return h.offerTimes(ctx, phone, lang, a)
	case errors.Is(err, booking.ErrPast):
		h.send(ctx, h.catalog.SlotPast(phone, lang))
		return h.offerDays(ctx, phone, lang, a)
	case errors.Is(err, booking.ErrNotFound):
		h.reset(ctx, phone)
		h.send(ctx, h.catalog.AppointmentNotFound(phone, lang))
		return nil
	case err != nil:
		h.logger.Error("assistant: reschedule failed", "phone", phone, "from", a.From, "error", err)
		h.send(ctx, h.catalog.ServiceUnavailable(phone, lang))
		return nil
	}

	h.reset(ctx, phone)
	h.logger.Info("assistant: appointment rescheduled", "phone", phone, "from", a.From, "to", h.clinic.FormatSlot(newStart))
	h.send(ctx, h.catalog.RescheduleDone(phone, lang, moved.StartTime))
	return nil
}

func (h *Handler) acceptUpgrade(ctx context.Context, phone string, lang clinic.Language, a actions.Action) {
	slot, ok := h.slotOf(ctx, phone, lang, a.Slot)
	if !ok {
		return
	}
	current, ok := h.slotOf(ctx, phone, lang, a.From)
	if !ok {
		return
	}
	h.reset(ctx, phone)

	moved, err := h.upgrades.Accept(ctx, phone, slot, current)
	switch {
	case errors.Is(err, waitlist.ErrSlotGone):
		h.send(ctx, h.catalog.UpgradeGone(phone, lang))
	case errors.Is(err, waitlist.ErrNotFound):
		h.send(ctx, h.catalog.AppointmentNotFound(phone, lang))
	case err != nil:
		h.logger.Error("assistant: upgrade failed", "phone", phone, "slot", a.Slot, "error", err)
		h.send(ctx, h.catalog.ServiceUnavailable(phone, lang))
	default:
		h.send(ctx, h.catalog.RescheduleDone(phone, recordLanguage(moved, lang), moved.StartTime))
	}
}

func (h *Handler) skipUpgrade(ctx context.Context, phone string, lang clinic.Language, a actions.Action) {
	h.reset(ctx, phone)
	if slot, err := h.clinic.ParseSlot(a.Slot); err == nil {
		h.upgrades.Decline(ctx, phone, slot)
	}
	h.send(ctx, h.catalog.UpgradeSkipped(phone, lang))
}
