package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/actions"
	"github.com/wolfman30/dental-whatsapp-bot/internal/booking"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/funnel"
)

func (h *Handler) advance(ctx context.Context, phone string, lang clinic.Language, step funnel.Step, a actions.Action) error {
	_, err := h.funnel.Advance(ctx, phone, lang, step, func(s *funnel.State) {
		s.Procedure = clinic.ProcedureCode(a.Procedure)
		s.Date = a.Date
		s.Period = clinic.Period(a.Period)
		s.Hour = a.Hour
		s.Name = a.Name
	})
	if err != nil {
		return fmt.Errorf("assistant: advance %s: %w", step, err)
	}
	return nil
}

func (h *Handler) startBooking(ctx context.Context, phone string, lang clinic.Language) error {
	if err := h.advance(ctx, phone, lang, funnel.ChooseProc, actions.Action{}); err != nil {
		return err
	}
	h.send(ctx, h.catalog.ProcedureList(phone, lang))
	return nil
}

func (h *Handler) chooseProcedure(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	proc, ok := h.clinic.Procedure(clinic.ProcedureCode(a.Procedure))
	if !ok {
		return h.startBooking(ctx, phone, lang)
	}
	if err := h.advance(ctx, phone, lang, funnel.ChooseDay, actions.Action{Procedure: string(proc.Code)}); err != nil {
		return err
	}
	h.send(ctx, h.catalog.ProcedureDetail(phone, lang, proc))
	return nil
}

// offerDays lists the bookable days, keeping the reschedule context of a.
func (h *Handler) offerDays(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	if _, ok := h.clinic.Procedure(clinic.ProcedureCode(a.Procedure)); !ok {
		return h.startBooking(ctx, phone, lang)
	}
	next := actions.Action{Procedure: a.Procedure, Name: a.Name, Reschedule: a.Reschedule, From: a.From}
	if err := h.advance(ctx, phone, lang, funnel.ChooseDay, next); err != nil {
		return err
	}
	days := h.clinic.UpcomingDays(h.clock.Now())
	h.send(ctx, h.catalog.DayList(phone, lang, days, next))
	return nil
}

func (h *Handler) chooseDay(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	if _, err := h.clinic.StartOfDay(a.Date); err != nil {
		return h.offerDays(ctx, phone, lang, a)
	}
	next := actions.Action{Procedure: a.Procedure, Date: a.Date, Name: a.Name, Reschedule: a.Reschedule, From: a.From}
	if err := h.advance(ctx, phone, lang, funnel.ChoosePeriod, next); err != nil {
		return err
	}
	h.send(ctx, h.catalog.PeriodPrompt(phone, lang, next))
	return nil
}

func (h *Handler) choosePeriod(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	if _, ok := clinic.ParsePeriod(a.Period); !ok {
		return h.chooseDay(ctx, phone, lang, a)
	}
	return h.offerTimes(ctx, phone, lang, a)
}

// offerTimes sends the free times of a's day and period.
func (h *Handler) offerTimes(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	next := actions.Action{Procedure: a.Procedure, Date: a.Date, Period: a.Period, Name: a.Name, Reschedule: a.Reschedule, From: a.From}
	hours, err := h.slots.FreeSlots(ctx, a.Date, clinic.Period(a.Period))
	if err != nil {
		h.logger.Error("assistant: free slots unavailable", "phone", phone, "date", a.Date, "error", err)
		h.send(ctx, h.catalog.ServiceUnavailable(phone, lang))
		return nil
	}
	if len(hours) == 0 {
		if err := h.advance(ctx, phone, lang, funnel.ChoosePeriod, next); err != nil {
			return err
		}
		h.send(ctx, h.catalog.NoSlots(phone, lang, next))
		return nil
	}
	if err := h.advance(ctx, phone, lang, funnel.ChooseTime, next); err != nil {
		return err
	}
	h.send(ctx, h.catalog.TimeList(phone, lang, hours, next))
	return nil
}

func (h *Handler) chooseHour(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	start, err := h.clinic.Slot(a.Date, a.Hour)
	if err != nil {
		return h.offerDays(ctx, phone, lang, a)
	}
	if a.Reschedule {
		return h.moveAppointment(ctx, phone, lang, a, start)
	}
	if a.Name != "" {
		return h.preconfirm(ctx, phone, lang, a, start)
	}
	next := actions.Action{Procedure: a.Procedure, Date: a.Date, Period: a.Period, Hour: a.Hour}
	if err := h.advance(ctx, phone, lang, funnel.AwaitName, next); err != nil {
		return err
	}
	h.send(ctx, h.catalog.AskName(phone, lang))
	return nil
}

func (h *Handler) receiveName(ctx context.Context, phone string, lang clinic.Language, st funnel.State, text string) error {
	name := strings.Join(strings.Fields(text), " ")
	if !validName(name) {
		h.send(ctx, h.catalog.InvalidName(phone, lang))
		return nil
	}
	start, err := h.clinic.Slot(st.Date, st.Hour)
	if err != nil {
		return h.offerDays(ctx, phone, lang, actions.Action{Procedure: string(st.Procedure)})
	}
	a := actions.Action{Procedure: string(st.Procedure), Date: st.Date, Period: string(st.Period), Hour: st.Hour, Name: name}
	return h.preconfirm(ctx, phone, lang, a, start)
}

func (h *Handler) preconfirm(ctx context.Context, phone string, lang clinic.Language, a actions.Action, start time.Time) error {
	confirm := actions.Action{Kind: actions.Confirm, Procedure: a.Procedure, Date: a.Date, Period: a.Period, Hour: a.Hour, Name: a.Name}
	if err := h.advance(ctx, phone, lang, funnel.AwaitPreconfirm, confirm); err != nil {
		return err
	}
	h.send(ctx, h.catalog.PreConfirm(phone, lang, confirm, start))
	return nil
}

// confirm finalizes a pre-confirmed booking. A second tap on a slot the
// phone already holds is answered without booking again.
func (h *Handler) confirm(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	start, err := h.clinic.Slot(a.Date, a.Hour)
	if err != nil || a.Name == "" {
		return h.offerDays(ctx, phone, lang, a)
	}

	_, err = h.appointments.Find(ctx, phone, start)
	switch {
	case err == nil:
		h.reset(ctx, phone)
		h.send(ctx, h.catalog.AlreadyBooked(phone, lang, start))
		return nil
	case err != nil && !errors.Is(err, booking.ErrNotFound):
		h.logger.Warn("assistant: double booking check failed", "phone", phone, "error", err)
	}

	res, err := h.booker.Finalize(ctx, booking.Request{
		Phone:     phone,
		Name:      a.Name,
		Procedure: clinic.ProcedureCode(a.Procedure),
		Start:     start,
		Language:  lang,
	})
	if err != nil {
		h.logger.Error("assistant: booking failed", "phone", phone, "reason", res.Reason, "error", err)
	}

	switch {
	case res.OK:
		h.reset(ctx, phone)
	case res.Reason == booking.ReasonTakenPre, res.Reason == booking.ReasonTakenPost:
		if a.Period == "" {
			a.Period = string(h.clinic.PeriodOf(start))
		}
		return h.offerTimes(ctx, phone, lang, a)
	case res.Reason == booking.ReasonPast:
		return h.offerDays(ctx, phone, lang, a)
	}
	// Unavailable and failed keep the pre-confirmation so the patient can
	// tap confirm again.
	return nil
}

// resume rebuilds the funnel from a nudge token and re-sends that step.
func (h *Handler) resume(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	a.Kind = ""
	switch funnel.Step(a.Step) {
	case funnel.ChooseDay:
		return h.offerDays(ctx, phone, lang, a)
	case funnel.ChoosePeriod:
		return h.chooseDay(ctx, phone, lang, a)
	case funnel.ChooseTime:
		return h.choosePeriod(ctx, phone, lang, a)
	case funnel.AwaitName:
		a.Name = ""
		return h.chooseHour(ctx, phone, lang, a)
	case funnel.AwaitPreconfirm:
		start, err := h.clinic.Slot(a.Date, a.Hour)
		if err != nil || !validName(a.Name) {
			return h.offerDays(ctx, phone, lang, a)
		}
		return h.preconfirm(ctx, phone, lang, a, start)
	default:
		return h.startBooking(ctx, phone, lang)
	}
}
