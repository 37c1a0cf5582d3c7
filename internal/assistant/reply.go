package assistant

import (
	"context"

	"github.com/wolfman30/dental-whatsapp-bot/internal/actions"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

func (h *Handler) handleReply(ctx context.Context, msg whatsapp.InboundMessage) error {
	h.markSeen(msg.From)
	lang := h.languageOf(ctx, msg.From)

	a, err := actions.Parse(msg.ReplyID)
	if err != nil {
		h.logger.Warn("assistant: corrupt reply id", "phone", msg.From, "reply_id", msg.ReplyID, "error", err)
	}
	if a.Kind != actions.Advisor {
		h.stopAdvisor(msg.From)
	}
	return h.dispatch(ctx, msg.From, lang, a)
}

// dispatch routes a decoded action. Text intents reuse it.
func (h *Handler) dispatch(ctx context.Context, phone string, lang clinic.Language, a actions.Action) error {
	switch a.Kind {
	case actions.MainMenu:
		h.mainMenu(ctx, phone, lang)
	case actions.ShowLocation:
		h.reset(ctx, phone)
		h.send(ctx, h.catalog.ClinicPin(phone))
	case actions.Advisor:
		h.startAdvisor(ctx, phone, lang)
	case actions.CancelFlow:
		h.reset(ctx, phone)
		h.send(ctx, h.catalog.FlowCancelled(phone, lang))

	case actions.Book:
		return h.startBooking(ctx, phone, lang)
	case actions.ChooseProc:
		return h.chooseProcedure(ctx, phone, lang, a)
	case actions.Schedule, actions.PickDate, actions.ChangeDetails:
		return h.offerDays(ctx, phone, lang, a)
	case actions.ChooseDay:
		return h.chooseDay(ctx, phone, lang, a)
	case actions.ChoosePeriod:
		return h.choosePeriod(ctx, phone, lang, a)
	case actions.ChooseHour:
		return h.chooseHour(ctx, phone, lang, a)
	case actions.Confirm:
		return h.confirm(ctx, phone, lang, a)
	case actions.Resume:
		return h.resume(ctx, phone, lang, a)

	case actions.ConfirmAttendance, actions.Confirm2h:
		h.acknowledge(ctx, phone, lang, a)
	case actions.CancelAppointment:
		h.cancelAppointment(ctx, phone, lang, a)
	case actions.RescheduleStart:
		return h.startReschedule(ctx, phone, lang, a)
	case actions.UpgradeAccept:
		h.acceptUpgrade(ctx, phone, lang, a)
	case actions.UpgradeSkip:
		h.skipUpgrade(ctx, phone, lang, a)

	default:
		h.mainMenu(ctx, phone, lang)
	}
	return nil
}
