package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/actions"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

// Catalog builds every outbound message of the assistant.
type Catalog struct {
	clinic *clinic.Clinic
}

// NewCatalog binds the copy to a clinic.
func NewCatalog(c *clinic.Clinic) *Catalog {
	return &Catalog{clinic: c}
}

func (c *Catalog) local(t time.Time) time.Time {
	return t.In(c.clinic.TimeZone)
}

// MainMenu greets the patient and offers the top-level options.
func (c *Catalog) MainMenu(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		HeaderText: c.clinic.Location.Name,
		Body: pick(lang,
			"👋 ¡Hola! Soy el asistente virtual del consultorio. ¿En qué te puedo ayudar?",
			"👋 Hi! I'm the clinic's virtual assistant. How can I help you?"),
		Footer: pick(lang, "Responde tocando una opción", "Tap an option to reply"),
		Buttons: []whatsapp.Choice{
			{ID: actions.Action{Kind: actions.Book}.ID(), Title: pick(lang, "📅 Agendar cita", "📅 Book visit")},
			{ID: actions.Action{Kind: actions.ShowLocation}.ID(), Title: pick(lang, "📍 Ubicación", "📍 Location")},
			{ID: actions.Action{Kind: actions.Advisor}.ID(), Title: pick(lang, "💬 Asesor", "💬 Advisor")},
		},
	})
}

// ProcedureList offers every procedure of the catalogue.
func (c *Catalog) ProcedureList(to string, lang clinic.Language) whatsapp.Message {
	rows := make([]whatsapp.Choice, 0, len(c.clinic.Procedures))
	for _, p := range c.clinic.Procedures {
		rows = append(rows, whatsapp.Choice{
			ID:    actions.Action{Kind: actions.ChooseProc, Procedure: string(p.Code)}.ID(),
			Title: p.Label(lang),
		})
	}
	return whatsapp.List(to, whatsapp.ListPrompt{
		Body:         pick(lang, "🦷 ¿Qué procedimiento necesitas?", "🦷 Which procedure do you need?"),
		Button:       pick(lang, "Ver procedimientos", "See procedures"),
		SectionTitle: pick(lang, "Procedimientos", "Procedures"),
		Rows:         rows,
	})
}

// ProcedureDetail describes a procedure and offers to schedule it.
func (c *Catalog) ProcedureDetail(to string, lang clinic.Language, p clinic.Procedure) whatsapp.Message {
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		HeaderImage: p.ImageURL,
		Body:        p.Detail(lang),
		Footer:      pick(lang, "Confirma tu cita hoy mismo para asegurar disponibilidad.", "Book today to secure your spot."),
		Buttons: []whatsapp.Choice{
			{ID: actions.Action{Kind: actions.Schedule, Procedure: string(p.Code)}.ID(), Title: pick(lang, "📅 Agendar", "📅 Schedule")},
			{ID: actions.Action{Kind: actions.Book}.ID(), Title: pick(lang, "🔄 Otro procedimiento", "🔄 Other procedure")},
			{ID: actions.Action{Kind: actions.MainMenu}.ID(), Title: pick(lang, "🏠 Menú", "🏠 Menu")},
		},
	})
}

// DayList offers the bookable days. next carries the booking context each
// row extends with its date.
func (c *Catalog) DayList(to string, lang clinic.Language, days []string, next actions.Action) whatsapp.Message {
	rows := make([]whatsapp.Choice, 0, len(days))
	for _, d := range days {
		day, err := c.clinic.StartOfDay(d)
		if err != nil {
			continue
		}
		a := next
		a.Kind = actions.ChooseDay
		a.Date = d
		rows = append(rows, whatsapp.Choice{ID: a.ID(), Title: FormatDay(day, lang)})
	}
	return whatsapp.List(to, whatsapp.ListPrompt{
		Body:         pick(lang, "📅 ¿Qué día te queda mejor?", "📅 Which day works best for you?"),
		Button:       pick(lang, "Ver días", "See days"),
		SectionTitle: pick(lang, "Próximos días", "Next days"),
		Rows:         rows,
	})
}

// PeriodPrompt asks for morning or evening on the chosen day.
func (c *Catalog) PeriodPrompt(to string, lang clinic.Language, next actions.Action) whatsapp.Message {
	morning, evening := next, next
	morning.Kind, evening.Kind = actions.ChoosePeriod, actions.ChoosePeriod
	morning.Period, evening.Period = string(clinic.Morning), string(clinic.Evening)
	otherDay := next
	otherDay.Kind, otherDay.Date = actions.PickDate, ""

	body := pick(lang, "🕐 ¿Prefieres por la mañana o por la tarde?", "🕐 Morning or afternoon?")
	if day, err := c.clinic.StartOfDay(next.Date); err == nil {
		body = FormatDay(day, lang) + "\n" + body
	}
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: body,
		Buttons: []whatsapp.Choice{
			{ID: morning.ID(), Title: periodLabel(clinic.Morning, lang)},
			{ID: evening.ID(), Title: periodLabel(clinic.Evening, lang)},
			{ID: otherDay.ID(), Title: pick(lang, "📅 Otro día", "📅 Other day")},
		},
	})
}

// TimeList offers the free start times plus an advisor escape hatch.
func (c *Catalog) TimeList(to string, lang clinic.Language, hours []string, next actions.Action) whatsapp.Message {
	rows := make([]whatsapp.Choice, 0, len(hours)+1)
	for _, h := range hours {
		a := next
		a.Kind = actions.ChooseHour
		a.Hour = h
		rows = append(rows, whatsapp.Choice{ID: a.ID(), Title: "🕐 " + h})
	}
	rows = append(rows, whatsapp.Choice{
		ID:          actions.Action{Kind: actions.Advisor}.ID(),
		Title:       pick(lang, "💬 Hablar con asesor", "💬 Talk to advisor"),
		Description: pick(lang, "¿No encuentras horario?", "Can't find a time?"),
	})
	return whatsapp.List(to, whatsapp.ListPrompt{
		Body:         pick(lang, "⏰ Estos son los horarios disponibles:", "⏰ These are the available times:"),
		Button:       pick(lang, "Ver horarios", "See times"),
		SectionTitle: pick(lang, "Horarios", "Times"),
		Rows:         rows,
	})
}

// NoSlots tells the patient the period is full.
func (c *Catalog) NoSlots(to string, lang clinic.Language, next actions.Action) whatsapp.Message {
	otherDay := next
	otherDay.Kind, otherDay.Date, otherDay.Period, otherDay.Hour = actions.PickDate, "", "", ""
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: pick(lang,
			"😔 Ya no hay horarios disponibles en ese bloque.",
			"😔 There are no times left in that block."),
		Buttons: []whatsapp.Choice{
			{ID: otherDay.ID(), Title: pick(lang, "📅 Otro día", "📅 Other day")},
			{ID: actions.Action{Kind: actions.Advisor}.ID(), Title: pick(lang, "💬 Asesor", "💬 Advisor")},
		},
	})
}

// AskName requests the patient's full name.
func (c *Catalog) AskName(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang,
		"✍️ Por favor escribe tu *nombre completo* para la cita.",
		"✍️ Please type your *full name* for the appointment."))
}

// InvalidName asks again after a malformed name.
func (c *Catalog) InvalidName(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang,
		"⚠️ Ese nombre no parece válido. Escribe solo letras (3 a 60 caracteres), por ejemplo: *Ana López*.",
		"⚠️ That name doesn't look right. Use letters only (3 to 60 characters), for example: *Ana Lopez*."))
}

// PreConfirm summarizes the booking and asks for the final confirmation.
func (c *Catalog) PreConfirm(to string, lang clinic.Language, confirm actions.Action, start time.Time) whatsapp.Message {
	change := actions.Action{Kind: actions.ChangeDetails, Procedure: confirm.Procedure}
	body := fmt.Sprintf("%s\n\n👤 %s\n🦷 %s\n📅 %s",
		pick(lang, "📝 *Revisa tu cita:*", "📝 *Review your appointment:*"),
		confirm.Name,
		c.clinic.Label(clinic.ProcedureCode(confirm.Procedure), lang),
		FormatWhen(c.local(start), lang))
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: body,
		Buttons: []whatsapp.Choice{
			{ID: confirm.ID(), Title: pick(lang, "✅ Confirmar", "✅ Confirm")},
			{ID: change.ID(), Title: pick(lang, "✏️ Cambiar", "✏️ Change")},
			{ID: actions.Action{Kind: actions.CancelFlow}.ID(), Title: pick(lang, "❌ Cancelar", "❌ Cancel")},
		},
	})
}

// Confirmation is the final message after a successful booking.
func (c *Catalog) Confirmation(to string, lang clinic.Language, name string, code clinic.ProcedureCode, start time.Time) whatsapp.Message {
	return whatsapp.Text(to, fmt.Sprintf(pick(lang,
		"✅ *¡Cita confirmada!*\n\n👤 %s\n🦷 %s\n📅 %s\n\nTe enviaremos un recordatorio antes de tu cita.",
		"✅ *Appointment confirmed!*\n\n👤 %s\n🦷 %s\n📅 %s\n\nWe'll send you a reminder before your visit."),
		name, c.clinic.Label(code, lang), FormatWhen(c.local(start), lang)))
}

// PreAppointmentDoc is the preparation document sent after booking.
func (c *Catalog) PreAppointmentDoc(to string, lang clinic.Language, code clinic.ProcedureCode) whatsapp.Message {
	return whatsapp.Document(to, c.clinic.PreAppointmentDoc(code), c.clinic.DocumentFilename,
		pick(lang, "📄 Indicaciones antes de tu cita", "📄 Instructions before your visit"))
}

// PostAppointmentDoc is the after-care document.
func (c *Catalog) PostAppointmentDoc(to string, lang clinic.Language, key string, code clinic.ProcedureCode) whatsapp.Message {
	return whatsapp.Document(to, c.clinic.PostAppointmentDoc(key, code), c.clinic.DocumentFilename,
		pick(lang, "📄 Indicaciones después de tu cita. ¡Gracias por visitarnos!", "📄 After-care instructions. Thanks for visiting us!"))
}

// ClinicPin sends the clinic location.
func (c *Catalog) ClinicPin(to string) whatsapp.Message {
	loc := c.clinic.Location
	return whatsapp.Pin(to, whatsapp.Location{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Name:      loc.Name,
		Address:   loc.Address,
	})
}

// SlotPast rejects a start time that already went by.
func (c *Catalog) SlotPast(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang,
		"⏰ Ese horario ya pasó. Elige otro, por favor.",
		"⏰ That time has already passed. Please pick another one."))
}

// SlotTaken tells the patient someone else holds the slot.
func (c *Catalog) SlotTaken(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang,
		"😕 Ese horario acaba de ocuparse. Te muestro los disponibles.",
		"😕 That time was just taken. Here are the ones still open."))
}

// ServiceUnavailable reports that availability could not be checked.
func (c *Catalog) ServiceUnavailable(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang,
		"⚠️ No pudimos verificar la agenda en este momento. Intenta de nuevo en unos minutos.",
		"⚠️ We couldn't check the schedule right now. Please try again in a few minutes."))
}

// AlreadyBooked answers a repeated confirmation.
func (c *Catalog) AlreadyBooked(to string, lang clinic.Language, start time.Time) whatsapp.Message {
	return whatsapp.Text(to, fmt.Sprintf(pick(lang,
		"👍 Tu cita del %s ya está registrada.",
		"👍 Your appointment on %s is already booked."), FormatWhen(c.local(start), lang)))
}

// FlowCancelled closes an abandoned booking.
func (c *Catalog) FlowCancelled(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: pick(lang, "👌 Listo, cancelé el proceso. Aquí estoy cuando me necesites.", "👌 Done, I stopped the booking. I'm here whenever you need me."),
		Buttons: []whatsapp.Choice{
			{ID: actions.Action{Kind: actions.MainMenu}.ID(), Title: pick(lang, "🏠 Menú", "🏠 Menu")},
		},
	})
}

// Nudge reminds an idle patient to finish booking.
func (c *Catalog) Nudge(to string, lang clinic.Language, second bool, resume actions.Action) whatsapp.Message {
	body := pick(lang,
		"👋 ¿Seguimos con tu cita? Te guardé el avance.",
		"👋 Shall we finish your booking? I saved your progress.")
	if second {
		body = pick(lang,
			"⏳ Los horarios se llenan rápido. ¿Quieres terminar de agendar?",
			"⏳ Times fill up fast. Do you want to finish booking?")
	}
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: body,
		Buttons: []whatsapp.Choice{
			{ID: resume.ID(), Title: pick(lang, "▶️ Continuar", "▶️ Continue")},
			{ID: actions.Action{Kind: actions.CancelFlow}.ID(), Title: pick(lang, "❌ Cancelar", "❌ Cancel")},
		},
	})
}

// Reminder3h asks the patient to confirm, move or cancel.
func (c *Catalog) Reminder3h(to string, lang clinic.Language, name string, start time.Time) whatsapp.Message {
	slot := c.clinic.FormatSlot(start)
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: fmt.Sprintf(pick(lang,
			"⏰ Hola %s, te recordamos tu cita de hoy: *%s*.\n📍 %s",
			"⏰ Hi %s, a reminder of your visit today: *%s*.\n📍 %s"),
			firstName(name), FormatWhen(c.local(start), lang), c.clinic.Location.Address),
		Buttons: []whatsapp.Choice{
			{ID: actions.Action{Kind: actions.ConfirmAttendance, Slot: slot}.ID(), Title: pick(lang, "✅ Asistiré", "✅ I'll be there")},
			{ID: actions.Action{Kind: actions.RescheduleStart, Slot: slot}.ID(), Title: pick(lang, "🔄 Reagendar", "🔄 Reschedule")},
			{ID: actions.Action{Kind: actions.CancelAppointment, Slot: slot}.ID(), Title: pick(lang, "❌ Cancelar", "❌ Cancel")},
		},
	})
}

// Reminder3hTemplate is the template fallback of Reminder3h.
func (c *Catalog) Reminder3hTemplate(to string, lang clinic.Language, name string, start time.Time) whatsapp.Message {
	return whatsapp.TemplateMessage(to, "appointment_scheduling", templateLanguage(lang),
		firstName(name), FormatWhen(c.local(start), lang))
}

// Nudge2h is the last call for patients who did not answer the 3h reminder.
func (c *Catalog) Nudge2h(to string, lang clinic.Language, start time.Time) whatsapp.Message {
	slot := c.clinic.FormatSlot(start)
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: fmt.Sprintf(pick(lang,
			"🔔 Tu cita es en 2 horas (*%s*). ¿Nos confirmas tu asistencia?",
			"🔔 Your visit is in 2 hours (*%s*). Can you confirm you're coming?"),
			c.local(start).Format("15:04")),
		Buttons: []whatsapp.Choice{
			{ID: actions.Action{Kind: actions.Confirm2h, Slot: slot}.ID(), Title: pick(lang, "✅ Confirmo", "✅ Confirm")},
			{ID: actions.Action{Kind: actions.CancelAppointment, Slot: slot}.ID(), Title: pick(lang, "❌ Cancelar", "❌ Cancel")},
		},
	})
}

// AttendanceConfirmed thanks the patient for confirming.
func (c *Catalog) AttendanceConfirmed(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang, "🙌 ¡Gracias por confirmar! Te esperamos.", "🙌 Thanks for confirming! See you soon."))
}

// AppointmentCancelled confirms a cancellation.
func (c *Catalog) AppointmentCancelled(to string, lang clinic.Language, start time.Time) whatsapp.Message {
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: fmt.Sprintf(pick(lang,
			"🗑️ Cancelamos tu cita del %s.",
			"🗑️ Your appointment on %s was cancelled."), FormatWhen(c.local(start), lang)),
		Buttons: []whatsapp.Choice{
			{ID: actions.Action{Kind: actions.Book}.ID(), Title: pick(lang, "📅 Agendar otra", "📅 Book another")},
			{ID: actions.Action{Kind: actions.MainMenu}.ID(), Title: pick(lang, "🏠 Menú", "🏠 Menu")},
		},
	})
}

// AppointmentNotFound answers stale buttons for appointments that no longer
// exist.
func (c *Catalog) AppointmentNotFound(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang,
		"🤔 No encontré esa cita. Puede que ya haya sido cancelada o movida.",
		"🤔 I couldn't find that appointment. It may have been cancelled or moved."))
}

// RescheduleDone confirms the new time of a moved appointment.
func (c *Catalog) RescheduleDone(to string, lang clinic.Language, start time.Time) whatsapp.Message {
	return whatsapp.Text(to, fmt.Sprintf(pick(lang,
		"🔄 ¡Listo! Tu cita quedó para el *%s*.",
		"🔄 Done! Your appointment is now on *%s*."), FormatWhen(c.local(start), lang)))
}

// UpgradeOffer proposes an earlier slot to a waiting patient.
func (c *Catalog) UpgradeOffer(to string, lang clinic.Language, slot, current time.Time) whatsapp.Message {
	s, f := c.clinic.FormatSlot(slot), c.clinic.FormatSlot(current)
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: fmt.Sprintf(pick(lang,
			"⚡ ¡Se liberó un espacio antes! ¿Quieres adelantar tu cita del %s al *%s*?",
			"⚡ An earlier time opened up! Move your visit from %s to *%s*?"),
			FormatWhen(c.local(current), lang), FormatWhen(c.local(slot), lang)),
		Footer: pick(lang, "El primero en aceptar se queda con el espacio.", "First to accept gets the spot."),
		Buttons: []whatsapp.Choice{
			{ID: actions.Action{Kind: actions.UpgradeAccept, Slot: s, From: f}.ID(), Title: pick(lang, "✅ Sí, adelantar", "✅ Yes, move it")},
			{ID: actions.Action{Kind: actions.UpgradeSkip, Slot: s, From: f}.ID(), Title: pick(lang, "No, gracias", "No, thanks")},
		},
	})
}

// UpgradeGone tells a late acceptor the slot was taken.
func (c *Catalog) UpgradeGone(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang,
		"😕 Ese espacio ya fue tomado. Tu cita original sigue en pie.",
		"😕 That time was already taken. Your original appointment stays as it is."))
}

// UpgradeSkipped acknowledges a declined offer.
func (c *Catalog) UpgradeSkipped(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang, "👌 Perfecto, mantenemos tu cita original.", "👌 Great, we'll keep your original time."))
}

// FollowUpTemplate invites the patient back six months later.
func (c *Catalog) FollowUpTemplate(to string, lang clinic.Language, name string) whatsapp.Message {
	return whatsapp.TemplateMessage(to, "followup_6m", templateLanguage(lang), firstName(name))
}

// AdvisorPrompt asks for name and question.
func (c *Catalog) AdvisorPrompt(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Text(to, pick(lang,
		"💬 Con gusto te comunico con un asesor. Escribe tu *nombre* y tu *pregunta* en un mensaje, por ejemplo:\n\nAna López\n¿Aceptan tarjeta?",
		"💬 I'll connect you with an advisor. Send your *name* and your *question* in one message, for example:\n\nAna Lopez\nDo you take cards?"))
}

// AdvisorAskQuestion follows up when only a name arrived.
func (c *Catalog) AdvisorAskQuestion(to string, lang clinic.Language, name string) whatsapp.Message {
	return whatsapp.Text(to, fmt.Sprintf(pick(lang,
		"Gracias, %s. ¿Cuál es tu pregunta?",
		"Thanks, %s. What is your question?"), firstName(name)))
}

// AdvisorThanks closes the advisor hand-off.
func (c *Catalog) AdvisorThanks(to string, lang clinic.Language) whatsapp.Message {
	return whatsapp.Buttons(to, whatsapp.ButtonPrompt{
		Body: pick(lang,
			"🙏 ¡Gracias! Un asesor te escribirá muy pronto.",
			"🙏 Thanks! An advisor will message you shortly."),
		Buttons: []whatsapp.Choice{
			{ID: actions.Action{Kind: actions.MainMenu}.ID(), Title: pick(lang, "🏠 Menú", "🏠 Menu")},
		},
	})
}

// AdvisorNotice alerts a staff member about a new lead.
func (c *Catalog) AdvisorNotice(to, name, phone, question string) whatsapp.Message {
	return whatsapp.Text(to, fmt.Sprintf("📥 *Nuevo contacto para asesor*\n👤 %s\n📱 wa.me/%s\n❓ %s", name, phone, question))
}

func templateLanguage(lang clinic.Language) string {
	if lang == clinic.English {
		return "en_US"
	}
	return "es_MX"
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return name
}
