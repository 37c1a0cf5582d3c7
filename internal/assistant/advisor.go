package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/leads"
)

// advisorTTL is how long a patient stays in advisor mode without writing.
const advisorTTL = 30 * time.Minute

const fallbackLeadName = "Paciente"

type advisorState struct {
	name      string
	startedAt time.Time
}

func (h *Handler) startAdvisor(ctx context.Context, phone string, lang clinic.Language) {
	h.mu.Lock()
	h.advisor[phone] = advisorState{startedAt: h.clock.Now()}
	h.mu.Unlock()
	h.reset(ctx, phone)
	h.send(ctx, h.catalog.AdvisorPrompt(phone, lang))
}

func (h *Handler) advisorMode(phone string) (advisorState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.advisor[phone]
	if !ok {
		return advisorState{}, false
	}
	if h.clock.Now().Sub(st.startedAt) > advisorTTL {
		delete(h.advisor, phone)
		return advisorState{}, false
	}
	return st, true
}

func (h *Handler) stopAdvisor(phone string) {
	h.mu.Lock()
	delete(h.advisor, phone)
	h.mu.Unlock()
}

// captureLead turns advisor-mode texts into a lead. A bare name is kept and
// the question is awaited in the next message.
func (h *Handler) captureLead(ctx context.Context, msg whatsapp.InboundMessage, st advisorState, lang clinic.Language) error {
	phone := msg.From
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if st.name == "" {
		if name, question, ok := splitAdvisorText(text); ok {
			return h.submitLead(ctx, phone, name, question, lang)
		}
		if looksLikeName(text) {
			h.mu.Lock()
			h.advisor[phone] = advisorState{name: text, startedAt: h.clock.Now()}
			h.mu.Unlock()
			h.send(ctx, h.catalog.AdvisorAskQuestion(phone, lang, text))
			return nil
		}
	}

	name := st.name
	if name == "" {
		name = msg.ProfileName
	}
	if name == "" {
		name = fallbackLeadName
	}
	return h.submitLead(ctx, phone, name, text, lang)
}

func (h *Handler) submitLead(ctx context.Context, phone, name, question string, lang clinic.Language) error {
	h.stopAdvisor(phone)
	h.reset(ctx, phone)

	req := &leads.CreateLeadRequest{Name: name, Phone: phone, Message: question, Source: "whatsapp"}
	lead, err := h.leads.Create(ctx, req)
	if err != nil {
		h.logger.Error("assistant: lead not stored", "phone", phone, "error", err)
		lead = &leads.Lead{Name: name, Phone: phone, Message: question, Status: leads.StatusPending, CreatedAt: h.clock.Now()}
	}
	if h.notifier != nil {
		if err := h.notifier.NotifyAdvisorLead(ctx, *lead); err != nil {
			h.logger.Warn("assistant: advisor notification incomplete", "phone", phone, "error", err)
		}
	}
	h.logger.Info("assistant: advisor lead captured", "phone", phone, "lead_id", lead.ID)
	h.send(ctx, h.catalog.AdvisorThanks(phone, lang))
	return nil
}
