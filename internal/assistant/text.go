package assistant

import (
	"context"
	"strings"

	"github.com/wolfman30/dental-whatsapp-bot/internal/actions"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/funnel"
)

func (h *Handler) handleText(ctx context.Context, msg whatsapp.InboundMessage) error {
	phone := msg.From
	text := strings.TrimSpace(msg.Text)

	st, err := h.funnel.Current(ctx, phone)
	if err != nil {
		h.logger.Warn("assistant: funnel read failed", "phone", phone, "error", err)
		st = nil
	}
	lang := h.language
	if st != nil && st.Language != "" {
		lang = st.Language
	}

	if h.greetIfNew(phone, st) {
		h.mainMenu(ctx, phone, lang)
		return nil
	}

	if adv, ok := h.advisorMode(phone); ok {
		return h.captureLead(ctx, msg, adv, lang)
	}

	switch in, proc := detectIntent(h.clinic, text); in {
	case intentMenu:
		h.mainMenu(ctx, phone, lang)
		return nil
	case intentBook:
		return h.dispatch(ctx, phone, lang, actions.Action{Kind: actions.Book})
	case intentLocation:
		return h.dispatch(ctx, phone, lang, actions.Action{Kind: actions.ShowLocation})
	case intentAdvisor:
		return h.dispatch(ctx, phone, lang, actions.Action{Kind: actions.Advisor})
	case intentProcedure:
		return h.dispatch(ctx, phone, lang, actions.Action{Kind: actions.ChooseProc, Procedure: string(proc.Code)})
	}

	if st != nil && st.Step == funnel.AwaitName {
		return h.receiveName(ctx, phone, lang, *st, text)
	}

	h.mainMenu(ctx, phone, lang)
	return nil
}

// greetIfNew marks phone as seen and reports whether this is its first
// message. Patients mid-funnel count as seen.
func (h *Handler) greetIfNew(phone string, st *funnel.State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.seen[phone]; ok {
		return false
	}
	h.seen[phone] = struct{}{}
	if st != nil {
		return false
	}
	_, advising := h.advisor[phone]
	return !advising
}

func (h *Handler) markSeen(phone string) {
	h.mu.Lock()
	h.seen[phone] = struct{}{}
	h.mu.Unlock()
}
