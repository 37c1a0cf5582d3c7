// Package assistant routes inbound WhatsApp messages through the booking
// conversation: menus, the booking funnel, reminder replies, waitlist offers
// and the advisor hand-off.
package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/booking"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	"github.com/wolfman30/dental-whatsapp-bot/internal/events"
	"github.com/wolfman30/dental-whatsapp-bot/internal/funnel"
	"github.com/wolfman30/dental-whatsapp-bot/internal/leads"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// DefaultMessageTimeout bounds the processing of one inbound message.
const DefaultMessageTimeout = 2 * time.Minute

// Booker finalizes collected bookings.
type Booker interface {
	Finalize(ctx context.Context, req booking.Request) (booking.Result, error)
}

// Appointments moves, cancels and acknowledges existing appointments.
type Appointments interface {
	Find(ctx context.Context, phone string, start time.Time) (appointments.Record, error)
	Reschedule(ctx context.Context, key appointments.Key, newStart time.Time) (appointments.Record, error)
	Cancel(ctx context.Context, start time.Time, phone string) (appointments.Record, error)
	AcknowledgeReminder(ctx context.Context, start time.Time, phone string) (appointments.Record, error)
}

// Upgrades is the waitlist side of the conversation.
type Upgrades interface {
	Accept(ctx context.Context, phone string, slot, current time.Time) (appointments.Record, error)
	Decline(ctx context.Context, phone string, slot time.Time)
}

// Slots lists bookable times.
type Slots interface {
	FreeSlots(ctx context.Context, date string, period clinic.Period) ([]string, error)
}

// LeadNotifier tells staff about a new advisor lead.
type LeadNotifier interface {
	NotifyAdvisorLead(ctx context.Context, lead leads.Lead) error
}

// Deps are the collaborators of the Handler. Notifier and Dedup are
// optional.
type Deps struct {
	Clinic       *clinic.Clinic
	Catalog      *messages.Catalog
	Sender       whatsapp.Sender
	Funnel       *funnel.Tracker
	Slots        Slots
	Booker       Booker
	Appointments Appointments
	Upgrades     Upgrades
	Leads        leads.Repository
	Notifier     LeadNotifier
	Dedup        events.ProcessedStore
	Language     clinic.Language
}

// Handler is the conversation dispatcher.
type Handler struct {
	clinic       *clinic.Clinic
	catalog      *messages.Catalog
	sender       whatsapp.Sender
	funnel       *funnel.Tracker
	slots        Slots
	booker       Booker
	appointments Appointments
	upgrades     Upgrades
	leads        leads.Repository
	notifier     LeadNotifier
	dedup        events.ProcessedStore
	language     clinic.Language

	clock   clock.Clock
	metrics *metrics.MessagingMetrics
	logger  *logging.Logger
	timeout time.Duration

	senders keyedMutex
	wg      sync.WaitGroup

	mu      sync.Mutex
	seen    map[string]struct{}
	advisor map[string]advisorState
}

// NewHandler builds the dispatcher. It panics when a required dependency is
// missing.
func NewHandler(d Deps, logger *logging.Logger) *Handler {
	switch {
	case d.Clinic == nil:
		panic("assistant: clinic required")
	case d.Catalog == nil:
		panic("assistant: catalog required")
	case d.Sender == nil:
		panic("assistant: sender required")
	case d.Funnel == nil:
		panic("assistant: funnel tracker required")
	case d.Slots == nil, d.Booker == nil, d.Appointments == nil, d.Upgrades == nil:
		panic("assistant: booking collaborators required")
	case d.Leads == nil:
		panic("assistant: leads repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if d.Language == "" {
		d.Language = clinic.Spanish
	}
	return &Handler{
		clinic:       d.Clinic,
		catalog:      d.Catalog,
		sender:       d.Sender,
		funnel:       d.Funnel,
		slots:        d.Slots,
		booker:       d.Booker,
		appointments: d.Appointments,
		upgrades:     d.Upgrades,
		leads:        d.Leads,
		notifier:     d.Notifier,
		dedup:        d.Dedup,
		language:     d.Language,
		clock:        clock.New(),
		logger:       logger,
		timeout:      DefaultMessageTimeout,
		seen:         make(map[string]struct{}),
		advisor:      make(map[string]advisorState),
	}
}

// WithClock swaps the time source.
func (h *Handler) WithClock(c clock.Clock) *Handler {
	if c != nil {
		h.clock = c
	}
	return h
}

// WithMetrics counts inbound messages.
func (h *Handler) WithMetrics(m *metrics.MessagingMetrics) *Handler {
	h.metrics = m
	return h
}

// WithTimeout overrides the per-message processing deadline.
func (h *Handler) WithTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

// Accept drops redelivered messages and processes the rest in the
// background, so the webhook can acknowledge at once.
func (h *Handler) Accept(msg whatsapp.InboundMessage) {
	if msg.From == "" {
		return
	}
	if h.duplicate(msg) {
		h.metrics.ObserveInbound(kindOf(msg), "duplicate")
		return
	}
	h.metrics.ObserveInbound(kindOf(msg), "accepted")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.Handle(ctx, msg); err != nil {
			h.logger.Error("assistant: message failed", "phone", msg.From, "message_id", msg.ID, "error", err)
		}
	}()
}

// Wait blocks until every accepted message was processed.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Shutdown waits for in-flight messages or gives up when ctx ends.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) duplicate(msg whatsapp.InboundMessage) bool {
	if h.dedup == nil || msg.ID == "" {
		return false
	}
	first, err := h.dedup.MarkProcessed(context.Background(), events.ProviderWhatsApp, msg.ID)
	if err != nil {
		// A dedup outage must not swallow patient messages.
		h.logger.Warn("assistant: dedup check failed", "message_id", msg.ID, "error", err)
		return false
	}
	return !first
}

func kindOf(msg whatsapp.InboundMessage) string {
	if msg.IsReply() {
		return "reply"
	}
	return "text"
}

// Handle processes one message. Messages of the same sender are handled one
// at a time.
func (h *Handler) Handle(ctx context.Context, msg whatsapp.InboundMessage) error {
	unlock := h.senders.lock(msg.From)
	defer unlock()

	if msg.IsReply() {
		return h.handleReply(ctx, msg)
	}
	return h.handleText(ctx, msg)
}

func (h *Handler) send(ctx context.Context, msg whatsapp.Message) {
	if err := h.sender.Send(ctx, msg); err != nil {
		h.logger.Warn("assistant: reply not delivered", "phone", msg.To, "type", msg.Type, "error", err)
	}
}

// languageOf returns the language of phone's conversation.
func (h *Handler) languageOf(ctx context.Context, phone string) clinic.Language {
	st, err := h.funnel.Current(ctx, phone)
	if err == nil && st != nil && st.Language != "" {
		return st.Language
	}
	return h.language
}

func (h *Handler) reset(ctx context.Context, phone string) {
	if err := h.funnel.Reset(ctx, phone); err != nil {
		h.logger.Warn("assistant: funnel reset failed", "phone", phone, "error", err)
	}
}

func (h *Handler) mainMenu(ctx context.Context, phone string, lang clinic.Language) {
	h.reset(ctx, phone)
	h.send(ctx, h.catalog.MainMenu(phone, lang))
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
