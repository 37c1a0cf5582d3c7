package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/leads"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Config lists who hears about new advisor leads.
type Config struct {
	AgentPhones []string
	InboxEmail  string
}

// Service hands advisor leads to clinic staff.
type Service struct {
	sender  whatsapp.Sender
	catalog *messages.Catalog
	email   EmailSender
	cfg     Config
	logger  *logging.Logger
}

// NewService creates a notification service. A nil email sender disables
// the inbox copy.
func NewService(sender whatsapp.Sender, catalog *messages.Catalog, email EmailSender, cfg Config, logger *logging.Logger) *Service {
	if sender == nil {
		panic("notify: whatsapp sender required")
	}
	if catalog == nil {
		panic("notify: catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		sender:  sender,
		catalog: catalog,
		email:   email,
		cfg:     cfg,
		logger:  logger,
	}
}

// NotifyAdvisorLead messages every agent and emails the inbox. Every channel
// is attempted; the returned error combines the ones that failed.
func (s *Service) NotifyAdvisorLead(ctx context.Context, lead leads.Lead) error {
	var result *multierror.Error

	for _, agent := range s.cfg.AgentPhones {
		agent = strings.TrimSpace(agent)
		if agent == "" {
			continue
		}
		msg := s.catalog.AdvisorNotice(agent, valueOrNA(lead.Name), lead.Phone, valueOrNA(lead.Message))
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Warn("notify: agent whatsapp failed", "agent", agent, "lead_id", lead.ID, "error", err)
			result = multierror.Append(result, fmt.Errorf("notify: agent %s: %w", agent, err))
		}
	}

	if s.email != nil && s.cfg.InboxEmail != "" {
		err := s.email.Send(ctx, EmailMessage{
			To:       s.cfg.InboxEmail,
			Subject:  fmt.Sprintf("Nuevo contacto para asesor: %s", valueOrNA(lead.Name)),
			Body:     FormatLeadSummary(lead),
			HTML:     FormatLeadSummaryHTML(lead),
			Category: "advisor-lead",
		})
		if err != nil {
			s.logger.Warn("notify: inbox email failed", "lead_id", lead.ID, "error", err)
			result = multierror.Append(result, fmt.Errorf("notify: inbox email: %w", err))
		}
	}

	if result == nil {
		s.logger.Info("notify: advisor lead delivered", "lead_id", lead.ID, "agents", len(s.cfg.AgentPhones))
	}
	return result.ErrorOrNil()
}

// FormatLeadSummary renders a plain-text lead for staff.
func FormatLeadSummary(lead leads.Lead) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Paciente: %s\n", valueOrNA(lead.Name)))
	b.WriteString(fmt.Sprintf("Teléfono: %s\n", valueOrNA(lead.Phone)))
	b.WriteString(fmt.Sprintf("Pregunta: %s\n", valueOrNA(lead.Message)))
	b.WriteString(fmt.Sprintf("Recibido: %s\n", lead.CreatedAt.Format(time.RFC1123)))
	return b.String()
}

// FormatLeadSummaryHTML renders the lead as an email table.
func FormatLeadSummaryHTML(lead leads.Lead) string {
	row := func(label, value string) string {
		return fmt.Sprintf(`<tr><td style="padding:6px 12px;font-weight:bold;">%s</td><td style="padding:6px 12px;">%s</td></tr>`, label, value)
	}
	phone := html.EscapeString(lead.Phone)
	return fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px;">
<h2 style="color:#333;">Nuevo contacto para asesor</h2>
<table style="border-collapse:collapse;width:100%%;">
%s
%s
%s
%s
</table>
<p style="color:#666;font-size:12px;">Contacto capturado por el asistente de WhatsApp. Responde al paciente lo antes posible.</p>
</div>`,
		row("Paciente", html.EscapeString(valueOrNA(lead.Name))),
		row("Teléfono", fmt.Sprintf(`<a href="https://wa.me/%s">%s</a>`, phone, html.EscapeString(valueOrNA(lead.Phone)))),
		row("Pregunta", html.EscapeString(valueOrNA(lead.Message))),
		row("Recibido", lead.CreatedAt.Format(time.RFC1123)),
	)
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
