// Package notify tells clinic staff about patients who asked for a human
// advisor, over WhatsApp and email.
package notify

import (
	"context"

	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// DefaultFromName signs outgoing mail when no sender name is configured.
const DefaultFromName = "Consultorio Dental"

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SendGrid, SES) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
	// Category tags the message for provider side filtering.
	Category string
}

func (m EmailMessage) html() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Body
}

// StubEmailSender logs instead of sending. Used when no provider is set up.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	return nil
}

var _ EmailSender = (*StubEmailSender)(nil)
