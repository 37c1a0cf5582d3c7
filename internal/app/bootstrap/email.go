package bootstrap

import (
	appconfig "github.com/wolfman30/dental-whatsapp-bot/internal/config"
	"github.com/wolfman30/dental-whatsapp-bot/internal/notify"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// BuildEmailSender picks the provider for advisor lead emails. "auto" tries
// SendGrid, then SES, and falls back to the logging stub. It returns nil when
// there is no inbox to write to.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if cfg.AdvisorInboxEmail == "" {
		return nil
	}
	sendgrid := func() notify.EmailSender {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	sesSender := func() notify.EmailSender {
		if cfg.SESFromEmail == "" {
			return nil
		}
		if s := notify.NewSESSender(ses, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}

	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		sender = sendgrid()
	case "ses":
		sender = sesSender()
	case "stub":
	default:
		if sender = sendgrid(); sender == nil {
			sender = sesSender()
		}
	}
	if sender == nil {
		logger.Warn("no email provider configured; advisor emails are only logged", "provider", cfg.EmailProvider)
		return notify.NewStubEmailSender(logger)
	}
	return sender
}
