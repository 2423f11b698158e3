// Package email delivers transactional mail for the booking concierge:
// the outbound thread messages the conversation agent drafts, the
// post-session feedback request, and operator attention alerts.
package email

import (
	"context"

	"concierge_backend/platform/config"
)

type Sender interface {
	SendThreadMessage(ctx context.Context, toEmail, recipientName, body string) error
	SendFeedbackRequest(ctx context.Context, toEmail, clientName, feedbackURL string) error
	SendAttentionAlert(ctx context.Context, toEmail, negotiationID, reason string) error
}

// NoopSender is used when mail delivery is disabled. Outbound messages are
// still recorded on the thread, they just never leave the system.
type NoopSender struct{}

func (NoopSender) SendThreadMessage(ctx context.Context, toEmail, recipientName, body string) error {
	return nil
}

func (NoopSender) SendFeedbackRequest(ctx context.Context, toEmail, clientName, feedbackURL string) error {
	return nil
}

func (NoopSender) SendAttentionAlert(ctx context.Context, toEmail, negotiationID, reason string) error {
	return nil
}

// NewSender returns an SMTP-backed sender, or a NoopSender when mail is
// disabled in config.
func NewSender(cfg config.MailConfig) Sender {
	if !cfg.GetMailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetMailFromAddress(),
		cfg.GetMailFromName(),
	)
}
