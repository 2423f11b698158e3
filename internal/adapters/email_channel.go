// Package adapters bridges the negotiation orchestrator to concrete
// delivery channels. Email is the only channel today.
package adapters

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"concierge_backend/internal/directory/transport"
	"concierge_backend/internal/email"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/platform/logger"
)

// ProviderDirectory resolves a provider's contact details.
type ProviderDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*transport.ProviderResponse, error)
}

// EmailChannel delivers outbound thread messages over SMTP. It satisfies
// the orchestrator's Sender interface.
type EmailChannel struct {
	mail      email.Sender
	providers ProviderDirectory
	log       *logger.Logger
}

func NewEmailChannel(mail email.Sender, providers ProviderDirectory, log *logger.Logger) *EmailChannel {
	return &EmailChannel{mail: mail, providers: providers, log: log}
}

func (c *EmailChannel) Send(ctx context.Context, negotiation domain.Negotiation, role domain.ThreadRole, body string) error {
	var toEmail, toName string

	switch role {
	case domain.RoleClient:
		if negotiation.ClientEmail == nil || *negotiation.ClientEmail == "" {
			return fmt.Errorf("negotiation %s has no client email on file", negotiation.ID)
		}
		toEmail = *negotiation.ClientEmail
		toName = negotiation.ClientName
	case domain.RoleProvider:
		p, err := c.providers.Get(ctx, negotiation.ProviderID)
		if err != nil {
			return fmt.Errorf("resolve provider %s: %w", negotiation.ProviderID, err)
		}
		toEmail = p.Email
		toName = p.Name
	default:
		return fmt.Errorf("no delivery channel for role %q", role)
	}

	if err := c.mail.SendThreadMessage(ctx, toEmail, toName, body); err != nil {
		return fmt.Errorf("deliver thread message: %w", err)
	}

	c.log.Info("delivered outbound thread message",
		"negotiation_id", negotiation.ID.String(),
		"role", string(role),
	)
	return nil
}
