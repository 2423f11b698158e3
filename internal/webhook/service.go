package webhook

import (
	"context"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	negotiationtransport "concierge_backend/internal/negotiations/transport"
	"concierge_backend/platform/logger"
)

// Negotiator is the slice of the negotiations service the webhook boundary
// needs.
type Negotiator interface {
	Create(ctx context.Context, req negotiationtransport.CreateNegotiationRequest) (*negotiationtransport.NegotiationResponse, error)
	ApplyInboundMessage(ctx context.Context, id uuid.UUID, req negotiationtransport.InboundMessageRequest) (*negotiationtransport.MessageResult, error)
}

// Service translates channel payloads into negotiation operations.
type Service struct {
	negotiator Negotiator
	eventBus   events.Bus
	log        *logger.Logger
}

// NewService creates a new webhook service.
func NewService(negotiator Negotiator, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{negotiator: negotiator, eventBus: eventBus, log: log}
}

// AcceptMessage applies an inbound channel message to its negotiation.
func (s *Service) AcceptMessage(ctx context.Context, payload InboundMessagePayload) (*negotiationtransport.MessageResult, error) {
	result, err := s.negotiator.ApplyInboundMessage(ctx, payload.NegotiationID, negotiationtransport.InboundMessageRequest{
		Role:       payload.Role,
		Body:       payload.Body,
		DedupToken: payload.DedupToken,
	})
	if err != nil {
		return nil, err
	}

	event := events.WebhookMessageAccepted{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: payload.NegotiationID,
		Role:          payload.Role,
	}
	if payload.DedupToken != nil {
		event.DedupToken = *payload.DedupToken
	}
	s.eventBus.Publish(ctx, event)
	return result, nil
}

// AcceptIntake opens a negotiation from an external intake submission.
func (s *Service) AcceptIntake(ctx context.Context, payload IntakePayload) (*negotiationtransport.NegotiationResponse, error) {
	return s.negotiator.Create(ctx, negotiationtransport.CreateNegotiationRequest{
		ProviderID:   payload.ProviderID,
		ClientName:   payload.ClientName,
		ClientEmail:  payload.ClientEmail,
		ClientPhone:  payload.ClientPhone,
		FirstMessage: payload.Message,
	})
}
