package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/negotiations/repository"
	"concierge_backend/internal/negotiations/transport"
	"concierge_backend/platform/apperr"
)

// TakeControl puts a negotiation under the operator's manual control. The
// automated responder stops drafting replies until control is released.
// Taking control twice is idempotent for the same operator; a second
// operator is rejected until the first releases.
func (s *Service) TakeControl(ctx context.Context, id uuid.UUID, operatorID uuid.UUID) (*transport.NegotiationResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}
	if domain.IsTerminal(n.Stage) {
		return nil, apperr.Conflict("negotiation is already closed")
	}
	if n.HumanControlled {
		if n.ControlledBy != nil && *n.ControlledBy == operatorID {
			resp := transport.ToNegotiationResponse(n)
			return &resp, nil
		}
		return nil, apperr.Conflict("negotiation is already controlled by another operator")
	}

	now := s.now()
	n.HumanControlled = true
	n.ControlledBy = &operatorID
	n.ControlTakenAt = &now
	n.UpdatedAt = now
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}

	s.eventBus.Publish(ctx, events.HumanControlTaken{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		OperatorID:    operatorID,
	})
	resp := transport.ToNegotiationResponse(n)
	return &resp, nil
}

// ReleaseControl hands a negotiation back to the automated pipeline. Only
// the controlling operator can release; admins can force it for a
// colleague who went home with a negotiation checked out.
func (s *Service) ReleaseControl(ctx context.Context, id uuid.UUID, operatorID uuid.UUID, isAdmin bool) (*transport.NegotiationResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}
	if !n.HumanControlled {
		return nil, apperr.Conflict("negotiation is not under human control")
	}
	if n.ControlledBy != nil && *n.ControlledBy != operatorID && !isAdmin {
		return nil, apperr.Forbidden("only the controlling operator can release")
	}

	releasedBy := operatorID
	if n.ControlledBy != nil {
		releasedBy = *n.ControlledBy
	}

	n.HumanControlled = false
	n.ControlledBy = nil
	n.ControlTakenAt = nil
	n.UpdatedAt = s.now()
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}

	s.eventBus.Publish(ctx, events.HumanControlReleased{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		OperatorID:    releasedBy,
	})
	resp := transport.ToNegotiationResponse(n)
	return &resp, nil
}
