package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/negotiations/repository"
	"concierge_backend/internal/negotiations/transport"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/sanitize"
	"concierge_backend/platform/timetext"
)

const (
	attentionCancelRequested = "cancellation requested, awaiting operator review"
	attentionDivergence      = "client and provider threads propose different times"
	attentionMissingLink     = "confirmed appointment has no meeting link"
	attentionNoAgreedTime    = "confirmation received without a parseable agreed time"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"]+`)

// ApplyInboundMessage records a message on a negotiation thread and applies
// the resulting stage transition, if any. The whole operation runs under
// the negotiation's lock so concurrent webhook deliveries serialize.
//
// Terminal negotiations still record messages; they just never move.
func (s *Service) ApplyInboundMessage(ctx context.Context, id uuid.UUID, req transport.InboundMessageRequest) (*transport.MessageResult, error) {
	role := domain.ThreadRole(req.Role)
	if role != domain.RoleClient && role != domain.RoleProvider {
		return nil, apperr.Validation("role must be client or provider")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}

	now := s.now()
	body := sanitize.Text(req.Body)
	intent := domain.ClassifyIntent(body)
	proposed := extractProposal(body, intent, now)

	msg, err := s.store.InsertMessage(ctx, domain.Message{
		NegotiationID: id,
		Role:          role,
		Direction:     domain.DirectionInbound,
		Body:          body,
		Intent:        intent,
		ProposedTime:  proposed,
		DedupToken:    req.DedupToken,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateMessage) {
			// Redelivery of a message we already processed: report the
			// current state without touching anything.
			return &transport.MessageResult{
				Negotiation: transport.ToNegotiationResponse(n),
				Duplicate:   true,
			}, nil
		}
		return nil, err
	}

	oldStage := n.Stage
	n.Touch(now)

	if proposed != nil {
		switch role {
		case domain.RoleClient:
			n.LastClientProposal = proposed
		case domain.RoleProvider:
			n.LastProviderProposal = proposed
		}
		// The divergence flag is sticky: a new message can raise it but
		// only an explicit reconciliation clears it.
		if !n.HasThreadDivergence && domain.ThreadsDiverge(n.LastClientProposal, n.LastProviderProposal, now) {
			n.HasThreadDivergence = true
			n.FlagAttention(attentionDivergence, now)
			s.eventBus.Publish(ctx, events.ThreadDivergenceDetected{
				BaseEvent:        events.NewBaseEvent(),
				NegotiationID:    n.ID,
				ClientProposal:   *n.LastClientProposal,
				ProviderProposal: *n.LastProviderProposal,
			})
		}
	}

	// A stalled negotiation wakes on the first client or provider
	// activity and resumes where it left off.
	resumed := false
	if n.Stage == domain.StageStalled && !n.HumanControlled {
		resume := domain.StageAwaitingProviderAvailability
		if n.StalledFrom != nil {
			resume = *n.StalledFrom
		}
		n.ApplyStage(resume, now)
		n.StalledFrom = nil
		resumed = true
	}

	transitioned := resumed
	switch {
	case intent == domain.IntentCancelRequested && !domain.IsTerminal(n.Stage):
		// Cancellations are never automatic: flag for an operator.
		n.FlagAttention(attentionCancelRequested, now)
		s.eventBus.Publish(ctx, events.AttentionRequired{
			BaseEvent:     events.NewBaseEvent(),
			NegotiationID: n.ID,
			Reason:        attentionCancelRequested,
		})
	case n.HumanControlled:
		// An operator owns this conversation. The message is on record
		// and the health clock advanced, but the machine keeps its hands
		// off the stage.
		if _, ok := s.rules.Next(n.Stage, role, intent); ok {
			s.log.Info("automated transition suppressed under human control",
				"negotiation_id", n.ID.String(), "intent", string(intent))
		}
	default:
		if next, ok := s.rules.Next(n.Stage, role, intent); ok {
			if next == domain.StageConfirmed && agreedProposal(&n, msg, now) == nil {
				// A booking cannot confirm without a time both sides can be
				// held to. Hold the stage and hand it to an operator.
				n.FlagAttention(attentionNoAgreedTime, now)
				s.eventBus.Publish(ctx, events.AttentionRequired{
					BaseEvent:     events.NewBaseEvent(),
					NegotiationID: n.ID,
					Reason:        attentionNoAgreedTime,
				})
			} else {
				n.ApplyStage(next, now)
				s.applyMessageTransitionEffects(&n, oldStage, msg, now)
				transitioned = true
			}
		}
	}

	result := domain.EvaluateHealth(s.healthInput(ctx, n, now))
	n.HealthStatus = result.Status
	n.IsStale = result.IsStale
	n.IsStalled = result.IsStalled

	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}

	s.eventBus.Publish(ctx, events.MessageReceived{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		MessageID:     msg.ID,
		Role:          string(role),
		Intent:        string(intent),
	})
	if transitioned {
		s.log.StageTransition(n.ID.String(), string(oldStage), string(n.Stage), "message")
		s.eventBus.Publish(ctx, events.StageChanged{
			BaseEvent:     events.NewBaseEvent(),
			NegotiationID: n.ID,
			OldStage:      string(oldStage),
			NewStage:      string(n.Stage),
			Trigger:       "message",
		})
		s.publishConfirmedIfNeeded(ctx, n, oldStage)
	}

	return &transport.MessageResult{
		Negotiation:  transport.ToNegotiationResponse(n),
		Message:      transport.ToMessageResponse(msg),
		Transitioned: transitioned,
	}, nil
}

// applyMessageTransitionEffects captures the data a message-driven
// transition carries with it: the agreed slot when confirming, the meeting
// link when one is sent, and the entry effects shared with admin moves.
func (s *Service) applyMessageTransitionEffects(n *domain.Negotiation, oldStage domain.Stage, msg domain.Message, now time.Time) {
	if msg.Intent == domain.IntentMeetingLinkProvided {
		if link := urlRe.FindString(msg.Body); link != "" {
			n.MeetingLink = &link
		}
	}
	if n.Stage == domain.StageConfirmed && oldStage != domain.StageConfirmed {
		if agreed := agreedProposal(n, msg, now); agreed != nil {
			n.AppointmentText = agreed
			n.ConfirmedInstant = timetext.Parse(*agreed, now, true)
		}
	}
	s.applyEntryEffects(n, oldStage, now)
}

// agreedProposal resolves the slot a confirmation refers to: the confirming
// message's own time if it carries one, else whichever proposal survived
// the negotiation. Returns nil when nothing on record parses to a time.
func agreedProposal(n *domain.Negotiation, msg domain.Message, now time.Time) *string {
	agreed := msg.ProposedTime
	if agreed == nil {
		agreed = n.LastProviderProposal
	}
	if agreed == nil {
		agreed = n.LastClientProposal
	}
	if agreed == nil || timetext.Parse(*agreed, now, true) == nil {
		return nil
	}
	return agreed
}

// SendOperatorMessage records an outbound message written by an operator.
// It requires the operator to hold control of the negotiation.
func (s *Service) SendOperatorMessage(ctx context.Context, id uuid.UUID, operatorID uuid.UUID, req transport.OperatorMessageRequest) (*transport.MessageResponse, error) {
	role := domain.ThreadRole(req.Role)
	if role != domain.RoleClient && role != domain.RoleProvider {
		return nil, apperr.Validation("role must be client or provider")
	}

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
		return nil, apperr.Conflict("take control of the negotiation before messaging")
	}
	if n.ControlledBy != nil && *n.ControlledBy != operatorID {
		return nil, apperr.Conflict("negotiation is controlled by another operator")
	}

	now := s.now()
	msg, err := s.store.InsertMessage(ctx, domain.Message{
		NegotiationID: id,
		Role:          role,
		Direction:     domain.DirectionOutbound,
		Body:          sanitize.Text(req.Body),
		Intent:        domain.IntentUnknown,
	})
	if err != nil {
		return nil, err
	}
	n.Touch(now)
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}

	resp := transport.ToMessageResponse(msg)
	return &resp, nil
}

// RecordOutboundMessage stores a reply the automated responder sent. The
// control gate is re-checked under the lock: a reply drafted before an
// operator took over must not land in the history behind their back.
func (s *Service) RecordOutboundMessage(ctx context.Context, id uuid.UUID, role domain.ThreadRole, body string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.HumanControlled {
		return apperr.Conflict("negotiation is under human control")
	}
	if _, err := s.store.InsertMessage(ctx, domain.Message{
		NegotiationID: id,
		Role:          role,
		Direction:     domain.DirectionOutbound,
		Body:          body,
		Intent:        domain.IntentUnknown,
	}); err != nil {
		return err
	}
	n.Touch(s.now())
	return s.store.Update(ctx, n)
}

// extractProposal keeps the message body as the recorded proposal when the
// intent suggests a time and the body actually parses to one.
func extractProposal(body string, intent domain.Intent, now time.Time) *string {
	switch intent {
	case domain.IntentAvailabilityGiven, domain.IntentSlotSelected,
		domain.IntentConfirmationGiven, domain.IntentRescheduleRequested:
	default:
		return nil
	}
	if timetext.Parse(body, now, true) == nil {
		return nil
	}
	return &body
}
