package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/negotiations/repository"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/timetext"
)

// FireMeetingLinkCheck runs the pre-appointment link verification. The
// scheduler invokes it when the check comes due; if the booking is still
// standing and no link is on record, the negotiation is flagged for an
// operator. Re-delivery is harmless: a link present or a moved-on stage
// makes this a no-op.
func (s *Service) FireMeetingLinkCheck(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Deleted since scheduling; nothing to check.
			return nil
		}
		return err
	}
	if n.Stage != domain.StageConfirmed || n.MeetingLink != nil {
		return nil
	}

	now := s.now()
	n.FlagAttention(attentionMissingLink, now)
	if err := s.store.Update(ctx, n); err != nil {
		return err
	}
	s.eventBus.Publish(ctx, events.AttentionRequired{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		Reason:        attentionMissingLink,
	})
	return nil
}

// FireFeedbackRequest runs the post-session follow-up: once the
// appointment has passed, the negotiation moves through session_held into
// feedback_requested and the feedback email goes out via the event bus.
// Firing twice is a no-op after the first transition.
func (s *Service) FireFeedbackRequest(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if n.Stage != domain.StageConfirmed && n.Stage != domain.StageSessionHeld {
		return nil
	}
	if n.ConfirmedInstant == nil {
		return apperr.Internal("confirmed negotiation has no appointment time")
	}
	now := s.now()
	if !timetext.IsInPast(*n.ConfirmedInstant, now) {
		// Rescheduled to a later slot after this task was enqueued; the
		// new confirmation re-enqueues its own follow-up.
		return nil
	}

	oldStage := n.Stage
	n.ApplyStage(domain.StageFeedbackRequested, now)
	s.applyEntryEffects(&n, oldStage, now)
	if err := s.store.Update(ctx, n); err != nil {
		return err
	}

	s.log.StageTransition(n.ID.String(), string(oldStage), string(n.Stage), "scheduler")
	s.eventBus.Publish(ctx, events.StageChanged{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		OldStage:      string(oldStage),
		NewStage:      string(n.Stage),
		Trigger:       "scheduler",
	})
	if n.ClientEmail != nil {
		s.eventBus.Publish(ctx, events.FeedbackRequestSent{
			BaseEvent:     events.NewBaseEvent(),
			NegotiationID: n.ID,
			ClientEmail:   *n.ClientEmail,
			ClientName:    n.ClientName,
		})
	}
	return nil
}

// MarkSessionHeld records that the appointment took place. Usually driven
// by the scheduler shortly after the slot passes; operators can also set
// it by hand through the admin transition.
func (s *Service) MarkSessionHeld(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if n.Stage != domain.StageConfirmed {
		return nil
	}
	if n.ConfirmedInstant == nil || !timetext.IsInPast(*n.ConfirmedInstant, s.now()) {
		return nil
	}

	now := s.now()
	oldStage := n.Stage
	n.ApplyStage(domain.StageSessionHeld, now)
	s.applyEntryEffects(&n, oldStage, now)
	if err := s.store.Update(ctx, n); err != nil {
		return err
	}
	s.log.StageTransition(n.ID.String(), string(oldStage), string(n.Stage), "scheduler")
	s.eventBus.Publish(ctx, events.StageChanged{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		OldStage:      string(oldStage),
		NewStage:      string(n.Stage),
		Trigger:       "scheduler",
	})
	return nil
}
