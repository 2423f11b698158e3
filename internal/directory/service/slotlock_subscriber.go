package service

import (
	"context"

	"concierge_backend/internal/events"
	"concierge_backend/platform/logger"
)

// SlotLockSubscriber holds and releases provider slot locks as negotiations
// confirm and cancel. Losing the lock race does not fail the confirmation;
// it is logged for the operator dashboard to surface via the double-booked
// provider's calendar.
type SlotLockSubscriber struct {
	svc *Service
	log *logger.Logger
}

func NewSlotLockSubscriber(svc *Service, log *logger.Logger) *SlotLockSubscriber {
	return &SlotLockSubscriber{svc: svc, log: log}
}

func (l *SlotLockSubscriber) Subscribe(bus events.Bus) {
	bus.Subscribe(events.NegotiationConfirmed{}.EventName(), events.HandlerFunc(l.onConfirmed))
	bus.Subscribe(events.NegotiationCancelled{}.EventName(), events.HandlerFunc(l.onCancelled))
}

func (l *SlotLockSubscriber) onConfirmed(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.NegotiationConfirmed)
	if !ok {
		return nil
	}
	acquired, err := l.svc.AcquireSlotLock(ctx, evt.ProviderID, evt.AppointmentAt, evt.NegotiationID)
	if err != nil {
		l.log.Warn("failed to acquire provider slot lock",
			"negotiation_id", evt.NegotiationID.String(),
			"provider_id", evt.ProviderID.String(),
			"error", err,
		)
		return err
	}
	if !acquired {
		l.log.Warn("provider slot already held by another negotiation",
			"negotiation_id", evt.NegotiationID.String(),
			"provider_id", evt.ProviderID.String(),
			"slot", evt.AppointmentAt,
		)
	}
	return nil
}

func (l *SlotLockSubscriber) onCancelled(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.NegotiationCancelled)
	if !ok {
		return nil
	}
	if evt.AppointmentAt == nil {
		return nil
	}
	if err := l.svc.ReleaseSlotLock(ctx, evt.ProviderID, *evt.AppointmentAt, evt.NegotiationID); err != nil {
		l.log.Warn("failed to release provider slot lock",
			"negotiation_id", evt.NegotiationID.String(),
			"error", err,
		)
		return err
	}
	return nil
}
