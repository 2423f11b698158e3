package scheduler

import (
	"context"
	"time"

	"concierge_backend/internal/events"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/platform/logger"
)

// ConfirmationListener enqueues the timed follow-ups when a negotiation
// reaches the confirmed stage: a meeting link check before the session, a
// session-held check shortly after the agreed time, and the feedback
// request an hour after it.
type ConfirmationListener struct {
	scheduler FollowUpScheduler
	log       *logger.Logger
}

func NewConfirmationListener(scheduler FollowUpScheduler, log *logger.Logger) *ConfirmationListener {
	return &ConfirmationListener{scheduler: scheduler, log: log}
}

func (l *ConfirmationListener) Subscribe(bus events.Bus) {
	bus.Subscribe(events.NegotiationConfirmed{}.EventName(), events.HandlerFunc(l.onConfirmed))
}

func (l *ConfirmationListener) onConfirmed(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.NegotiationConfirmed)
	if !ok {
		return nil
	}

	id := evt.NegotiationID.String()

	if !evt.HasMeetingLink {
		linkCheckAt := domain.MeetingLinkCheckTime(evt.ConfirmedAt, evt.AppointmentAt, time.Now())
		if err := l.scheduler.ScheduleMeetingLinkCheck(ctx, MeetingLinkCheckPayload{NegotiationID: id}, linkCheckAt); err != nil {
			l.log.Error("failed to schedule meeting link check", "negotiation_id", id, "error", err)
			return err
		}
	}

	sessionCheckAt := evt.AppointmentAt.Add(15 * time.Minute)
	if err := l.scheduler.ScheduleSessionHeldCheck(ctx, SessionHeldCheckPayload{NegotiationID: id}, sessionCheckAt); err != nil {
		l.log.Error("failed to schedule session held check", "negotiation_id", id, "error", err)
		return err
	}

	feedbackAt := domain.FeedbackFormTime(evt.AppointmentAt)
	if err := l.scheduler.ScheduleFeedbackForm(ctx, FeedbackFormPayload{NegotiationID: id}, feedbackAt); err != nil {
		l.log.Error("failed to schedule feedback form", "negotiation_id", id, "error", err)
		return err
	}

	return nil
}
