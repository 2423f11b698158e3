package email

import (
	"context"
	"fmt"
	"strings"

	"concierge_backend/internal/events"
	"concierge_backend/platform/logger"
)

// Subscriber sends the feedback request email when the follow-up sweep
// moves a negotiation into the feedback stage.
type Subscriber struct {
	sender  Sender
	baseURL string
	log     *logger.Logger
}

func NewSubscriber(sender Sender, baseURL string, log *logger.Logger) *Subscriber {
	return &Subscriber{sender: sender, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

func (s *Subscriber) Subscribe(bus events.Bus) {
	bus.Subscribe(events.FeedbackRequestSent{}.EventName(), events.HandlerFunc(s.onFeedbackRequestSent))
}

func (s *Subscriber) onFeedbackRequestSent(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.FeedbackRequestSent)
	if !ok {
		return nil
	}
	feedbackURL := fmt.Sprintf("%s/feedback/%s", s.baseURL, evt.NegotiationID)
	if err := s.sender.SendFeedbackRequest(ctx, evt.ClientEmail, evt.ClientName, feedbackURL); err != nil {
		s.log.Error("failed to send feedback request email",
			"negotiation_id", evt.NegotiationID.String(),
			"error", err.Error(),
		)
		return err
	}
	return nil
}
