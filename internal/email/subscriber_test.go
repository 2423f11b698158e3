package email

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	"concierge_backend/platform/logger"
)

type recordingSender struct {
	NoopSender
	feedbackTo  string
	feedbackURL string
	err         error
}

func (r *recordingSender) SendFeedbackRequest(ctx context.Context, toEmail, clientName, feedbackURL string) error {
	r.feedbackTo = toEmail
	r.feedbackURL = feedbackURL
	return r.err
}

func TestSubscriberSendsFeedbackRequest(t *testing.T) {
	sender := &recordingSender{}
	sub := NewSubscriber(sender, "https://concierge.example.com/", logger.New("development"))

	id := uuid.New()
	err := sub.onFeedbackRequestSent(context.Background(), events.FeedbackRequestSent{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: id,
		ClientEmail:   "client@example.com",
		ClientName:    "Ada",
	})
	if err != nil {
		t.Fatalf("onFeedbackRequestSent: %v", err)
	}

	if sender.feedbackTo != "client@example.com" {
		t.Errorf("sent to %q, want client@example.com", sender.feedbackTo)
	}
	if want := "https://concierge.example.com/feedback/" + id.String(); sender.feedbackURL != want {
		t.Errorf("feedback url = %q, want %q", sender.feedbackURL, want)
	}
}

func TestSubscriberPropagatesSendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	sub := NewSubscriber(sender, "https://concierge.example.com", logger.New("development"))

	err := sub.onFeedbackRequestSent(context.Background(), events.FeedbackRequestSent{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: uuid.New(),
		ClientEmail:   "client@example.com",
	})
	if err == nil {
		t.Fatal("expected error from failed send")
	}
}

func TestRenderEmailTemplates(t *testing.T) {
	tests := []struct {
		name string
		file string
		data any
	}{
		{
			name: "thread message",
			file: "thread_message.html",
			data: threadMessageEmailData{
				baseEmailData: baseEmailData{Title: "t", Heading: "h"},
				RecipientName: "Ada",
				Body:          "See you Tuesday at 3pm",
			},
		},
		{
			name: "feedback request",
			file: "feedback_request.html",
			data: feedbackRequestEmailData{
				baseEmailData: baseEmailData{Title: "t", Heading: "h", CTALabel: "Go", CTAURL: "https://example.com"},
				ClientName:    "Ada",
			},
		},
		{
			name: "attention alert",
			file: "attention_alert.html",
			data: attentionAlertEmailData{
				baseEmailData: baseEmailData{Title: "t", Heading: "h"},
				NegotiationID: uuid.NewString(),
				Reason:        "cancel requested",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := renderEmailTemplate(tt.file, tt.data)
			if err != nil {
				t.Fatalf("render %s: %v", tt.file, err)
			}
			if out == "" {
				t.Fatalf("render %s: empty output", tt.file)
			}
		})
	}
}
