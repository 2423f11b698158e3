package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	"concierge_backend/platform/logger"
)

type scheduledTask struct {
	taskType string
	id       string
	runAt    time.Time
}

type fakeScheduler struct {
	scheduled []scheduledTask
}

func (f *fakeScheduler) ScheduleMeetingLinkCheck(ctx context.Context, payload MeetingLinkCheckPayload, runAt time.Time) error {
	f.scheduled = append(f.scheduled, scheduledTask{TaskMeetingLinkCheck, payload.NegotiationID, runAt})
	return nil
}

func (f *fakeScheduler) ScheduleFeedbackForm(ctx context.Context, payload FeedbackFormPayload, runAt time.Time) error {
	f.scheduled = append(f.scheduled, scheduledTask{TaskFeedbackForm, payload.NegotiationID, runAt})
	return nil
}

func (f *fakeScheduler) ScheduleSessionHeldCheck(ctx context.Context, payload SessionHeldCheckPayload, runAt time.Time) error {
	f.scheduled = append(f.scheduled, scheduledTask{TaskSessionHeldCheck, payload.NegotiationID, runAt})
	return nil
}

func (f *fakeScheduler) byType(taskType string) *scheduledTask {
	for i := range f.scheduled {
		if f.scheduled[i].taskType == taskType {
			return &f.scheduled[i]
		}
	}
	return nil
}

func TestConfirmationListenerSchedulesFollowUps(t *testing.T) {
	fake := &fakeScheduler{}
	listener := NewConfirmationListener(fake, logger.New("development"))

	id := uuid.New()
	confirmedAt := time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)
	appointmentAt := time.Date(2030, 3, 14, 15, 0, 0, 0, time.UTC)

	err := listener.onConfirmed(context.Background(), events.NegotiationConfirmed{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: id,
		AppointmentAt: appointmentAt,
		ConfirmedAt:   confirmedAt,
	})
	if err != nil {
		t.Fatalf("onConfirmed: %v", err)
	}

	if len(fake.scheduled) != 3 {
		t.Fatalf("scheduled = %d tasks, want 3", len(fake.scheduled))
	}

	linkCheck := fake.byType(TaskMeetingLinkCheck)
	if linkCheck == nil {
		t.Fatal("meeting link check not scheduled")
	}
	if want := confirmedAt.Add(24 * time.Hour); !linkCheck.runAt.Equal(want) {
		t.Errorf("link check at %v, want %v", linkCheck.runAt, want)
	}
	if linkCheck.id != id.String() {
		t.Errorf("link check id = %s, want %s", linkCheck.id, id)
	}

	sessionCheck := fake.byType(TaskSessionHeldCheck)
	if sessionCheck == nil {
		t.Fatal("session held check not scheduled")
	}
	if want := appointmentAt.Add(15 * time.Minute); !sessionCheck.runAt.Equal(want) {
		t.Errorf("session check at %v, want %v", sessionCheck.runAt, want)
	}

	feedback := fake.byType(TaskFeedbackForm)
	if feedback == nil {
		t.Fatal("feedback form not scheduled")
	}
	if want := appointmentAt.Add(time.Hour); !feedback.runAt.Equal(want) {
		t.Errorf("feedback at %v, want %v", feedback.runAt, want)
	}
}

func TestConfirmationListenerSkipsLinkCheckWhenLinkPresent(t *testing.T) {
	fake := &fakeScheduler{}
	listener := NewConfirmationListener(fake, logger.New("development"))

	err := listener.onConfirmed(context.Background(), events.NegotiationConfirmed{
		BaseEvent:      events.NewBaseEvent(),
		NegotiationID:  uuid.New(),
		AppointmentAt:  time.Date(2030, 3, 14, 15, 0, 0, 0, time.UTC),
		ConfirmedAt:    time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC),
		HasMeetingLink: true,
	})
	if err != nil {
		t.Fatalf("onConfirmed: %v", err)
	}

	if fake.byType(TaskMeetingLinkCheck) != nil {
		t.Error("meeting link check scheduled despite link on file")
	}
	if fake.byType(TaskSessionHeldCheck) == nil || fake.byType(TaskFeedbackForm) == nil {
		t.Error("session and feedback follow-ups should still be scheduled")
	}
}

func TestConfirmationListenerIgnoresOtherEvents(t *testing.T) {
	fake := &fakeScheduler{}
	listener := NewConfirmationListener(fake, logger.New("development"))

	err := listener.onConfirmed(context.Background(), events.NegotiationCreated{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("onConfirmed: %v", err)
	}
	if len(fake.scheduled) != 0 {
		t.Errorf("scheduled %d tasks for unrelated event", len(fake.scheduled))
	}
}
