package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskMeetingLinkCheck = "followups.meeting_link_check"

const TaskFeedbackForm = "followups.feedback_form"

const TaskSessionHeldCheck = "negotiations.session_held_check"

type MeetingLinkCheckPayload struct {
	NegotiationID string `json:"negotiationId"`
}

type FeedbackFormPayload struct {
	NegotiationID string `json:"negotiationId"`
}

type SessionHeldCheckPayload struct {
	NegotiationID string `json:"negotiationId"`
}

func NewMeetingLinkCheckTask(payload MeetingLinkCheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMeetingLinkCheck, data), nil
}

func ParseMeetingLinkCheckPayload(task *asynq.Task) (MeetingLinkCheckPayload, error) {
	var payload MeetingLinkCheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return MeetingLinkCheckPayload{}, err
	}
	return payload, nil
}

func NewFeedbackFormTask(payload FeedbackFormPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFeedbackForm, data), nil
}

func ParseFeedbackFormPayload(task *asynq.Task) (FeedbackFormPayload, error) {
	var payload FeedbackFormPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FeedbackFormPayload{}, err
	}
	return payload, nil
}

func NewSessionHeldCheckTask(payload SessionHeldCheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionHeldCheck, data), nil
}

func ParseSessionHeldCheckPayload(task *asynq.Task) (SessionHeldCheckPayload, error) {
	var payload SessionHeldCheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SessionHeldCheckPayload{}, err
	}
	return payload, nil
}
