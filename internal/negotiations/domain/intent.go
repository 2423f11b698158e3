package domain

import "strings"

// Intent is the classified purpose of an inbound message. Classification is
// deterministic keyword matching so transitions stay reproducible and
// auditable; the drafting agent never decides stage movements.
type Intent string

const (
	IntentAvailabilityGiven   Intent = "availability_given"
	IntentSlotSelected        Intent = "slot_selected"
	IntentConfirmationGiven   Intent = "confirmation_given"
	IntentMeetingLinkProvided Intent = "meeting_link_provided"
	IntentRescheduleRequested Intent = "reschedule_requested"
	IntentCancelRequested     Intent = "cancel_requested"
	IntentFeedbackGiven       Intent = "feedback_given"
	IntentUnknown             Intent = "unknown"
)

var knownIntents = map[Intent]struct{}{
	IntentAvailabilityGiven:   {},
	IntentSlotSelected:        {},
	IntentConfirmationGiven:   {},
	IntentMeetingLinkProvided: {},
	IntentRescheduleRequested: {},
	IntentCancelRequested:     {},
	IntentFeedbackGiven:       {},
	IntentUnknown:             {},
}

// IsKnownIntent reports whether the intent is part of the classification set.
func IsKnownIntent(intent Intent) bool {
	_, ok := knownIntents[intent]
	return ok
}

// intentSignals lists keyword groups in precedence order. The first group
// with a hit wins, so an explicit cancellation beats a reschedule mention
// in the same message, and a concrete link beats a bare confirmation.
var intentSignals = []struct {
	intent   Intent
	keywords []string
}{
	{IntentCancelRequested, []string{
		"cancel", "call it off", "no longer need", "not going ahead", "won't be needing",
	}},
	{IntentRescheduleRequested, []string{
		"reschedule", "different time", "another time", "postpone", "move the appointment",
		"move it to", "push it back", "can we change the time",
	}},
	{IntentMeetingLinkProvided, []string{
		"zoom.us", "meet.google", "teams.microsoft", "meeting link", "join link",
		"link to join", "dial-in",
	}},
	{IntentFeedbackGiven, []string{
		"feedback", "went well", "went really well", "great session", "very helpful",
		"would recommend", "out of 5", "stars",
	}},
	{IntentConfirmationGiven, []string{
		"confirm", "that works", "see you then", "see you there", "it's booked",
		"all set", "locked in", "sounds good, see you",
	}},
	{IntentSlotSelected, []string{
		"i'll take", "i'd like the", "let's do", "works best for me", "i can do",
		"i'll go with", "option", "prefer the",
	}},
	{IntentAvailabilityGiven, []string{
		"available", "availability", "free on", "free at", "could do", "open on",
		"slots", "i have time",
	}},
}

// ClassifyIntent maps a message body to an intent. Matching is case
// insensitive and first-match-wins over the precedence list above.
func ClassifyIntent(content string) Intent {
	lowered := strings.ToLower(content)
	for _, group := range intentSignals {
		for _, keyword := range group.keywords {
			if strings.Contains(lowered, keyword) {
				return group.intent
			}
		}
	}
	return IntentUnknown
}
