package domain

import "time"

// FollowUpType names the scheduled checks a confirmed negotiation gets.
type FollowUpType string

const (
	FollowUpMeetingLinkCheck FollowUpType = "meeting_link_check"
	FollowUpFeedbackForm     FollowUpType = "feedback_form"
)

// MeetingLinkCheckTime returns when to verify a confirmed appointment has a
// meeting link on record. Preferred is 24 hours after confirmation, but
// never later than 4 hours before the appointment; a result already in the
// past clamps to now so short-notice bookings are checked immediately.
func MeetingLinkCheckTime(confirmedAt, appointmentAt, now time.Time) time.Time {
	at := confirmedAt.Add(24 * time.Hour)
	if latest := appointmentAt.Add(-4 * time.Hour); at.After(latest) {
		at = latest
	}
	if at.Before(now) {
		return now
	}
	return at
}

// FeedbackFormTime returns when to send the post-session feedback request:
// one hour after the appointment ends.
func FeedbackFormTime(appointmentAt time.Time) time.Time {
	return appointmentAt.Add(time.Hour)
}
