package email

const (
	subjectThreadMessage   = "Update on your appointment"
	subjectFeedbackRequest = "How was your appointment?"
	subjectAttentionAlert  = "Booking needs attention"
)
