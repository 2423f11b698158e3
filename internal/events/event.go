// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"concierge_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Negotiation Domain Events
// =============================================================================

// NegotiationCreated is published when a new negotiation is opened.
type NegotiationCreated struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	ProviderID    uuid.UUID `json:"providerId"`
	ClientName    string    `json:"clientName"`
	ClientEmail   string    `json:"clientEmail,omitempty"`
	ClientPhone   string    `json:"clientPhone,omitempty"`
}

func (e NegotiationCreated) EventName() string { return "negotiations.created" }

// MessageReceived is published after an inbound message is recorded on a
// negotiation thread, whether or not it caused a stage transition.
type MessageReceived struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	MessageID     uuid.UUID `json:"messageId"`
	Role          string    `json:"role"`
	Intent        string    `json:"intent"`
}

func (e MessageReceived) EventName() string { return "negotiations.message.received" }

// StageChanged is published when a negotiation moves between stages,
// whether driven by a message or by an admin override.
type StageChanged struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	OldStage      string    `json:"oldStage"`
	NewStage      string    `json:"newStage"`
	Trigger       string    `json:"trigger"` // "message", "admin", "scheduler"
	ActorID       *uuid.UUID `json:"actorId,omitempty"`
}

func (e StageChanged) EventName() string { return "negotiations.stage.changed" }

// NegotiationConfirmed is published when a negotiation reaches the
// confirmed stage with an agreed time. The scheduler listens for this to
// enqueue the meeting link check and feedback follow-ups.
type NegotiationConfirmed struct {
	BaseEvent
	NegotiationID  uuid.UUID `json:"negotiationId"`
	ProviderID     uuid.UUID `json:"providerId"`
	AppointmentAt  time.Time `json:"appointmentAt"`
	ConfirmedAt    time.Time `json:"confirmedAt"`
	HasMeetingLink bool      `json:"hasMeetingLink"`
}

func (e NegotiationConfirmed) EventName() string { return "negotiations.confirmed" }

// NegotiationCancelled is published when a negotiation is cancelled.
type NegotiationCancelled struct {
	BaseEvent
	NegotiationID uuid.UUID  `json:"negotiationId"`
	ProviderID    uuid.UUID  `json:"providerId"`
	AppointmentAt *time.Time `json:"appointmentAt,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	ActorID       *uuid.UUID `json:"actorId,omitempty"`
}

func (e NegotiationCancelled) EventName() string { return "negotiations.cancelled" }

// HumanControlTaken is published when an operator takes over a negotiation.
// Automated responders must stop drafting replies until control is released.
type HumanControlTaken struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	OperatorID    uuid.UUID `json:"operatorId"`
}

func (e HumanControlTaken) EventName() string { return "negotiations.control.taken" }

// HumanControlReleased is published when an operator hands a negotiation
// back to the automated pipeline.
type HumanControlReleased struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	OperatorID    uuid.UUID `json:"operatorId"`
}

func (e HumanControlReleased) EventName() string { return "negotiations.control.released" }

// ThreadDivergenceDetected is published when the client and provider
// threads are found to be talking about different appointment times.
type ThreadDivergenceDetected struct {
	BaseEvent
	NegotiationID    uuid.UUID `json:"negotiationId"`
	ClientProposal   string    `json:"clientProposal"`
	ProviderProposal string    `json:"providerProposal"`
}

func (e ThreadDivergenceDetected) EventName() string { return "negotiations.divergence.detected" }

// ToolFailureRecorded is published when an automated action on a
// negotiation fails and the negotiation is flagged for review.
type ToolFailureRecorded struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	Tool          string    `json:"tool"`
	ErrorMessage  string    `json:"errorMessage"`
}

func (e ToolFailureRecorded) EventName() string { return "negotiations.tool_failure.recorded" }

// AttentionRequired is published when a negotiation is flagged for
// operator review, for example on an explicit cancellation request.
type AttentionRequired struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	Reason        string    `json:"reason"`
}

func (e AttentionRequired) EventName() string { return "negotiations.attention.required" }

// =============================================================================
// Follow-up Domain Events
// =============================================================================

// FollowUpDue is published by the scheduler when a follow-up check for a
// confirmed negotiation comes due.
type FollowUpDue struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	FollowUpType  string    `json:"followUpType"` // "meeting_link_check", "feedback_form"
}

func (e FollowUpDue) EventName() string { return "followups.due" }

// FeedbackRequestSent is published after the post-session feedback email
// goes out.
type FeedbackRequestSent struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	ClientEmail   string    `json:"clientEmail"`
	ClientName    string    `json:"clientName"`
}

func (e FeedbackRequestSent) EventName() string { return "followups.feedback.sent" }

// =============================================================================
// Webhook Domain Events
// =============================================================================

// WebhookMessageAccepted is published when an inbound channel message
// passes signature and rate checks at the webhook boundary.
type WebhookMessageAccepted struct {
	BaseEvent
	NegotiationID uuid.UUID `json:"negotiationId"`
	Role          string    `json:"role"`
	DedupToken    string    `json:"dedupToken,omitempty"`
}

func (e WebhookMessageAccepted) EventName() string { return "webhook.message.accepted" }
