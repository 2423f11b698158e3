package domain

import (
	"time"

	"github.com/google/uuid"
)

// Negotiation is the aggregate tracking one appointment being arranged
// between a client and a provider across separate message threads.
type Negotiation struct {
	ID         uuid.UUID
	ProviderID uuid.UUID

	ClientName  string
	ClientPhone *string
	ClientEmail *string

	Stage           Stage
	ProgressPercent int

	HealthStatus HealthStatus
	IsStale      bool
	IsStalled    bool

	HasThreadDivergence bool
	HasToolFailure      bool
	NeedsAttention      bool
	AttentionReason     *string

	// The stage a stalled negotiation resumes to when activity returns.
	StalledFrom *Stage

	HumanControlled bool
	ControlledBy    *uuid.UUID
	ControlTakenAt  *time.Time

	// Latest proposed time per thread, kept as the original text so
	// operators see exactly what each side said.
	LastClientProposal   *string
	LastProviderProposal *string

	// Set once a slot is agreed. ConfirmedInstant is the normalized form
	// of AppointmentText.
	AppointmentText  *string
	ConfirmedInstant *time.Time
	ConfirmedAt      *time.Time
	MeetingLink      *string

	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// ApplyStage moves the negotiation to the given stage and raises the
// progress checkpoint. Progress never decreases except when entering a
// stage with a lower floor, which is exactly what rescheduling does.
func (n *Negotiation) ApplyStage(stage Stage, now time.Time) {
	n.Stage = stage
	if floor := CheckpointFloor(stage); floor >= 0 {
		n.ProgressPercent = floor
	}
	n.UpdatedAt = now
}

// Touch records activity on the negotiation.
func (n *Negotiation) Touch(now time.Time) {
	n.LastActivityAt = now
	n.UpdatedAt = now
}

// FlagAttention marks the negotiation for operator review with a reason.
func (n *Negotiation) FlagAttention(reason string, now time.Time) {
	n.NeedsAttention = true
	n.AttentionReason = &reason
	n.UpdatedAt = now
}

// ClearAttention removes the review flag.
func (n *Negotiation) ClearAttention(now time.Time) {
	n.NeedsAttention = false
	n.AttentionReason = nil
	n.UpdatedAt = now
}

// MessageDirection distinguishes received messages from sent ones.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// Message is one entry on a negotiation's thread. DedupToken makes webhook
// retries idempotent: the repository enforces uniqueness per negotiation.
type Message struct {
	ID            uuid.UUID
	NegotiationID uuid.UUID
	Role          ThreadRole
	Direction     MessageDirection
	Body          string
	Intent        Intent
	ProposedTime  *string
	DedupToken    *string
	CreatedAt     time.Time
}
