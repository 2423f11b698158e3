// Package transport defines the request and response shapes for the
// negotiations HTTP API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"concierge_backend/internal/negotiations/domain"
)

type CreateNegotiationRequest struct {
	ProviderID  uuid.UUID `json:"providerId" binding:"required"`
	ClientName  string    `json:"clientName" binding:"required,min=1,max=200"`
	ClientEmail *string   `json:"clientEmail" binding:"omitempty,email"`
	ClientPhone *string   `json:"clientPhone" binding:"omitempty,max=32"`
	FirstMessage *string  `json:"firstMessage" binding:"omitempty,max=10000"`
}

type InboundMessageRequest struct {
	Role       string  `json:"role" binding:"required,oneof=client provider"`
	Body       string  `json:"body" binding:"required,min=1,max=10000"`
	DedupToken *string `json:"dedupToken" binding:"omitempty,max=128"`
}

type OperatorMessageRequest struct {
	Role string `json:"role" binding:"required,oneof=client provider"`
	Body string `json:"body" binding:"required,min=1,max=10000"`
}

type AdminTransitionRequest struct {
	Stage         string `json:"stage" binding:"required"`
	ConfirmedText string `json:"confirmed_text" binding:"omitempty,max=200"`
	Force         bool   `json:"force"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

type ReconcileRequest struct {
	AgreedTime string `json:"agreedTime" binding:"required,max=200"`
}

type MeetingLinkRequest struct {
	MeetingLink string `json:"meetingLink" binding:"required,url,max=500"`
}

type ListNegotiationsQuery struct {
	Stage           string `form:"stage"`
	Health          string `form:"health"`
	NeedsAttention  *bool  `form:"needsAttention"`
	HumanControlled *bool  `form:"humanControlled"`
	ProviderID      string `form:"providerId"`
	Limit           int    `form:"limit"`
	Offset          int    `form:"offset"`
}

type NegotiationResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      uuid.UUID  `json:"providerId"`
	ClientName      string     `json:"clientName"`
	ClientPhone     *string    `json:"clientPhone,omitempty"`
	ClientEmail     *string    `json:"clientEmail,omitempty"`
	Stage           string     `json:"stage"`
	ProgressPercent int        `json:"progressPercent"`
	HealthStatus    string     `json:"healthStatus"`
	IsStale         bool       `json:"isStale"`
	IsStalled       bool       `json:"isStalled"`
	HasThreadDivergence bool   `json:"hasThreadDivergence"`
	HasToolFailure  bool       `json:"hasToolFailure"`
	NeedsAttention  bool       `json:"needsAttention"`
	AttentionReason *string    `json:"attentionReason,omitempty"`
	HumanControlled bool       `json:"humanControlled"`
	ControlledBy    *uuid.UUID `json:"controlledBy,omitempty"`
	LastClientProposal   *string `json:"lastClientProposal,omitempty"`
	LastProviderProposal *string `json:"lastProviderProposal,omitempty"`
	AppointmentText *string    `json:"appointmentText,omitempty"`
	ConfirmedInstant *time.Time `json:"confirmedInstant,omitempty"`
	MeetingLink     *string    `json:"meetingLink,omitempty"`
	LastActivityAt  time.Time  `json:"lastActivityAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type MessageResponse struct {
	ID           uuid.UUID `json:"id"`
	Role         string    `json:"role"`
	Direction    string    `json:"direction"`
	Body         string    `json:"body"`
	Intent       string    `json:"intent"`
	ProposedTime *string   `json:"proposedTime,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MessageResult is returned after applying an inbound message: the updated
// negotiation plus what the message did to it.
type MessageResult struct {
	Negotiation NegotiationResponse `json:"negotiation"`
	Message     MessageResponse     `json:"message"`
	Transitioned bool               `json:"transitioned"`
	Duplicate    bool               `json:"duplicate"`
}

// TransitionResult carries non-fatal warnings alongside the updated
// negotiation for admin overrides.
type TransitionResult struct {
	Negotiation NegotiationResponse `json:"negotiation"`
	Warnings    []string            `json:"warnings,omitempty"`
}

type ListNegotiationsResponse struct {
	Items []NegotiationResponse `json:"items"`
	Total int                   `json:"total"`
}

// ToNegotiationResponse maps the aggregate to its API shape.
func ToNegotiationResponse(n domain.Negotiation) NegotiationResponse {
	return NegotiationResponse{
		ID:                   n.ID,
		ProviderID:           n.ProviderID,
		ClientName:           n.ClientName,
		ClientPhone:          n.ClientPhone,
		ClientEmail:          n.ClientEmail,
		Stage:                string(n.Stage),
		ProgressPercent:      n.ProgressPercent,
		HealthStatus:         string(n.HealthStatus),
		IsStale:              n.IsStale,
		IsStalled:            n.IsStalled,
		HasThreadDivergence:  n.HasThreadDivergence,
		HasToolFailure:       n.HasToolFailure,
		NeedsAttention:       n.NeedsAttention,
		AttentionReason:      n.AttentionReason,
		HumanControlled:      n.HumanControlled,
		ControlledBy:         n.ControlledBy,
		LastClientProposal:   n.LastClientProposal,
		LastProviderProposal: n.LastProviderProposal,
		AppointmentText:      n.AppointmentText,
		ConfirmedInstant:     n.ConfirmedInstant,
		MeetingLink:          n.MeetingLink,
		LastActivityAt:       n.LastActivityAt,
		CreatedAt:            n.CreatedAt,
		UpdatedAt:            n.UpdatedAt,
	}
}

// ToMessageResponse maps a thread message to its API shape.
func ToMessageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:           m.ID,
		Role:         string(m.Role),
		Direction:    string(m.Direction),
		Body:         m.Body,
		Intent:       string(m.Intent),
		ProposedTime: m.ProposedTime,
		CreatedAt:    m.CreatedAt,
	}
}
