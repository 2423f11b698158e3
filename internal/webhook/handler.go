package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"concierge_backend/platform/httpkit"
	"concierge_backend/platform/validator"
)

// Handler accepts inbound channel deliveries.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// InboundMessagePayload is what a channel provider posts when a client or
// provider replies. DedupToken is the provider's delivery ID; retries
// carry the same token.
type InboundMessagePayload struct {
	NegotiationID uuid.UUID `json:"negotiationId" binding:"required"`
	Role          string    `json:"role" binding:"required,oneof=client provider"`
	Body          string    `json:"body" binding:"required,min=1,max=10000"`
	DedupToken    *string   `json:"dedupToken" binding:"omitempty,max=128"`
}

// IntakePayload opens a negotiation from an external intake form.
type IntakePayload struct {
	ProviderID  uuid.UUID `json:"providerId" binding:"required"`
	ClientName  string    `json:"clientName" binding:"required,min=1,max=200"`
	ClientEmail *string   `json:"clientEmail" binding:"omitempty,email"`
	ClientPhone *string   `json:"clientPhone" binding:"omitempty,max=32"`
	Message     *string   `json:"message" binding:"omitempty,max=10000"`
}

// HandleInboundMessage handles POST /api/v1/webhooks/messages
func (h *Handler) HandleInboundMessage(c *gin.Context) {
	var payload InboundMessagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	result, err := h.svc.AcceptMessage(c.Request.Context(), payload)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// HandleIntake handles POST /api/v1/webhooks/intake
func (h *Handler) HandleIntake(c *gin.Context) {
	var payload IntakePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	result, err := h.svc.AcceptIntake(c.Request.Context(), payload)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}
