package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/negotiations/service"
	"concierge_backend/internal/negotiations/transport"
	"concierge_backend/platform/httpkit"
	"concierge_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for negotiations
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new negotiations handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the negotiation routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/messages", h.ListMessages)
	rg.POST("/:id/messages", h.PostMessage)
	rg.POST("/:id/operator-messages", h.PostOperatorMessage)
	rg.PATCH("/:id/stage", h.Transition)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/control", h.TakeControl)
	rg.DELETE("/:id/control", h.ReleaseControl)
	rg.POST("/:id/reconcile", h.Reconcile)
	rg.PUT("/:id/meeting-link", h.SetMeetingLink)
	rg.POST("/:id/clear-tool-failure", h.ClearToolFailure)
}

// RegisterAdminRoutes registers the destructive routes under /admin.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.DELETE("/:id", h.Delete)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid negotiation id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// List handles GET /api/negotiations
func (h *Handler) List(c *gin.Context) {
	var query transport.ListNegotiationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	result, err := h.svc.List(c.Request.Context(), query)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Create handles POST /api/negotiations
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateNegotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	result, err := h.svc.Create(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GetByID handles GET /api/negotiations/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Delete handles DELETE /api/negotiations/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	if httpkit.HandleError(c, h.svc.Delete(c.Request.Context(), id, force)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMessages handles GET /api/negotiations/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var role *domain.ThreadRole
	if raw := c.Query("role"); raw != "" {
		r := domain.ThreadRole(raw)
		if !domain.IsKnownThreadRole(r) {
			httpkit.Error(c, http.StatusBadRequest, "unknown thread role", nil)
			return
		}
		role = &r
	}
	result, err := h.svc.Timeline(c.Request.Context(), id, role)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PostMessage handles POST /api/negotiations/:id/messages. This is the
// authenticated variant of the webhook intake, used for manual testing and
// channel backfills.
func (h *Handler) PostMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	result, err := h.svc.ApplyInboundMessage(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PostOperatorMessage handles POST /api/negotiations/:id/operator-messages
func (h *Handler) PostOperatorMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	var req transport.OperatorMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	result, err := h.svc.SendOperatorMessage(c.Request.Context(), id, identity.OperatorID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// Transition handles PATCH /api/negotiations/:id/stage
func (h *Handler) Transition(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	var req transport.AdminTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	result, err := h.svc.ApplyAdminTransition(c.Request.Context(), id, identity.OperatorID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Cancel handles POST /api/negotiations/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	var req transport.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	result, err := h.svc.Cancel(c.Request.Context(), id, identity.OperatorID(), req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// TakeControl handles POST /api/negotiations/:id/control
func (h *Handler) TakeControl(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	result, err := h.svc.TakeControl(c.Request.Context(), id, identity.OperatorID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ReleaseControl handles DELETE /api/negotiations/:id/control
func (h *Handler) ReleaseControl(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	isAdmin := containsRole(identity.Roles(), "admin")
	result, err := h.svc.ReleaseControl(c.Request.Context(), id, identity.OperatorID(), isAdmin)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Reconcile handles POST /api/negotiations/:id/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	result, err := h.svc.ReconcileThreads(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// SetMeetingLink handles PUT /api/negotiations/:id/meeting-link
func (h *Handler) SetMeetingLink(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.MeetingLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	result, err := h.svc.SetMeetingLink(c.Request.Context(), id, req.MeetingLink)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ClearToolFailure handles POST /api/negotiations/:id/clear-tool-failure
func (h *Handler) ClearToolFailure(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := h.svc.ClearToolFailure(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
