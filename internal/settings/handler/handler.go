package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"concierge_backend/internal/settings/service"
	"concierge_backend/internal/settings/transport"
	"concierge_backend/platform/httpkit"
	"concierge_backend/platform/validator"
)

// Handler handles HTTP requests for runtime settings
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new settings handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the settings routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Get)
	rg.PUT("", h.Update)
	rg.POST("/reset", h.Reset)
}

// Get handles GET /api/v1/admin/settings
func (h *Handler) Get(c *gin.Context) {
	result, err := h.svc.Get(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Update handles PUT /api/v1/admin/settings
func (h *Handler) Update(c *gin.Context) {
	var req transport.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	result, err := h.svc.Update(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Reset handles POST /api/v1/admin/settings/reset
func (h *Handler) Reset(c *gin.Context) {
	result, err := h.svc.Reset(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
