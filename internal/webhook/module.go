// Package webhook provides the inbound channel boundary: the endpoints
// message transports and intake forms deliver to.
package webhook

import (
	"concierge_backend/internal/events"
	apphttp "concierge_backend/internal/http"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	secret  string
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(negotiator Negotiator, secret string, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := NewService(negotiator, eventBus, log)
	return &Module{
		handler: NewHandler(svc, val),
		secret:  secret,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
// The Webhook group already carries its own rate limiter; this adds the
// shared-secret check.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Webhook
	group.Use(SecretAuthMiddleware(m.secret))
	group.POST("/messages", m.handler.HandleInboundMessage)
	group.POST("/intake", m.handler.HandleIntake)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
