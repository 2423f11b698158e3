// Package settings provides the runtime settings domain module.
package settings

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "concierge_backend/internal/http"
	"concierge_backend/internal/settings/handler"
	"concierge_backend/internal/settings/repository"
	"concierge_backend/internal/settings/service"
	"concierge_backend/platform/config"
	"concierge_backend/platform/validator"
)

// Module represents the settings domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new settings module with all dependencies wired
func NewModule(pool *pgxpool.Pool, defaults config.MonitorDefaults, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, defaults)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "settings"
}

// RegisterRoutes registers the module's routes under /api/v1/admin/settings
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	settings := ctx.Admin.Group("/settings")
	m.handler.RegisterRoutes(settings)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
