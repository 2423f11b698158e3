// Package directory provides the provider directory domain module.
package directory

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"concierge_backend/internal/directory/handler"
	"concierge_backend/internal/directory/repository"
	"concierge_backend/internal/directory/service"
	"concierge_backend/internal/events"
	apphttp "concierge_backend/internal/http"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/validator"
)

// Module represents the provider directory domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new directory module with all dependencies wired.
// With redis available it also subscribes the slot lock handlers so
// confirmed bookings hold their provider slot.
func NewModule(pool *pgxpool.Pool, redisClient *redis.Client, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, redisClient)
	h := handler.New(svc, val)

	if redisClient != nil {
		service.NewSlotLockSubscriber(svc, log).Subscribe(eventBus)
	}

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "directory"
}

// RegisterRoutes registers the module's routes under /api/v1/providers
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	providers := ctx.Protected.Group("/providers")
	m.handler.RegisterRoutes(providers)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
