package negotiations

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"concierge_backend/internal/events"
	apphttp "concierge_backend/internal/http"
	"concierge_backend/internal/negotiations/agent"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/negotiations/handler"
	"concierge_backend/internal/negotiations/repository"
	"concierge_backend/internal/negotiations/service"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/validator"
)

// Module represents the negotiations domain module
type Module struct {
	handler      *handler.Handler
	orchestrator *Orchestrator
	Service      *service.Service
	Repo         *repository.Repository
}

// NewModule creates a new negotiations module with all dependencies wired.
// The responder may be nil when no agent API key is configured; the module
// then runs without automated replies.
func NewModule(
	pool *pgxpool.Pool,
	val *validator.Validator,
	rules *domain.RuleTable,
	directory service.ProviderDirectory,
	settings service.MonitorSettings,
	sender Sender,
	responder *agent.Responder,
	eventBus events.Bus,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, rules, directory, settings, eventBus, log)
	h := handler.New(svc, val)

	m := &Module{
		handler: h,
		Service: svc,
		Repo:    repo,
	}
	if responder != nil && sender != nil {
		m.orchestrator = NewOrchestrator(responder, sender, repo, svc, log)
		m.orchestrator.Subscribe(eventBus)
	} else {
		log.Info("negotiations: automated responder disabled")
	}
	return m
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "negotiations"
}

// RegisterRoutes registers the module's routes under /api/v1/negotiations
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	negotiations := ctx.Protected.Group("/negotiations")
	m.handler.RegisterRoutes(negotiations)
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/negotiations"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
