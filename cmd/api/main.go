package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concierge_backend/internal/adapters"
	"concierge_backend/internal/directory"
	"concierge_backend/internal/email"
	"concierge_backend/internal/events"
	apphttp "concierge_backend/internal/http"
	"concierge_backend/internal/http/router"
	"concierge_backend/internal/negotiations"
	"concierge_backend/internal/negotiations/agent"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/scheduler"
	"concierge_backend/internal/settings"
	"concierge_backend/internal/webhook"
	"concierge_backend/platform/config"
	"concierge_backend/platform/db"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisClient := initRedis(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	followUpScheduler, closeScheduler := initFollowUpScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	mailSender := email.NewSender(cfg)
	emailSubscriber := email.NewSubscriber(mailSender, cfg.GetAppBaseURL(), log)
	emailSubscriber.Subscribe(eventBus)

	// Shared validator instance for dependency injection
	val := validator.New()

	rules, err := domain.LoadRuleTable(cfg.GetRulesFile())
	if err != nil {
		log.Error("failed to load transition rules", "error", err, "path", cfg.GetRulesFile())
		panic("failed to load transition rules: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	directoryModule := directory.NewModule(pool, redisClient, eventBus, val, log)
	settingsModule := settings.NewModule(pool, cfg, val)

	responder := initResponder(ctx, cfg, log)
	channel := adapters.NewEmailChannel(mailSender, directoryModule.Service, log)

	negotiationsModule := negotiations.NewModule(
		pool,
		val,
		rules,
		directoryModule.Service,
		settingsModule.Service,
		channel,
		responder,
		eventBus,
		log,
	)

	if followUpScheduler != nil {
		confirmationListener := scheduler.NewConfirmationListener(followUpScheduler, log)
		confirmationListener.Subscribe(eventBus)
	} else {
		log.Warn("REDIS_URL not configured; follow-up scheduling disabled")
	}

	webhookModule := webhook.NewModule(negotiationsModule.Service, cfg.GetWebhookSecret(), eventBus, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			directoryModule,
			settingsModule,
			negotiationsModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(cfg config.SchedulerConfig, log *logger.Logger) *redis.Client {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		log.Warn("REDIS_URL not configured; slot locking disabled")
		return nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Error("invalid REDIS_URL", "error", err)
		return nil
	}
	return redis.NewClient(opt)
}

func initFollowUpScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.FollowUpScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize follow-up scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func initResponder(ctx context.Context, cfg config.AgentConfig, log *logger.Logger) *agent.Responder {
	if !cfg.IsAgentEnabled() {
		log.Warn("GEMINI_API_KEY not configured; automated replies disabled")
		return nil
	}

	responder, err := agent.NewResponder(ctx, cfg.GetGeminiAPIKey(), cfg.GetAgentModel(), cfg.GetAgentTimeout())
	if err != nil {
		log.Error("failed to initialize agent responder", "error", err)
		return nil
	}
	return responder
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
