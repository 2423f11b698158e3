package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	directoryrepo "concierge_backend/internal/directory/repository"
	directoryservice "concierge_backend/internal/directory/service"
	"concierge_backend/internal/email"
	"concierge_backend/internal/events"
	"concierge_backend/internal/negotiations/domain"
	negotiationrepo "concierge_backend/internal/negotiations/repository"
	negotiationservice "concierge_backend/internal/negotiations/service"
	"concierge_backend/internal/scheduler"
	settingsrepo "concierge_backend/internal/settings/repository"
	settingsservice "concierge_backend/internal/settings/service"
	"concierge_backend/platform/config"
	"concierge_backend/platform/db"
	"concierge_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	mailSender := email.NewSender(cfg)
	emailSubscriber := email.NewSubscriber(mailSender, cfg.GetAppBaseURL(), log)
	emailSubscriber.Subscribe(eventBus)

	rules, err := domain.LoadRuleTable(cfg.GetRulesFile())
	if err != nil {
		log.Error("failed to load transition rules", "error", err, "path", cfg.GetRulesFile())
		panic("failed to load transition rules: " + err.Error())
	}

	// Worker-side negotiation wiring (no HTTP handlers required).
	directorySvc := directoryservice.New(directoryrepo.New(pool), nil)
	settingsSvc := settingsservice.New(settingsrepo.New(pool), cfg)
	negotiationSvc := negotiationservice.New(negotiationrepo.New(pool), rules, directorySvc, settingsSvc, eventBus, log)

	worker, err := scheduler.NewWorker(cfg, negotiationSvc, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	sweepInterval := getDurationEnv("HEALTH_SWEEP_INTERVAL", 10*time.Minute)
	cleanupInterval := getDurationEnv("RETENTION_CLEANUP_INTERVAL", time.Hour)

	sweeper := scheduler.NewHealthSweeper(negotiationSvc, log, sweepInterval)
	cleanup := scheduler.NewRetentionCleanup(negotiationSvc, settingsSvc, log, cleanupInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		cleanup.Run(gctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	_ = g.Wait()
	log.Info("scheduler stopped")
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

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
