package scheduler

import (
	"context"
	"time"

	"concierge_backend/internal/negotiations/service"
	"concierge_backend/platform/logger"
)

const (
	defaultHealthSweepInterval      = 10 * time.Minute
	defaultRetentionCleanupInterval = time.Hour
)

// HealthSweeper periodically re-scores every active negotiation so idle
// conversations pick up their stale and stalled flags without waiting for
// the next inbound message.
type HealthSweeper struct {
	svc      *service.Service
	log      *logger.Logger
	interval time.Duration
}

func NewHealthSweeper(svc *service.Service, log *logger.Logger, interval time.Duration) *HealthSweeper {
	if interval <= 0 {
		interval = defaultHealthSweepInterval
	}
	return &HealthSweeper{svc: svc, log: log, interval: interval}
}

func (s *HealthSweeper) Run(ctx context.Context) {
	if s == nil || s.svc == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *HealthSweeper) sweep(ctx context.Context) {
	updated, err := s.svc.RunHealthSweep(ctx)
	if err != nil {
		s.log.Warn("health sweep failed", "error", err)
		return
	}
	if updated > 0 {
		s.log.Info("health sweep updated negotiations", "updated", updated)
	}
}

// RetentionSettings exposes the purge window for soft-deleted negotiations.
type RetentionSettings interface {
	RetentionDays(ctx context.Context) (int, error)
}

// RetentionCleanup permanently removes soft-deleted negotiations older
// than the configured retention window.
type RetentionCleanup struct {
	svc      *service.Service
	settings RetentionSettings
	log      *logger.Logger
	interval time.Duration
}

func NewRetentionCleanup(svc *service.Service, settings RetentionSettings, log *logger.Logger, interval time.Duration) *RetentionCleanup {
	if interval <= 0 {
		interval = defaultRetentionCleanupInterval
	}
	return &RetentionCleanup{svc: svc, settings: settings, log: log, interval: interval}
}

func (c *RetentionCleanup) Run(ctx context.Context) {
	if c == nil || c.svc == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *RetentionCleanup) cleanup(ctx context.Context) {
	retentionDays, err := c.settings.RetentionDays(ctx)
	if err != nil {
		c.log.Warn("retention cleanup could not load settings", "error", err)
		return
	}

	deleted, err := c.svc.PurgeDeleted(ctx, retentionDays)
	if err != nil {
		c.log.Warn("retention cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		c.log.Info("retention cleanup purged negotiations", "deleted", deleted)
	}
}
