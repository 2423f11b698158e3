// Package service provides the runtime settings operators can tune:
// health thresholds and the retention window for deleted negotiations.
package service

import (
	"context"
	"sync"
	"time"

	"concierge_backend/internal/settings/repository"
	"concierge_backend/internal/settings/transport"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/config"
)

// cacheTTL keeps threshold lookups off the hot path. The health sweep and
// every inbound message consult the thresholds; a minute of staleness is
// acceptable since re-scoring happens on the next sweep anyway.
const cacheTTL = time.Minute

// Service provides business logic for runtime settings.
type Service struct {
	repo     *repository.Repository
	defaults config.MonitorDefaults

	mu       sync.Mutex
	cached   repository.Settings
	cachedAt time.Time
}

// New creates a new settings service.
func New(repo *repository.Repository, defaults config.MonitorDefaults) *Service {
	return &Service{repo: repo, defaults: defaults}
}

// Get returns the current settings.
func (s *Service) Get(ctx context.Context) (*transport.SettingsResponse, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	resp := transport.ToSettingsResponse(settings)
	return &resp, nil
}

// Update validates and stores new settings. The stalled threshold must
// exceed the stale one or the health ordering stops making sense.
func (s *Service) Update(ctx context.Context, req transport.UpdateSettingsRequest) (*transport.SettingsResponse, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if req.StaleHours != nil {
		settings.StaleHours = *req.StaleHours
	}
	if req.StalledHours != nil {
		settings.StalledHours = *req.StalledHours
	}
	if req.RetentionDays != nil {
		settings.RetentionDays = *req.RetentionDays
	}
	if settings.StaleHours < 1 || settings.StalledHours < 1 || settings.RetentionDays < 1 {
		return nil, apperr.Validation("settings must be positive")
	}
	if settings.StalledHours <= settings.StaleHours {
		return nil, apperr.Validation("stalledHours must be greater than staleHours")
	}
	if err := s.store(ctx, settings); err != nil {
		return nil, err
	}
	resp := transport.ToSettingsResponse(settings)
	return &resp, nil
}

// Reset restores the configured defaults.
func (s *Service) Reset(ctx context.Context) (*transport.SettingsResponse, error) {
	settings := repository.Settings{
		StaleHours:    s.defaults.GetDefaultStaleHours(),
		StalledHours:  s.defaults.GetDefaultStalledHours(),
		RetentionDays: s.defaults.GetDefaultRetentionDays(),
	}
	if err := s.store(ctx, settings); err != nil {
		return nil, err
	}
	resp := transport.ToSettingsResponse(settings)
	return &resp, nil
}

// MonitorThresholds satisfies the negotiations service's settings
// dependency.
func (s *Service) MonitorThresholds(ctx context.Context) (int, int, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return 0, 0, err
	}
	return settings.StaleHours, settings.StalledHours, nil
}

// RetentionDays returns the purge window for the cleanup task.
func (s *Service) RetentionDays(ctx context.Context) (int, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return settings.RetentionDays, nil
}

func (s *Service) load(ctx context.Context) (repository.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.cachedAt) < cacheTTL && s.cachedAt != (time.Time{}) {
		return s.cached, nil
	}
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return repository.Settings{}, err
	}
	s.cached = settings
	s.cachedAt = time.Now()
	return settings, nil
}

func (s *Service) store(ctx context.Context, settings repository.Settings) error {
	if err := s.repo.Update(ctx, settings); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = settings
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return nil
}
