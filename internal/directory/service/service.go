// Package service provides provider directory lookups and the short-lived
// slot locks that stop two negotiations booking the same provider slot.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"concierge_backend/internal/directory/repository"
	"concierge_backend/internal/directory/transport"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/phone"
	"concierge_backend/platform/sanitize"
)

// slotLockTTL bounds how long a provisional hold on a slot survives if the
// confirmation never lands.
const slotLockTTL = 15 * time.Minute

// Service provides business logic for the provider directory.
type Service struct {
	repo  *repository.Repository
	redis *redis.Client
}

// New creates a new directory service.
func New(repo *repository.Repository, redisClient *redis.Client) *Service {
	return &Service{repo: repo, redis: redisClient}
}

// Create registers a provider.
func (s *Service) Create(ctx context.Context, req transport.CreateProviderRequest) (*transport.ProviderResponse, error) {
	params := repository.CreateProviderParams{
		Name:      sanitize.Text(req.Name),
		Email:     req.Email,
		Specialty: req.Specialty,
		Timezone:  req.Timezone,
	}
	if params.Timezone == "" {
		params.Timezone = "Europe/London"
	}
	if req.Phone != nil {
		normalized, err := phone.NormalizeE164(*req.Phone)
		if err != nil {
			return nil, apperr.Validation("invalid provider phone number")
		}
		params.Phone = &normalized
	}
	p, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	resp := transport.ToProviderResponse(p)
	return &resp, nil
}

// Get returns one provider.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transport.ProviderResponse, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("provider not found")
		}
		return nil, err
	}
	resp := transport.ToProviderResponse(p)
	return &resp, nil
}

// List returns providers, optionally active only.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]transport.ProviderResponse, error) {
	items, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]transport.ProviderResponse, 0, len(items))
	for _, p := range items {
		out = append(out, transport.ToProviderResponse(p))
	}
	return out, nil
}

// Update modifies a provider.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateProviderRequest) (*transport.ProviderResponse, error) {
	params := repository.UpdateProviderParams{
		Name:      req.Name,
		Email:     req.Email,
		Specialty: req.Specialty,
		Timezone:  req.Timezone,
		IsActive:  req.IsActive,
	}
	if req.Phone != nil {
		normalized, err := phone.NormalizeE164(*req.Phone)
		if err != nil {
			return nil, apperr.Validation("invalid provider phone number")
		}
		params.Phone = &normalized
	}
	p, err := s.repo.Update(ctx, id, params)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("provider not found")
		}
		return nil, err
	}
	resp := transport.ToProviderResponse(p)
	return &resp, nil
}

// ProviderExists reports whether an active provider with the ID exists.
// Satisfies the negotiations service's directory dependency.
func (s *Service) ProviderExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}

func slotLockKey(providerID uuid.UUID, slot time.Time) string {
	return fmt.Sprintf("slotlock:%s:%s", providerID, slot.UTC().Format(time.RFC3339))
}

// AcquireSlotLock takes a provisional hold on a provider slot for one
// negotiation. SETNX makes the race between two concurrent confirmations
// deterministic: exactly one wins.
func (s *Service) AcquireSlotLock(ctx context.Context, providerID uuid.UUID, slot time.Time, negotiationID uuid.UUID) (bool, error) {
	if s.redis == nil {
		return false, apperr.Internal("slot locking is not configured")
	}
	return s.redis.SetNX(ctx, slotLockKey(providerID, slot), negotiationID.String(), slotLockTTL).Result()
}

// ReleaseSlotLock drops a hold. Only the negotiation holding the lock may
// release it; a stale release from a loser of the race is ignored.
func (s *Service) ReleaseSlotLock(ctx context.Context, providerID uuid.UUID, slot time.Time, negotiationID uuid.UUID) error {
	if s.redis == nil {
		return nil
	}
	key := slotLockKey(providerID, slot)
	holder, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if holder != negotiationID.String() {
		return nil
	}
	return s.redis.Del(ctx, key).Err()
}
