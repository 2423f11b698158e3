package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"concierge_backend/internal/events"
	"concierge_backend/platform/logger"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestSlotLock(t *testing.T) {
	ctx := context.Background()
	svc := New(nil, newTestRedis(t))

	providerID := uuid.New()
	slot := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	first := uuid.New()
	second := uuid.New()

	ok, err := svc.AcquireSlotLock(ctx, providerID, slot, first)
	if err != nil {
		t.Fatalf("AcquireSlotLock() error = %v", err)
	}
	if !ok {
		t.Fatal("first acquisition must succeed")
	}

	ok, err = svc.AcquireSlotLock(ctx, providerID, slot, second)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second negotiation must not acquire a held slot")
	}

	// A different slot for the same provider is independent.
	ok, err = svc.AcquireSlotLock(ctx, providerID, slot.Add(time.Hour), second)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("different slot must be lockable")
	}

	// Only the holder's release frees the slot.
	if err := svc.ReleaseSlotLock(ctx, providerID, slot, second); err != nil {
		t.Fatal(err)
	}
	ok, err = svc.AcquireSlotLock(ctx, providerID, slot, second)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("non-holder release must not free the slot")
	}

	if err := svc.ReleaseSlotLock(ctx, providerID, slot, first); err != nil {
		t.Fatal(err)
	}
	ok, err = svc.AcquireSlotLock(ctx, providerID, slot, second)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("holder release must free the slot")
	}
}

func TestSlotLockSubscriber(t *testing.T) {
	ctx := context.Background()
	svc := New(nil, newTestRedis(t))
	sub := NewSlotLockSubscriber(svc, logger.New("development"))

	providerID := uuid.New()
	negotiationID := uuid.New()
	slot := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)

	err := sub.onConfirmed(ctx, events.NegotiationConfirmed{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: negotiationID,
		ProviderID:    providerID,
		AppointmentAt: slot,
	})
	if err != nil {
		t.Fatalf("onConfirmed: %v", err)
	}

	ok, err := svc.AcquireSlotLock(ctx, providerID, slot, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("confirmed slot should be held")
	}

	err = sub.onCancelled(ctx, events.NegotiationCancelled{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: negotiationID,
		ProviderID:    providerID,
		AppointmentAt: &slot,
	})
	if err != nil {
		t.Fatalf("onCancelled: %v", err)
	}

	ok, err = svc.AcquireSlotLock(ctx, providerID, slot, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("cancelled slot should be free again")
	}
}
