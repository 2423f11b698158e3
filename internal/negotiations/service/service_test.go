package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/negotiations/repository"
	"concierge_backend/internal/negotiations/transport"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/logger"
)

type fakeStore struct {
	negotiations map[uuid.UUID]domain.Negotiation
	messages     []domain.Message
	dedup        map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		negotiations: make(map[uuid.UUID]domain.Negotiation),
		dedup:        make(map[string]bool),
	}
}

func (f *fakeStore) Create(_ context.Context, params repository.CreateParams) (domain.Negotiation, error) {
	now := time.Now()
	n := domain.Negotiation{
		ID:              uuid.New(),
		ProviderID:      params.ProviderID,
		ClientName:      params.ClientName,
		ClientPhone:     params.ClientPhone,
		ClientEmail:     params.ClientEmail,
		Stage:           domain.StageInitialContact,
		HealthStatus:    domain.HealthGreen,
		LastActivityAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.negotiations[n.ID] = n
	return n, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (domain.Negotiation, error) {
	n, ok := f.negotiations[id]
	if !ok || n.DeletedAt != nil {
		return domain.Negotiation{}, repository.ErrNotFound
	}
	return n, nil
}

func (f *fakeStore) List(_ context.Context, _ repository.ListFilter) ([]domain.Negotiation, int, error) {
	items := make([]domain.Negotiation, 0, len(f.negotiations))
	for _, n := range f.negotiations {
		if n.DeletedAt == nil {
			items = append(items, n)
		}
	}
	return items, len(items), nil
}

func (f *fakeStore) Update(_ context.Context, n domain.Negotiation) error {
	if _, ok := f.negotiations[n.ID]; !ok {
		return repository.ErrNotFound
	}
	f.negotiations[n.ID] = n
	return nil
}

func (f *fakeStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	n, ok := f.negotiations[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	n.DeletedAt = &now
	f.negotiations[id] = n
	return nil
}

func (f *fakeStore) HardDelete(_ context.Context, id uuid.UUID) error {
	delete(f.negotiations, id)
	return nil
}

func (f *fakeStore) ListActive(_ context.Context) ([]domain.Negotiation, error) {
	items := make([]domain.Negotiation, 0)
	for _, n := range f.negotiations {
		if n.DeletedAt == nil && !domain.IsPostBooking(n.Stage) {
			items = append(items, n)
		}
	}
	return items, nil
}

func (f *fakeStore) PurgeDeletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	for id, n := range f.negotiations {
		if n.DeletedAt != nil && n.DeletedAt.Before(cutoff) {
			delete(f.negotiations, id)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	if msg.DedupToken != nil {
		key := msg.NegotiationID.String() + ":" + *msg.DedupToken
		if f.dedup[key] {
			return domain.Message{}, repository.ErrDuplicateMessage
		}
		f.dedup[key] = true
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) ListMessages(_ context.Context, negotiationID uuid.UUID, role *domain.ThreadRole) ([]domain.Message, error) {
	items := make([]domain.Message, 0)
	for _, m := range f.messages {
		if m.NegotiationID == negotiationID && (role == nil || m.Role == *role) {
			items = append(items, m)
		}
	}
	return items, nil
}

type fakeDirectory struct{ exists bool }

func (f fakeDirectory) ProviderExists(context.Context, uuid.UUID) (bool, error) {
	return f.exists, nil
}

type fakeSettings struct{ stale, stalled int }

func (f fakeSettings) MonitorThresholds(context.Context) (int, int, error) {
	return f.stale, f.stalled, nil
}

type recordingBus struct{ published []events.Event }

func (b *recordingBus) Publish(_ context.Context, e events.Event)          { b.published = append(b.published, e) }
func (b *recordingBus) PublishSync(_ context.Context, e events.Event) error {
	b.published = append(b.published, e)
	return nil
}
func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	out := make([]string, 0, len(b.published))
	for _, e := range b.published {
		out = append(out, e.EventName())
	}
	return out
}

func (b *recordingBus) has(name string) bool {
	for _, e := range b.published {
		if e.EventName() == name {
			return true
		}
	}
	return false
}

func newTestService(store *fakeStore) (*Service, *recordingBus) {
	bus := &recordingBus{}
	svc := New(store, domain.DefaultRuleTable(), fakeDirectory{exists: true}, fakeSettings{stale: 24, stalled: 72}, bus, logger.New("test"))
	return svc, bus
}

func seedNegotiation(store *fakeStore, stage domain.Stage) domain.Negotiation {
	now := time.Now()
	n := domain.Negotiation{
		ID:             uuid.New(),
		ProviderID:     uuid.New(),
		ClientName:     "Ada Client",
		Stage:          stage,
		HealthStatus:   domain.HealthGreen,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if floor := domain.CheckpointFloor(stage); floor >= 0 {
		n.ProgressPercent = floor
	}
	store.negotiations[n.ID] = n
	return n
}

func TestApplyInboundMessageHappyPath(t *testing.T) {
	store := newFakeStore()
	svc, bus := newTestService(store)
	ctx := context.Background()
	n := seedNegotiation(store, domain.StageAwaitingProviderAvailability)

	result, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "provider",
		Body: "I'm available on Tuesday 14th January at 2pm or Wednesday at 10am",
	})
	if err != nil {
		t.Fatalf("ApplyInboundMessage() error = %v", err)
	}
	if !result.Transitioned {
		t.Fatal("expected a stage transition")
	}
	if result.Negotiation.Stage != string(domain.StageAwaitingClientSlotSelection) {
		t.Errorf("stage = %s, want awaiting_client_slot_selection", result.Negotiation.Stage)
	}
	if result.Negotiation.ProgressPercent != 35 {
		t.Errorf("progress = %d, want 35", result.Negotiation.ProgressPercent)
	}
	if result.Negotiation.LastProviderProposal == nil {
		t.Error("provider proposal not recorded")
	}
	if !bus.has("negotiations.stage.changed") || !bus.has("negotiations.message.received") {
		t.Errorf("missing events, got %v", bus.names())
	}
}

func TestApplyInboundMessageNoTransitionForWrongRole(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingProviderAvailability)

	result, err := svc.ApplyInboundMessage(context.Background(), n.ID, transport.InboundMessageRequest{
		Role: "client",
		Body: "I'm available any day next week",
	})
	if err != nil {
		t.Fatalf("ApplyInboundMessage() error = %v", err)
	}
	if result.Transitioned {
		t.Error("client availability must not advance a stage waiting on the provider")
	}
	if result.Negotiation.Stage != string(domain.StageAwaitingProviderAvailability) {
		t.Errorf("stage = %s, want unchanged", result.Negotiation.Stage)
	}
}

func TestApplyInboundMessageDuplicateIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	n := seedNegotiation(store, domain.StageAwaitingProviderAvailability)
	token := "delivery-42"

	first, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "provider", Body: "I'm available on Friday at 3pm", DedupToken: &token,
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "provider", Body: "I'm available on Friday at 3pm", DedupToken: &token,
	})
	if err != nil {
		t.Fatalf("duplicate delivery must not error: %v", err)
	}
	if !second.Duplicate {
		t.Error("second delivery not marked duplicate")
	}
	if second.Negotiation.Stage != first.Negotiation.Stage {
		t.Error("duplicate delivery changed state")
	}
	if len(store.messages) != 1 {
		t.Errorf("stored %d messages, want 1", len(store.messages))
	}
}

func TestApplyInboundMessageTerminalStageRecordsOnly(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store)
	n := seedNegotiation(store, domain.StageCompleted)

	result, err := svc.ApplyInboundMessage(context.Background(), n.ID, transport.InboundMessageRequest{
		Role: "client", Body: "Can we reschedule?",
	})
	if err != nil {
		t.Fatalf("ApplyInboundMessage() error = %v", err)
	}
	if result.Transitioned {
		t.Error("terminal negotiation must not transition")
	}
	if len(store.messages) != 1 {
		t.Error("message on a terminal negotiation must still be recorded")
	}
}

func TestCancelIntentFlagsAttentionWithoutTransition(t *testing.T) {
	store := newFakeStore()
	svc, bus := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingClientSlotSelection)

	result, err := svc.ApplyInboundMessage(context.Background(), n.ID, transport.InboundMessageRequest{
		Role: "client", Body: "I need to cancel the appointment",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Transitioned {
		t.Error("cancellation request must not auto-transition")
	}
	if !result.Negotiation.NeedsAttention {
		t.Error("cancellation request must flag attention")
	}
	if !bus.has("negotiations.attention.required") {
		t.Errorf("missing attention event, got %v", bus.names())
	}
}

func TestDivergenceIsStickyUntilReconciled(t *testing.T) {
	store := newFakeStore()
	svc, bus := newTestService(store)
	ctx := context.Background()
	n := seedNegotiation(store, domain.StageAwaitingClientSlotSelection)

	if _, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "provider", Body: "I could do Tuesday 14th January at 2pm",
	}); err != nil {
		t.Fatal(err)
	}
	result, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "client", Body: "I'll take Wednesday 15th January at 2pm",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Negotiation.HasThreadDivergence {
		t.Fatal("divergence not detected")
	}
	if result.Negotiation.HealthStatus != string(domain.HealthRed) {
		t.Errorf("health = %s, want red", result.Negotiation.HealthStatus)
	}
	if !bus.has("negotiations.divergence.detected") {
		t.Errorf("missing divergence event, got %v", bus.names())
	}

	// Another message does not clear the flag.
	followup, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "client", Body: "Just checking in on this",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !followup.Negotiation.HasThreadDivergence {
		t.Error("divergence flag must survive unrelated messages")
	}

	// Reconciliation clears it.
	reconciled, err := svc.ReconcileThreads(ctx, n.ID, transport.ReconcileRequest{
		AgreedTime: "Wednesday 15th January at 2pm",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reconciled.HasThreadDivergence {
		t.Error("reconciliation must clear the divergence flag")
	}
	if reconciled.HealthStatus != string(domain.HealthGreen) {
		t.Errorf("health = %s, want green after reconcile", reconciled.HealthStatus)
	}
}

func TestMeetingLinkConfirmsBooking(t *testing.T) {
	store := newFakeStore()
	svc, bus := newTestService(store)
	ctx := context.Background()
	n := seedNegotiation(store, domain.StageAwaitingMeetingLink)
	proposal := "Tuesday 14th January at 2pm"
	stored := store.negotiations[n.ID]
	stored.LastProviderProposal = &proposal
	stored.LastClientProposal = &proposal
	store.negotiations[n.ID] = stored

	result, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "provider", Body: "Here you go: https://zoom.us/j/12345",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Negotiation.Stage != string(domain.StageConfirmed) {
		t.Fatalf("stage = %s, want confirmed", result.Negotiation.Stage)
	}
	if result.Negotiation.MeetingLink == nil || *result.Negotiation.MeetingLink != "https://zoom.us/j/12345" {
		t.Errorf("meeting link not captured: %v", result.Negotiation.MeetingLink)
	}
	if result.Negotiation.ConfirmedInstant == nil {
		t.Error("confirmed instant not resolved from the agreed proposal")
	}
	if !bus.has("negotiations.confirmed") {
		t.Errorf("missing confirmed event, got %v", bus.names())
	}
}

func TestConfirmationWithoutAgreedTimeHoldsStage(t *testing.T) {
	store := newFakeStore()
	svc, bus := newTestService(store)
	ctx := context.Background()
	// No proposal ever recorded, so there is nothing to confirm against.
	n := seedNegotiation(store, domain.StageAwaitingMeetingLink)

	result, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "provider", Body: "Here you go: https://zoom.us/j/12345",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Transitioned {
		t.Error("must not confirm without a parseable agreed time")
	}
	if result.Negotiation.Stage != string(domain.StageAwaitingMeetingLink) {
		t.Errorf("stage = %s, want awaiting_meeting_link", result.Negotiation.Stage)
	}
	if !result.Negotiation.NeedsAttention {
		t.Error("negotiation should be flagged for operator review")
	}
	if !bus.has("negotiations.attention.required") {
		t.Errorf("missing attention event, got %v", bus.names())
	}
}

func TestAdminTransitionWarningsAndErrors(t *testing.T) {
	ctx := context.Background()
	operatorID := uuid.New()

	t.Run("backward move warns but succeeds", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(store)
		n := seedNegotiation(store, domain.StageAwaitingMeetingLink)

		result, err := svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{
			Stage: string(domain.StageAwaitingProviderAvailability),
		})
		if err != nil {
			t.Fatalf("ApplyAdminTransition() error = %v", err)
		}
		if len(result.Warnings) == 0 {
			t.Error("backward move should carry a warning")
		}
		if result.Negotiation.Stage != string(domain.StageAwaitingProviderAvailability) {
			t.Errorf("stage = %s", result.Negotiation.Stage)
		}
		if result.Negotiation.ProgressPercent != 15 {
			t.Errorf("progress = %d, want 15", result.Negotiation.ProgressPercent)
		}
	})

	t.Run("unknown stage rejected", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(store)
		n := seedNegotiation(store, domain.StageInitialContact)

		_, err := svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{Stage: "negotiating"})
		if apperr.GetKind(err) != apperr.KindValidation {
			t.Errorf("want validation error, got %v", err)
		}
	})

	t.Run("terminal source rejected", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(store)
		n := seedNegotiation(store, domain.StageCancelled)

		_, err := svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{
			Stage: string(domain.StageInitialContact),
		})
		if apperr.GetKind(err) != apperr.KindConflict {
			t.Errorf("want conflict error, got %v", err)
		}
	})

	t.Run("booked stage without confirmed time rejected", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(store)
		n := seedNegotiation(store, domain.StageAwaitingMeetingLink)

		_, err := svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{
			Stage: string(domain.StageSessionHeld),
		})
		if apperr.GetKind(err) != apperr.KindValidation {
			t.Errorf("want validation error, got %v", err)
		}
	})
}

func TestHumanControlArbitration(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	store := newFakeStore()
	svc, bus := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingClientSlotSelection)

	if _, err := svc.TakeControl(ctx, n.ID, alice); err != nil {
		t.Fatalf("TakeControl() error = %v", err)
	}
	if !bus.has("negotiations.control.taken") {
		t.Error("missing control taken event")
	}

	// Same operator again is idempotent.
	if _, err := svc.TakeControl(ctx, n.ID, alice); err != nil {
		t.Errorf("repeat TakeControl by holder must succeed: %v", err)
	}

	// A second operator is rejected.
	if _, err := svc.TakeControl(ctx, n.ID, bob); apperr.GetKind(err) != apperr.KindConflict {
		t.Errorf("want conflict for second operator, got %v", err)
	}

	// Only the holder can release.
	if _, err := svc.ReleaseControl(ctx, n.ID, bob, false); apperr.GetKind(err) != apperr.KindForbidden {
		t.Errorf("want forbidden for non-holder release, got %v", err)
	}
	if _, err := svc.ReleaseControl(ctx, n.ID, alice, false); err != nil {
		t.Fatalf("holder release error = %v", err)
	}

	// Releasing when not controlled conflicts.
	if _, err := svc.ReleaseControl(ctx, n.ID, alice, false); apperr.GetKind(err) != apperr.KindConflict {
		t.Errorf("want conflict releasing uncontrolled negotiation, got %v", err)
	}

	// Admin can force-release someone else's hold.
	if _, err := svc.TakeControl(ctx, n.ID, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ReleaseControl(ctx, n.ID, bob, true); err != nil {
		t.Errorf("admin force release error = %v", err)
	}
}

func TestOperatorMessageRequiresControl(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	store := newFakeStore()
	svc, _ := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingClientSlotSelection)

	_, err := svc.SendOperatorMessage(ctx, n.ID, alice, transport.OperatorMessageRequest{Role: "client", Body: "Hello"})
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Errorf("want conflict without control, got %v", err)
	}

	if _, err := svc.TakeControl(ctx, n.ID, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SendOperatorMessage(ctx, n.ID, alice, transport.OperatorMessageRequest{Role: "client", Body: "Hello"}); err != nil {
		t.Errorf("SendOperatorMessage() with control error = %v", err)
	}
}

func TestDeleteProtectsActiveNegotiations(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newTestService(store)
	active := seedNegotiation(store, domain.StageAwaitingClientSlotSelection)
	done := seedNegotiation(store, domain.StageCompleted)

	if err := svc.Delete(ctx, active.ID, false); apperr.GetKind(err) != apperr.KindConflict {
		t.Errorf("want conflict deleting active negotiation, got %v", err)
	}
	if err := svc.Delete(ctx, active.ID, true); err != nil {
		t.Errorf("force delete error = %v", err)
	}
	if err := svc.Delete(ctx, done.ID, false); err != nil {
		t.Errorf("deleting terminal negotiation error = %v", err)
	}
}

func TestRunHealthSweep(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newTestService(store)

	fresh := seedNegotiation(store, domain.StageAwaitingProviderAvailability)
	idle := seedNegotiation(store, domain.StageAwaitingClientSlotSelection)
	stored := store.negotiations[idle.ID]
	stored.LastActivityAt = time.Now().Add(-30 * time.Hour)
	store.negotiations[idle.ID] = stored

	updated, err := svc.RunHealthSweep(ctx)
	if err != nil {
		t.Fatalf("RunHealthSweep() error = %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}
	if got := store.negotiations[idle.ID]; got.HealthStatus != domain.HealthYellow || !got.IsStale {
		t.Errorf("idle negotiation = %s stale=%v, want yellow stale", got.HealthStatus, got.IsStale)
	}
	if got := store.negotiations[fresh.ID]; got.HealthStatus != domain.HealthGreen {
		t.Errorf("fresh negotiation = %s, want green", got.HealthStatus)
	}
}

func TestFireFollowUps(t *testing.T) {
	ctx := context.Background()

	t.Run("missing meeting link flags attention", func(t *testing.T) {
		store := newFakeStore()
		svc, bus := newTestService(store)
		n := seedNegotiation(store, domain.StageConfirmed)

		if err := svc.FireMeetingLinkCheck(ctx, n.ID); err != nil {
			t.Fatal(err)
		}
		if got := store.negotiations[n.ID]; !got.NeedsAttention {
			t.Error("missing link must flag attention")
		}
		if !bus.has("negotiations.attention.required") {
			t.Error("missing attention event")
		}
	})

	t.Run("present meeting link is a no-op", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(store)
		n := seedNegotiation(store, domain.StageConfirmed)
		link := "https://zoom.us/j/1"
		stored := store.negotiations[n.ID]
		stored.MeetingLink = &link
		store.negotiations[n.ID] = stored

		if err := svc.FireMeetingLinkCheck(ctx, n.ID); err != nil {
			t.Fatal(err)
		}
		if got := store.negotiations[n.ID]; got.NeedsAttention {
			t.Error("negotiation with a link must not be flagged")
		}
	})

	t.Run("feedback request after the session", func(t *testing.T) {
		store := newFakeStore()
		svc, bus := newTestService(store)
		n := seedNegotiation(store, domain.StageConfirmed)
		past := time.Now().Add(-2 * time.Hour)
		email := "ada@example.com"
		stored := store.negotiations[n.ID]
		stored.ConfirmedInstant = &past
		stored.ClientEmail = &email
		store.negotiations[n.ID] = stored

		if err := svc.FireFeedbackRequest(ctx, n.ID); err != nil {
			t.Fatal(err)
		}
		got := store.negotiations[n.ID]
		if got.Stage != domain.StageFeedbackRequested {
			t.Errorf("stage = %s, want feedback_requested", got.Stage)
		}
		if got.ProgressPercent != 95 {
			t.Errorf("progress = %d, want 95", got.ProgressPercent)
		}
		if !bus.has("followups.feedback.sent") {
			t.Error("missing feedback event")
		}

		// Firing again is a no-op.
		if err := svc.FireFeedbackRequest(ctx, n.ID); err != nil {
			t.Fatal(err)
		}
		if store.negotiations[n.ID].Stage != domain.StageFeedbackRequested {
			t.Error("second firing must not move the stage")
		}
	})

	t.Run("feedback request before the session does nothing", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(store)
		n := seedNegotiation(store, domain.StageConfirmed)
		future := time.Now().Add(48 * time.Hour)
		stored := store.negotiations[n.ID]
		stored.ConfirmedInstant = &future
		store.negotiations[n.ID] = stored

		if err := svc.FireFeedbackRequest(ctx, n.ID); err != nil {
			t.Fatal(err)
		}
		if store.negotiations[n.ID].Stage != domain.StageConfirmed {
			t.Error("future appointment must not trigger feedback")
		}
	})
}

func TestRecordAndClearToolFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, bus := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingProviderAvailability)

	if err := svc.RecordToolFailure(ctx, n.ID, "send_message", context.DeadlineExceeded); err != nil {
		t.Fatal(err)
	}
	got := store.negotiations[n.ID]
	if !got.HasToolFailure || got.HealthStatus != domain.HealthRed || !got.NeedsAttention {
		t.Errorf("tool failure state = %+v", got)
	}
	if !bus.has("negotiations.tool_failure.recorded") {
		t.Error("missing tool failure event")
	}

	cleared, err := svc.ClearToolFailure(ctx, n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cleared.HasToolFailure || cleared.HealthStatus != string(domain.HealthGreen) {
		t.Errorf("cleared state = %+v", cleared)
	}
}

func TestInboundMessageSuppressedUnderHumanControl(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, bus := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingProviderAvailability)

	operatorID := uuid.New()
	if _, err := svc.TakeControl(ctx, n.ID, operatorID); err != nil {
		t.Fatal(err)
	}

	result, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "provider",
		Body: "I'm available on Tuesday 14th January at 2pm",
	})
	if err != nil {
		t.Fatalf("ApplyInboundMessage() error = %v", err)
	}
	if result.Transitioned {
		t.Error("rule-table transition must not fire while an operator holds control")
	}
	if result.Negotiation.Stage != string(domain.StageAwaitingProviderAvailability) {
		t.Errorf("stage = %s, want awaiting_provider_availability", result.Negotiation.Stage)
	}
	if !bus.has("negotiations.message.received") {
		t.Error("message must still be recorded")
	}
	if bus.has("negotiations.stage.changed") {
		t.Error("unexpected stage change under human control")
	}
	if result.Negotiation.LastProviderProposal == nil {
		t.Error("proposal must still be recorded for the operator")
	}
}

func TestAdminConfirmationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, bus := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingProviderConfirmation)
	operatorID := uuid.New()

	if _, err := svc.TakeControl(ctx, n.ID, operatorID); err != nil {
		t.Fatal(err)
	}

	// Confirming without any agreed time on record is rejected.
	_, err := svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{
		Stage: string(domain.StageConfirmed),
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("want validation error without a confirmed time, got %v", err)
	}

	// Gibberish is rejected before anything moves.
	_, err = svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{
		Stage:         string(domain.StageConfirmed),
		ConfirmedText: "no time here at all ###",
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("want validation error for unparseable time, got %v", err)
	}

	result, err := svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{
		Stage:         string(domain.StageConfirmed),
		ConfirmedText: "Tuesday 15th January at 2pm",
	})
	if err != nil {
		t.Fatalf("ApplyAdminTransition() error = %v", err)
	}
	if result.Negotiation.Stage != string(domain.StageConfirmed) {
		t.Errorf("stage = %s, want confirmed", result.Negotiation.Stage)
	}
	if result.Negotiation.ConfirmedInstant == nil {
		t.Fatal("confirmed instant not set from confirmed text")
	}
	if result.Negotiation.AppointmentText == nil || *result.Negotiation.AppointmentText != "Tuesday 15th January at 2pm" {
		t.Error("appointment text not preserved verbatim")
	}
	if !bus.has("negotiations.confirmed") {
		t.Error("missing confirmation event")
	}

	for _, stage := range []domain.Stage{domain.StageSessionHeld, domain.StageFeedbackRequested, domain.StageCompleted} {
		result, err = svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{Stage: string(stage)})
		if err != nil {
			t.Fatalf("transition to %s error = %v", stage, err)
		}
	}
	if result.Negotiation.ProgressPercent != 100 {
		t.Errorf("progress = %d, want 100", result.Negotiation.ProgressPercent)
	}
	if result.Negotiation.HealthStatus != string(domain.HealthGreen) {
		t.Errorf("health = %s, want green past booking", result.Negotiation.HealthStatus)
	}
}

func TestDeleteConfirmedReleasesSlot(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, bus := newTestService(store)
	n := seedNegotiation(store, domain.StageConfirmed)
	at := time.Now().Add(48 * time.Hour)
	n.ConfirmedInstant = &at
	store.negotiations[n.ID] = n

	if err := svc.Delete(ctx, n.ID, false); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("want conflict deleting confirmed negotiation without force, got %v", err)
	}
	if err := svc.Delete(ctx, n.ID, true); err != nil {
		t.Fatalf("force delete error = %v", err)
	}
	if !bus.has("negotiations.cancelled") {
		t.Error("deleting a booked negotiation must release the provider slot")
	}
}

func TestForceCannotConfirmWithoutAgreedTime(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingProviderConfirmation)

	_, err := svc.ApplyAdminTransition(ctx, n.ID, uuid.New(), transport.AdminTransitionRequest{
		Stage: string(domain.StageConfirmed),
		Force: true,
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("want validation error even with force, got %v", err)
	}
	got, _ := store.GetByID(ctx, n.ID)
	if got.Stage == domain.StageConfirmed {
		t.Error("negotiation confirmed without an agreed time")
	}
}

func TestForwardSkipRequiresForce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newTestService(store)
	n := seedNegotiation(store, domain.StageInitialContact)

	_, err := svc.ApplyAdminTransition(ctx, n.ID, uuid.New(), transport.AdminTransitionRequest{
		Stage: string(domain.StageAwaitingProviderConfirmation),
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("want validation error for unforced skip, got %v", err)
	}

	result, err := svc.ApplyAdminTransition(ctx, n.ID, uuid.New(), transport.AdminTransitionRequest{
		Stage: string(domain.StageAwaitingProviderConfirmation),
		Force: true,
	})
	if err != nil {
		t.Fatalf("forced skip error = %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Error("forced skip should carry a warning")
	}
}

func TestCancellingConfirmedBookingWarns(t *testing.T) {
	ctx := context.Background()
	operatorID := uuid.New()

	seedConfirmed := func(store *fakeStore) domain.Negotiation {
		n := seedNegotiation(store, domain.StageConfirmed)
		at := time.Now().Add(48 * time.Hour)
		n.ConfirmedInstant = &at
		store.negotiations[n.ID] = n
		return n
	}

	t.Run("cancel endpoint", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(store)
		n := seedConfirmed(store)

		result, err := svc.Cancel(ctx, n.ID, operatorID, "client asked")
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if len(result.Warnings) == 0 {
			t.Error("cancelling a confirmed booking should warn")
		}
		if result.Negotiation.Stage != string(domain.StageCancelled) {
			t.Errorf("stage = %s, want cancelled", result.Negotiation.Stage)
		}
	})

	t.Run("admin transition", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(store)
		n := seedConfirmed(store)

		result, err := svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{
			Stage: string(domain.StageCancelled),
		})
		if err != nil {
			t.Fatalf("ApplyAdminTransition() error = %v", err)
		}
		if len(result.Warnings) == 0 {
			t.Error("cancelling a confirmed booking should warn")
		}
	})
}

func TestOutboundReplyDroppedUnderHumanControl(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingClientSlotSelection)

	if _, err := svc.TakeControl(ctx, n.ID, uuid.New()); err != nil {
		t.Fatal(err)
	}

	err := svc.RecordOutboundMessage(ctx, n.ID, domain.RoleClient, "Drafted before the takeover")
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("want conflict under human control, got %v", err)
	}
	if len(store.messages) != 0 {
		t.Errorf("messages = %d, want 0: automated reply must not land in a controlled history", len(store.messages))
	}
}

func TestStalledStageResumesOnActivity(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, bus := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingProviderAvailability)
	operatorID := uuid.New()

	if _, err := svc.ApplyAdminTransition(ctx, n.ID, operatorID, transport.AdminTransitionRequest{
		Stage: string(domain.StageStalled),
	}); err != nil {
		t.Fatalf("transition to stalled error = %v", err)
	}
	got, _ := store.GetByID(ctx, n.ID)
	if got.StalledFrom == nil || *got.StalledFrom != domain.StageAwaitingProviderAvailability {
		t.Fatalf("StalledFrom = %v, want awaiting_provider_availability", got.StalledFrom)
	}

	result, err := svc.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
		Role: "provider",
		Body: "I'm available on Tuesday 14th January at 2pm",
	})
	if err != nil {
		t.Fatalf("ApplyInboundMessage() error = %v", err)
	}
	if !result.Transitioned {
		t.Fatal("activity must wake a stalled negotiation")
	}
	if result.Negotiation.Stage != string(domain.StageAwaitingClientSlotSelection) {
		t.Errorf("stage = %s, want awaiting_client_slot_selection", result.Negotiation.Stage)
	}
	got, _ = store.GetByID(ctx, n.ID)
	if got.StalledFrom != nil {
		t.Error("StalledFrom must clear once the negotiation resumes")
	}
	if !bus.has("negotiations.stage.changed") {
		t.Error("missing stage change event")
	}
}

func TestForceDeleteIsPermanent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newTestService(store)
	n := seedNegotiation(store, domain.StageAwaitingClientSlotSelection)

	if err := svc.Delete(ctx, n.ID, true); err != nil {
		t.Fatalf("force delete error = %v", err)
	}
	if _, ok := store.negotiations[n.ID]; ok {
		t.Error("force delete must remove the row, not just mark it")
	}

	done := seedNegotiation(store, domain.StageCompleted)
	if err := svc.Delete(ctx, done.ID, false); err != nil {
		t.Fatalf("soft delete error = %v", err)
	}
	if got, ok := store.negotiations[done.ID]; !ok || got.DeletedAt == nil {
		t.Error("routine delete must keep the row with a deletion mark")
	}
}
