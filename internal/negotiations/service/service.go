// Package service implements the negotiation state machine and the
// operations the HTTP API and scheduler invoke on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/negotiations/repository"
	"concierge_backend/internal/negotiations/transport"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/phone"
	"concierge_backend/platform/sanitize"
	"concierge_backend/platform/timetext"
)

// Store is the persistence surface the service needs. Satisfied by
// *repository.Repository; tests substitute an in-memory fake.
type Store interface {
	Create(ctx context.Context, params repository.CreateParams) (domain.Negotiation, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Negotiation, error)
	List(ctx context.Context, filter repository.ListFilter) ([]domain.Negotiation, int, error)
	Update(ctx context.Context, n domain.Negotiation) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) error
	ListActive(ctx context.Context) ([]domain.Negotiation, error)
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	ListMessages(ctx context.Context, negotiationID uuid.UUID, role *domain.ThreadRole) ([]domain.Message, error)
}

// ProviderDirectory provides minimal provider lookups for negotiation
// creation.
type ProviderDirectory interface {
	ProviderExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// MonitorSettings supplies the health thresholds operators can tune.
type MonitorSettings interface {
	MonitorThresholds(ctx context.Context) (staleHours, stalledHours int, err error)
}

// Service provides business logic for negotiations.
type Service struct {
	store     Store
	rules     *domain.RuleTable
	directory ProviderDirectory
	settings  MonitorSettings
	eventBus  events.Bus
	log       *logger.Logger
	locks     *negotiationLocks
	now       func() time.Time
}

// New creates a new negotiations service.
func New(store Store, rules *domain.RuleTable, directory ProviderDirectory, settings MonitorSettings, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		rules:     rules,
		directory: directory,
		settings:  settings,
		eventBus:  eventBus,
		log:       log,
		locks:     newNegotiationLocks(),
		now:       time.Now,
	}
}

// Create opens a new negotiation in the initial contact stage. An optional
// first client message is applied immediately so webhook-created
// negotiations start moving.
func (s *Service) Create(ctx context.Context, req transport.CreateNegotiationRequest) (*transport.NegotiationResponse, error) {
	exists, err := s.directory.ProviderExists(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.Validation("unknown provider")
	}

	params := repository.CreateParams{
		ProviderID:  req.ProviderID,
		ClientName:  sanitize.Text(req.ClientName),
		ClientEmail: req.ClientEmail,
	}
	if req.ClientPhone != nil {
		normalized, err := phone.NormalizeE164(*req.ClientPhone)
		if err != nil {
			return nil, apperr.Validation("invalid client phone number")
		}
		params.ClientPhone = &normalized
	}

	n, err := s.store.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	event := events.NegotiationCreated{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		ProviderID:    n.ProviderID,
		ClientName:    n.ClientName,
	}
	if n.ClientEmail != nil {
		event.ClientEmail = *n.ClientEmail
	}
	if n.ClientPhone != nil {
		event.ClientPhone = *n.ClientPhone
	}
	s.eventBus.Publish(ctx, event)

	if req.FirstMessage != nil && *req.FirstMessage != "" {
		result, err := s.ApplyInboundMessage(ctx, n.ID, transport.InboundMessageRequest{
			Role: string(domain.RoleClient),
			Body: *req.FirstMessage,
		})
		if err != nil {
			return nil, err
		}
		return &result.Negotiation, nil
	}

	resp := transport.ToNegotiationResponse(n)
	return &resp, nil
}

// Get returns one negotiation. Health is re-scored for the response so a
// dashboard read between sweeps still reflects current idle time; the
// stored row is left for the sweep to update.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transport.NegotiationResponse, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}
	result := domain.EvaluateHealth(s.healthInput(ctx, n, s.now()))
	n.HealthStatus = result.Status
	n.IsStale = result.IsStale
	n.IsStalled = result.IsStalled
	resp := transport.ToNegotiationResponse(n)
	return &resp, nil
}

// List returns negotiations matching the dashboard filters.
func (s *Service) List(ctx context.Context, query transport.ListNegotiationsQuery) (*transport.ListNegotiationsResponse, error) {
	filter := repository.ListFilter{
		NeedsAttention:  query.NeedsAttention,
		HumanControlled: query.HumanControlled,
		Limit:           query.Limit,
		Offset:          query.Offset,
	}
	if query.Stage != "" {
		stage := domain.Stage(query.Stage)
		if !domain.IsKnownStage(stage) {
			return nil, apperr.Validation(fmt.Sprintf("unknown stage %q", query.Stage))
		}
		filter.Stage = &stage
	}
	if query.Health != "" {
		health := domain.HealthStatus(query.Health)
		if health != domain.HealthGreen && health != domain.HealthYellow && health != domain.HealthRed {
			return nil, apperr.Validation(fmt.Sprintf("unknown health status %q", query.Health))
		}
		filter.HealthStatus = &health
	}
	if query.ProviderID != "" {
		providerID, err := uuid.Parse(query.ProviderID)
		if err != nil {
			return nil, apperr.Validation("invalid provider id")
		}
		filter.ProviderID = &providerID
	}

	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &transport.ListNegotiationsResponse{
		Items: make([]transport.NegotiationResponse, 0, len(items)),
		Total: total,
	}
	for _, n := range items {
		resp.Items = append(resp.Items, transport.ToNegotiationResponse(n))
	}
	return resp, nil
}

// Timeline returns a negotiation's messages, optionally one thread only.
func (s *Service) Timeline(ctx context.Context, id uuid.UUID, role *domain.ThreadRole) ([]transport.MessageResponse, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, id, role)
	if err != nil {
		return nil, err
	}
	out := make([]transport.MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, transport.ToMessageResponse(m))
	}
	return out, nil
}

// Delete removes a negotiation. Active negotiations are protected: only
// terminal ones can be deleted without force.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("negotiation not found")
		}
		return err
	}
	if !domain.IsTerminal(n.Stage) && !force {
		return apperr.Conflict("negotiation is still active; cancel it first or use force")
	}
	// A forced delete is permanent; the routine kind stays recoverable
	// until retention cleanup picks it up.
	if force {
		if err := s.store.HardDelete(ctx, id); err != nil {
			return err
		}
	} else if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	// Deleting a booked negotiation frees the provider's slot.
	if n.Stage != domain.StageCancelled && n.ConfirmedInstant != nil {
		s.eventBus.Publish(ctx, events.NegotiationCancelled{
			BaseEvent:     events.NewBaseEvent(),
			NegotiationID: n.ID,
			ProviderID:    n.ProviderID,
			AppointmentAt: n.ConfirmedInstant,
			Reason:        "deleted",
		})
	}
	return nil
}

// Cancel moves a negotiation to the cancelled stage.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, operatorID uuid.UUID, reason string) (*transport.TransitionResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}
	if domain.IsTerminal(n.Stage) {
		return nil, apperr.Conflict(fmt.Sprintf("negotiation is already %s", n.Stage))
	}

	var warnings []string
	if domain.RequiresConfirmedInstant(n.Stage) {
		warnings = append(warnings, "cancelling a confirmed booking")
	}

	now := s.now()
	oldStage := n.Stage
	n.ApplyStage(domain.StageCancelled, now)
	n.HealthStatus = domain.HealthGreen
	n.IsStale = false
	n.IsStalled = false
	n.ClearAttention(now)
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}

	s.log.StageTransition(n.ID.String(), string(oldStage), string(domain.StageCancelled), "admin")
	s.eventBus.Publish(ctx, events.NegotiationCancelled{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		ProviderID:    n.ProviderID,
		AppointmentAt: n.ConfirmedInstant,
		Reason:        reason,
		ActorID:       &operatorID,
	})
	return &transport.TransitionResult{
		Negotiation: transport.ToNegotiationResponse(n),
		Warnings:    warnings,
	}, nil
}

// ApplyAdminTransition moves a negotiation to an explicit stage, bypassing
// the rule table. Irregular but plausible moves produce warnings rather
// than errors; impossible ones are rejected.
func (s *Service) ApplyAdminTransition(ctx context.Context, id uuid.UUID, operatorID uuid.UUID, req transport.AdminTransitionRequest) (*transport.TransitionResult, error) {
	target := domain.Stage(req.Stage)
	if !domain.IsKnownStage(target) {
		return nil, apperr.Validation(fmt.Sprintf("unknown stage %q", req.Stage))
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}

	if domain.IsTerminal(n.Stage) {
		return nil, apperr.Conflict(fmt.Sprintf("negotiation is already %s", n.Stage))
	}
	if target == n.Stage {
		return nil, apperr.Validation("negotiation is already in that stage")
	}
	now := s.now()
	if req.ConfirmedText != "" {
		instant := timetext.Parse(req.ConfirmedText, now, true)
		if instant == nil {
			return nil, apperr.Validation(fmt.Sprintf("cannot interpret %q as an appointment time", req.ConfirmedText))
		}
		text := req.ConfirmedText
		n.AppointmentText = &text
		n.ConfirmedInstant = instant
	}
	if domain.RequiresConfirmedInstant(target) && n.ConfirmedInstant == nil {
		return nil, apperr.Validation("cannot enter a booked stage without a confirmed appointment time")
	}
	if domain.IsForwardSkip(n.Stage, target) && !req.Force {
		return nil, apperr.Validation(fmt.Sprintf("moving from %s to %s skips stages; repeat with force to acknowledge", n.Stage, target))
	}

	var warnings []string
	if domain.IsBackwardTransition(n.Stage, target) {
		warnings = append(warnings, fmt.Sprintf("moving backwards from %s to %s", n.Stage, target))
	}
	if domain.IsForwardSkip(n.Stage, target) {
		warnings = append(warnings, fmt.Sprintf("skipping stages between %s and %s", n.Stage, target))
	}
	if target == domain.StageCancelled && domain.RequiresConfirmedInstant(n.Stage) {
		warnings = append(warnings, "cancelling a confirmed booking")
	}
	if n.HumanControlled && n.ControlledBy != nil && *n.ControlledBy != operatorID {
		warnings = append(warnings, "negotiation is under another operator's control")
	}

	oldStage := n.Stage
	n.ApplyStage(target, now)
	s.applyEntryEffects(&n, oldStage, now)
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}

	s.log.StageTransition(n.ID.String(), string(oldStage), string(target), "admin")
	s.eventBus.Publish(ctx, events.StageChanged{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		OldStage:      string(oldStage),
		NewStage:      string(target),
		Trigger:       "admin",
		ActorID:       &operatorID,
	})
	s.publishConfirmedIfNeeded(ctx, n, oldStage)

	return &transport.TransitionResult{
		Negotiation: transport.ToNegotiationResponse(n),
		Warnings:    warnings,
	}, nil
}

// applyEntryEffects applies the bookkeeping that entering a stage implies,
// regardless of what triggered the transition.
func (s *Service) applyEntryEffects(n *domain.Negotiation, oldStage domain.Stage, now time.Time) {
	switch n.Stage {
	case domain.StageConfirmed:
		if oldStage != domain.StageConfirmed && n.ConfirmedAt == nil {
			confirmedAt := now
			n.ConfirmedAt = &confirmedAt
		}
	case domain.StageRescheduling:
		// The previously agreed slot is void once rescheduling starts.
		n.AppointmentText = nil
		n.ConfirmedInstant = nil
		n.ConfirmedAt = nil
		n.MeetingLink = nil
		n.LastClientProposal = nil
		n.LastProviderProposal = nil
		n.HasThreadDivergence = false
	case domain.StageStalled:
		if oldStage != domain.StageStalled {
			from := oldStage
			n.StalledFrom = &from
		}
	}
	if n.Stage != domain.StageStalled {
		n.StalledFrom = nil
	}
	if domain.IsPostBooking(n.Stage) {
		n.HealthStatus = domain.HealthGreen
		n.IsStale = false
		n.IsStalled = false
	}
}

// publishConfirmedIfNeeded announces a freshly confirmed booking so the
// scheduler can enqueue its follow-ups.
func (s *Service) publishConfirmedIfNeeded(ctx context.Context, n domain.Negotiation, oldStage domain.Stage) {
	if n.Stage != domain.StageConfirmed || oldStage == domain.StageConfirmed {
		return
	}
	if n.ConfirmedInstant == nil || n.ConfirmedAt == nil {
		return
	}
	s.eventBus.Publish(ctx, events.NegotiationConfirmed{
		BaseEvent:      events.NewBaseEvent(),
		NegotiationID:  n.ID,
		ProviderID:     n.ProviderID,
		AppointmentAt:  *n.ConfirmedInstant,
		ConfirmedAt:    *n.ConfirmedAt,
		HasMeetingLink: n.MeetingLink != nil,
	})
}

// RecordToolFailure flags a negotiation after an automated action failed.
// The flag pins health to red until an operator clears it.
func (s *Service) RecordToolFailure(ctx context.Context, id uuid.UUID, tool string, toolErr error) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("negotiation not found")
		}
		return err
	}

	now := s.now()
	n.HasToolFailure = true
	n.HealthStatus = domain.EvaluateHealth(s.healthInput(ctx, n, now)).Status
	n.FlagAttention(fmt.Sprintf("automated action %s failed: %v", tool, toolErr), now)
	if err := s.store.Update(ctx, n); err != nil {
		return err
	}

	s.log.ToolFailure(n.ID.String(), tool, toolErr)
	s.eventBus.Publish(ctx, events.ToolFailureRecorded{
		BaseEvent:     events.NewBaseEvent(),
		NegotiationID: n.ID,
		Tool:          tool,
		ErrorMessage:  toolErr.Error(),
	})
	return nil
}

// ClearToolFailure removes the tool failure flag after operator review and
// re-scores health.
func (s *Service) ClearToolFailure(ctx context.Context, id uuid.UUID) (*transport.NegotiationResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}

	now := s.now()
	n.HasToolFailure = false
	n.ClearAttention(now)
	result := domain.EvaluateHealth(s.healthInput(ctx, n, now))
	n.HealthStatus = result.Status
	n.IsStale = result.IsStale
	n.IsStalled = result.IsStalled
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}
	resp := transport.ToNegotiationResponse(n)
	return &resp, nil
}

// ReconcileThreads records the operator-confirmed agreed time on both
// threads and clears the divergence flag. This is the only way the flag
// comes off.
func (s *Service) ReconcileThreads(ctx context.Context, id uuid.UUID, req transport.ReconcileRequest) (*transport.NegotiationResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}

	now := s.now()
	agreed := sanitize.Text(req.AgreedTime)
	if timetext.Parse(agreed, now, true) == nil {
		return nil, apperr.Validation("agreed time could not be understood")
	}
	n.LastClientProposal = &agreed
	n.LastProviderProposal = &agreed
	n.HasThreadDivergence = false
	n.ClearAttention(now)
	result := domain.EvaluateHealth(s.healthInput(ctx, n, now))
	n.HealthStatus = result.Status
	n.IsStale = result.IsStale
	n.IsStalled = result.IsStalled
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}
	resp := transport.ToNegotiationResponse(n)
	return &resp, nil
}

// SetMeetingLink records the meeting link on a negotiation.
func (s *Service) SetMeetingLink(ctx context.Context, id uuid.UUID, link string) (*transport.NegotiationResponse, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("negotiation not found")
		}
		return nil, err
	}
	now := s.now()
	n.MeetingLink = &link
	n.Touch(now)
	if n.NeedsAttention && n.AttentionReason != nil && *n.AttentionReason == attentionMissingLink {
		n.ClearAttention(now)
	}
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}
	resp := transport.ToNegotiationResponse(n)
	return &resp, nil
}

// healthInput assembles the evaluation input using current settings.
// Settings lookup failures fall back to permissive defaults rather than
// failing the operation.
func (s *Service) healthInput(ctx context.Context, n domain.Negotiation, now time.Time) domain.HealthInput {
	staleHours, stalledHours, err := s.settings.MonitorThresholds(ctx)
	if err != nil {
		s.log.Error("loading monitor thresholds, using defaults", "error", err)
		staleHours, stalledHours = 24, 72
	}
	return domain.HealthInput{
		Stage:               n.Stage,
		LastActivityAt:      n.LastActivityAt,
		HasThreadDivergence: n.HasThreadDivergence,
		HasToolFailure:      n.HasToolFailure,
		StaleHours:          staleHours,
		StalledHours:        stalledHours,
		Now:                 now,
	}
}

// RunHealthSweep re-scores every active negotiation. Invoked periodically
// by the scheduler; a threshold change takes effect on the next sweep.
func (s *Service) RunHealthSweep(ctx context.Context) (int, error) {
	staleHours, stalledHours, err := s.settings.MonitorThresholds(ctx)
	if err != nil {
		return 0, err
	}
	items, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	updated := 0
	for _, n := range items {
		result := domain.EvaluateHealth(domain.HealthInput{
			Stage:               n.Stage,
			LastActivityAt:      n.LastActivityAt,
			HasThreadDivergence: n.HasThreadDivergence,
			HasToolFailure:      n.HasToolFailure,
			StaleHours:          staleHours,
			StalledHours:        stalledHours,
			Now:                 now,
		})
		if result.Status == n.HealthStatus && result.IsStale == n.IsStale && result.IsStalled == n.IsStalled {
			continue
		}
		n.HealthStatus = result.Status
		n.IsStale = result.IsStale
		n.IsStalled = result.IsStalled
		n.UpdatedAt = now
		if err := s.store.Update(ctx, n); err != nil {
			s.log.DatabaseError("health sweep update", err)
			continue
		}
		updated++
	}
	return updated, nil
}

// PurgeDeleted permanently removes negotiations soft-deleted longer ago
// than the retention window.
func (s *Service) PurgeDeleted(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	return s.store.PurgeDeletedBefore(ctx, cutoff)
}
