// Package negotiations wires the negotiation module's automated pipeline.
package negotiations

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"concierge_backend/internal/events"
	"concierge_backend/internal/negotiations/agent"
	"concierge_backend/internal/negotiations/domain"
	"concierge_backend/internal/negotiations/service"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/logger"
)

// Sender delivers an outbound message on a negotiation thread. Implemented
// by the channel adapters (email today, chat channels later).
type Sender interface {
	Send(ctx context.Context, negotiation domain.Negotiation, role domain.ThreadRole, body string) error
}

// OrchestratorStore is the read surface the orchestrator needs.
type OrchestratorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Negotiation, error)
	RecentThreadMessages(ctx context.Context, negotiationID uuid.UUID, role domain.ThreadRole, limit int) ([]domain.Message, error)
}

// Orchestrator listens for inbound messages and drives the drafting agent.
// It never decides stage transitions; those happened already in the
// service before the event was published.
type Orchestrator struct {
	responder *agent.Responder
	sender    Sender
	store     OrchestratorStore
	svc       *service.Service
	log       *logger.Logger

	// Idempotency protection: tracks active agent runs
	activeRuns map[string]bool
	runsMu     sync.Mutex
}

func NewOrchestrator(responder *agent.Responder, sender Sender, store OrchestratorStore, svc *service.Service, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		responder:  responder,
		sender:     sender,
		store:      store,
		svc:        svc,
		log:        log,
		activeRuns: make(map[string]bool),
	}
}

// Subscribe registers the orchestrator on the event bus.
func (o *Orchestrator) Subscribe(bus events.Bus) {
	bus.Subscribe(events.MessageReceived{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if evt, ok := e.(events.MessageReceived); ok {
			o.OnMessageReceived(ctx, evt)
		}
		return nil
	}))
}

func (o *Orchestrator) markRunning(key string) bool {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	if o.activeRuns[key] {
		return false
	}
	o.activeRuns[key] = true
	return true
}

func (o *Orchestrator) markComplete(key string) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	delete(o.activeRuns, key)
}

// OnMessageReceived drafts and sends a reply on the thread the message
// arrived on, unless the negotiation is closed or an operator holds it.
func (o *Orchestrator) OnMessageReceived(ctx context.Context, evt events.MessageReceived) {
	role := domain.ThreadRole(evt.Role)
	if role != domain.RoleClient && role != domain.RoleProvider {
		return
	}

	n, err := o.store.GetByID(ctx, evt.NegotiationID)
	if err != nil {
		o.log.Error("orchestrator: failed to load negotiation", "error", err, "negotiationId", evt.NegotiationID)
		return
	}
	if domain.IsTerminal(n.Stage) {
		return
	}
	if n.HumanControlled {
		o.log.Info("orchestrator: negotiation under human control, not replying", "negotiationId", n.ID)
		return
	}
	if n.NeedsAttention {
		// Flagged negotiations wait for an operator rather than letting
		// the agent talk past the problem.
		return
	}

	key := "responder:" + n.ID.String() + ":" + string(role)
	if !o.markRunning(key) {
		o.log.Info("orchestrator: responder already running for thread, skipping", "negotiationId", n.ID, "role", role)
		return
	}

	go func() {
		defer o.markComplete(key)
		ctx := context.WithoutCancel(ctx)

		history, err := o.store.RecentThreadMessages(ctx, n.ID, role, 20)
		if err != nil {
			o.log.Error("orchestrator: failed to load thread history", "error", err)
			return
		}
		// Newest first from the store; the model wants oldest first.
		turns := make([]agent.Turn, 0, len(history))
		for i := len(history) - 1; i >= 0; i-- {
			turns = append(turns, agent.Turn{Direction: history[i].Direction, Body: history[i].Body})
		}

		reply, err := o.responder.DraftReply(ctx, agent.DraftInput{
			ClientName: n.ClientName,
			Stage:      n.Stage,
			Thread:     role,
			History:    turns,
		})
		if err != nil {
			o.recordFailure(ctx, n.ID, "draft_reply", err)
			return
		}
		// Drafting takes a while; the world may have moved on. Re-check
		// the gate so a reply drafted before an operator took over is
		// dropped instead of sent behind their back.
		current, err := o.store.GetByID(ctx, n.ID)
		if err != nil {
			o.log.Error("orchestrator: failed to re-load negotiation", "error", err, "negotiationId", n.ID)
			return
		}
		if current.HumanControlled || current.NeedsAttention || domain.IsTerminal(current.Stage) {
			o.log.Info("orchestrator: discarding drafted reply, negotiation state changed", "negotiationId", n.ID)
			return
		}
		if err := o.sender.Send(ctx, current, role, reply); err != nil {
			o.recordFailure(ctx, n.ID, "send_message", err)
			return
		}
		if err := o.svc.RecordOutboundMessage(ctx, n.ID, role, reply); err != nil {
			if apperr.GetKind(err) == apperr.KindConflict {
				o.log.Info("orchestrator: reply not recorded, operator took control mid-send", "negotiationId", n.ID)
				return
			}
			o.log.Error("orchestrator: failed to record outbound message", "error", err)
		}
	}()
}

func (o *Orchestrator) recordFailure(ctx context.Context, id uuid.UUID, tool string, err error) {
	if recordErr := o.svc.RecordToolFailure(ctx, id, tool, err); recordErr != nil {
		o.log.Error("orchestrator: failed to record tool failure", "error", recordErr, "tool", tool)
	}
}
