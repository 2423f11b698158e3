// Package agent drafts outbound replies for negotiation threads. The agent
// only writes text; stage transitions stay with the deterministic rule
// table so a model hallucination can never move a negotiation.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"concierge_backend/internal/negotiations/domain"
)

const systemInstruction = `You are a scheduling assistant coordinating an appointment between a client and a service provider.
You are writing the next reply on ONE of the two threads.

RULES:
1. Be brief, warm and professional. One short paragraph.
2. Your only job is moving the scheduling conversation forward: ask for availability, relay options, confirm details.
3. Never invent appointment times that were not mentioned in the conversation.
4. Never promise cancellations, refunds or anything outside scheduling. If asked, say a coordinator will follow up.
5. Do not mention that you are automated.`

// Turn is one prior message given to the model as context.
type Turn struct {
	Direction domain.MessageDirection
	Body      string
}

// DraftInput describes the reply being requested.
type DraftInput struct {
	ClientName   string
	ProviderName string
	Stage        domain.Stage
	Thread       domain.ThreadRole
	History      []Turn
}

// Responder drafts replies with Gemini. Calls are bounded by the
// configured timeout; a slow or failing model surfaces as an error the
// orchestrator turns into a tool failure flag.
type Responder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewResponder creates the drafting agent.
func NewResponder(ctx context.Context, apiKey, model string, timeout time.Duration) (*Responder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Responder{client: client, model: model, timeout: timeout}, nil
}

// DraftReply produces the next message for the given thread.
func (r *Responder) DraftReply(ctx context.Context, input DraftInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Models.GenerateContent(ctx, r.model,
		genai.Text(buildPrompt(input)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.4),
		},
	)
	if err != nil {
		return "", fmt.Errorf("drafting reply: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("drafting reply: empty response")
	}
	return text, nil
}

func buildPrompt(input DraftInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client: %s\n", input.ClientName)
	if input.ProviderName != "" {
		fmt.Fprintf(&b, "Provider: %s\n", input.ProviderName)
	}
	fmt.Fprintf(&b, "Negotiation stage: %s\n", input.Stage)
	fmt.Fprintf(&b, "You are replying on the %s thread.\n\n", input.Thread)
	b.WriteString("Conversation so far (oldest first):\n")
	for _, turn := range input.History {
		who := "them"
		if turn.Direction == domain.DirectionOutbound {
			who = "you"
		}
		fmt.Fprintf(&b, "[%s] %s\n", who, turn.Body)
	}
	b.WriteString("\nWrite the next reply.")
	return b.String()
}
