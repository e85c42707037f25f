package broker

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/keyfort/provider-bridge/internal/permissions"
)

// ErrUnknownPrompt is returned when a decision names a prompt that is not
// pending (already resolved, abandoned, or never existed).
var ErrUnknownPrompt = errors.New("unknown prompt id")

// PendingPrompt is one approval prompt awaiting an operator decision.
type PendingPrompt struct {
	ID      string                        `json:"id"`
	Request permissions.PermissionRequest `json:"request"`
}

type hubEntry struct {
	prompt   PendingPrompt
	decision chan Decision
}

// Hub is the production Prompter. PromptForDecision parks the request until
// the extension popup fetches it through Pending and posts the operator's
// choice through Resolve.
type Hub struct {
	log *zap.Logger

	mu      sync.Mutex
	pending map[string]*hubEntry
}

// NewHub creates an empty prompt hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log, pending: make(map[string]*hubEntry)}
}

// PromptForDecision implements Prompter. It blocks until Resolve delivers a
// decision for the prompt or ctx is cancelled.
func (h *Hub) PromptForDecision(ctx context.Context, req permissions.PermissionRequest) (Decision, error) {
	entry := &hubEntry{
		prompt:   PendingPrompt{ID: uuid.NewString(), Request: req},
		decision: make(chan Decision, 1),
	}

	h.mu.Lock()
	h.pending[entry.prompt.ID] = entry
	h.mu.Unlock()

	h.log.Debug("prompt surfaced", zap.String("prompt_id", entry.prompt.ID), zap.String("origin", req.Origin))

	select {
	case d := <-entry.decision:
		return d, nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.pending, entry.prompt.ID)
		h.mu.Unlock()
		return DecisionDismissed, ctx.Err()
	}
}

// Pending returns the prompts currently awaiting a decision.
func (h *Hub) Pending() []PendingPrompt {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]PendingPrompt, 0, len(h.pending))
	for _, entry := range h.pending {
		out = append(out, entry.prompt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve delivers the operator's decision for a prompt ID.
func (h *Hub) Resolve(id string, d Decision) error {
	h.mu.Lock()
	entry, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()

	if !ok {
		return ErrUnknownPrompt
	}
	entry.decision <- d
	return nil
}
