// Package broker owns the permission decision lifecycle: store lookup,
// record creation, the single human-approval prompt window, and the final
// state transition.
package broker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/keyfort/provider-bridge/internal/metrics"
	"github.com/keyfort/provider-bridge/internal/permissions"
)

// Decision is the outcome of a human approval prompt.
type Decision int

const (
	// DecisionDismissed means the window closed without an explicit choice.
	// The broker treats it as a deny: an interrupted flow never grants.
	DecisionDismissed Decision = iota
	DecisionAllow
	DecisionDeny
)

// ParseDecision converts the wire representation of an operator decision.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case permissions.StateAllow:
		return DecisionAllow, nil
	case permissions.StateDeny:
		return DecisionDeny, nil
	}
	return DecisionDismissed, errors.Errorf("invalid decision %q", s)
}

// Prompter surfaces a pending permission request to the operator and blocks
// until a decision arrives or ctx is cancelled. The host environment owns
// the window lifecycle.
type Prompter interface {
	PromptForDecision(ctx context.Context, req permissions.PermissionRequest) (Decision, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, req permissions.PermissionRequest) (Decision, error)

func (f PrompterFunc) PromptForDecision(ctx context.Context, req permissions.PermissionRequest) (Decision, error) {
	return f(ctx, req)
}

type pending struct {
	done   chan struct{}
	record permissions.PermissionRequest
	err    error
}

// Broker orchestrates permission lookup, creation, and the prompt lifecycle.
// It is the only writer of the permission store.
type Broker struct {
	store    permissions.Store
	prompter Prompter
	log      *zap.Logger

	mu       sync.Mutex
	inflight map[string]*pending

	// window is the global prompt slot. Capacity one: a request for a
	// different key queues behind the active prompt instead of opening a
	// second window.
	window chan struct{}
}

// New creates a Broker over the given store and prompt surface.
func New(store permissions.Store, prompter Prompter, log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{
		store:    store,
		prompter: prompter,
		log:      log,
		inflight: make(map[string]*pending),
		window:   make(chan struct{}, 1),
	}
}

// EnsurePermission returns the decision record for req's
// (origin, account, chain) triple, prompting the operator if none exists.
// Decided records return immediately. A request whose key already has a
// prompt in flight attaches to that resolution instead of creating a
// duplicate. The call suspends while the decision is outstanding; ctx
// cancellation abandons the wait without writing a decision, leaving the
// record in the request state for a future call to resume.
func (b *Broker) EnsurePermission(ctx context.Context, req permissions.PermissionRequest) (permissions.PermissionRequest, error) {
	req.Key = permissions.PermissionKey(req.Origin, req.AccountAddress, req.ChainID)
	req.State = permissions.StateRequest
	if err := req.Validate(); err != nil {
		return permissions.PermissionRequest{}, err
	}

	stored, err := b.store.Get(ctx, req.Key)
	switch {
	case err == nil && stored.Decided():
		return stored, nil
	case err != nil && !errors.Is(err, permissions.ErrNotFound):
		return permissions.PermissionRequest{}, err
	}

	b.mu.Lock()
	if p, ok := b.inflight[req.Key]; ok {
		b.mu.Unlock()
		return b.await(ctx, p)
	}
	p := &pending{done: make(chan struct{})}
	b.inflight[req.Key] = p
	b.mu.Unlock()

	p.record, p.err = b.drive(ctx, req)

	b.mu.Lock()
	delete(b.inflight, req.Key)
	b.mu.Unlock()
	close(p.done)

	return p.record, p.err
}

// drive persists the request-state record, waits for the prompt window, and
// applies the operator's decision.
func (b *Broker) drive(ctx context.Context, req permissions.PermissionRequest) (permissions.PermissionRequest, error) {
	// Re-read now that this caller holds the in-flight slot for the key.
	// A decision can land between the optimistic lookup and the
	// registration; writing the request state over it would reopen a
	// decided key.
	stored, err := b.store.Get(ctx, req.Key)
	switch {
	case err == nil && stored.Decided():
		return stored, nil
	case err != nil && !errors.Is(err, permissions.ErrNotFound):
		return permissions.PermissionRequest{}, err
	}

	if err := b.store.Put(ctx, req); err != nil {
		return permissions.PermissionRequest{}, err
	}

	metrics.PromptsPending.Inc()
	defer metrics.PromptsPending.Dec()

	select {
	case b.window <- struct{}{}:
	case <-ctx.Done():
		return permissions.PermissionRequest{}, ctx.Err()
	}
	defer func() { <-b.window }()

	metrics.PromptsOpened.Inc()
	b.log.Info("opening permission prompt",
		zap.String("origin", req.Origin),
		zap.String("account", req.AccountAddress),
		zap.String("chain_id", req.ChainID),
	)

	decision, err := b.prompter.PromptForDecision(ctx, req)
	if err != nil {
		// Abandoned (originating tab closed, shutdown). The record stays in
		// the request state so a later call prompts again.
		b.log.Info("permission prompt abandoned",
			zap.String("key", req.Key), zap.Error(err))
		return permissions.PermissionRequest{}, err
	}

	if decision == DecisionAllow {
		req.State = permissions.StateAllow
	} else {
		req.State = permissions.StateDeny
	}
	if err := b.store.Put(ctx, req); err != nil {
		return permissions.PermissionRequest{}, err
	}

	metrics.Decisions.WithLabelValues(req.State).Inc()
	b.log.Info("permission decision recorded",
		zap.String("key", req.Key),
		zap.String("state", req.State),
	)
	return req, nil
}

// await blocks on another caller's in-flight resolution for the same key.
func (b *Broker) await(ctx context.Context, p *pending) (permissions.PermissionRequest, error) {
	select {
	case <-p.done:
		return p.record, p.err
	case <-ctx.Done():
		return permissions.PermissionRequest{}, ctx.Err()
	}
}

// Revoke removes a decided record so the next capability call from that
// origin starts a fresh request.
func (b *Broker) Revoke(ctx context.Context, key string) error {
	if err := b.store.Delete(ctx, key); err != nil {
		return err
	}
	b.log.Info("permission revoked", zap.String("key", key))
	return nil
}
