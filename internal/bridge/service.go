// Package bridge implements the provider bridge: the single entry point for
// RPC requests arriving from untrusted page origins. Every capability a page
// can exercise over the user's keys flows through here.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/keyfort/provider-bridge/internal/broker"
	"github.com/keyfort/provider-bridge/internal/eip1193"
	"github.com/keyfort/provider-bridge/internal/metrics"
	"github.com/keyfort/provider-bridge/internal/permissions"
	"github.com/keyfort/provider-bridge/internal/signing"
)

// Service routes content-script RPC requests through permission enforcement
// to the signing backend. It reads the permission store but never writes it;
// decisions are the broker's alone.
type Service struct {
	store  permissions.Store
	broker *broker.Broker
	signer signing.Backend
	log    *zap.Logger
}

// NewService creates the provider bridge service.
func NewService(store permissions.Store, brk *broker.Broker, signer signing.Backend, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, broker: brk, signer: signer, log: log}
}

// Route resolves the caller's current permission from the store and routes
// the request. The store is re-read on every call; a positive decision is
// never cached across calls.
func (s *Service) Route(ctx context.Context, method string, params json.RawMessage, origin, accountAddress, chainID string) (any, *eip1193.Error) {
	perm := permissions.PermissionRequest{
		Key:            permissions.PermissionKey(origin, accountAddress, chainID),
		Origin:         origin,
		State:          permissions.StateRequest,
		AccountAddress: accountAddress,
		ChainID:        chainID,
	}

	stored, err := s.store.Get(ctx, perm.Key)
	switch {
	case err == nil:
		perm = stored
	case !errors.Is(err, permissions.ErrNotFound):
		s.log.Error("permission lookup failed", zap.String("key", perm.Key), zap.Error(err))
		metrics.RequestsTotal.WithLabelValues(method, metrics.OutcomeError).Inc()
		return nil, eip1193.Normalize(err)
	}

	return s.RouteContentScriptRPCRequest(ctx, perm, method, params, origin)
}

// RouteContentScriptRPCRequest routes one RPC call using the permission the
// content-script session currently holds. The permission is an explicit
// parameter: routing never consults ambient state for its authorization
// decision.
func (s *Service) RouteContentScriptRPCRequest(ctx context.Context, enablingPermission permissions.PermissionRequest, method string, params json.RawMessage, origin string) (any, *eip1193.Error) {
	switch method {
	case MethodEthRequestAccounts:
		return s.requestAccounts(ctx, enablingPermission, origin)

	case MethodEthAccounts:
		metrics.RequestsTotal.WithLabelValues(method, metrics.OutcomeOK).Inc()
		if authorizes(enablingPermission, origin) {
			return []string{enablingPermission.AccountAddress}, nil
		}
		// A denied or unknown origin learns nothing about which accounts
		// exist, only that none are exposed to it.
		return []string{}, nil

	case MethodEthChainID:
		metrics.RequestsTotal.WithLabelValues(method, metrics.OutcomeOK).Inc()
		return chainIDHex(enablingPermission.ChainID), nil

	case MethodNetVersion:
		metrics.RequestsTotal.WithLabelValues(method, metrics.OutcomeOK).Inc()
		return enablingPermission.ChainID, nil
	}

	switch Classify(method) {
	case CapabilityRequiring:
		return s.routeCapabilityRequest(ctx, enablingPermission, method, params, origin)
	default:
		metrics.RequestsTotal.WithLabelValues(method, metrics.OutcomeUnsupported).Inc()
		s.log.Warn("unsupported method rejected",
			zap.String("method", method),
			zap.String("origin", origin),
		)
		return nil, eip1193.ErrUnsupportedMethod
	}
}

// routeCapabilityRequest enforces the core security invariant: no
// side-effecting call reaches the signing backend without a persisted allow
// record for the exact (origin, account, chain) triple of the call.
func (s *Service) routeCapabilityRequest(ctx context.Context, perm permissions.PermissionRequest, method string, params json.RawMessage, origin string) (any, *eip1193.Error) {
	if !authorizes(perm, origin) {
		metrics.RequestsTotal.WithLabelValues(method, metrics.OutcomeUnauthorized).Inc()
		s.log.Warn("unauthorized capability request",
			zap.String("method", method),
			zap.String("origin", origin),
			zap.String("state", perm.State),
		)
		return nil, eip1193.ErrUnauthorized
	}

	result, err := s.signer.RouteSafeRequest(ctx, method, params, origin)
	if err != nil {
		normalized := eip1193.Normalize(err)
		metrics.RequestsTotal.WithLabelValues(method, metrics.OutcomeError).Inc()
		s.log.Warn("capability request failed",
			zap.String("method", method),
			zap.String("origin", origin),
			zap.Int("code", normalized.Code),
		)
		return nil, normalized
	}

	metrics.RequestsTotal.WithLabelValues(method, metrics.OutcomeOK).Inc()
	return result, nil
}

// requestAccounts is the explicit connection flow: the only path that may
// open an approval prompt.
func (s *Service) requestAccounts(ctx context.Context, perm permissions.PermissionRequest, origin string) (any, *eip1193.Error) {
	req := permissions.PermissionRequest{
		Origin:         origin,
		FaviconURL:     perm.FaviconURL,
		Title:          perm.Title,
		AccountAddress: perm.AccountAddress,
		ChainID:        perm.ChainID,
	}

	granted, err := s.broker.EnsurePermission(ctx, req)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(MethodEthRequestAccounts, metrics.OutcomeError).Inc()
		s.log.Warn("connection request failed", zap.String("origin", origin), zap.Error(err))
		return nil, eip1193.Normalize(err)
	}

	if granted.Allowed() {
		metrics.RequestsTotal.WithLabelValues(MethodEthRequestAccounts, metrics.OutcomeOK).Inc()
		return []string{granted.AccountAddress}, nil
	}

	metrics.RequestsTotal.WithLabelValues(MethodEthRequestAccounts, metrics.OutcomeUnauthorized).Inc()
	return nil, eip1193.ErrUnauthorized
}

// authorizes reports whether perm is a persisted allow record belonging to
// the calling origin.
func authorizes(perm permissions.PermissionRequest, origin string) bool {
	return perm.Allowed() && perm.Origin == origin
}

// chainIDHex renders a decimal chain ID as the 0x-prefixed quantity
// eth_chainId callers expect.
func chainIDHex(chainID string) string {
	n, err := strconv.ParseUint(chainID, 10, 64)
	if err != nil {
		return chainID
	}
	return fmt.Sprintf("0x%x", n)
}
