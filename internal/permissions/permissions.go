package permissions

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// States a PermissionRequest can hold. A record transitions from request to
// allow or deny exactly once, driven by an explicit operator decision.
const (
	StateAllow   = "allow"
	StateDeny    = "deny"
	StateRequest = "request"
)

// PermissionRequest is the unit of trust granted to one origin for one
// account on one chain. The store keeps at most one record per
// (origin, account, chain) triple.
type PermissionRequest struct {
	Key            string `json:"key"`
	Origin         string `json:"origin"`
	FaviconURL     string `json:"faviconUrl"`
	Title          string `json:"title"`
	State          string `json:"state"`
	AccountAddress string `json:"accountAddress"`
	ChainID        string `json:"chainID"`
}

// PermissionKey builds the composite store key addressing one trust
// decision.
func PermissionKey(origin, accountAddress, chainID string) string {
	return fmt.Sprintf("%s_%s_%s", origin, accountAddress, chainID)
}

// Decided reports whether the record holds an explicit operator decision.
func (p PermissionRequest) Decided() bool {
	return p.State == StateAllow || p.State == StateDeny
}

// Allowed reports whether the origin may exercise wallet authority for the
// account and chain named by the record.
func (p PermissionRequest) Allowed() bool {
	return p.State == StateAllow
}

// Validate checks a record before it is persisted.
func (p PermissionRequest) Validate() error {
	if p.Origin == "" {
		return errors.New("origin is required")
	}
	if !IsAddressValid(p.AccountAddress) {
		return errors.Errorf("invalid account address %q", p.AccountAddress)
	}
	if p.ChainID == "" {
		return errors.New("chain ID is required")
	}
	switch p.State {
	case StateAllow, StateDeny, StateRequest:
	default:
		return errors.Errorf("invalid state %q", p.State)
	}
	if expected := PermissionKey(p.Origin, p.AccountAddress, p.ChainID); p.Key != expected {
		return errors.Errorf("key %q does not match origin/account/chain (expected %q)", p.Key, expected)
	}
	return nil
}

// IsAddressValid checks if the provided string is a valid Ethereum address.
// It verifies:
// 1. The address is exactly 42 characters long (including 0x prefix)
// 2. The address starts with "0x"
// 3. The remaining 40 characters are valid hexadecimal
func IsAddressValid(address string) bool {
	if len(address) != 42 {
		return false
	}
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	for _, c := range address[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
