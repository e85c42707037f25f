// Package signing defines the boundary to the wallet's signing subsystem.
// The bridge routes capability-requiring calls here only after verifying a
// persisted allow record; nothing in this package checks permissions.
package signing

import (
	"context"
	"encoding/json"
)

// Backend executes capability-requiring RPC calls: transaction submission,
// message signing, and typed-data signing.
type Backend interface {
	RouteSafeRequest(ctx context.Context, method string, params json.RawMessage, origin string) (json.RawMessage, error)
}
