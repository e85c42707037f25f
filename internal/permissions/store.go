package permissions

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no record exists for a key. The bridge treats
// a missing record identically to a fresh request-state record.
var ErrNotFound = errors.New("permission not found")

// Store is the durable mapping from permission key to PermissionRequest.
// Implementations are pure data access and hold no policy; the broker is the
// only component that writes decisions.
type Store interface {
	Get(ctx context.Context, key string) (PermissionRequest, error)
	Put(ctx context.Context, req PermissionRequest) error
	Delete(ctx context.Context, key string) error
	ListByOrigin(ctx context.Context, origin string) ([]PermissionRequest, error)
}
