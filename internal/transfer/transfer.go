// Package transfer implements the transfer table: a per-entity registration
// with a bounded lifetime whose expiry is the trigger for the locator step.
package transfer

import (
	"context"
	"time"

	"github.com/trivago/geolocator/internal/model"
)

// DefaultTTL is the registration lifetime applied when the caller has no
// opinion of its own.
const DefaultTTL = 3 * time.Hour

// Store registers entities for eventual locator processing and reports
// which registrations have expired — the locator's trigger condition.
type Store interface {
	// Register upserts key's row, resetting its expiry to now+ttl. A
	// re-registration of an already-registered entity simply extends its
	// lifetime.
	Register(ctx context.Context, key model.EntityKey, ttl time.Duration) error

	// ClaimExpired atomically claims up to limit rows whose expiry has
	// passed, removing them from the table and returning their keys — each
	// returned key is the trigger for one locator invocation.
	ClaimExpired(ctx context.Context, limit int) ([]model.EntityKey, error)
}
