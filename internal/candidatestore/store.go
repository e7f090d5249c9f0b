// Package candidatestore persists per-entity geocode candidate rows: every
// provider's opinion of where an entity sits, upserted on (entity, provider)
// and read back as the full set of opinions a ruleset or fallback stage
// evaluates together.
package candidatestore

import (
	"context"

	"github.com/trivago/geolocator/internal/model"
)

// Store is the candidate row persistence contract every worker stage
// depends on: write one provider's opinion, read every opinion for an
// entity, and watch for entities whose candidate set changed.
type Store interface {
	// Upsert writes or replaces a single candidate row, keyed by
	// (entity, provider).
	Upsert(ctx context.Context, c model.Candidate) error

	// GetAllByEntity returns every candidate row for key, across all
	// providers and batches, ordered oldest-first (insertion order matters
	// for first-occurrence tie-breaking in the ruleset evaluator).
	GetAllByEntity(ctx context.Context, key model.EntityKey) ([]model.Candidate, error)

	// Watch streams EntityKeys whose candidate set changed since it was
	// called, via the store's change-notification mechanism. The channel is
	// closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan model.EntityKey, error)
}
