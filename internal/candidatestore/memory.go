package candidatestore

import (
	"context"
	"sync"

	"github.com/trivago/geolocator/internal/model"
)

// MemoryStore is an in-process Store implementation for unit tests and the
// router/dispatcher/consolidator wiring tests, avoiding a live Postgres
// instance. Rows are kept in insertion order per entity so first-occurrence
// tie-breaking in the ruleset evaluator behaves identically to Postgres's
// ORDER BY created_at.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string][]model.Candidate
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]model.Candidate)}
}

// Upsert implements Store: replaces an existing (entity, provider) row in
// place, else appends. The pair (entity, provider) is the sole uniqueness
// key; batch_id is carried as a plain field, not part of the key.
func (m *MemoryStore) Upsert(ctx context.Context, c model.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.Key().Composite()
	rows := m.rows[key]
	for i, existing := range rows {
		if existing.Provider == c.Provider {
			rows[i] = c
			return nil
		}
	}
	m.rows[key] = append(rows, c)
	return nil
}

// GetAllByEntity implements Store.
func (m *MemoryStore) GetAllByEntity(ctx context.Context, key model.EntityKey) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[key.Composite()]
	out := make([]model.Candidate, len(rows))
	copy(out, rows)
	return out, nil
}

// Watch implements Store with a channel that is never written to: tests
// that exercise a notification-driven consumer supply their own fake.
func (m *MemoryStore) Watch(ctx context.Context) (<-chan model.EntityKey, error) {
	ch := make(chan model.EntityKey)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
