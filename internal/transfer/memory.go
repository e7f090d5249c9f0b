package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/trivago/geolocator/internal/model"
)

// MemoryStore is an in-process Store for tests, tracking each entity's
// expiry and a fake clock so expiry tests don't need real sleeps.
type MemoryStore struct {
	mu      sync.Mutex
	expires map[model.EntityKey]time.Time
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore using the real wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{expires: make(map[model.EntityKey]time.Time), now: time.Now}
}

// NewMemoryStoreWithClock returns an empty MemoryStore driven by now,
// letting tests control expiry deterministically.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{expires: make(map[model.EntityKey]time.Time), now: now}
}

// Register implements Store.
func (m *MemoryStore) Register(ctx context.Context, key model.EntityKey, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = m.now().Add(ttl)
	return nil
}

// ClaimExpired implements Store.
func (m *MemoryStore) ClaimExpired(ctx context.Context, limit int) ([]model.EntityKey, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var claimed []model.EntityKey
	for key, expiresAt := range m.expires {
		if len(claimed) >= limit {
			break
		}
		if !now.Before(expiresAt) {
			claimed = append(claimed, key)
		}
	}
	for _, key := range claimed {
		delete(m.expires, key)
	}
	return claimed, nil
}
